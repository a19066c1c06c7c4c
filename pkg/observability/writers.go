package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"paygate/pkg/logging"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// LogWriter writes each event as one structured log line.
type LogWriter struct {
	logger *logging.Logger
}

// NewLogWriter logs through the given logger, or the global one when nil.
func NewLogWriter(logger *logging.Logger) *LogWriter {
	if logger == nil {
		logger = logging.Global()
	}
	return &LogWriter{logger: logger.Named("bi")}
}

func (w *LogWriter) Name() string { return "log" }

func (w *LogWriter) Write(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("event", string(e.Type)),
		zap.String("transaction_id", e.TransactionID),
		zap.String("biller", e.Biller),
		zap.Time("occurred_at", e.OccurredAt),
	}
	for k, v := range e.Attributes {
		fields = append(fields, zap.String(k, v))
	}
	w.logger.Info("bi event", fields...)
	return nil
}

// RedisStreamWriter appends events to a Redis stream with XADD.
type RedisStreamWriter struct {
	client rueidis.Client
	stream string
	maxLen int64
}

// NewRedisStreamWriter writes to stream, trimming it to roughly maxLen
// entries when maxLen is positive.
func NewRedisStreamWriter(client rueidis.Client, stream string, maxLen int64) *RedisStreamWriter {
	return &RedisStreamWriter{client: client, stream: stream, maxLen: maxLen}
}

func (w *RedisStreamWriter) Name() string { return "redis_stream" }

func (w *RedisStreamWriter) Write(ctx context.Context, e Event) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("observability: encode attributes: %w", err)
	}

	var cmd rueidis.Completed
	if w.maxLen > 0 {
		cmd = w.client.B().Xadd().Key(w.stream).
			Maxlen().Almost().Threshold(strconv.FormatInt(w.maxLen, 10)).
			Id("*").FieldValue().
			FieldValue("type", string(e.Type)).
			FieldValue("transaction_id", e.TransactionID).
			FieldValue("biller", e.Biller).
			FieldValue("attributes", string(attrs)).
			FieldValue("occurred_at", e.OccurredAt.Format(time.RFC3339Nano)).
			Build()
	} else {
		cmd = w.client.B().Xadd().Key(w.stream).
			Id("*").FieldValue().
			FieldValue("type", string(e.Type)).
			FieldValue("transaction_id", e.TransactionID).
			FieldValue("biller", e.Biller).
			FieldValue("attributes", string(attrs)).
			FieldValue("occurred_at", e.OccurredAt.Format(time.RFC3339Nano)).
			Build()
	}

	if err := w.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("observability: xadd %s: %w", w.stream, err)
	}
	return nil
}
