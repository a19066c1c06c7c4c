// Package threeds drives the 3-D Secure protocol around biller charges.
//
// Both services decide from a single biller response and perform at most one
// follow-up call. A follow-up that fails is returned as is; it is never
// retried again.
package threeds

import (
	"context"
	"strconv"

	"paygate/pkg/biller"
	"paygate/pkg/logging"
	"paygate/pkg/metrics"
	"paygate/pkg/observability"
	"paygate/pkg/transaction"

	"go.uber.org/zap"
)

// Charger performs one charge call for the transaction as currently
// configured (notably its With3D flag). It never returns an error: failures
// come back as aborted responses.
type Charger interface {
	Charge(ctx context.Context, tx *transaction.ChargeTransaction) biller.Response
}

// LookupRequest carries what the 3DS2 lookup endpoint needs on top of the
// transaction's card data.
type LookupRequest struct {
	DeviceFingerprintID string `json:"deviceFingerprintId" validate:"required"`
	ReturnURL           string `json:"returnUrl" validate:"required,url"`
}

// Looker performs the 3DS2 device-fingerprint lookup.
type Looker interface {
	Lookup(ctx context.Context, tx *transaction.ChargeTransaction, req LookupRequest) biller.Response
}

// Options configures both services.
type Options struct {
	// RetrySCAForPaymentTemplate allows the SCA-required retry for charges on
	// a stored card. When false such charges keep their first response.
	RetrySCAForPaymentTemplate bool `yaml:"retry_sca_for_payment_template"`

	Sink    observability.Sink
	Metrics metrics.MetricsCollector
	Logger  *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.Sink == nil {
		o.Sink = observability.NopSink{}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NoOpCollector{}
	}
	if o.Logger == nil {
		o.Logger = logging.Global()
	}
	o.Logger = o.Logger.Named("threeds")
	return o
}

// emit writes a BI event. Sink failures are logged and otherwise ignored.
func emit(ctx context.Context, o Options, e observability.Event) {
	if err := o.Sink.Write(ctx, e); err != nil {
		o.Logger.Warn("bi event not written",
			zap.String("type", string(e.Type)),
			zap.String("transaction_id", e.TransactionID),
			zap.Error(err),
		)
	}
}

func versionAttr(tx *transaction.ChargeTransaction) string {
	if v, ok := tx.ThreedsVersion(); ok {
		return strconv.Itoa(v)
	}
	return ""
}
