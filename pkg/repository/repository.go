// Package repository stores transactions. Add and Update are atomic per
// transaction in every backend, so overlapping requests on one id cannot
// interleave their writes.
package repository

import (
	"context"
	"errors"
	"time"

	"paygate/pkg/metrics"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotFound is returned when no transaction has the requested id.
	ErrNotFound = errors.New("repository: transaction not found")

	// ErrAlreadyExists is returned by Add for an id that is already stored.
	ErrAlreadyExists = errors.New("repository: transaction already exists")
)

// IsNotFound reports whether err is a missing transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Repository is the transaction store.
type Repository interface {
	Add(ctx context.Context, tx transaction.Aggregate) error
	Update(ctx context.Context, tx transaction.Aggregate) error
	FindByID(ctx context.Context, id uuid.UUID) (transaction.Aggregate, error)
}

// Instrumented records the latency and outcome of every call.
type Instrumented struct {
	next    Repository
	backend string
	metrics metrics.MetricsCollector
}

// NewInstrumented wraps next. backend labels the metrics.
func NewInstrumented(next Repository, backend string, mc metrics.MetricsCollector) *Instrumented {
	if mc == nil {
		mc = metrics.NoOpCollector{}
	}
	return &Instrumented{next: next, backend: backend, metrics: mc}
}

func (r *Instrumented) Add(ctx context.Context, tx transaction.Aggregate) error {
	start := time.Now()
	err := r.next.Add(ctx, tx)
	r.metrics.RecordRepositoryOp(r.backend, "add", err == nil, time.Since(start))
	return err
}

func (r *Instrumented) Update(ctx context.Context, tx transaction.Aggregate) error {
	start := time.Now()
	err := r.next.Update(ctx, tx)
	r.metrics.RecordRepositoryOp(r.backend, "update", err == nil, time.Since(start))
	return err
}

func (r *Instrumented) FindByID(ctx context.Context, id uuid.UUID) (transaction.Aggregate, error) {
	start := time.Now()
	tx, err := r.next.FindByID(ctx, id)
	// a miss is an answer, not a backend failure
	r.metrics.RecordRepositoryOp(r.backend, "find", err == nil || IsNotFound(err), time.Since(start))
	return tx, err
}

// SingleFlight collapses concurrent FindByID calls for the same id into one
// backend read. Each caller gets its own decoded copy.
type SingleFlight struct {
	Repository
	sf singleflight.Group
}

// NewSingleFlight wraps next.
func NewSingleFlight(next Repository) *SingleFlight {
	return &SingleFlight{Repository: next}
}

func (r *SingleFlight) FindByID(ctx context.Context, id uuid.UUID) (transaction.Aggregate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	v, err, _ := r.sf.Do(id.String(), func() (interface{}, error) {
		tx, err := r.Repository.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return transaction.Marshal(tx)
	})
	if err != nil {
		return nil, err
	}

	return transaction.Unmarshal(v.([]byte))
}
