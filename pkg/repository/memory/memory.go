// Package memory is an in-process transaction store for tests and single
// node deployments.
package memory

import (
	"context"
	"sync"

	"paygate/pkg/repository"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
)

// Repository keeps encoded snapshots, so callers never share a transaction
// instance with the store.
type Repository struct {
	mu   sync.RWMutex
	data map[uuid.UUID][]byte
}

var _ repository.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{data: make(map[uuid.UUID][]byte)}
}

func (r *Repository) Add(_ context.Context, tx transaction.Aggregate) error {
	doc, err := transaction.Marshal(tx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[tx.ID()]; ok {
		return repository.ErrAlreadyExists
	}
	r.data[tx.ID()] = doc
	return nil
}

func (r *Repository) Update(_ context.Context, tx transaction.Aggregate) error {
	doc, err := transaction.Marshal(tx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[tx.ID()]; !ok {
		return repository.ErrNotFound
	}
	r.data[tx.ID()] = doc
	return nil
}

func (r *Repository) FindByID(_ context.Context, id uuid.UUID) (transaction.Aggregate, error) {
	r.mu.RLock()
	doc, ok := r.data[id]
	r.mu.RUnlock()

	if !ok {
		return nil, repository.ErrNotFound
	}
	return transaction.Unmarshal(doc)
}

// Len returns the number of stored transactions.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
