// Package redis stores transactions as JSON snapshots in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"paygate/pkg/repository"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

type Config struct {
	KeyPrefix string `yaml:"key_prefix"`
	// TTL expires stored transactions. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl"`
}

func DefaultConfig() Config {
	return Config{KeyPrefix: "paygate:tx:"}
}

// Repository writes with SET NX on Add and SET XX on Update, so each write
// is a single atomic command.
type Repository struct {
	client rueidis.Client
	config Config
}

var _ repository.Repository = (*Repository)(nil)

func New(client rueidis.Client, config Config) *Repository {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Repository{client: client, config: config}
}

func (r *Repository) key(id uuid.UUID) string {
	return r.config.KeyPrefix + id.String()
}

func (r *Repository) Add(ctx context.Context, tx transaction.Aggregate) error {
	doc, err := transaction.Marshal(tx)
	if err != nil {
		return err
	}

	var cmd rueidis.Completed
	if r.config.TTL > 0 {
		cmd = r.client.B().Set().Key(r.key(tx.ID())).Value(rueidis.BinaryString(doc)).Nx().Ex(r.config.TTL).Build()
	} else {
		cmd = r.client.B().Set().Key(r.key(tx.ID())).Value(rueidis.BinaryString(doc)).Nx().Build()
	}

	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("redis add: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, tx transaction.Aggregate) error {
	doc, err := transaction.Marshal(tx)
	if err != nil {
		return err
	}

	var cmd rueidis.Completed
	if r.config.TTL > 0 {
		cmd = r.client.B().Set().Key(r.key(tx.ID())).Value(rueidis.BinaryString(doc)).Xx().Ex(r.config.TTL).Build()
	} else {
		cmd = r.client.B().Set().Key(r.key(tx.ID())).Value(rueidis.BinaryString(doc)).Xx().Keepttl().Build()
	}

	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("redis update: %w", err)
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (transaction.Aggregate, error) {
	cmd := r.client.B().Get().Key(r.key(id)).Build()
	resp := r.client.Do(ctx, cmd)

	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis find: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis find: failed to read response: %w", err)
	}
	return transaction.Unmarshal(data)
}
