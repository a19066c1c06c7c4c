// Package postgres stores transactions in PostgreSQL. The snapshot is kept
// as JSONB next to the columns used for lookups.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paygate/pkg/repository"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE of a duplicate primary key.
const uniqueViolation = "23505"

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "paygate",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// Open connects, pings and creates the schema.
func Open(cfg Config) (*Repository, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	r := New(db)
	if err := r.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}
	return r, nil
}

// New uses an existing pool. Call Migrate before first use.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the transactions table when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			biller_name TEXT NOT NULL,
			document JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Add(ctx context.Context, tx transaction.Aggregate) error {
	doc, err := transaction.Marshal(tx)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, kind, status, biller_name, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID(), string(tx.Kind()), tx.Status().String(), tx.BillerName(), doc, tx.CreatedAt(), tx.UpdatedAt(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return repository.ErrAlreadyExists
		}
		return fmt.Errorf("postgres add: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, tx transaction.Aggregate) error {
	doc, err := transaction.Marshal(tx)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET status = $2, document = $3, updated_at = $4
		WHERE id = $1`,
		tx.ID(), tx.Status().String(), doc, tx.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("postgres update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres update: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (transaction.Aggregate, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, `SELECT document FROM transactions WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("postgres find: %w", err)
	}
	return transaction.Unmarshal(doc)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
