package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kvstash/kvstash/internal/kvstore"
)

// pgProgramLimitExceeded is raised by postgres when a value exceeds an internal size limit.
const pgProgramLimitExceeded = "54000"

// PostgresOptions configures the postgres record store.
type PostgresOptions struct {
	DSN         string
	MaxItemSize int64
}

// Postgres stores records in the kv_records table.
type Postgres struct {
	pool        *pgxpool.Pool
	maxItemSize int64
}

// NewPostgres connects a pool and verifies connectivity.
func NewPostgres(ctx context.Context, opts PostgresOptions) (*Postgres, error) {
	if opts.DSN == "" {
		return nil, errors.New("postgres dsn required")
	}
	pool, err := pgxpool.New(ctx, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool, maxItemSize: opts.MaxItemSize}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Postgres) Put(ctx context.Context, path string, record kvstore.Record) error {
	if exceedsLimit(record, p.maxItemSize) {
		return kvstore.ErrItemTooLarge
	}

	q := `
		INSERT INTO kv_records (path, key, body, content_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE
		SET key = EXCLUDED.key, body = EXCLUDED.body,
			content_type = EXCLUDED.content_type, updated_at = NOW()`

	if _, err := p.pool.Exec(ctx, q, path, record.Key, nonNilBody(record.Body), record.ContentType); err != nil {
		return mapError(err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, path string) (*kvstore.Record, error) {
	q := `SELECT key, path, body, content_type FROM kv_records WHERE path = $1`

	var r kvstore.Record
	err := p.pool.QueryRow(ctx, q, path).Scan(&r.Key, &r.Path, &r.Body, &r.ContentType)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (p *Postgres) Delete(ctx context.Context, path string) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM kv_records WHERE path = $1", path); err != nil {
		return mapError(err)
	}
	return nil
}

// nonNilBody keeps empty values storable: a nil slice is sent as NULL, which
// the body column rejects.
func nonNilBody(body []byte) []byte {
	if body == nil {
		return []byte{}
	}
	return body
}

// mapError translates pgx errors into kvstore sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return kvstore.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgProgramLimitExceeded {
			return kvstore.ErrItemTooLarge
		}
		return err
	}
	return fmt.Errorf("%w: %w", kvstore.ErrBackendUnavailable, err)
}
