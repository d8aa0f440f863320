// Package store is the Postgres persistence layer. All SQL lives here;
// callers work in terms of model types and kernel error kinds.
package store

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PROD-B2B-GGJ-Platform/kernel-component/internal/model"
)

// maxPageSize caps every paged query regardless of what the client asks for.
const maxPageSize = 1000

// readRetries bounds transparent retries of read queries on transient
// connection failures.
const readRetries = 2

type tables struct {
	objects       string
	versions      string
	relationships string
	outbox        string
	metadata      string
	events        string
}

// Store wraps a pgx pool and the prefixed table names.
type Store struct {
	pool *pgxpool.Pool
	t    tables
}

// NewStore builds a Store over pool using prefix for table names.
func NewStore(pool *pgxpool.Pool, prefix string) *Store {
	return &Store{
		pool: pool,
		t: tables{
			objects:       prefix + "_kernel_objects",
			versions:      prefix + "_object_versions",
			relationships: prefix + "_object_relationships",
			outbox:        prefix + "_outbox_events",
			metadata:      prefix + "_metadata_cache",
			events:        prefix + "_object_events",
		},
	}
}

// dbconn is the slice of pgx shared by *pgxpool.Pool and pgx.Tx, so query
// helpers run identically inside and outside a transaction.
type dbconn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// mapErr translates a driver error into a kernel error kind. Constraint
// violations become Conflict/Integrity; connection-class failures become
// Unavailable so callers and the retry wrapper can tell them apart.
func mapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WrapError(model.KindNotFound, msg, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return model.WrapError(model.KindConflict, msg, err)
		case "23503":
			return model.WrapError(model.KindIntegrity, msg, err)
		case "23514":
			return model.WrapError(model.KindInvalidArgument, msg, err)
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return model.WrapError(model.KindUnavailable, msg, err)
		}
		return model.WrapError(model.KindUnknown, msg, err)
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return model.WrapError(model.KindUnavailable, msg, err)
	}
	return model.WrapError(model.KindUnavailable, msg, err)
}

// withRetry reruns op on transient (Unavailable) failures with exponential
// backoff. Anything else is permanent and returned as-is. Mutations never go
// through here; only idempotent reads do.
func withRetry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), readRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if model.KindOf(err) == model.KindUnavailable {
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}

// count runs a COUNT(*) variant of a filtered query.
func count(ctx context.Context, c dbconn, sql string, args ...any) (int64, error) {
	var n int64
	if err := c.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, mapErr("count rows", err)
	}
	return n, nil
}
