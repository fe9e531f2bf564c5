package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the store keeps failing after the single retry.
var ErrUnavailable = errors.New("postgres: store unavailable")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Conn returns the transaction bound to ctx by RunInTx, or db when there is none.
func Conn(ctx context.Context, db DBTX) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

type TxRunner struct {
	Pool   *pgxpool.Pool
	Logger *zap.Logger
}

func NewTxRunner(pool *pgxpool.Pool, logger *zap.Logger) *TxRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TxRunner{Pool: pool, Logger: logger}
}

// RunInTx executes fn inside one transaction. Repositories reached through ctx
// join it via Conn. A nested call reuses the outer transaction.
// Transient failures (serialization, deadlock, connection loss) retry the
// whole fn once; if that fails too the error wraps ErrUnavailable.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return retryOnce(ctx, r.Logger, func() error { return r.run(ctx, fn) })
}

func (r *TxRunner) run(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func retryOnce(ctx context.Context, logger *zap.Logger, op func() error) error {
	err := op()
	if err == nil || !IsTransient(err) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	logger.Warn("transient store failure, retrying once", zap.Error(err))

	err = op()
	if err != nil && IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// IsTransient classifies errors worth one more attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 40: transaction rollback, class 08: connection exception
		return strings.HasPrefix(pgErr.Code, "40") ||
			strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01"
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

// IsUniqueViolation reports a unique_violation on the given constraint
// (any constraint when name is empty).
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
