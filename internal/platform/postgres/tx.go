package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
)

const defaultTxTimeout = 10 * time.Second

// TxRunner runs functions inside a database transaction carried through context.
//
// The transaction runs on a context detached from the caller's cancellation:
// once submitted, a client disconnect does not roll it back. The timeout bounds
// how long it may run instead.
type TxRunner struct {
	db         *sql.DB
	timeout    time.Duration
	isolation  sql.IsolationLevel
	maxRetries int
}

// TxOption configures a TxRunner.
type TxOption func(*TxRunner)

// WithTimeout bounds each transaction attempt.
func WithTimeout(d time.Duration) TxOption {
	return func(r *TxRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithIsolation sets the isolation level used by BeginTx.
func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(r *TxRunner) {
		r.isolation = level
	}
}

// WithMaxRetries sets how many times serialization failures and deadlocks are retried.
func WithMaxRetries(n int) TxOption {
	return func(r *TxRunner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// NewTxRunner builds a read-committed runner.
func NewTxRunner(db *sql.DB, opts ...TxOption) *TxRunner {
	r := &TxRunner{
		db:         db,
		timeout:    defaultTxTimeout,
		isolation:  sql.LevelReadCommitted,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunInTx executes fn in a transaction. If ctx already carries a transaction, fn
// joins it. Serialization failures are retried with a short backoff.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	detached := context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*attempt) * 10 * time.Millisecond)
		}
		err = r.attempt(detached, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "transaction aborted after retries")
}

func (r *TxRunner) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: r.isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction timed out")
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
