package aggregates

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// TxRunner provides the transaction boundary for every domain mutation.
type TxRunner interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

// NewGormTxRunner returns a transaction runner backed by GORM transactions.
// After-commit effects registered on the dbctx run once the transaction commits
// and are dropped on rollback.
func NewGormTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.db == nil {
		return apierr.Internal("aggregate.tx", errors.New("transaction runner has nil db"))
	}
	effects := dbctx.NewEffects()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx, Effects: effects})
	})
	if err != nil {
		effects.Discard(context.WithoutCancel(ctx))
		return err
	}
	// Effects outlive request cancellation once the data is committed.
	effects.Flush(context.WithoutCancel(ctx))
	return nil
}

// Writer runs named writes with error mapping and operation hooks.
type Writer struct {
	runner TxRunner
	hooks  Hooks
	log    *logger.Logger
}

func NewWriter(runner TxRunner, hooks Hooks, log *logger.Logger) *Writer {
	if hooks == nil {
		hooks = noopHooks{}
	}
	return &Writer{runner: runner, hooks: hooks, log: log.With("component", "AggregateWriter")}
}

// Write executes fn in a transaction and maps storage errors to API errors.
func (w *Writer) Write(ctx context.Context, op string, fn func(dbc dbctx.Context) error) error {
	start := time.Now()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "write"
	}
	err := apierr.MapDB(op, w.runner.InTx(ctx, fn))

	outcome := "success"
	if err != nil {
		code := apierr.CodeOf(err)
		switch code {
		case "", apierr.CodeInternal:
			outcome = "error"
			w.log.Error("write failed", "op", op, "error", err)
		default:
			outcome = string(code)
			w.hooks.Rejected(op, code)
		}
	}
	w.hooks.Observed(op, outcome, time.Since(start))
	return err
}
