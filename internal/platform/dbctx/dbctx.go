package dbctx

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction and the
// side effects that must only run once that transaction commits.
type Context struct {
	Ctx     context.Context
	Tx      *gorm.DB
	Effects *Effects
}

// Effects collects callbacks deferred until commit, and compensations that
// run only when the transaction rolls back.
type Effects struct {
	mu   sync.Mutex
	fns  []func(ctx context.Context)
	undo []func(ctx context.Context)
}

func NewEffects() *Effects { return &Effects{} }

// AfterCommit defers fn until the enclosing transaction commits. Outside of a
// transaction fn runs immediately.
func (c Context) AfterCommit(fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	if c.Effects == nil {
		fn(c.context())
		return
	}
	c.Effects.mu.Lock()
	c.Effects.fns = append(c.Effects.fns, fn)
	c.Effects.mu.Unlock()
}

// OnRollback registers fn to undo an out-of-database change if the enclosing
// transaction rolls back. Outside of a transaction it is dropped.
func (c Context) OnRollback(fn func(ctx context.Context)) {
	if fn == nil || c.Effects == nil {
		return
	}
	c.Effects.mu.Lock()
	c.Effects.undo = append(c.Effects.undo, fn)
	c.Effects.mu.Unlock()
}

// Flush runs and clears the pending callbacks in registration order and
// forgets the rollback compensations.
func (e *Effects) Flush(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	fns := e.fns
	e.fns, e.undo = nil, nil
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// Discard drops pending callbacks after a rollback and runs the compensations
// in reverse registration order.
func (e *Effects) Discard(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	undo := e.undo
	e.fns, e.undo = nil, nil
	e.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i](ctx)
	}
}

func (c Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// DB returns the transaction when present, otherwise fallback, bound to the context.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	t := c.Tx
	if t == nil {
		t = fallback
	}
	return t.WithContext(c.context())
}
