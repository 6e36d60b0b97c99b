package dbctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfterCommitWithoutEffectsRunsImmediately(t *testing.T) {
	ran := false
	Context{Ctx: context.Background()}.AfterCommit(func(context.Context) { ran = true })
	assert.True(t, ran)
}

func TestAfterCommitDeferredUntilFlush(t *testing.T) {
	eff := NewEffects()
	dbc := Context{Ctx: context.Background(), Effects: eff}
	var order []int
	dbc.AfterCommit(func(context.Context) { order = append(order, 1) })
	dbc.AfterCommit(func(context.Context) { order = append(order, 2) })
	assert.Empty(t, order)

	eff.Flush(context.Background())
	assert.Equal(t, []int{1, 2}, order)

	eff.Flush(context.Background())
	assert.Equal(t, []int{1, 2}, order)
}

func TestDiscardDropsCallbacks(t *testing.T) {
	eff := NewEffects()
	dbc := Context{Ctx: context.Background(), Effects: eff}
	ran := false
	dbc.AfterCommit(func(context.Context) { ran = true })
	eff.Discard(context.Background())
	eff.Flush(context.Background())
	assert.False(t, ran)
}

func TestOnRollbackRunsOnlyOnDiscard(t *testing.T) {
	eff := NewEffects()
	dbc := Context{Ctx: context.Background(), Effects: eff}
	var undone []int
	dbc.OnRollback(func(context.Context) { undone = append(undone, 1) })
	dbc.OnRollback(func(context.Context) { undone = append(undone, 2) })

	eff.Discard(context.Background())
	assert.Equal(t, []int{2, 1}, undone)

	committed := NewEffects()
	ran := false
	Context{Ctx: context.Background(), Effects: committed}.OnRollback(func(context.Context) { ran = true })
	committed.Flush(context.Background())
	committed.Discard(context.Background())
	assert.False(t, ran)
}
