package aggregates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

type hooksRecorder struct {
	mu        sync.Mutex
	ops       []string
	statuses  []string
	rejected  []string
}

func (h *hooksRecorder) Observed(name, status string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, name)
	h.statuses = append(h.statuses, status)
}

func (h *hooksRecorder) Rejected(name string, code apierr.Code) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, name+":"+string(code))
}

func TestTxRunner_EffectsRunAfterCommit(t *testing.T) {
	db := testutil.DB(t)
	runner := NewGormTxRunner(db)

	var ran []string
	err := runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		dbc.AfterCommit(func(context.Context) { ran = append(ran, "first") })
		require.NoError(t, dbc.DB(db).Create(&domain.Project{Name: "p"}).Error)
		assert.Empty(t, ran)
		dbc.AfterCommit(func(context.Context) { ran = append(ran, "second") })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ran)
}

func TestTxRunner_EffectsDroppedOnRollback(t *testing.T) {
	db := testutil.DB(t)
	runner := NewGormTxRunner(db)

	bodyErr := errors.New("boom")
	ran := false
	err := runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		dbc.AfterCommit(func(context.Context) { ran = true })
		require.NoError(t, dbc.DB(db).Create(&domain.Project{Name: "gone"}).Error)
		return bodyErr
	})
	require.ErrorIs(t, err, bodyErr)
	assert.False(t, ran)

	var n int64
	require.NoError(t, db.Model(&domain.Project{}).Where("name = ?", "gone").Count(&n).Error)
	assert.Zero(t, n)
}

func TestWriter_MapsErrorsAndRecordsHooks(t *testing.T) {
	db := testutil.DB(t)
	hooks := &hooksRecorder{}
	w := NewWriter(NewGormTxRunner(db), hooks, testutil.Logger(t))
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, "project.create", func(dbc dbctx.Context) error {
		return dbc.DB(db).Create(&domain.Label{ProjectID: 1, Name: "Smoke"}).Error
	}))

	err := w.Write(ctx, "label.create", func(dbc dbctx.Context) error {
		return dbc.DB(db).Create(&domain.Label{ProjectID: 1, Name: "smoke"}).Error
	})
	require.Error(t, err)
	assert.True(t, apierr.IsCode(err, apierr.CodeConflict))

	err = w.Write(ctx, "label.get", func(dbc dbctx.Context) error {
		var l domain.Label
		return dbc.DB(db).Where("id = ?", 999).First(&l).Error
	})
	assert.True(t, apierr.IsCode(err, apierr.CodeNotFound))

	assert.Equal(t, []string{"project.create", "label.create", "label.get"}, hooks.ops)
	assert.Equal(t, []string{"success", "conflict", "not_found"}, hooks.statuses)
	assert.Equal(t, []string{"label.create:conflict", "label.get:not_found"}, hooks.rejected)
}
