package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/jobs"
	"github.com/yungbote/testbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

type funcHandler struct {
	name string
	fn   func(ctx context.Context, t *domain.Task) error
}

func (h funcHandler) Type() string { return h.name }
func (h funcHandler) Run(ctx context.Context, t *domain.Task) error { return h.fn(ctx, t) }

func setup(t *testing.T, handlers ...runtime.Handler) (*Worker, *repos.TaskRepo, *jobs.Queue) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewTaskRepo(db, log)
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	w := NewWorker(log, repo, reg, nil, Config{Timeout: 200 * time.Millisecond, BaseBackoff: time.Minute})
	return w, repo, jobs.NewQueue(repo, 2, w.Wake)
}

func enqueue(t *testing.T, q *jobs.Queue, taskType string, payload any) {
	t.Helper()
	require.NoError(t, q.Enqueue(dbctx.Context{Ctx: context.Background()}, taskType, payload))
}

func reload(t *testing.T, repo *repos.TaskRepo) *domain.Task {
	t.Helper()
	rows, err := repo.Find(dbctx.Context{Ctx: context.Background()})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func TestWorkerRunsTask(t *testing.T) {
	var got string
	w, repo, q := setup(t, funcHandler{name: "echo", fn: func(_ context.Context, task *domain.Task) error {
		got = string(task.Payload)
		return nil
	}})
	enqueue(t, q, "echo", map[string]string{"a": "b"})

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{"a":"b"}`, got)

	task := reload(t, repo)
	assert.Equal(t, domain.TaskDone, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Nil(t, task.LockedAt)

	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWorkerRetriesThenFails(t *testing.T) {
	w, repo, q := setup(t, funcHandler{name: "flaky", fn: func(context.Context, *domain.Task) error {
		return errors.New("boom")
	}})
	enqueue(t, q, "flaky", nil)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	task := reload(t, repo)
	assert.Equal(t, domain.TaskQueued, task.Status)
	assert.Equal(t, "boom", task.LastError)
	assert.True(t, task.RunAfter.After(time.Now().Add(30*time.Second)))

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "retry is not due yet")

	w.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	task = reload(t, repo)
	assert.Equal(t, domain.TaskFailed, task.Status)
	assert.Equal(t, 2, task.Attempts)
}

func TestWorkerPermanentFailure(t *testing.T) {
	w, repo, q := setup(t, funcHandler{name: "bad", fn: func(context.Context, *domain.Task) error {
		return runtime.Permanent(errors.New("invalid payload"))
	}})
	enqueue(t, q, "bad", nil)
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, reload(t, repo).Status)

	failed, err := repo.Failed(dbctx.Context{Ctx: context.Background()}, 10)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestWorkerTimeoutAndPanic(t *testing.T) {
	w, repo, q := setup(t, funcHandler{name: "slow", fn: func(ctx context.Context, _ *domain.Task) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	enqueue(t, q, "slow", nil)
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	task := reload(t, repo)
	assert.Equal(t, domain.TaskQueued, task.Status)
	assert.Contains(t, task.LastError, "deadline exceeded")

	assert.NotPanics(t, func() {
		err := w.dispatch(context.Background(), &domain.Task{Type: "slow"})
		assert.Error(t, err)
	})
	w2, _, _ := setup(t, funcHandler{name: "panics", fn: func(context.Context, *domain.Task) error { panic("oops") }})
	err = w2.dispatch(context.Background(), &domain.Task{Type: "panics"})
	assert.EqualError(t, err, "panic: oops")
	err = w2.dispatch(context.Background(), &domain.Task{Type: "unknown"})
	assert.True(t, runtime.IsPermanent(err))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	base, ceiling := time.Second, 10*time.Second
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 8: ceiling} {
		got := Backoff(base, ceiling, attempt)
		assert.InDelta(t, float64(want), float64(got), float64(want)*0.2+1, "attempt %d", attempt)
	}
}
