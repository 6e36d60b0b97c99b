package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	Timeout      time.Duration
	StaleAfter   time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * c.Timeout
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 5 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Minute
	}
	return c
}

type Worker struct {
	log      *logger.Logger
	repo     *repos.TaskRepo
	registry *runtime.Registry
	metrics  *observability.Metrics
	cfg      Config
	wake     chan struct{}
	now      func() time.Time
}

func NewWorker(baseLog *logger.Logger, repo *repos.TaskRepo, registry *runtime.Registry, metrics *observability.Metrics, cfg Config) *Worker {
	return &Worker{
		log:      baseLog.With("component", "TaskWorker"),
		repo:     repo,
		registry: registry,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		wake:     make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Wake makes an idle loop poll immediately.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting task worker pool", "concurrency", w.cfg.Concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.wake:
		}
		for ctx.Err() == nil {
			n, err := w.RunOnce(ctx)
			if err != nil {
				w.log.Warn("task claim failed", "worker_id", workerID, "error", err)
				break
			}
			if n == 0 {
				break
			}
		}
	}
}

// RunOnce claims and runs at most one due task, returning how many ran.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	tasks, err := w.repo.Claim(dbctx.Context{Ctx: ctx}, w.now(), 1, w.cfg.StaleAfter)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		w.execute(ctx, t)
	}
	return len(tasks), nil
}

func (w *Worker) execute(ctx context.Context, t *domain.Task) {
	start := time.Now()
	log := w.log.With("task_id", t.ID, "task_type", t.Type, "attempt", t.Attempts)

	err := w.dispatch(ctx, t)
	outcome := w.settle(t, err)
	w.metrics.ObserveTask(t.Type, string(outcome), time.Since(start))

	switch outcome {
	case domain.TaskDone:
		log.Debug("task done")
	case domain.TaskQueued:
		log.Warn("task failed; retrying", "error", err, "run_after", t.RunAfter)
	default:
		log.Error("task moved to failure queue", "error", err)
	}
	if ferr := w.repo.Finish(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, t); ferr != nil {
		log.Error("task finish failed", "error", ferr)
	}
}

func (w *Worker) dispatch(ctx context.Context, t *domain.Task) (err error) {
	h, ok := w.registry.Get(t.Type)
	if !ok {
		return runtime.Permanent(&missingHandlerError{TaskType: t.Type})
	}
	runCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = h.Run(runCtx, t)
	if err == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = runCtx.Err()
	}
	return err
}

// settle records the outcome on t: done, queued for a retry with backoff, or
// failed once attempts are exhausted or the error is permanent.
func (w *Worker) settle(t *domain.Task, err error) domain.TaskStatus {
	if err == nil {
		t.Status = domain.TaskDone
		t.LastError = ""
		return t.Status
	}
	t.LastError = err.Error()
	limit := t.MaxAttempts
	if limit <= 0 {
		limit = 1
	}
	if runtime.IsPermanent(err) || t.Attempts >= limit {
		t.Status = domain.TaskFailed
		return t.Status
	}
	t.Status = domain.TaskQueued
	t.RunAfter = w.now().Add(Backoff(w.cfg.BaseBackoff, w.cfg.MaxBackoff, t.Attempts))
	return t.Status
}

// Backoff doubles base per attempt up to ceiling, with ±20% jitter.
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}
	delta := float64(d) * 0.2
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}

type missingHandlerError struct{ TaskType string }

func (e *missingHandlerError) Error() string { return "no handler registered for task type=" + e.TaskType }
