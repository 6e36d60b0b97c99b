// Package jobs persists background tasks and implements their handlers.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

// Queue writes task rows inside the caller's transaction, so a rolled back
// request never leaves work behind.
type Queue struct {
	repo        *repos.TaskRepo
	maxAttempts int
	wake        func()
	now         func() time.Time
}

// NewQueue returns a queue; wake, when set, runs after the enqueuing
// transaction commits.
func NewQueue(repo *repos.TaskRepo, maxAttempts int, wake func()) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Queue{repo: repo, maxAttempts: maxAttempts, wake: wake, now: func() time.Time { return time.Now().UTC() }}
}

func (q *Queue) Enqueue(dbc dbctx.Context, taskType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", taskType, err)
	}
	t := &domain.Task{
		Type:        taskType,
		Payload:     datatypes.JSON(raw),
		Status:      domain.TaskQueued,
		MaxAttempts: q.maxAttempts,
		RunAfter:    q.now(),
	}
	if err := q.repo.Create(dbc, t); err != nil {
		return err
	}
	if q.wake != nil {
		dbc.AfterCommit(func(_ context.Context) { q.wake() })
	}
	return nil
}
