package repos

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type TaskRepo struct{ Repo[domain.Task] }

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) *TaskRepo {
	return &TaskRepo{newRepo[domain.Task](db, baseLog, "task", Spec{
		OrderFields:  map[string]string{"created_at": "created_at", "status": "status", "type": "type"},
		DefaultOrder: "id ASC",
		Permanent:    true,
	})}
}

// Claim locks up to limit queued tasks that are due, marking them running.
// Tasks left running past staleAfter are reclaimed.
func (r *TaskRepo) Claim(dbc dbctx.Context, now time.Time, limit int, staleAfter time.Duration) ([]*domain.Task, error) {
	var claimed []*domain.Task
	err := r.DB(dbc).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("(status = ? AND run_after <= ?) OR (status = ? AND locked_at < ?)",
			domain.TaskQueued, now, domain.TaskRunning, now.Add(-staleAfter)).
			Order("run_after ASC, id ASC").Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]uint, len(claimed))
		for i, t := range claimed {
			ids[i] = t.ID
			t.Status = domain.TaskRunning
			t.LockedAt = &now
			t.Attempts++
		}
		return tx.Model(&domain.Task{}).Where("id IN ?", ids).Updates(map[string]any{
			"status":    domain.TaskRunning,
			"locked_at": now,
			"attempts":  gorm.Expr("attempts + 1"),
		}).Error
	})
	return claimed, err
}

// Finish records the outcome of a claimed task.
func (r *TaskRepo) Finish(dbc dbctx.Context, t *domain.Task) error {
	return r.DB(dbc).Model(&domain.Task{}).Where("id = ?", t.ID).Updates(map[string]any{
		"status":     t.Status,
		"last_error": t.LastError,
		"run_after":  t.RunAfter,
		"locked_at":  nil,
	}).Error
}

// Failed lists the failure queue.
func (r *TaskRepo) Failed(dbc dbctx.Context, limit int) ([]*domain.Task, error) {
	var out []*domain.Task
	err := r.DB(dbc).Where("status = ?", domain.TaskFailed).Order("updated_at DESC").Limit(limit).Find(&out).Error
	return out, err
}
