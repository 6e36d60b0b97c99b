package domain

import (
	"time"

	"gorm.io/datatypes"
)

type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Task is a background job row; failed rows form the failure queue.
type Task struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Type        string         `gorm:"size:64;not null;index" json:"type"`
	Payload     datatypes.JSON `json:"payload"`
	Status      TaskStatus     `gorm:"size:16;not null;index" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"not null;default:5" json:"max_attempts"`
	LastError   string         `gorm:"type:text" json:"last_error"`
	RunAfter    time.Time      `gorm:"not null;index" json:"run_after"`
	LockedAt    *time.Time     `json:"locked_at"`
	Timestamps
}

func (Task) TableName() string { return "task" }
