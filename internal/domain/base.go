// Package domain holds the persisted entities of the test management service.
package domain

import "time"

// Kind tags the target of a polymorphic relation (labels, attachments, comments,
// notifications) and names counted/cascaded entity kinds.
type Kind string

const (
	KindProject         Kind = "project"
	KindSuite           Kind = "testsuite"
	KindCase            Kind = "testcase"
	KindStep            Kind = "teststep"
	KindPlan            Kind = "testplan"
	KindTest            Kind = "test"
	KindResult          Kind = "testresult"
	KindStepResult      Kind = "stepresult"
	KindParameter       Kind = "parameter"
	KindLabel           Kind = "label"
	KindLabeledItem     Kind = "labeleditem"
	KindStatus          Kind = "resultstatus"
	KindCustomAttribute Kind = "customattribute"
	KindAttachment      Kind = "attachment"
	KindComment         Kind = "comment"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindProject, KindSuite, KindCase, KindStep, KindPlan, KindTest, KindResult, KindStepResult,
		KindParameter, KindLabel, KindLabeledItem, KindStatus, KindCustomAttribute, KindAttachment, KindComment:
		return true
	}
	return false
}

// Target is a polymorphic reference stored as (content_type, object_id).
type Target struct {
	Kind Kind `json:"content_type"`
	ID   uint `json:"object_id"`
}

type Timestamps struct {
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// SoftDelete partitions rows into live (objects) and logically deleted (deleted_objects).
type SoftDelete struct {
	IsDeleted bool       `gorm:"not null;default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`
}

func (s *SoftDelete) MarkDeleted(at time.Time) {
	s.IsDeleted = true
	s.DeletedAt = &at
}

func (s *SoftDelete) Restore() {
	s.IsDeleted = false
	s.DeletedAt = nil
}

// HistoryType is the kind of change a history record captures.
type HistoryType string

const (
	HistoryCreated HistoryType = "+"
	HistoryChanged HistoryType = "~"
	HistoryDeleted HistoryType = "-"
)

// HistoryMeta is shared by every *_history table.
type HistoryMeta struct {
	HistoryID     uint        `gorm:"primaryKey;autoIncrement" json:"history_id"`
	HistoryDate   time.Time   `gorm:"not null;index" json:"history_date"`
	HistoryUserID *uint       `gorm:"index" json:"history_user"`
	HistoryType   HistoryType `gorm:"size:1;not null" json:"history_type"`
}

func (h HistoryMeta) GetHistoryID() uint { return h.HistoryID }

// HistoryRecord is a row of a *_history table.
type HistoryRecord interface {
	GetHistoryID() uint
	TableName() string
}

// Versioned is a live row that appends to a history table on every save.
type Versioned interface {
	GetID() uint
	TableName() string
	Snapshot(meta HistoryMeta) HistoryRecord
}
