package domain

import (
	"time"

	"gorm.io/datatypes"
)

// TreeFields is maintained by the tree store on insert and parent change.
type TreeFields struct {
	ParentID *uint `gorm:"index" json:"parent"`
	Path     Path  `gorm:"type:text;not null;default:'';index" json:"path"`
	TreeID   uint  `gorm:"index" json:"tree_id"`
}

type Suite struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ProjectID   uint   `gorm:"index;not null" json:"project"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	TreeFields
	Timestamps
	SoftDelete
}

func (Suite) TableName() string { return "test_suite" }

type Plan struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	ProjectID   uint              `gorm:"index;not null" json:"project"`
	Name        string            `gorm:"size:255;not null" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	StartedAt   time.Time         `gorm:"not null" json:"started_at"`
	DueDate     time.Time         `gorm:"not null" json:"due_date"`
	FinishedAt  *time.Time        `json:"finished_at"`
	IsArchive   bool              `gorm:"not null;default:false;index" json:"is_archive"`
	Attributes  datatypes.JSONMap `json:"attributes"`
	Parameters  []Parameter       `gorm:"many2many:plan_parameters;" json:"parameters,omitempty"`
	TreeFields
	Timestamps
	SoftDelete
}

func (Plan) TableName() string { return "test_plan" }
