package domain

import (
	"gorm.io/datatypes"
)

// ProjectSettings is the persisted settings blob of a project.
type ProjectSettings struct {
	IsResultEditable bool `json:"is_result_editable"`
	// ResultEditLimit is in seconds; nil means unlimited.
	ResultEditLimit *int64         `json:"result_edit_limit"`
	StatusOrder     map[string]int `json:"status_order,omitempty"`
	DefaultStatus   *uint          `json:"default_status"`
}

type Project struct {
	ID          uint                                `gorm:"primaryKey" json:"id"`
	Name        string                              `gorm:"size:255;not null" json:"name"`
	Description string                              `gorm:"type:text" json:"description"`
	IsArchive   bool                                `gorm:"not null;default:false" json:"is_archive"`
	IsPrivate   bool                                `gorm:"not null;default:false" json:"is_private"`
	IconKey     string                              `gorm:"size:512" json:"icon,omitempty"`
	Settings    datatypes.JSONType[ProjectSettings] `json:"settings"`
	Timestamps
	SoftDelete
}

func (Project) TableName() string { return "project" }

// ProjectStatistics is the 1:1 counters row of a project.
type ProjectStatistics struct {
	ProjectID   uint  `gorm:"primaryKey;autoIncrement:false" json:"project"`
	CasesCount  int64 `gorm:"not null;default:0" json:"cases_count"`
	SuitesCount int64 `gorm:"not null;default:0" json:"suites_count"`
	PlansCount  int64 `gorm:"not null;default:0" json:"plans_count"`
	TestsCount  int64 `gorm:"not null;default:0" json:"tests_count"`
}

func (ProjectStatistics) TableName() string { return "project_statistics" }

type Parameter struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	ProjectID uint   `gorm:"index;not null" json:"project"`
	GroupName string `gorm:"size:255;not null" json:"group_name"`
	Data      string `gorm:"size:255;not null" json:"data"`
	Timestamps
	SoftDelete
}

func (Parameter) TableName() string { return "parameter" }

type SystemMessage struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Content   string `gorm:"type:text;not null" json:"content"`
	Level     int    `gorm:"not null;default:0" json:"level"`
	IsActive  bool   `gorm:"not null;default:true" json:"is_active"`
	Timestamps
}

func (SystemMessage) TableName() string { return "system_message" }
