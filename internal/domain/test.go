package domain

import "gorm.io/datatypes"

type TestFields struct {
	ProjectID    uint  `gorm:"index;not null" json:"project"`
	CaseID       uint  `gorm:"index;not null" json:"case"`
	PlanID       uint  `gorm:"index;not null" json:"plan"`
	AssigneeID   *uint `gorm:"index" json:"assignee"`
	IsArchive    bool  `gorm:"not null;default:false;index" json:"is_archive"`
	LastStatusID *uint `gorm:"index" json:"last_status"`
}

// Test instantiates a case inside a plan.
type Test struct {
	ID uint `gorm:"primaryKey" json:"id"`
	TestFields
	Timestamps
	SoftDelete
}

func (Test) TableName() string { return "test" }

type TestHistory struct {
	HistoryMeta
	ID uint `gorm:"column:id;index;not null" json:"id"`
	TestFields
	Timestamps
	SoftDelete
}

func (TestHistory) TableName() string { return "test_history" }

type ResultFields struct {
	ProjectID uint  `gorm:"index;not null" json:"project"`
	TestID    uint  `gorm:"index;not null" json:"test"`
	StatusID  uint  `gorm:"index;not null" json:"status"`
	UserID    *uint `gorm:"index" json:"user"`
	Comment   string `gorm:"type:text" json:"comment"`
	// ExecutionTime is in seconds.
	ExecutionTime   *float64          `json:"execution_time"`
	TestCaseVersion uint              `gorm:"not null" json:"test_case_version"`
	Attributes      datatypes.JSONMap `json:"attributes"`
	IsArchive       bool              `gorm:"not null;default:false" json:"is_archive"`
}

type Result struct {
	ID uint `gorm:"primaryKey" json:"id"`
	ResultFields
	StepResults []StepResult `gorm:"foreignKey:ResultID" json:"steps_results,omitempty"`
	Timestamps
	SoftDelete
}

func (Result) TableName() string { return "test_result" }

type ResultHistory struct {
	HistoryMeta
	ID uint `gorm:"column:id;index;not null" json:"id"`
	ResultFields
	Timestamps
	SoftDelete
}

func (ResultHistory) TableName() string { return "test_result_history" }

type StepResult struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	ProjectID uint `gorm:"index;not null" json:"project"`
	ResultID  uint `gorm:"index;not null" json:"test_result"`
	StepID    uint `gorm:"index;not null" json:"step"`
	StatusID  uint `gorm:"not null" json:"status"`
	Timestamps
	SoftDelete
}

func (StepResult) TableName() string { return "test_step_result" }

type StatusType int

const (
	StatusSystem StatusType = 0
	StatusCustom StatusType = 1
)

// ResultStatus is SYSTEM (project nil) or CUSTOM (project scoped).
type ResultStatus struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	ProjectID *uint      `gorm:"index" json:"project"`
	Name      string     `gorm:"size:64;not null" json:"name"`
	Color     string     `gorm:"size:32" json:"color"`
	Type      StatusType `gorm:"not null;default:1" json:"type"`
	Timestamps
	SoftDelete
}

func (ResultStatus) TableName() string { return "result_status" }

func (t *Test) Snapshot(meta HistoryMeta) HistoryRecord {
	return &TestHistory{HistoryMeta: meta, ID: t.ID, TestFields: t.TestFields, Timestamps: t.Timestamps, SoftDelete: t.SoftDelete}
}

func (r *Result) Snapshot(meta HistoryMeta) HistoryRecord {
	return &ResultHistory{HistoryMeta: meta, ID: r.ID, ResultFields: r.ResultFields, Timestamps: r.Timestamps, SoftDelete: r.SoftDelete}
}

func (t *Test) GetID() uint   { return t.ID }
func (r *Result) GetID() uint { return r.ID }
