package domain

import "gorm.io/datatypes"

// CaseFields are the versioned columns of a test case.
type CaseFields struct {
	ProjectID   uint              `gorm:"index;not null" json:"project"`
	SuiteID     uint              `gorm:"index;not null" json:"suite"`
	Name        string            `gorm:"size:255;not null" json:"name"`
	Setup       string            `gorm:"type:text" json:"setup"`
	Scenario    string            `gorm:"type:text" json:"scenario"`
	Expected    string            `gorm:"type:text" json:"expected"`
	Teardown    string            `gorm:"type:text" json:"teardown"`
	Estimate    *int64            `json:"estimate"`
	Description string            `gorm:"type:text" json:"description"`
	IsSteps     bool              `gorm:"not null;default:false" json:"is_steps"`
	IsArchive   bool              `gorm:"not null;default:false;index" json:"is_archive"`
	Attributes  datatypes.JSONMap `json:"attributes"`
}

type Case struct {
	ID uint `gorm:"primaryKey" json:"id"`
	CaseFields
	Timestamps
	SoftDelete
}

func (Case) TableName() string { return "test_case" }

type CaseHistory struct {
	HistoryMeta
	ID uint `gorm:"column:id;index;not null" json:"id"`
	CaseFields
	Timestamps
	SoftDelete
}

func (CaseHistory) TableName() string { return "test_case_history" }

// StepFields are the versioned columns of a step. CaseHistoryID is the case
// version at which the step was last written.
type StepFields struct {
	ProjectID     uint   `gorm:"index;not null" json:"project"`
	CaseID        uint   `gorm:"index;not null" json:"test_case"`
	Name          string `gorm:"size:255;not null" json:"name"`
	Scenario      string `gorm:"type:text" json:"scenario"`
	Expected      string `gorm:"type:text" json:"expected"`
	SortOrder     int    `gorm:"not null;default:0" json:"sort_order"`
	CaseHistoryID uint   `gorm:"index" json:"test_case_history_id"`
}

type Step struct {
	ID uint `gorm:"primaryKey" json:"id"`
	StepFields
	Timestamps
	SoftDelete
}

func (Step) TableName() string { return "test_case_step" }

type StepHistory struct {
	HistoryMeta
	ID uint `gorm:"column:id;index;not null" json:"id"`
	StepFields
	Timestamps
	SoftDelete
}

func (StepHistory) TableName() string { return "test_case_step_history" }

func (c *Case) Snapshot(meta HistoryMeta) HistoryRecord {
	return &CaseHistory{HistoryMeta: meta, ID: c.ID, CaseFields: c.CaseFields, Timestamps: c.Timestamps, SoftDelete: c.SoftDelete}
}

func (s *Step) Snapshot(meta HistoryMeta) HistoryRecord {
	return &StepHistory{HistoryMeta: meta, ID: s.ID, StepFields: s.StepFields, Timestamps: s.Timestamps, SoftDelete: s.SoftDelete}
}

// Live rebuilds the live row as of this version.
func (h *CaseHistory) Live() *Case {
	return &Case{ID: h.ID, CaseFields: h.CaseFields, Timestamps: h.Timestamps, SoftDelete: h.SoftDelete}
}

func (h *StepHistory) Live() *Step {
	return &Step{ID: h.ID, StepFields: h.StepFields, Timestamps: h.Timestamps, SoftDelete: h.SoftDelete}
}

func (c *Case) GetID() uint { return c.ID }
func (s *Step) GetID() uint { return s.ID }
