package domain

import "gorm.io/datatypes"

type CustomAttributeType int

const (
	AttributeText CustomAttributeType = 0
	AttributeList CustomAttributeType = 1
	AttributeJSON CustomAttributeType = 2
)

// AppliedConfig scopes a custom attribute to one target model.
type AppliedConfig struct {
	IsRequired bool `json:"is_required"`
	// SuiteIDs narrows the attribute to cases/results in these suites; empty means all.
	SuiteIDs []uint `json:"suite_ids,omitempty"`
	// StatusSpecific narrows required results to these status ids.
	StatusSpecific []uint `json:"status_specific,omitempty"`
}

type CustomAttribute struct {
	ID        uint                                         `gorm:"primaryKey" json:"id"`
	ProjectID uint                                         `gorm:"index;not null" json:"project"`
	Name      string                                       `gorm:"size:255;not null" json:"name"`
	Type      CustomAttributeType                          `gorm:"not null;default:0" json:"type"`
	AppliedTo datatypes.JSONType[map[Kind]AppliedConfig] `json:"applied_to"`
	Timestamps
	SoftDelete
}

func (CustomAttribute) TableName() string { return "custom_attribute" }
