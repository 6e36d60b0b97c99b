package domain

import "gorm.io/datatypes"

type LabelType int

const (
	LabelSystem LabelType = 0
	LabelCustom LabelType = 1
)

type Label struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"index;not null" json:"project"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Type      LabelType `gorm:"not null;default:1" json:"type"`
	UserID    *uint     `json:"user"`
	Timestamps
	SoftDelete
}

func (Label) TableName() string { return "label" }

// LabeledItem binds a label to a versioned target.
type LabeledItem struct {
	ID                     uint   `gorm:"primaryKey" json:"id"`
	LabelID                uint   `gorm:"index;not null" json:"label"`
	ContentType            Kind   `gorm:"size:32;not null;index:idx_labeled_item_target" json:"content_type"`
	ObjectID               uint   `gorm:"not null;index:idx_labeled_item_target" json:"object_id"`
	ContentObjectHistoryID uint   `gorm:"index" json:"content_object_history_id"`
	Label                  *Label `gorm:"foreignKey:LabelID" json:"-"`
	Timestamps
	SoftDelete
}

func (LabeledItem) TableName() string { return "labeled_item" }

// LabelIDs is the per-target aggregate of active label ids.
type LabelIDs struct {
	ContentType Kind                     `gorm:"primaryKey;size:32" json:"content_type"`
	ObjectID    uint                     `gorm:"primaryKey;autoIncrement:false" json:"object_id"`
	LabelIDs    datatypes.JSONSlice[uint] `json:"label_ids"`
}

func (LabelIDs) TableName() string { return "label_ids" }
