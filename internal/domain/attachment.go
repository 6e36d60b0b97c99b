package domain

import "gorm.io/datatypes"

type Attachment struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ProjectID   *uint  `gorm:"index" json:"project"`
	UserID      *uint  `gorm:"index" json:"user"`
	ContentType Kind   `gorm:"size:32;index:idx_attachment_target" json:"content_type"`
	ObjectID    *uint  `gorm:"index:idx_attachment_target" json:"object_id"`
	BlobKey     string `gorm:"size:512;not null" json:"-"`
	Name        string `gorm:"size:255" json:"name"`
	Filename    string `gorm:"size:255" json:"filename"`
	Extension   string `gorm:"size:32" json:"file_extension"`
	MimeType    string `gorm:"size:128" json:"mime_type"`
	Size        int64  `json:"size"`
	// ContentObjectHistoryIDs lists the target versions this attachment belongs to.
	ContentObjectHistoryIDs datatypes.JSONSlice[uint] `json:"content_object_history_ids"`
	Timestamps
	SoftDelete
}

func (Attachment) TableName() string { return "attachment" }

// Bound reports whether the attachment already has a parent.
func (a *Attachment) Bound() bool { return a.ContentType != "" && a.ObjectID != nil }

// HasVersion reports whether historyID is among the bound versions.
func (a *Attachment) HasVersion(historyID uint) bool {
	for _, h := range a.ContentObjectHistoryIDs {
		if h == historyID {
			return true
		}
	}
	return false
}

type Comment struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ContentType Kind   `gorm:"size:32;not null;index:idx_comment_target" json:"content_type"`
	ObjectID    uint   `gorm:"not null;index:idx_comment_target" json:"object_id"`
	UserID      uint   `gorm:"index;not null" json:"user"`
	Content     string `gorm:"type:text;not null" json:"content"`
	Timestamps
	SoftDelete
}

func (Comment) TableName() string { return "comment" }

// CommentTombstone replaces the content of a logically deleted comment.
const CommentTombstone = "Comment was deleted"
