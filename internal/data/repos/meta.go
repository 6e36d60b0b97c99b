package repos

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type LabelRepo struct{ Repo[domain.Label] }

func NewLabelRepo(db *gorm.DB, baseLog *logger.Logger) *LabelRepo {
	return &LabelRepo{newRepo[domain.Label](db, baseLog, "label", Spec{
		SearchFields: []string{"name"},
		OrderFields:  map[string]string{"name": "name", "type": "type"},
		DefaultOrder: "name ASC, id ASC",
	})}
}

// ByName finds a live label of the project case-insensitively.
func (r *LabelRepo) ByName(dbc dbctx.Context, projectID uint, name string) (*domain.Label, error) {
	var l domain.Label
	res := r.DB(dbc).Where("project_id = ? AND LOWER(name) = ? AND is_deleted = ?", projectID, strings.ToLower(name), false).
		Limit(1).Find(&l)
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, res.Error
	}
	return &l, nil
}

type CustomAttributeRepo struct{ Repo[domain.CustomAttribute] }

func NewCustomAttributeRepo(db *gorm.DB, baseLog *logger.Logger) *CustomAttributeRepo {
	return &CustomAttributeRepo{newRepo[domain.CustomAttribute](db, baseLog, "custom attribute", Spec{
		SearchFields: []string{"name"},
		OrderFields:  map[string]string{"name": "name", "type": "type"},
		DefaultOrder: "name ASC, id ASC",
	})}
}

type CommentRepo struct{ Repo[domain.Comment] }

func NewCommentRepo(db *gorm.DB, baseLog *logger.Logger) *CommentRepo {
	return &CommentRepo{newRepo[domain.Comment](db, baseLog, "comment", Spec{
		OrderFields:  map[string]string{"created_at": "created_at", "updated_at": "updated_at"},
		DefaultOrder: "created_at ASC, id ASC",
	})}
}

// Thread lists the live and tombstoned comments of a target, oldest first.
func (r *CommentRepo) Thread(dbc dbctx.Context, t domain.Target, q Query) (*Page[domain.Comment], error) {
	db := r.model(dbc).Scopes(TargetScope(t)).
		Where("is_deleted = ? OR content = ?", false, domain.CommentTombstone)
	page := &Page[domain.Comment]{}
	if err := db.Count(&page.Count).Error; err != nil {
		return nil, err
	}
	order, err := r.order(q.Ordering)
	if err != nil {
		return nil, err
	}
	db = db.Order(order)
	if q.PageSize > 0 {
		p := max(q.Page, 1)
		db = db.Offset((p - 1) * q.PageSize).Limit(q.PageSize)
	}
	return page, db.Find(&page.Results).Error
}

// TargetScope filters polymorphic rows by their target.
func TargetScope(t domain.Target) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where("content_type = ? AND object_id = ?", t.Kind, t.ID) }
}

type AttachmentRepo struct{ Repo[domain.Attachment] }

func NewAttachmentRepo(db *gorm.DB, baseLog *logger.Logger) *AttachmentRepo {
	return &AttachmentRepo{newRepo[domain.Attachment](db, baseLog, "attachment", Spec{
		SearchFields: []string{"name", "filename"},
		OrderFields:  map[string]string{"name": "name", "size": "size", "created_at": "created_at"},
		DefaultOrder: "id ASC",
	})}
}
