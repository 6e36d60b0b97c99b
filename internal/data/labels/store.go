// Package labels binds project labels to versioned targets and keeps the
// per-target LabelIDs aggregate in step with live labeled items.
package labels

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// Ref names a label by id or by name.
type Ref struct {
	ID   *uint  `json:"id,omitempty"`
	Name string `json:"name"`
}

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) *Store {
	return &Store{db: db, log: baseLog.With("store", "LabelStore")}
}

// Resolve finds each referenced label in the project, creating missing names
// as CUSTOM labels. Name lookups are case-insensitive.
func (s *Store) Resolve(dbc dbctx.Context, projectID uint, refs []Ref, userID *uint) ([]domain.Label, error) {
	db := dbc.DB(s.db)
	out := make([]domain.Label, 0, len(refs))
	seen := map[uint]struct{}{}
	for _, ref := range refs {
		var l domain.Label
		if ref.ID != nil {
			res := db.Where("id = ? AND project_id = ? AND is_deleted = ?", *ref.ID, projectID, false).Limit(1).Find(&l)
			if res.Error != nil {
				return nil, res.Error
			}
			if res.RowsAffected == 0 {
				return nil, apierr.NotFound("labels.resolve", "label", *ref.ID)
			}
		} else {
			name := strings.TrimSpace(ref.Name)
			if name == "" {
				return nil, apierr.FieldValidation("labels.resolve", "labels", "label name cannot be empty")
			}
			res := db.Where("project_id = ? AND LOWER(name) = LOWER(?) AND is_deleted = ?", projectID, name, false).Limit(1).Find(&l)
			if res.Error != nil {
				return nil, res.Error
			}
			if res.RowsAffected == 0 {
				l = domain.Label{ProjectID: projectID, Name: name, Type: domain.LabelCustom, UserID: userID}
				if err := db.Create(&l).Error; err != nil {
					return nil, fmt.Errorf("create label %q: %w", name, err)
				}
			}
		}
		if _, dup := seen[l.ID]; dup {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out, nil
}

// Add binds labels to a target version, skipping bindings that already exist.
func (s *Store) Add(dbc dbctx.Context, projectID uint, refs []Ref, target domain.Target, historyID uint, userID *uint) error {
	resolved, err := s.Resolve(dbc, projectID, refs, userID)
	if err != nil {
		return err
	}
	db := dbc.DB(s.db)
	for _, l := range resolved {
		var n int64
		if err := db.Model(&domain.LabeledItem{}).
			Where("label_id = ? AND content_type = ? AND object_id = ? AND is_deleted = ?", l.ID, target.Kind, target.ID, false).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		item := domain.LabeledItem{LabelID: l.ID, ContentType: target.Kind, ObjectID: target.ID, ContentObjectHistoryID: historyID}
		if err := s.insertItem(dbc, &item); err != nil {
			return err
		}
	}
	return nil
}

// Set replaces the live labels of a target with refs bound to historyID.
func (s *Store) Set(dbc dbctx.Context, projectID uint, refs []Ref, target domain.Target, historyID uint, userID *uint) error {
	if err := s.Clear(dbc, target); err != nil {
		return err
	}
	return s.Add(dbc, projectID, refs, target, historyID, userID)
}

// Carry rebinds the current live labels of a target to a new version.
func (s *Store) Carry(dbc dbctx.Context, target domain.Target, historyID uint) error {
	items, err := s.liveItems(dbc, target)
	if err != nil {
		return err
	}
	if err := s.deleteItems(dbc, items, time.Now().UTC()); err != nil {
		return err
	}
	for _, it := range items {
		cp := domain.LabeledItem{LabelID: it.LabelID, ContentType: it.ContentType, ObjectID: it.ObjectID, ContentObjectHistoryID: historyID}
		if err := s.insertItem(dbc, &cp); err != nil {
			return err
		}
	}
	return nil
}

// Clear logically deletes every live labeled item of a target.
func (s *Store) Clear(dbc dbctx.Context, target domain.Target) error {
	items, err := s.liveItems(dbc, target)
	if err != nil {
		return err
	}
	return s.deleteItems(dbc, items, time.Now().UTC())
}

// RestoreByVersion replaces the live labels of a target with clones of the
// items observed at historyID, bound to newHistoryID.
func (s *Store) RestoreByVersion(dbc dbctx.Context, target domain.Target, historyID, newHistoryID uint) error {
	var observed []domain.LabeledItem
	if err := dbc.DB(s.db).
		Where("content_type = ? AND object_id = ? AND content_object_history_id = ?", target.Kind, target.ID, historyID).
		Order("id ASC").Find(&observed).Error; err != nil {
		return err
	}
	if err := s.Clear(dbc, target); err != nil {
		return err
	}
	seen := map[uint]struct{}{}
	for _, it := range observed {
		if _, dup := seen[it.LabelID]; dup {
			continue
		}
		seen[it.LabelID] = struct{}{}
		var live int64
		if err := dbc.DB(s.db).Model(&domain.Label{}).Where("id = ? AND is_deleted = ?", it.LabelID, false).Count(&live).Error; err != nil {
			return err
		}
		if live == 0 {
			continue
		}
		cp := domain.LabeledItem{LabelID: it.LabelID, ContentType: it.ContentType, ObjectID: it.ObjectID, ContentObjectHistoryID: newHistoryID}
		if err := s.insertItem(dbc, &cp); err != nil {
			return err
		}
	}
	return nil
}

// ForTargets returns the live labels of each target id of a kind.
func (s *Store) ForTargets(dbc dbctx.Context, kind domain.Kind, ids []uint) (map[uint][]domain.Label, error) {
	out := map[uint][]domain.Label{}
	if len(ids) == 0 {
		return out, nil
	}
	var items []domain.LabeledItem
	if err := dbc.DB(s.db).Preload("Label").
		Where("content_type = ? AND object_id IN ? AND is_deleted = ?", kind, ids, false).
		Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.Label == nil || it.Label.IsDeleted {
			continue
		}
		out[it.ObjectID] = append(out[it.ObjectID], *it.Label)
	}
	return out, nil
}

func (s *Store) liveItems(dbc dbctx.Context, target domain.Target) ([]domain.LabeledItem, error) {
	var items []domain.LabeledItem
	err := dbc.DB(s.db).Where("content_type = ? AND object_id = ? AND is_deleted = ?", target.Kind, target.ID, false).
		Order("id ASC").Find(&items).Error
	return items, err
}

func (s *Store) insertItem(dbc dbctx.Context, item *domain.LabeledItem) error {
	if err := dbc.DB(s.db).Omit("Label").Create(item).Error; err != nil {
		return fmt.Errorf("create labeled item: %w", err)
	}
	return s.appendLabelID(dbc, item.ContentType, item.ObjectID, item.LabelID)
}

func (s *Store) deleteItems(dbc dbctx.Context, items []domain.LabeledItem, now time.Time) error {
	for _, it := range items {
		if err := dbc.DB(s.db).Model(&domain.LabeledItem{}).Where("id = ?", it.ID).
			UpdateColumns(map[string]any{"is_deleted": true, "deleted_at": now}).Error; err != nil {
			return err
		}
		if err := s.removeLabelID(dbc, it.ContentType, it.ObjectID, it.LabelID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteByLabels logically deletes every live item bound to the given labels,
// used when labels themselves are deleted.
func (s *Store) DeleteByLabels(dbc dbctx.Context, labelIDs []uint, at time.Time) error {
	if len(labelIDs) == 0 {
		return nil
	}
	var items []domain.LabeledItem
	if err := dbc.DB(s.db).Where("label_id IN ? AND is_deleted = ?", labelIDs, false).Find(&items).Error; err != nil {
		return err
	}
	return s.deleteItems(dbc, items, at)
}

// RestoreByLabels restores items of the given labels that were deleted at the
// same instant as the labels themselves.
func (s *Store) RestoreByLabels(dbc dbctx.Context, labelIDs []uint, deletedAt time.Time) error {
	if len(labelIDs) == 0 {
		return nil
	}
	var items []domain.LabeledItem
	if err := dbc.DB(s.db).Where("label_id IN ? AND is_deleted = ? AND deleted_at = ?", labelIDs, true, deletedAt).
		Find(&items).Error; err != nil {
		return err
	}
	for _, it := range items {
		if err := dbc.DB(s.db).Model(&domain.LabeledItem{}).Where("id = ?", it.ID).
			UpdateColumns(map[string]any{"is_deleted": false, "deleted_at": nil}).Error; err != nil {
			return err
		}
		if err := s.appendLabelID(dbc, it.ContentType, it.ObjectID, it.LabelID); err != nil {
			return err
		}
	}
	return nil
}
