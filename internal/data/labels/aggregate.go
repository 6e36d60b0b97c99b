package labels

import (
	"gorm.io/gorm/clause"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

func (s *Store) loadIDs(dbc dbctx.Context, kind domain.Kind, objectID uint, forUpdate bool) (*domain.LabelIDs, bool, error) {
	row := domain.LabelIDs{ContentType: kind, ObjectID: objectID}
	q := dbc.DB(s.db)
	if forUpdate && q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	res := q.Where("content_type = ? AND object_id = ?", kind, objectID).Limit(1).Find(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return &row, res.RowsAffected > 0, nil
}

func (s *Store) appendLabelID(dbc dbctx.Context, kind domain.Kind, objectID, labelID uint) error {
	row, found, err := s.loadIDs(dbc, kind, objectID, true)
	if err != nil {
		return err
	}
	row.LabelIDs = append(row.LabelIDs, labelID)
	if !found {
		return dbc.DB(s.db).Create(row).Error
	}
	return dbc.DB(s.db).Model(row).Where("content_type = ? AND object_id = ?", kind, objectID).
		UpdateColumn("label_ids", row.LabelIDs).Error
}

func (s *Store) removeLabelID(dbc dbctx.Context, kind domain.Kind, objectID, labelID uint) error {
	row, found, err := s.loadIDs(dbc, kind, objectID, true)
	if err != nil || !found {
		return err
	}
	ids := row.LabelIDs[:0]
	removed := false
	for _, id := range row.LabelIDs {
		if !removed && id == labelID {
			removed = true
			continue
		}
		ids = append(ids, id)
	}
	db := dbc.DB(s.db).Where("content_type = ? AND object_id = ?", kind, objectID)
	if len(ids) == 0 {
		return db.Delete(&domain.LabelIDs{}).Error
	}
	return db.Model(&domain.LabelIDs{}).UpdateColumn("label_ids", ids).Error
}

// LabelIDs returns the aggregate array of a target, empty when absent.
func (s *Store) LabelIDs(dbc dbctx.Context, target domain.Target) ([]uint, error) {
	row, _, err := s.loadIDs(dbc, target.Kind, target.ID, false)
	if err != nil {
		return nil, err
	}
	return []uint(row.LabelIDs), nil
}
