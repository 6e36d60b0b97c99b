// Package history appends version records for cases, steps, tests and results
// and replays them back onto live rows.
package history

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type Store struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) *Store {
	return &Store{db: db, log: baseLog.With("store", "VersionStore"), now: func() time.Time { return time.Now().UTC() }}
}

// Record appends a version of v.
func (s *Store) Record(dbc dbctx.Context, v domain.Versioned, typ domain.HistoryType, userID *uint) (uint, error) {
	rec := v.Snapshot(domain.HistoryMeta{HistoryDate: s.now(), HistoryUserID: userID, HistoryType: typ})
	if err := dbc.DB(s.db).Create(rec).Error; err != nil {
		return 0, fmt.Errorf("record %s history: %w", v.TableName(), err)
	}
	return rec.GetHistoryID(), nil
}

// Insert creates the live row and its "+" version.
func (s *Store) Insert(dbc dbctx.Context, v domain.Versioned, userID *uint) (uint, error) {
	if err := dbc.DB(s.db).Omit(clause.Associations).Create(v).Error; err != nil {
		return 0, err
	}
	return s.Record(dbc, v, domain.HistoryCreated, userID)
}

// UpdateOptions controls a versioned save.
type UpdateOptions struct {
	UserID *uint
	// Columns restricts the write to these columns; empty writes every column.
	Columns []string
	// SkipHistory saves the live row without a new version and patches the
	// latest existing version with the new values instead.
	SkipHistory bool
}

// Update writes the live row and appends a "~" version unless SkipHistory is set.
// It returns the history id that now describes the row.
func (s *Store) Update(dbc dbctx.Context, v domain.Versioned, opts UpdateOptions) (uint, error) {
	db := dbc.DB(s.db)
	q := db.Model(v).Omit(clause.Associations)
	if len(opts.Columns) > 0 {
		cols := append(append([]string(nil), opts.Columns...), "updated_at")
		q = q.Select(cols)
	} else {
		q = q.Select("*")
	}
	if err := q.Updates(v).Error; err != nil {
		return 0, err
	}
	if !opts.SkipHistory {
		return s.Record(dbc, v, domain.HistoryChanged, opts.UserID)
	}
	return s.patchLatest(dbc, v)
}

func (s *Store) patchLatest(dbc dbctx.Context, v domain.Versioned) (uint, error) {
	latest := v.Snapshot(domain.HistoryMeta{})
	id := v.GetID()
	res := dbc.DB(s.db).Where("id = ?", id).Order("history_id DESC").Limit(1).Find(latest)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return s.Record(dbc, v, domain.HistoryChanged, nil)
	}
	meta := metaOf(latest)
	patched := v.Snapshot(meta)
	if err := dbc.DB(s.db).Select("*").Updates(patched).Error; err != nil {
		return 0, fmt.Errorf("patch latest %s history: %w", v.TableName(), err)
	}
	s.log.Info("history patched without new version", "table", v.TableName(), "id", id, "history_id", meta.HistoryID)
	return meta.HistoryID, nil
}

func metaOf(rec domain.HistoryRecord) domain.HistoryMeta {
	switch r := rec.(type) {
	case *domain.CaseHistory:
		return r.HistoryMeta
	case *domain.StepHistory:
		return r.HistoryMeta
	case *domain.TestHistory:
		return r.HistoryMeta
	case *domain.ResultHistory:
		return r.HistoryMeta
	}
	return domain.HistoryMeta{}
}

// LatestCaseHistoryID returns the newest version id of a case.
func (s *Store) LatestCaseHistoryID(dbc dbctx.Context, caseID uint) (uint, error) {
	var h domain.CaseHistory
	res := dbc.DB(s.db).Select("history_id").Where("id = ?", caseID).Order("history_id DESC").Limit(1).Find(&h)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, apierr.NotFound("history.latest", "test case history", caseID)
	}
	return h.HistoryID, nil
}

// LatestCaseHistoryIDs maps case ids to their newest version id.
func (s *Store) LatestCaseHistoryIDs(dbc dbctx.Context, caseIDs []uint) (map[uint]uint, error) {
	out := map[uint]uint{}
	if len(caseIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ID        uint
		HistoryID uint
	}
	err := dbc.DB(s.db).Model(&domain.CaseHistory{}).
		Select("id, MAX(history_id) AS history_id").
		Where("id IN ?", caseIDs).Group("id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ID] = r.HistoryID
	}
	return out, nil
}

func (s *Store) CaseVersions(dbc dbctx.Context, caseID uint) ([]domain.CaseHistory, error) {
	var out []domain.CaseHistory
	err := dbc.DB(s.db).Where("id = ?", caseID).Order("history_id DESC").Find(&out).Error
	return out, err
}

func (s *Store) CaseVersion(dbc dbctx.Context, caseID, historyID uint) (*domain.CaseHistory, error) {
	var h domain.CaseHistory
	res := dbc.DB(s.db).Where("id = ? AND history_id = ?", caseID, historyID).Limit(1).Find(&h)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apierr.NotFound("history.case_version", "test case version", historyID)
	}
	return &h, nil
}

// StepsAt returns the live steps recorded at a case version, one row per step.
// Duplicate rows for the same step keep the first and log a warning.
func (s *Store) StepsAt(dbc dbctx.Context, caseHistoryID uint) ([]domain.StepHistory, error) {
	var rows []domain.StepHistory
	err := dbc.DB(s.db).Where("case_history_id = ?", caseHistoryID).
		Order("history_id ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	seen := map[uint]struct{}{}
	out := make([]domain.StepHistory, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.ID]; dup {
			s.log.Warn("duplicate step history for case version", "step_id", r.ID, "case_history_id", caseHistoryID, "history_id", r.HistoryID)
			continue
		}
		seen[r.ID] = struct{}{}
		if r.IsDeleted {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ResaveSteps tags every live step of the case with caseHistoryID and versions it.
func (s *Store) ResaveSteps(dbc dbctx.Context, caseID, caseHistoryID uint, userID *uint) ([]domain.Step, error) {
	var steps []domain.Step
	if err := dbc.DB(s.db).Where("case_id = ? AND is_deleted = ?", caseID, false).
		Order("sort_order ASC, id ASC").Find(&steps).Error; err != nil {
		return nil, err
	}
	for i := range steps {
		steps[i].CaseHistoryID = caseHistoryID
		steps[i].UpdatedAt = s.now()
		if _, err := s.Update(dbc, &steps[i], UpdateOptions{UserID: userID, Columns: []string{"case_history_id"}}); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

// DeleteSteps tags the given live steps with caseHistoryID and logically deletes them.
func (s *Store) DeleteSteps(dbc dbctx.Context, steps []domain.Step, caseHistoryID uint, userID *uint) error {
	now := s.now()
	for i := range steps {
		steps[i].CaseHistoryID = caseHistoryID
		steps[i].MarkDeleted(now)
		steps[i].UpdatedAt = now
		if err := dbc.DB(s.db).Model(&steps[i]).
			Select("case_history_id", "is_deleted", "deleted_at", "updated_at").
			Updates(&steps[i]).Error; err != nil {
			return err
		}
		if _, err := s.Record(dbc, &steps[i], domain.HistoryDeleted, userID); err != nil {
			return err
		}
	}
	return nil
}
