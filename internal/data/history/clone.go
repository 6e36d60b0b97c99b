package history

import (
	"time"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

// preserveTimestamps writes the source timestamps back after an insert.
func (s *Store) preserveTimestamps(dbc dbctx.Context, v domain.Versioned, ts domain.Timestamps) error {
	return dbc.DB(s.db).Table(v.TableName()).Where("id = ?", v.GetID()).
		UpdateColumns(map[string]any{"created_at": ts.CreatedAt, "updated_at": ts.UpdatedAt}).Error
}

// CloneCase deep-copies a case and its live steps under a new id. mutate
// adjusts the copy before insert; steps follow the copy's project. The returned
// map sends source step ids to their copies.
func (s *Store) CloneCase(dbc dbctx.Context, src domain.Case, mutate func(*domain.Case), userID *uint) (*domain.Case, map[uint]uint, error) {
	dst := src
	dst.ID = 0
	if mutate != nil {
		mutate(&dst)
	}
	hid, err := s.Insert(dbc, &dst, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.preserveTimestamps(dbc, &dst, src.Timestamps); err != nil {
		return nil, nil, err
	}
	dst.Timestamps = src.Timestamps

	var steps []domain.Step
	if err := dbc.DB(s.db).Where("case_id = ? AND is_deleted = ?", src.ID, false).
		Order("sort_order ASC, id ASC").Find(&steps).Error; err != nil {
		return nil, nil, err
	}
	stepMap := make(map[uint]uint, len(steps))
	for _, st := range steps {
		cp := st
		cp.ID = 0
		cp.CaseID = dst.ID
		cp.ProjectID = dst.ProjectID
		cp.CaseHistoryID = hid
		if _, err := s.Insert(dbc, &cp, userID); err != nil {
			return nil, nil, err
		}
		if err := s.preserveTimestamps(dbc, &cp, st.Timestamps); err != nil {
			return nil, nil, err
		}
		stepMap[st.ID] = cp.ID
	}
	return &dst, stepMap, nil
}

// CloneTest copies a test; with results it also copies its live results and step results.
func (s *Store) CloneTest(dbc dbctx.Context, src domain.Test, mutate func(*domain.Test), withResults bool, stepMap map[uint]uint, userID *uint) (*domain.Test, error) {
	dst := src
	dst.ID = 0
	if mutate != nil {
		mutate(&dst)
	}
	if !withResults {
		dst.LastStatusID = nil
	}
	if _, err := s.Insert(dbc, &dst, userID); err != nil {
		return nil, err
	}
	err := s.preserveTimestamps(dbc, &dst, src.Timestamps)
	if err != nil {
		return nil, err
	}
	if !withResults {
		return &dst, nil
	}

	var results []domain.Result
	if err := dbc.DB(s.db).Preload("StepResults", "is_deleted = ?", false).
		Where("test_id = ? AND is_deleted = ?", src.ID, false).
		Order("created_at ASC, id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	version := uint(0)
	if dst.CaseID != src.CaseID {
		if version, err = s.LatestCaseHistoryID(dbc, dst.CaseID); err != nil {
			return nil, err
		}
	}
	for _, r := range results {
		cp := r
		cp.ID = 0
		cp.TestID = dst.ID
		cp.ProjectID = dst.ProjectID
		if version != 0 {
			cp.TestCaseVersion = version
		}
		cp.StepResults = nil
		if _, err := s.Insert(dbc, &cp, userID); err != nil {
			return nil, err
		}
		if err := s.preserveTimestamps(dbc, &cp, r.Timestamps); err != nil {
			return nil, err
		}
		for _, sr := range r.StepResults {
			stepID := sr.StepID
			if mapped, ok := stepMap[stepID]; ok {
				stepID = mapped
			}
			row := domain.StepResult{
				ProjectID:  dst.ProjectID,
				ResultID:   cp.ID,
				StepID:     stepID,
				StatusID:   sr.StatusID,
				Timestamps: sr.Timestamps,
			}
			if err := dbc.DB(s.db).Create(&row).Error; err != nil {
				return nil, err
			}
		}
	}
	return &dst, nil
}

// Now is the store clock, shared with callers that stamp rows alongside versions.
func (s *Store) Now() time.Time { return s.now() }
