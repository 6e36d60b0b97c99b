package history

import (
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

// CaseRestore describes the outcome of replaying a case version.
type CaseRestore struct {
	Case *domain.Case
	// FromHistoryID is the version that was replayed.
	FromHistoryID uint
	// HistoryID is the fresh version recording the restored state.
	HistoryID     uint
	RestoredSteps []uint
	DeletedSteps  []uint
}

// RestoreCase replays the case snapshot at historyID onto the live row and
// reconciles its steps against the steps recorded at that version.
func (s *Store) RestoreCase(dbc dbctx.Context, caseID, historyID uint, userID *uint) (*CaseRestore, error) {
	snap, err := s.CaseVersion(dbc, caseID, historyID)
	if err != nil {
		return nil, err
	}
	var live domain.Case
	res := dbc.DB(s.db).Where("id = ?", caseID).Limit(1).Find(&live)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apierr.NotFound("history.restore_case", "test case", caseID)
	}

	restored := snap.Live()
	restored.CreatedAt = live.CreatedAt
	restored.UpdatedAt = s.now()
	restored.SoftDelete = live.SoftDelete
	// the live row keeps its current archive state and location
	restored.IsArchive = live.IsArchive
	restored.ProjectID = live.ProjectID

	newHistory, err := s.Update(dbc, restored, UpdateOptions{UserID: userID})
	if err != nil {
		return nil, err
	}
	out := &CaseRestore{Case: restored, FromHistoryID: historyID, HistoryID: newHistory}

	historical, err := s.StepsAt(dbc, historyID)
	if err != nil {
		return nil, err
	}
	keep := make(map[uint]domain.StepHistory, len(historical))
	for _, h := range historical {
		keep[h.ID] = h
	}

	var current []domain.Step
	if err := dbc.DB(s.db).Where("case_id = ? AND is_deleted = ?", caseID, false).Find(&current).Error; err != nil {
		return nil, err
	}
	var drop []domain.Step
	for _, st := range current {
		if _, ok := keep[st.ID]; !ok {
			drop = append(drop, st)
			out.DeletedSteps = append(out.DeletedSteps, st.ID)
		}
	}
	if err := s.DeleteSteps(dbc, drop, newHistory, userID); err != nil {
		return nil, err
	}

	for _, h := range historical {
		step := h.Live()
		step.CaseHistoryID = newHistory
		step.ProjectID = restored.ProjectID
		step.Restore()
		step.UpdatedAt = s.now()
		if err := dbc.DB(s.db).Save(step).Error; err != nil {
			return nil, err
		}
		if _, err := s.Record(dbc, step, domain.HistoryChanged, userID); err != nil {
			return nil, err
		}
		out.RestoredSteps = append(out.RestoredSteps, step.ID)
	}

	s.log.Info("case version restored", "case_id", caseID, "from_history_id", historyID, "history_id", newHistory,
		"restored_steps", len(out.RestoredSteps), "deleted_steps", len(out.DeletedSteps))
	return out, nil
}
