package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

func setup(t *testing.T) (*Store, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	return NewStore(db, testutil.Logger(t)), dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func TestStore_InsertAndUpdateAppendVersions(t *testing.T) {
	s, dbc := setup(t)

	c := &domain.Case{CaseFields: domain.CaseFields{ProjectID: 1, SuiteID: 1, Name: "login"}}
	h1, err := s.Insert(dbc, c, nil)
	require.NoError(t, err)
	require.NotZero(t, c.ID)

	c.Scenario = "open the page"
	h2, err := s.Update(dbc, c, UpdateOptions{Columns: []string{"scenario"}})
	require.NoError(t, err)
	assert.Greater(t, h2, h1)

	versions, err := s.CaseVersions(dbc, c.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, domain.HistoryChanged, versions[0].HistoryType)
	assert.Equal(t, "open the page", versions[0].Scenario)
	assert.Equal(t, domain.HistoryCreated, versions[1].HistoryType)
	assert.Empty(t, versions[1].Scenario)

	latest, err := s.LatestCaseHistoryID(dbc, c.ID)
	require.NoError(t, err)
	assert.Equal(t, h2, latest)
}

func TestStore_SkipHistoryPatchesLatest(t *testing.T) {
	s, dbc := setup(t)

	c := &domain.Case{CaseFields: domain.CaseFields{ProjectID: 1, SuiteID: 1, Name: "before"}}
	h1, err := s.Insert(dbc, c, nil)
	require.NoError(t, err)

	c.Name = "after"
	h, err := s.Update(dbc, c, UpdateOptions{SkipHistory: true})
	require.NoError(t, err)
	assert.Equal(t, h1, h)

	versions, err := s.CaseVersions(dbc, c.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "after", versions[0].Name)
	assert.Equal(t, domain.HistoryCreated, versions[0].HistoryType)
}

func TestStore_RestoreCaseReconcilesSteps(t *testing.T) {
	s, dbc := setup(t)
	db := dbc.Tx

	c := &domain.Case{CaseFields: domain.CaseFields{ProjectID: 1, SuiteID: 1, Name: "v1", IsSteps: true}}
	v1, err := s.Insert(dbc, c, nil)
	require.NoError(t, err)

	one := &domain.Step{StepFields: domain.StepFields{ProjectID: 1, CaseID: c.ID, Name: "one", CaseHistoryID: v1}}
	_, err = s.Insert(dbc, one, nil)
	require.NoError(t, err)

	c.Name = "v2"
	v2, err := s.Update(dbc, c, UpdateOptions{})
	require.NoError(t, err)
	_, err = s.ResaveSteps(dbc, c.ID, v2, nil)
	require.NoError(t, err)
	two := &domain.Step{StepFields: domain.StepFields{ProjectID: 1, CaseID: c.ID, Name: "two", SortOrder: 1, CaseHistoryID: v2}}
	_, err = s.Insert(dbc, two, nil)
	require.NoError(t, err)

	// restoring v1 keeps step one and drops step two
	out, err := s.RestoreCase(dbc, c.ID, v1, nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", out.Case.Name)
	assert.Greater(t, out.HistoryID, v2)
	assert.Equal(t, []uint{one.ID}, out.RestoredSteps)
	assert.Equal(t, []uint{two.ID}, out.DeletedSteps)

	var live []domain.Step
	require.NoError(t, db.Where("case_id = ? AND is_deleted = ?", c.ID, false).Find(&live).Error)
	require.Len(t, live, 1)
	assert.Equal(t, out.HistoryID, live[0].CaseHistoryID)

	var gone domain.Step
	require.NoError(t, db.First(&gone, two.ID).Error)
	assert.True(t, gone.IsDeleted)
	assert.Equal(t, out.HistoryID, gone.CaseHistoryID)

	atNew, err := s.StepsAt(dbc, out.HistoryID)
	require.NoError(t, err)
	require.Len(t, atNew, 1)
	assert.Equal(t, one.ID, atNew[0].ID)
}

func TestStore_StepsAtKeepsFirstDuplicate(t *testing.T) {
	s, dbc := setup(t)

	st := &domain.Step{StepFields: domain.StepFields{ProjectID: 1, CaseID: 1, Name: "first", CaseHistoryID: 42}}
	_, err := s.Insert(dbc, st, nil)
	require.NoError(t, err)
	st.Name = "second"
	_, err = s.Update(dbc, st, UpdateOptions{})
	require.NoError(t, err)

	rows, err := s.StepsAt(dbc, 42)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0].Name)
}

func TestStore_CloneCaseCopiesSteps(t *testing.T) {
	s, dbc := setup(t)

	src := &domain.Case{CaseFields: domain.CaseFields{ProjectID: 1, SuiteID: 1, Name: "src", IsSteps: true}}
	h, err := s.Insert(dbc, src, nil)
	require.NoError(t, err)
	step := &domain.Step{StepFields: domain.StepFields{ProjectID: 1, CaseID: src.ID, Name: "s", CaseHistoryID: h}}
	_, err = s.Insert(dbc, step, nil)
	require.NoError(t, err)

	dst, stepMap, err := s.CloneCase(dbc, *src, func(c *domain.Case) {
		c.ProjectID = 2
		c.SuiteID = 9
	}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dst.ID)
	assert.Equal(t, uint(2), dst.ProjectID)
	require.Contains(t, stepMap, step.ID)

	var copied domain.Step
	require.NoError(t, dbc.Tx.First(&copied, stepMap[step.ID]).Error)
	assert.Equal(t, dst.ID, copied.CaseID)
	assert.Equal(t, uint(2), copied.ProjectID)
	assert.True(t, copied.CreatedAt.Equal(step.CreatedAt))
}
