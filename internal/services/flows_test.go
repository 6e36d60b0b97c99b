package services

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "github.com/yungbote/testbridge-backend/internal/data/db"
	"github.com/yungbote/testbridge-backend/internal/data/labels"
	"github.com/yungbote/testbridge-backend/internal/data/softdelete"
	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
)

// requireCountersRebuilt asserts the maintained counters of a project equal a
// recount from its rows.
func (f *fixture) requireCountersRebuilt(t *testing.T, projectID uint) domain.ProjectStatistics {
	t.Helper()
	got := *f.counters(t, projectID)
	want, err := f.core.Stats.Rebuild(f.dbc(), projectID)
	require.NoError(t, err)
	assert.Equal(t, *want, got, "project %d", projectID)
	return got
}

func (f *fixture) rebuild(t *testing.T, projectIDs ...uint) {
	t.Helper()
	for _, id := range projectIDs {
		_, err := f.core.Stats.Rebuild(f.dbc(), id)
		require.NoError(t, err)
	}
}

func (f *fixture) archive() ArchiveService {
	previewer := softdelete.NewPreviewer(f.core.SoftDelete, softdelete.NewLRUCache(8, time.Minute), []byte("secret"), time.Minute, f.core.Log)
	return NewArchiveService(f.core, previewer)
}

func commit(t *testing.T, f *fixture, svc ArchiveService, mode softdelete.Mode, kind domain.Kind, ids ...uint) {
	t.Helper()
	prev, err := svc.Preview(f.ctx, mode, kind, ids)
	require.NoError(t, err)
	res, err := svc.Commit(f.ctx, prev.Token)
	require.NoError(t, err)
	require.True(t, res.Committed)
}

func stepNames(steps []*domain.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Name
	}
	return out
}

func TestBulkUpdateArchivesAndUnarchivesTests(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	s := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	plan := testutil.SeedPlan(t, f.db, p.ID, "P", nil)
	t1 := testutil.SeedTest(t, f.db, plan, testutil.SeedCase(t, f.db, s, "C1"))
	t2 := testutil.SeedTest(t, f.db, plan, testutil.SeedCase(t, f.db, s, "C2"))
	r := testutil.SeedResult(t, f.db, t1, dbpkg.StatusPassed)
	f.rebuild(t, p.ID)
	svc := NewTestService(f.core, f.notifications(), nil, 0)

	out, err := svc.BulkUpdate(f.ctx, p.ID, BulkTestInput{IncludedTests: []uint{t1.ID, t2.ID}, IsArchive: ptr(true)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, tt := range out {
		assert.True(t, tt.IsArchive)
	}
	assert.Equal(t, int64(0), f.requireCountersRebuilt(t, p.ID).TestsCount)
	var stored domain.Result
	require.NoError(t, f.db.First(&stored, r.ID).Error)
	assert.True(t, stored.IsArchive)

	out, err = svc.BulkUpdate(f.ctx, p.ID, BulkTestInput{IncludedTests: []uint{t1.ID, t2.ID}, IsArchive: ptr(false)})
	require.NoError(t, err)
	for _, tt := range out {
		assert.False(t, tt.IsArchive)
	}
	assert.Equal(t, int64(2), f.requireCountersRebuilt(t, p.ID).TestsCount)
	require.NoError(t, f.db.First(&stored, r.ID).Error)
	assert.False(t, stored.IsArchive)

	_, err = f.core.SoftDelete.Archive(f.dbc(), domain.KindPlan, []uint{plan.ID})
	require.NoError(t, err)
	_, err = svc.BulkUpdate(f.ctx, p.ID, BulkTestInput{IncludedTests: []uint{t1.ID}, IsArchive: ptr(false)})
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
	var still domain.Test
	require.NoError(t, f.db.First(&still, t1.ID).Error)
	assert.True(t, still.IsArchive)
}

func TestCaseRestoreRevivesLabelsAndSteps(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	s := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	svc := NewCaseService(f.core, NewCustomAttributeService(f.core))

	v1, err := svc.Create(f.ctx, p.ID, CaseInput{
		Suite: &s.ID, Name: ptr("Login"), IsSteps: ptr(true),
		Labels: &[]labels.Ref{{Name: "smoke"}},
		Steps:  &[]StepInput{{Name: "open"}, {Name: "submit"}},
	})
	require.NoError(t, err)
	require.Len(t, v1.Steps, 2)
	require.Len(t, v1.Labels, 1)
	smoke := v1.Labels[0].ID
	first := v1.CurrentVersion
	var open, submit uint
	for _, st := range v1.Steps {
		switch st.Name {
		case "open":
			open = st.ID
		case "submit":
			submit = st.ID
		}
	}

	v2, err := svc.Update(f.ctx, v1.ID, CaseInput{
		Name:   ptr("Login v2"),
		Labels: &[]labels.Ref{{Name: "regression"}},
		Steps:  &[]StepInput{{ID: &open, Name: "open page"}, {Name: "logout"}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"open page", "logout"}, stepNames(v2.Steps))
	ids, err := f.core.Labels.LabelIDs(f.dbc(), caseTarget(v1.ID))
	require.NoError(t, err)
	assert.NotContains(t, ids, smoke)

	restored, err := svc.Restore(f.ctx, v1.ID, first)
	require.NoError(t, err)
	assert.Equal(t, "Login", restored.Name)
	assert.Greater(t, restored.CurrentVersion, v2.CurrentVersion)
	assert.ElementsMatch(t, []string{"open", "submit"}, stepNames(restored.Steps))
	var stepIDs []uint
	for _, st := range restored.Steps {
		stepIDs = append(stepIDs, st.ID)
	}
	assert.ElementsMatch(t, []uint{open, submit}, stepIDs)
	require.Len(t, restored.Labels, 1)
	assert.Equal(t, "smoke", restored.Labels[0].Name)

	ids, err = f.core.Labels.LabelIDs(f.dbc(), caseTarget(v1.ID))
	require.NoError(t, err)
	assert.Equal(t, []uint{smoke}, ids)

	_, recorded, err := svc.Version(f.ctx, v1.ID, restored.CurrentVersion)
	require.NoError(t, err)
	var recordedIDs []uint
	for _, h := range recorded {
		recordedIDs = append(recordedIDs, h.ID)
	}
	assert.ElementsMatch(t, []uint{open, submit}, recordedIDs)
}

func TestPlanCreateExpandsParameterGroupsWithTests(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	s := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	c := testutil.SeedCase(t, f.db, s, "C")
	f.rebuild(t, p.ID)

	params := NewParameterService(f.core)
	var ids []uint
	for _, in := range []ParameterInput{
		{GroupName: "os", Data: "linux"}, {GroupName: "os", Data: "macos"},
		{GroupName: "browser", Data: "chrome"}, {GroupName: "browser", Data: "firefox"}, {GroupName: "browser", Data: "safari"},
	} {
		prm, err := params.Create(f.ctx, p.ID, in)
		require.NoError(t, err)
		ids = append(ids, prm.ID)
	}

	svc := NewPlanService(f.core, NewCustomAttributeService(f.core))
	start := f.now
	plans, err := svc.Create(f.ctx, p.ID, PlanInput{
		Name: ptr("Release"), StartedAt: &start, DueDate: ptr(start.Add(48 * time.Hour)),
		Parameters: ids, TestCases: &[]uint{c.ID},
	})
	require.NoError(t, err)
	require.Len(t, plans, 6)

	combos := map[string]bool{}
	var planIDs []uint
	for _, pl := range plans {
		require.Len(t, pl.Parameters, 2)
		vals := []string{pl.Parameters[0].Data, pl.Parameters[1].Data}
		sort.Strings(vals)
		combos[vals[0]+"/"+vals[1]] = true
		planIDs = append(planIDs, pl.ID)
	}
	assert.Len(t, combos, 6)

	tests, err := f.core.Repos.Test.ForPlans(f.dbc(), planIDs)
	require.NoError(t, err)
	require.Len(t, tests, 6)
	perPlan := map[uint]int{}
	for _, tt := range tests {
		assert.Equal(t, c.ID, tt.CaseID)
		perPlan[tt.PlanID]++
	}
	for _, id := range planIDs {
		assert.Equal(t, 1, perPlan[id])
	}

	st := f.requireCountersRebuilt(t, p.ID)
	assert.Equal(t, int64(6), st.PlansCount)
	assert.Equal(t, int64(6), st.TestsCount)
}

func TestPlanUpdateSyncsTestCases(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	s := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	c1 := testutil.SeedCase(t, f.db, s, "C1")
	c2 := testutil.SeedCase(t, f.db, s, "C2")
	c3 := testutil.SeedCase(t, f.db, s, "C3")
	f.rebuild(t, p.ID)

	svc := NewPlanService(f.core, NewCustomAttributeService(f.core))
	start := f.now
	plans, err := svc.Create(f.ctx, p.ID, PlanInput{
		Name: ptr("Release"), StartedAt: &start, DueDate: ptr(start.Add(time.Hour)),
		TestCases: &[]uint{c1.ID, c2.ID},
	})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	plan := plans[0]

	before, err := f.core.Repos.Test.ForPlans(f.dbc(), []uint{plan.ID})
	require.NoError(t, err)
	require.Len(t, before, 2)
	var dropped, kept uint
	for _, tt := range before {
		if tt.CaseID == c1.ID {
			dropped = tt.ID
		} else {
			kept = tt.ID
		}
	}

	_, err = svc.Update(f.ctx, plan.ID, PlanInput{TestCases: &[]uint{c2.ID, c3.ID}})
	require.NoError(t, err)

	after, err := f.core.Repos.Test.ForPlans(f.dbc(), []uint{plan.ID})
	require.NoError(t, err)
	var caseIDs, testIDs []uint
	for _, tt := range after {
		caseIDs = append(caseIDs, tt.CaseID)
		testIDs = append(testIDs, tt.ID)
	}
	assert.ElementsMatch(t, []uint{c2.ID, c3.ID}, caseIDs)
	assert.Contains(t, testIDs, kept)

	deleted, err := f.archive().Deleted(f.ctx, domain.KindTest, &p.ID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, dropped, deleted[0].ID)

	assert.Equal(t, int64(2), f.requireCountersRebuilt(t, p.ID).TestsCount)
}

func TestCountersFollowArchiveDeleteRecoverAndCopy(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	dst := testutil.SeedProject(t, f.db, "Beta")
	s := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	plan := testutil.SeedPlan(t, f.db, p.ID, "P", nil)
	t1 := testutil.SeedTest(t, f.db, plan, testutil.SeedCase(t, f.db, s, "C1"))
	testutil.SeedTest(t, f.db, plan, testutil.SeedCase(t, f.db, s, "C2"))
	testutil.SeedResult(t, f.db, t1, dbpkg.StatusPassed)
	f.rebuild(t, p.ID, dst.ID)
	svc := f.archive()

	commit(t, f, svc, softdelete.ModeArchive, domain.KindPlan, plan.ID)
	st := f.requireCountersRebuilt(t, p.ID)
	assert.Equal(t, int64(0), st.PlansCount)
	assert.Equal(t, int64(0), st.TestsCount)

	_, err := svc.Unarchive(f.ctx, domain.KindPlan, []uint{plan.ID})
	require.NoError(t, err)
	st = f.requireCountersRebuilt(t, p.ID)
	assert.Equal(t, int64(1), st.PlansCount)
	assert.Equal(t, int64(2), st.TestsCount)

	commit(t, f, svc, softdelete.ModeDelete, domain.KindSuite, s.ID)
	st = f.requireCountersRebuilt(t, p.ID)
	assert.Equal(t, int64(0), st.SuitesCount)
	assert.Equal(t, int64(0), st.CasesCount)
	assert.Equal(t, int64(0), st.TestsCount)

	_, err = svc.Recover(f.ctx, domain.KindSuite, []uint{s.ID})
	require.NoError(t, err)
	st = f.requireCountersRebuilt(t, p.ID)
	assert.Equal(t, int64(1), st.SuitesCount)
	assert.Equal(t, int64(2), st.CasesCount)
	assert.Equal(t, int64(2), st.TestsCount)

	copied, err := NewCopyService(f.core, NewParameterService(f.core)).CopyPlans(f.ctx, PlanCopyInput{
		Plans: []uint{plan.ID}, DstProject: dst.ID,
	})
	require.NoError(t, err)
	assert.Len(t, copied.Plans, 1)
	assert.Len(t, copied.Tests, 2)

	assert.Equal(t, st, f.requireCountersRebuilt(t, p.ID))
	moved := f.requireCountersRebuilt(t, dst.ID)
	assert.Equal(t, int64(1), moved.PlansCount)
	assert.Equal(t, int64(2), moved.TestsCount)
	assert.Equal(t, int64(2), moved.CasesCount)
}
