package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "github.com/yungbote/testbridge-backend/internal/data/db"
	"github.com/yungbote/testbridge-backend/internal/data/softdelete"
	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
)

func TestSuiteMoveRewritesSubtree(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	svc := NewSuiteService(f.core)

	a, err := svc.Create(f.ctx, p.ID, SuiteInput{Name: ptr("A")})
	require.NoError(t, err)
	b, err := svc.Create(f.ctx, p.ID, SuiteInput{Name: ptr("B"), Parent: &a.ID, ParentSet: true})
	require.NoError(t, err)
	c, err := svc.Create(f.ctx, p.ID, SuiteInput{Name: ptr("C"), Parent: &b.ID, ParentSet: true})
	require.NoError(t, err)
	d, err := svc.Create(f.ctx, p.ID, SuiteInput{Name: ptr("D")})
	require.NoError(t, err)
	assert.Equal(t, domain.NewPath(a.ID, b.ID, c.ID), c.Path)

	moved, err := svc.Update(f.ctx, c.ID, SuiteInput{Parent: &d.ID, ParentSet: true})
	require.NoError(t, err)
	assert.Equal(t, domain.NewPath(d.ID, c.ID), moved.Path)
	assert.Equal(t, d.ID, moved.TreeID)

	underA, err := svc.Descendants(f.ctx, a.ID)
	require.NoError(t, err)
	for _, s := range underA {
		assert.NotEqual(t, c.ID, s.ID)
	}
	underD, err := svc.Descendants(f.ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, underD, 1)
	assert.Equal(t, c.ID, underD[0].ID)

	_, err = svc.Update(f.ctx, a.ID, SuiteInput{Parent: &b.ID, ParentSet: true})
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
}

func TestResultEditWindow(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	f.settings(t, p.ID, domain.ProjectSettings{IsResultEditable: true, ResultEditLimit: ptr(int64(3600))})
	suite := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	cases := NewCaseService(f.core, NewCustomAttributeService(f.core))
	c, err := cases.Create(f.ctx, p.ID, CaseInput{Suite: &suite.ID, Name: ptr("Login")})
	require.NoError(t, err)
	plan := testutil.SeedPlan(t, f.db, p.ID, "P", nil)
	test := testutil.SeedTest(t, f.db, plan, c.Case)

	results := NewResultService(f.core, NewCustomAttributeService(f.core), f.notifications())
	start := f.now
	r, err := results.Create(f.ctx, test.ID, ResultInput{Status: ptr(dbpkg.StatusPassed)})
	require.NoError(t, err)

	f.now = start.Add(30 * time.Second)
	_, err = results.Update(f.ctx, r.ID, ResultInput{Status: ptr(dbpkg.StatusFailed)})
	require.NoError(t, err)

	f.now = start.Add(3700 * time.Second)
	_, err = results.Update(f.ctx, r.ID, ResultInput{Status: ptr(dbpkg.StatusPassed)})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status())
	assert.Contains(t, apiErr.Message, "3600 seconds")

	updated, err := results.Update(f.ctx, r.ID, ResultInput{Comment: ptr("late note")})
	require.NoError(t, err)
	assert.Equal(t, "late note", updated.Comment)
	assert.Equal(t, dbpkg.StatusFailed, updated.StatusID)

	got, err := f.core.Repos.Test.Get(f.dbc(), test.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastStatusID)
	assert.Equal(t, dbpkg.StatusFailed, *got.LastStatusID)
}

func TestResultEditBlockedAfterCaseChanges(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	f.settings(t, p.ID, domain.ProjectSettings{IsResultEditable: true})
	suite := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	cases := NewCaseService(f.core, NewCustomAttributeService(f.core))
	c, err := cases.Create(f.ctx, p.ID, CaseInput{Suite: &suite.ID, Name: ptr("Login")})
	require.NoError(t, err)
	plan := testutil.SeedPlan(t, f.db, p.ID, "P", nil)
	test := testutil.SeedTest(t, f.db, plan, c.Case)

	results := NewResultService(f.core, NewCustomAttributeService(f.core), f.notifications())
	r, err := results.Create(f.ctx, test.ID, ResultInput{Status: ptr(dbpkg.StatusPassed)})
	require.NoError(t, err)

	_, err = cases.Update(f.ctx, c.ID, CaseInput{Scenario: ptr("new scenario")})
	require.NoError(t, err)

	_, err = results.Update(f.ctx, r.ID, ResultInput{Status: ptr(dbpkg.StatusFailed)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Test case was changed")
}

func TestLabelNameClash(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	svc := NewLabelService(f.core)

	_, err := svc.Create(f.ctx, p.ID, LabelInput{Name: ptr("Smoke")})
	require.NoError(t, err)

	_, err = svc.Create(f.ctx, p.ID, LabelInput{Name: ptr("smoke")})
	require.Error(t, err)
	var apiErr *apierr.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status())
	assert.Contains(t, err.Error(), `"Smoke"`)
	assert.Contains(t, err.Error(), `"Alpha"`)

	var n int64
	require.NoError(t, f.db.Model(&domain.Label{}).Where("project_id = ?", p.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestAssignmentNotificationsRespectSubscriptions(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	u := testutil.SeedUser(t, f.db, "uma")
	require.NoError(t, f.core.Repos.NotificationSetting.SetSubscribed(f.dbc(), u.ID, []domain.ActionCode{domain.ActionTestAssigned}, true))

	suite := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	c := testutil.SeedCase(t, f.db, suite, "Checkout")
	plan := testutil.SeedPlan(t, f.db, p.ID, "P", nil)
	test := testutil.SeedTest(t, f.db, plan, c)

	svc := NewTestService(f.core, f.notifications(), nil, 0)
	view, err := svc.Update(f.ctx, test.ID, TestInput{Assignee: &u.ID, AssigneeSet: true})
	require.NoError(t, err)
	require.NotNil(t, view.AssigneeID)

	count, err := f.core.Repos.Notification.UnreadCount(f.dbc(), u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, []int64{1}, f.pub.pushes(u.ID))

	_, err = svc.Update(f.ctx, test.ID, TestInput{AssigneeSet: true})
	require.NoError(t, err)

	count, err = f.core.Repos.Notification.UnreadCount(f.dbc(), u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, []int64{1}, f.pub.pushes(u.ID))

	var n domain.Notification
	require.NoError(t, f.db.Where("recipient_id = ?", u.ID).First(&n).Error)
	assert.Equal(t, domain.ActionTestAssigned, n.ActionCode)
	assert.Equal(t, "admin assigned you to test", n.Verb)
}

func TestCopyPlanAcrossProjects(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedProject(t, f.db, "A")
	b := testutil.SeedProject(t, f.db, "B")

	cases := NewCaseService(f.core, NewCustomAttributeService(f.core))
	s1 := testutil.SeedSuite(t, f.db, a.ID, "S1", nil)
	c1, err := cases.Create(f.ctx, a.ID, CaseInput{Suite: &s1.ID, Name: ptr("C1")})
	require.NoError(t, err)
	c2, err := cases.Create(f.ctx, a.ID, CaseInput{Suite: &s1.ID, Name: ptr("C2")})
	require.NoError(t, err)
	p1 := testutil.SeedPlan(t, f.db, a.ID, "P1", nil)
	t1 := testutil.SeedTest(t, f.db, p1, c1.Case)
	testutil.SeedTest(t, f.db, p1, c2.Case)
	testutil.SeedResult(t, f.db, t1, dbpkg.StatusPassed)

	svc := NewCopyService(f.core, NewParameterService(f.core))
	res, err := svc.CopyPlans(f.ctx, PlanCopyInput{Plans: []uint{p1.ID}, DstProject: b.ID})
	require.NoError(t, err)
	assert.Len(t, res.Suites, 1)
	assert.Len(t, res.Cases, 2)
	assert.Len(t, res.Plans, 1)
	assert.Len(t, res.Tests, 2)

	newSuite, err := f.core.Repos.Suite.Get(f.dbc(), res.Suites[s1.ID])
	require.NoError(t, err)
	assert.Equal(t, b.ID, newSuite.ProjectID)
	assert.Equal(t, domain.NewPath(newSuite.ID), newSuite.Path)

	newPlan, err := f.core.Repos.Plan.Get(f.dbc(), res.Plans[p1.ID])
	require.NoError(t, err)
	assert.Equal(t, b.ID, newPlan.ProjectID)
	assert.Equal(t, newPlan.ID, newPlan.TreeID)

	newTest, err := f.core.Repos.Test.Get(f.dbc(), res.Tests[t1.ID])
	require.NoError(t, err)
	assert.Equal(t, res.Cases[c1.ID], newTest.CaseID)
	assert.Equal(t, newPlan.ID, newTest.PlanID)
	require.NotNil(t, newTest.LastStatusID)

	var results int64
	require.NoError(t, f.db.Model(&domain.Result{}).Where("project_id = ?", b.ID).Count(&results).Error)
	assert.EqualValues(t, 1, results)

	var inA int64
	require.NoError(t, f.db.Model(&domain.Test{}).Where("project_id = ?", a.ID).Count(&inA).Error)
	assert.EqualValues(t, 2, inA)

	st := f.counters(t, b.ID)
	assert.EqualValues(t, 1, st.SuitesCount)
	assert.EqualValues(t, 2, st.CasesCount)
	assert.EqualValues(t, 1, st.PlansCount)
	assert.EqualValues(t, 2, st.TestsCount)
}

func TestCopyPlanSameProjectReusesCases(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedProject(t, f.db, "A")
	s1 := testutil.SeedSuite(t, f.db, a.ID, "S1", nil)
	c1 := testutil.SeedCase(t, f.db, s1, "C1")
	root := testutil.SeedPlan(t, f.db, a.ID, "Root", nil)
	child := testutil.SeedPlan(t, f.db, a.ID, "Child", root)
	t1 := testutil.SeedTest(t, f.db, child, c1)
	testutil.SeedResult(t, f.db, t1, dbpkg.StatusFailed)

	svc := NewCopyService(f.core, NewParameterService(f.core))
	res, err := svc.CopyPlans(f.ctx, PlanCopyInput{Plans: []uint{root.ID}, DstProject: a.ID, DropResults: true, Name: ptr("Root copy")})
	require.NoError(t, err)
	assert.Empty(t, res.Cases)
	require.Len(t, res.Plans, 2)

	newRoot, err := f.core.Repos.Plan.Get(f.dbc(), res.Plans[root.ID])
	require.NoError(t, err)
	assert.Equal(t, "Root copy", newRoot.Name)
	newChild, err := f.core.Repos.Plan.Get(f.dbc(), res.Plans[child.ID])
	require.NoError(t, err)
	assert.Equal(t, domain.NewPath(newRoot.ID, newChild.ID), newChild.Path)

	newTest, err := f.core.Repos.Test.Get(f.dbc(), res.Tests[t1.ID])
	require.NoError(t, err)
	assert.Equal(t, c1.ID, newTest.CaseID)
	assert.Nil(t, newTest.LastStatusID)
}

func TestCopyPlanIncludedStatuses(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedProject(t, f.db, "A")
	s1 := testutil.SeedSuite(t, f.db, a.ID, "S1", nil)
	plan := testutil.SeedPlan(t, f.db, a.ID, "P", nil)
	passed := testutil.SeedTest(t, f.db, plan, testutil.SeedCase(t, f.db, s1, "C1"))
	testutil.SeedResult(t, f.db, passed, dbpkg.StatusPassed)
	untested := testutil.SeedTest(t, f.db, plan, testutil.SeedCase(t, f.db, s1, "C2"))
	failed := testutil.SeedTest(t, f.db, plan, testutil.SeedCase(t, f.db, s1, "C3"))
	testutil.SeedResult(t, f.db, failed, dbpkg.StatusFailed)

	svc := NewCopyService(f.core, NewParameterService(f.core))
	res, err := svc.CopyPlans(f.ctx, PlanCopyInput{
		Plans: []uint{plan.ID}, DstProject: a.ID, DropResults: true,
		IncludedStatuses: []string{"2", "null"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Tests, 2)
	assert.Contains(t, res.Tests, passed.ID)
	assert.Contains(t, res.Tests, untested.ID)
	assert.NotContains(t, res.Tests, failed.ID)
}

func TestDeletingLatestResultRefreshesLastStatus(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.db, "Alpha")
	s := testutil.SeedSuite(t, f.db, p.ID, "S", nil)
	plan := testutil.SeedPlan(t, f.db, p.ID, "P", nil)
	test := testutil.SeedTest(t, f.db, plan, testutil.SeedCase(t, f.db, s, "C"))
	testutil.SeedResult(t, f.db, test, dbpkg.StatusFailed)
	latest := testutil.SeedResult(t, f.db, test, dbpkg.StatusPassed)

	previewer := softdelete.NewPreviewer(f.core.SoftDelete, softdelete.NewLRUCache(8, time.Minute), []byte("secret"), time.Minute, f.core.Log)
	svc := NewArchiveService(f.core, previewer)
	prev, err := svc.Preview(f.ctx, softdelete.ModeDelete, domain.KindResult, []uint{latest.ID})
	require.NoError(t, err)
	assert.Equal(t, map[domain.Kind]int{domain.KindResult: 1}, prev.Counts)

	res, err := svc.Commit(f.ctx, prev.Token)
	require.NoError(t, err)
	require.True(t, res.Committed)

	got, err := f.core.Repos.Test.Get(f.dbc(), test.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastStatusID)
	assert.Equal(t, dbpkg.StatusFailed, *got.LastStatusID)

	deleted, err := svc.Deleted(f.ctx, domain.KindResult, &p.ID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, latest.ID, deleted[0].ID)

	_, err = svc.Recover(f.ctx, domain.KindResult, []uint{latest.ID})
	require.NoError(t, err)
	got, err = f.core.Repos.Test.Get(f.dbc(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, dbpkg.StatusPassed, *got.LastStatusID)
}

func TestBulkUpdateRejectsIncludedAndExcluded(t *testing.T) {
	f := newFixture(t)
	svc := NewTestService(f.core, f.notifications(), nil, 0)
	_, err := svc.BulkUpdate(f.ctx, 1, BulkTestInput{IncludedTests: []uint{1}, ExcludedTests: []uint{2}})
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
}
