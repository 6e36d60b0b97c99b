package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/history"
	"github.com/yungbote/testbridge-backend/internal/data/labels"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// TestFilter narrows test listings.
type TestFilter struct {
	Plans []uint
	// NestedSearch widens Plans to their subtrees.
	NestedSearch bool
	Suites       []uint
	Assignee     *uint
	Unassigned   bool
	LastStatus   []uint
	// Untested selects tests without results; combined with LastStatus as a union.
	Untested  bool
	IsArchive *bool
	Labels    labels.Filter
}

func (s *testService) scopes(dbc dbctx.Context, projectID uint, f TestFilter) ([]repos.Scope, error) {
	scopes := []repos.Scope{repos.ProjectScope(projectID)}
	if len(f.Plans) > 0 {
		plans := f.Plans
		if f.NestedSearch {
			ids, err := s.core.Trees.DescendantIDs(dbc, tree.Plans, f.Plans, true)
			if err != nil {
				return nil, err
			}
			plans = ids
		}
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("plan_id IN ?", plans) })
	}
	if len(f.Suites) > 0 {
		suites, err := s.core.Trees.DescendantIDs(dbc, tree.Suites, f.Suites, true)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where("case_id IN (?)", db.Session(&gorm.Session{NewDB: true}).
				Model(&domain.Case{}).Select("id").Where("suite_id IN ?", suites))
		})
	}
	switch {
	case f.Unassigned:
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("assignee_id IS NULL") })
	case f.Assignee != nil:
		a := *f.Assignee
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("assignee_id = ?", a) })
	}
	switch {
	case len(f.LastStatus) > 0 && f.Untested:
		st := f.LastStatus
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("last_status_id IN ? OR last_status_id IS NULL", st) })
	case len(f.LastStatus) > 0:
		st := f.LastStatus
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("last_status_id IN ?", st) })
	case f.Untested:
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("last_status_id IS NULL") })
	}
	if f.IsArchive != nil {
		archived := *f.IsArchive
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("is_archive = ?", archived) })
	}
	if !f.Labels.Empty() {
		lf := f.Labels
		lf.Kind, lf.Column = domain.KindCase, "case_id"
		scopes = append(scopes, lf.Scope)
	}
	return scopes, nil
}

// TestView adds the case name and current labels to a test.
type TestView struct {
	*domain.Test
	Name   string         `json:"name"`
	Labels []domain.Label `json:"labels"`
}

type TestInput struct {
	Assignee    *uint `json:"assignee"`
	AssigneeSet bool  `json:"-"`
}

// BulkTestInput selects tests by filter narrowed to IncludedTests, or widened
// to every filtered test except ExcludedTests.
type BulkTestInput struct {
	Filter        TestFilter
	IncludedTests []uint `json:"included_tests"`
	ExcludedTests []uint `json:"excluded_tests"`
	Assignee      *uint  `json:"assignee"`
	AssigneeSet   bool   `json:"-"`
	// Plan moves the selected tests to another plan.
	Plan *uint `json:"plan"`
	// IsArchive archives or unarchives the selected tests with their results.
	IsArchive *bool `json:"is_archive"`
}

type TestService interface {
	List(ctx context.Context, projectID uint, q repos.Query, f TestFilter) (*repos.Page[TestView], error)
	Get(ctx context.Context, id uint) (*TestView, error)
	Update(ctx context.Context, id uint, in TestInput) (*TestView, error)
	BulkUpdate(ctx context.Context, projectID uint, in BulkTestInput) ([]*domain.Test, error)
}

type testService struct {
	core        *Core
	notify      NotificationService
	tasks       TaskQueue
	inlineLimit int
	log         *logger.Logger
}

// NewTestService wires assignment notifications. Bulk updates producing more
// than inlineLimit events hand them to a notifications.fanout task.
func NewTestService(core *Core, notify NotificationService, tasks TaskQueue, inlineLimit int) TestService {
	return &testService{core: core, notify: notify, tasks: tasks, inlineLimit: inlineLimit, log: core.Log.With("service", "TestService")}
}

// AssignmentEvents returns the notifications produced by an assignee change.
func AssignmentEvents(t *domain.Test, caseName string, oldAssignee, newAssignee, actorID *uint) []NotificationEvent {
	if sameRef(oldAssignee, newAssignee) {
		return nil
	}
	target := domain.Target{Kind: domain.KindTest, ID: t.ID}
	vars := testVars(t, caseName)
	var out []NotificationEvent
	if oldAssignee != nil {
		out = append(out, NotificationEvent{Target: target, Recipient: *oldAssignee, Code: domain.ActionTestUnassigned, Actor: actorID, Vars: vars})
	}
	if newAssignee != nil {
		out = append(out, NotificationEvent{Target: target, Recipient: *newAssignee, Code: domain.ActionTestAssigned, Actor: actorID, Vars: vars})
	}
	return out
}

// testVars fills the placeholders of test notifications.
func testVars(t *domain.Test, caseName string) map[string]any {
	return map[string]any{"name": caseName, "project_id": t.ProjectID, "plan_id": t.PlanID, "test_id": t.ID}
}

func (s *testService) views(dbc dbctx.Context, tests []*domain.Test) ([]*TestView, error) {
	caseIDs := make([]uint, 0, len(tests))
	for _, t := range tests {
		caseIDs = append(caseIDs, t.CaseID)
	}
	caseIDs = uniq(caseIDs)
	names := map[uint]string{}
	if len(caseIDs) > 0 {
		var rows []struct {
			ID   uint
			Name string
		}
		if err := s.core.Repos.Case.DB(dbc).Model(&domain.Case{}).Select("id, name").Where("id IN ?", caseIDs).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			names[r.ID] = r.Name
		}
	}
	byCase, err := s.core.Labels.ForTargets(dbc, domain.KindCase, caseIDs)
	if err != nil {
		return nil, err
	}
	out := make([]*TestView, len(tests))
	for i, t := range tests {
		out[i] = &TestView{Test: t, Name: names[t.CaseID], Labels: byCase[t.CaseID]}
	}
	return out, nil
}

func (s *testService) List(ctx context.Context, projectID uint, q repos.Query, f TestFilter) (*repos.Page[TestView], error) {
	if err := s.core.checkIn(ctx, projectID, "test", access.ActionView); err != nil {
		return nil, err
	}
	dbc := read(ctx)
	scopes, err := s.scopes(dbc, projectID, f)
	if err != nil {
		return nil, err
	}
	page, err := s.core.Repos.Test.List(dbc, q, scopes...)
	if err != nil {
		return nil, err
	}
	views, err := s.views(dbc, page.Results)
	if err != nil {
		return nil, err
	}
	return &repos.Page[TestView]{Count: page.Count, Results: views}, nil
}

func (s *testService) Get(ctx context.Context, id uint) (*TestView, error) {
	dbc := read(ctx)
	t, err := s.core.Repos.Test.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, t.ProjectID, "test", access.ActionView); err != nil {
		return nil, err
	}
	views, err := s.views(dbc, []*domain.Test{t})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// assignee validates that the user exists and is active.
func (s *testService) assignee(dbc dbctx.Context, id *uint) error {
	if id == nil {
		return nil
	}
	u, err := s.core.Repos.User.Get(dbc, *id)
	if apierr.IsCode(err, apierr.CodeNotFound) || (err == nil && !u.IsActive) {
		return apierr.FieldValidation("test.assignee", "assignee", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *id))
	}
	return err
}

func (s *testService) caseName(dbc dbctx.Context, caseID uint) string {
	c, err := s.core.Repos.Case.Get(dbc, caseID)
	if err != nil {
		return ""
	}
	return c.Name
}

func (s *testService) Update(ctx context.Context, id uint, in TestInput) (*TestView, error) {
	user := actor(ctx)
	var out *TestView
	err := s.core.Writer.Write(ctx, "test.update", func(dbc dbctx.Context) error {
		t, err := s.core.Repos.Test.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, t.ProjectID, "test", access.ActionChange); err != nil {
			return err
		}
		if in.AssigneeSet {
			if t.IsArchive {
				return apierr.Validation("test.update", "Cannot change an archived test.")
			}
			if err := s.assignee(dbc, in.Assignee); err != nil {
				return err
			}
			old := t.AssigneeID
			t.AssigneeID = in.Assignee
			t.UpdatedAt = s.core.now()
			if _, err := s.core.History.Update(dbc, t, history.UpdateOptions{UserID: user, Columns: []string{"assignee_id"}}); err != nil {
				return err
			}
			if _, err := s.notify.NotifyMany(dbc, AssignmentEvents(t, s.caseName(dbc, t.CaseID), old, in.Assignee, user)); err != nil {
				return err
			}
		}
		views, err := s.views(dbc, []*domain.Test{t})
		if err != nil {
			return err
		}
		out = views[0]
		return nil
	})
	return out, err
}

func (s *testService) BulkUpdate(ctx context.Context, projectID uint, in BulkTestInput) ([]*domain.Test, error) {
	if len(in.IncludedTests) > 0 && len(in.ExcludedTests) > 0 {
		return nil, apierr.Validation("test.bulk_update", "included_tests and excluded_tests are mutually exclusive")
	}
	if err := s.core.checkIn(ctx, projectID, "test", access.ActionChange); err != nil {
		return nil, err
	}
	user := actor(ctx)
	var out []*domain.Test
	err := s.core.Writer.Write(ctx, "test.bulk_update", func(dbc dbctx.Context) error {
		scopes, err := s.scopes(dbc, projectID, in.Filter)
		if err != nil {
			return err
		}
		switch {
		case len(in.IncludedTests) > 0:
			scopes = append(scopes, repos.IDsScope(in.IncludedTests))
		case len(in.ExcludedTests) > 0:
			ex := in.ExcludedTests
			scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("id NOT IN ?", ex) })
		}
		tests, err := s.core.Repos.Test.Find(dbc, scopes...)
		if err != nil {
			return err
		}
		if in.AssigneeSet {
			if err := s.assignee(dbc, in.Assignee); err != nil {
				return err
			}
		}
		if in.Plan != nil {
			if err := s.movable(dbc, projectID, *in.Plan, tests); err != nil {
				return err
			}
		}
		var events []NotificationEvent
		names := map[uint]string{}
		for _, t := range tests {
			var cols []string
			old := t.AssigneeID
			if in.AssigneeSet && !sameRef(old, in.Assignee) {
				t.AssigneeID = in.Assignee
				cols = append(cols, "assignee_id")
			}
			if in.Plan != nil && t.PlanID != *in.Plan {
				t.PlanID = *in.Plan
				cols = append(cols, "plan_id")
			}
			if len(cols) == 0 {
				continue
			}
			t.UpdatedAt = s.core.now()
			if _, err := s.core.History.Update(dbc, t, history.UpdateOptions{UserID: user, Columns: cols}); err != nil {
				return err
			}
			if in.AssigneeSet {
				name, ok := names[t.CaseID]
				if !ok {
					name = s.caseName(dbc, t.CaseID)
					names[t.CaseID] = name
				}
				events = append(events, AssignmentEvents(t, name, old, in.Assignee, user)...)
			}
		}
		if in.IsArchive != nil {
			if err := s.setArchived(dbc, tests, *in.IsArchive); err != nil {
				return err
			}
		}
		if err := s.dispatch(dbc, events); err != nil {
			return err
		}
		out = tests
		return nil
	})
	return out, err
}

// setArchived flips is_archive through the soft-delete engine so results
// follow their tests and project counters stay in step.
func (s *testService) setArchived(dbc dbctx.Context, tests []*domain.Test, archive bool) error {
	var ids []uint
	var plans, cases []uint
	for _, t := range tests {
		if t.IsArchive == archive {
			continue
		}
		ids = append(ids, t.ID)
		plans = append(plans, t.PlanID)
		cases = append(cases, t.CaseID)
	}
	if len(ids) == 0 {
		return nil
	}
	if archive {
		if _, err := s.core.SoftDelete.Archive(dbc, domain.KindTest, ids); err != nil {
			return err
		}
	} else {
		var archived int64
		if err := s.core.Repos.Plan.DB(dbc).Model(&domain.Plan{}).
			Where("id IN ? AND is_archive = ?", uniq(plans), true).Count(&archived).Error; err != nil {
			return err
		}
		if archived == 0 {
			if err := s.core.Repos.Case.DB(dbc).Model(&domain.Case{}).
				Where("id IN ? AND is_archive = ?", uniq(cases), true).Count(&archived).Error; err != nil {
				return err
			}
		}
		if archived > 0 {
			return apierr.FieldValidation("test.bulk_update", "is_archive", "Cannot unarchive tests of an archived plan or case.")
		}
		if _, err := s.core.SoftDelete.Unarchive(dbc, domain.KindTest, ids); err != nil {
			return err
		}
	}
	for _, t := range tests {
		t.IsArchive = archive
	}
	return nil
}

// movable rejects moves to a foreign or archived plan and (plan, case) clashes.
func (s *testService) movable(dbc dbctx.Context, projectID, planID uint, tests []*domain.Test) error {
	p, err := s.core.Repos.Plan.Get(dbc, planID)
	if apierr.IsCode(err, apierr.CodeNotFound) {
		return apierr.FieldValidation("test.bulk_update", "plan", "Plan does not exist.")
	}
	if err != nil {
		return err
	}
	if err := requireSameProject("test.bulk_update", "plan", projectID, p.ProjectID); err != nil {
		return err
	}
	if p.IsArchive {
		return apierr.FieldValidation("test.bulk_update", "plan", "Cannot move tests to an archived plan.")
	}
	existing, err := s.core.Repos.Test.ForPlans(dbc, []uint{planID})
	if err != nil {
		return err
	}
	taken := map[uint]bool{}
	for _, t := range existing {
		taken[t.CaseID] = true
	}
	for _, t := range tests {
		if t.PlanID == planID {
			continue
		}
		if taken[t.CaseID] {
			return apierr.FieldValidation("test.bulk_update", "plan", fmt.Sprintf("Plan already contains a test for case %d.", t.CaseID))
		}
		taken[t.CaseID] = true
	}
	return nil
}

// dispatch notifies inline or hands large batches to the task worker.
func (s *testService) dispatch(dbc dbctx.Context, events []NotificationEvent) error {
	if len(events) == 0 {
		return nil
	}
	if s.tasks != nil && s.inlineLimit > 0 && len(events) > s.inlineLimit {
		s.log.Info("queueing bulk notifications", "events", len(events))
		return s.tasks.Enqueue(dbc, TaskNotificationsFanout, events)
	}
	_, err := s.notify.NotifyMany(dbc, events)
	return err
}
