package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/stats"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type PlanInput struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Parent      *uint          `json:"parent"`
	ParentSet   bool           `json:"-"`
	StartedAt   *time.Time     `json:"started_at"`
	DueDate     *time.Time     `json:"due_date"`
	FinishedAt  *time.Time     `json:"finished_at"`
	Attributes  map[string]any `json:"attributes"`
	// Parameters spanning several groups expand into one plan per combination.
	Parameters []uint  `json:"parameters"`
	TestCases  *[]uint `json:"test_cases"`
}

// DateRange bounds result timestamps; nil ends are open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

func (r DateRange) scope(column string) repos.Scope {
	return func(db *gorm.DB) *gorm.DB {
		if r.Start != nil {
			db = db.Where(column+" >= ?", *r.Start)
		}
		if r.End != nil {
			db = db.Where(column+" <= ?", *r.End)
		}
		return db
	}
}

// PlanStatistic is one status bucket of a plan subtree. StatusID is nil for
// tests without a result in range.
type PlanStatistic struct {
	StatusID  *uint  `json:"status"`
	Label     string `json:"label"`
	Color     string `json:"color"`
	Value     int64  `json:"value"`
	Estimates int64  `json:"estimates"`
	Empty     int64  `json:"empty_estimates"`
}

// PlanProgress summarizes one child plan.
type PlanProgress struct {
	ID            uint   `json:"id"`
	Name          string `json:"title"`
	TestsTotal    int64  `json:"tests_total"`
	TestsProgress int64  `json:"tests_progress_total"`
}

type PlanService interface {
	List(ctx context.Context, projectID uint, q repos.Query, f TreeFilter) (*repos.Page[domain.Plan], error)
	Tree(ctx context.Context, projectID uint, f TreeFilter) ([]*TreeNode[domain.Plan], error)
	Get(ctx context.Context, id uint) (*domain.Plan, error)
	Create(ctx context.Context, projectID uint, in PlanInput) ([]*domain.Plan, error)
	Update(ctx context.Context, id uint, in PlanInput) (*domain.Plan, error)
	Ancestors(ctx context.Context, id uint) ([]*domain.Plan, error)
	Descendants(ctx context.Context, id uint) ([]*domain.Plan, error)
	Statistics(ctx context.Context, id uint, r DateRange) ([]PlanStatistic, error)
	Progress(ctx context.Context, projectID uint, parent *uint, r DateRange) ([]PlanProgress, error)
}

type planService struct {
	core  *Core
	attrs CustomAttributeService
	log   *logger.Logger
}

func NewPlanService(core *Core, attrs CustomAttributeService) PlanService {
	return &planService{core: core, attrs: attrs, log: core.Log.With("service", "PlanService")}
}

// CrossProduct expands parameters into every combination of one value per
// group. Groups keep their first-seen order; an empty input yields a single
// empty combination.
func CrossProduct(params []domain.Parameter) [][]domain.Parameter {
	var groups []string
	byGroup := map[string][]domain.Parameter{}
	for _, p := range params {
		if _, ok := byGroup[p.GroupName]; !ok {
			groups = append(groups, p.GroupName)
		}
		byGroup[p.GroupName] = append(byGroup[p.GroupName], p)
	}
	out := [][]domain.Parameter{{}}
	for _, g := range groups {
		next := make([][]domain.Parameter, 0, len(out)*len(byGroup[g]))
		for _, combo := range out {
			for _, p := range byGroup[g] {
				c := make([]domain.Parameter, len(combo), len(combo)+1)
				copy(c, combo)
				next = append(next, append(c, p))
			}
		}
		out = next
	}
	return out
}

func (s *planService) List(ctx context.Context, projectID uint, q repos.Query, f TreeFilter) (*repos.Page[domain.Plan], error) {
	if err := s.core.checkIn(ctx, projectID, "testplan", access.ActionView); err != nil {
		return nil, err
	}
	return s.core.Repos.Plan.List(read(ctx), q, repos.ProjectScope(projectID), f.Scope())
}

func (s *planService) Tree(ctx context.Context, projectID uint, f TreeFilter) ([]*TreeNode[domain.Plan], error) {
	if err := s.core.checkIn(ctx, projectID, "testplan", access.ActionView); err != nil {
		return nil, err
	}
	dbc := read(ctx)
	scopes := []repos.Scope{repos.ProjectScope(projectID)}
	if f.ParentSet && len(f.Parents) > 0 {
		ids, err := s.core.Trees.DescendantIDs(dbc, tree.Plans, f.Parents, false)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, repos.IDsScope(ids))
	}
	rows, err := s.core.Repos.Plan.Find(dbc, scopes...)
	if err != nil {
		return nil, err
	}
	return BuildTree(rows, func(x *domain.Plan) uint { return x.ID }, func(x *domain.Plan) *uint { return x.ParentID }), nil
}

func (s *planService) Get(ctx context.Context, id uint) (*domain.Plan, error) {
	dbc := read(ctx)
	plans, err := s.core.Repos.Plan.WithParameters(dbc, []uint{id})
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, apierr.NotFound("plan.get", "test plan", id)
	}
	if err := s.core.checkIn(ctx, plans[0].ProjectID, "testplan", access.ActionView); err != nil {
		return nil, err
	}
	return plans[0], nil
}

// parent validates the parent plan: same project, live and not archived.
func (s *planService) parent(dbc dbctx.Context, projectID uint, id *uint) error {
	if id == nil {
		return nil
	}
	p, err := s.core.Repos.Plan.Get(dbc, *id)
	if apierr.IsCode(err, apierr.CodeNotFound) {
		return apierr.FieldValidation("plan.parent", "parent", "Parent plan does not exist.")
	}
	if err != nil {
		return err
	}
	if err := requireSameProject("plan.parent", "parent", projectID, p.ProjectID); err != nil {
		return err
	}
	if p.IsArchive {
		return apierr.FieldValidation("plan.parent", "parent", "Cannot create or move a plan under an archived plan.")
	}
	return nil
}

func validateDates(started, due, finished time.Time) error {
	if due.Before(started) {
		return apierr.FieldValidation("plan.validate", "due_date", "Due date must be after the start date.")
	}
	if !finished.IsZero() && finished.Before(started) {
		return apierr.FieldValidation("plan.validate", "finished_at", "Finish date must be after the start date.")
	}
	return nil
}

// cases loads the requested cases, rejecting foreign or archived ones.
func (s *planService) cases(dbc dbctx.Context, projectID uint, ids []uint) ([]*domain.Case, error) {
	ids = uniq(ids)
	rows, err := s.core.Repos.Case.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) != len(ids) {
		return nil, apierr.FieldValidation("plan.test_cases", "test_cases", "Some test cases do not exist.")
	}
	for _, c := range rows {
		if c.ProjectID != projectID {
			return nil, apierr.FieldValidation("plan.test_cases", "test_cases", "Test case does not belong to the project.")
		}
		if c.IsArchive {
			return nil, apierr.FieldValidation("plan.test_cases", "test_cases", "Cannot add an archived test case to a plan.")
		}
	}
	return rows, nil
}

// addTests instantiates caseIDs inside a plan, skipping pairs that already exist.
func (c *Core) addTests(dbc dbctx.Context, projectID, planID uint, caseIDs []uint, user *uint) ([]*domain.Test, error) {
	existing, err := c.Repos.Test.ForPlans(dbc, []uint{planID})
	if err != nil {
		return nil, err
	}
	have := make(map[uint]bool, len(existing))
	for _, t := range existing {
		have[t.CaseID] = true
	}
	var out []*domain.Test
	for _, cid := range caseIDs {
		if have[cid] {
			continue
		}
		have[cid] = true
		t := &domain.Test{TestFields: domain.TestFields{ProjectID: projectID, CaseID: cid, PlanID: planID}}
		if _, err := c.History.Insert(dbc, t, user); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if len(out) > 0 {
		if err := c.Stats.Apply(dbc, domain.KindTest, projectID, int64(len(out))); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *planService) Create(ctx context.Context, projectID uint, in PlanInput) ([]*domain.Plan, error) {
	if err := s.core.checkIn(ctx, projectID, "testplan", access.ActionAdd); err != nil {
		return nil, err
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, apierr.FieldValidation("plan.create", "name", "This field is required.")
	}
	if in.StartedAt == nil || in.DueDate == nil {
		return nil, apierr.Validation("plan.create", "started_at and due_date are required")
	}
	var finished time.Time
	if in.FinishedAt != nil {
		finished = *in.FinishedAt
	}
	if err := validateDates(*in.StartedAt, *in.DueDate, finished); err != nil {
		return nil, err
	}
	user := actor(ctx)
	var out []*domain.Plan
	err := s.core.Writer.Write(ctx, "plan.create", func(dbc dbctx.Context) error {
		if _, err := s.core.liveProject(dbc, projectID); err != nil {
			return err
		}
		if err := s.parent(dbc, projectID, in.Parent); err != nil {
			return err
		}
		if err := s.attrs.Validate(dbc, projectID, AttributeScope{Kind: domain.KindPlan}, in.Attributes); err != nil {
			return err
		}
		params, err := s.core.Repos.Parameter.GetByIDs(dbc, uniq(in.Parameters))
		if err != nil {
			return err
		}
		if len(params) != len(uniq(in.Parameters)) {
			return apierr.FieldValidation("plan.create", "parameters", "Some parameters do not exist.")
		}
		flat := make([]domain.Parameter, 0, len(params))
		for _, p := range params {
			if err := requireSameProject("plan.create", "parameters", projectID, p.ProjectID); err != nil {
				return err
			}
			flat = append(flat, *p)
		}
		var caseIDs []uint
		if in.TestCases != nil {
			cs, err := s.cases(dbc, projectID, *in.TestCases)
			if err != nil {
				return err
			}
			for _, c := range cs {
				caseIDs = append(caseIDs, c.ID)
			}
		}
		for _, combo := range CrossProduct(flat) {
			p := &domain.Plan{
				ProjectID: projectID, Name: strings.TrimSpace(*in.Name),
				StartedAt: *in.StartedAt, DueDate: *in.DueDate, FinishedAt: in.FinishedAt,
				Attributes: datatypes.JSONMap(in.Attributes),
			}
			if in.Description != nil {
				p.Description = *in.Description
			}
			if err := s.core.Repos.Plan.DB(dbc).Omit("Parameters").Create(p).Error; err != nil {
				return apierr.MapDB("plan.create", err)
			}
			node, err := s.core.Trees.Place(dbc, tree.Plans, p.ID, in.Parent)
			if err != nil {
				return err
			}
			p.ParentID, p.Path, p.TreeID = node.ParentID, node.Path, node.TreeID
			if len(combo) > 0 {
				if err := s.core.Repos.Plan.DB(dbc).Model(p).Association("Parameters").Append(combo); err != nil {
					return err
				}
				p.Parameters = combo
			}
			if err := s.core.Stats.Track(dbc, domain.KindPlan, projectID, stats.State{}, stats.Live(false)); err != nil {
				return err
			}
			if _, err := s.core.addTests(dbc, projectID, p.ID, caseIDs, user); err != nil {
				return err
			}
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func (s *planService) Update(ctx context.Context, id uint, in PlanInput) (*domain.Plan, error) {
	user := actor(ctx)
	var out *domain.Plan
	err := s.core.Writer.Write(ctx, "plan.update", func(dbc dbctx.Context) error {
		p, err := s.core.Repos.Plan.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, p.ProjectID, "testplan", access.ActionChange); err != nil {
			return err
		}
		cols := map[string]any{}
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return apierr.FieldValidation("plan.update", "name", "This field may not be blank.")
			}
			cols["name"] = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			cols["description"] = *in.Description
		}
		started, due := p.StartedAt, p.DueDate
		var finished time.Time
		if p.FinishedAt != nil {
			finished = *p.FinishedAt
		}
		if in.StartedAt != nil {
			started = *in.StartedAt
			cols["started_at"] = started
		}
		if in.DueDate != nil {
			due = *in.DueDate
			cols["due_date"] = due
		}
		if in.FinishedAt != nil {
			finished = *in.FinishedAt
			cols["finished_at"] = finished
		}
		if err := validateDates(started, due, finished); err != nil {
			return err
		}
		if in.Attributes != nil {
			if err := s.attrs.Validate(dbc, p.ProjectID, AttributeScope{Kind: domain.KindPlan}, in.Attributes); err != nil {
				return err
			}
			cols["attributes"] = datatypes.JSONMap(in.Attributes)
		}
		if len(cols) > 0 {
			if err := s.core.Repos.Plan.Updates(dbc, id, cols); err != nil {
				return err
			}
		}
		if in.ParentSet && !sameRef(in.Parent, p.ParentID) {
			if err := s.parent(dbc, p.ProjectID, in.Parent); err != nil {
				return err
			}
			if _, err := s.core.Trees.Move(dbc, tree.Plans, id, in.Parent); err != nil {
				return treeErr("plan.move", err)
			}
		}
		if in.TestCases != nil {
			if err := s.syncTests(dbc, p, *in.TestCases, user); err != nil {
				return err
			}
		}
		plans, err := s.core.Repos.Plan.WithParameters(dbc, []uint{id})
		if err != nil {
			return err
		}
		out = plans[0]
		return nil
	})
	return out, err
}

// syncTests adds tests for new case ids and deletes tests whose case was dropped.
func (s *planService) syncTests(dbc dbctx.Context, p *domain.Plan, caseIDs []uint, user *uint) error {
	if p.IsArchive {
		return apierr.FieldValidation("plan.test_cases", "test_cases", "Cannot change tests of an archived plan.")
	}
	want := map[uint]bool{}
	for _, id := range caseIDs {
		want[id] = true
	}
	current, err := s.core.Repos.Test.ForPlans(dbc, []uint{p.ID})
	if err != nil {
		return err
	}
	have := map[uint]bool{}
	var drop []uint
	for _, t := range current {
		have[t.CaseID] = true
		if !want[t.CaseID] {
			drop = append(drop, t.ID)
		}
	}
	var add []uint
	for _, id := range uniq(caseIDs) {
		if !have[id] {
			add = append(add, id)
		}
	}
	if len(add) > 0 {
		if _, err := s.cases(dbc, p.ProjectID, add); err != nil {
			return err
		}
		if _, err := s.core.addTests(dbc, p.ProjectID, p.ID, add, user); err != nil {
			return err
		}
	}
	if len(drop) > 0 {
		if _, err := s.core.SoftDelete.Delete(dbc, domain.KindTest, drop); err != nil {
			return err
		}
	}
	s.log.Debug("plan tests synced", "plan_id", p.ID, "added", len(add), "removed", len(drop))
	return nil
}

func (s *planService) nodes(ctx context.Context, id uint, ancestors bool) ([]*domain.Plan, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dbc := read(ctx)
	var nodes []tree.Node
	if ancestors {
		nodes, err = s.core.Trees.Ancestors(dbc, tree.Plans, []uint{p.ID}, false)
	} else {
		nodes, err = s.core.Trees.Descendants(dbc, tree.Plans, []uint{p.ID}, false)
	}
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	rows, err := s.core.Repos.Plan.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	return orderByIDs(rows, ids, func(x *domain.Plan) uint { return x.ID }), nil
}

func (s *planService) Ancestors(ctx context.Context, id uint) ([]*domain.Plan, error) {
	return s.nodes(ctx, id, true)
}

func (s *planService) Descendants(ctx context.Context, id uint) ([]*domain.Plan, error) {
	return s.nodes(ctx, id, false)
}

// latestInRange maps test id to the status of its newest result within r.
func (s *planService) latestInRange(dbc dbctx.Context, testIDs []uint, r DateRange) (map[uint]uint, error) {
	out := map[uint]uint{}
	if len(testIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		TestID   uint
		StatusID uint
	}
	err := s.core.Repos.Result.DB(dbc).Model(&domain.Result{}).
		Select("test_id, status_id").
		Where("test_id IN ? AND is_deleted = ?", testIDs, false).
		Scopes(r.scope("created_at")).
		Order("created_at ASC, id ASC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.TestID] = row.StatusID
	}
	return out, nil
}

func (s *planService) Statistics(ctx context.Context, id uint, r DateRange) ([]PlanStatistic, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dbc := read(ctx)
	planIDs, err := s.core.Trees.DescendantIDs(dbc, tree.Plans, []uint{p.ID}, true)
	if err != nil {
		return nil, err
	}
	tests, err := s.core.Repos.Test.ForPlans(dbc, planIDs)
	if err != nil {
		return nil, err
	}
	testIDs := make([]uint, 0, len(tests))
	caseIDs := make([]uint, 0, len(tests))
	for _, t := range tests {
		if t.IsArchive {
			continue
		}
		testIDs = append(testIDs, t.ID)
		caseIDs = append(caseIDs, t.CaseID)
	}
	latest, err := s.latestInRange(dbc, testIDs, r)
	if err != nil {
		return nil, err
	}
	cases, err := s.core.Repos.Case.GetByIDs(dbc, uniq(caseIDs))
	if err != nil {
		return nil, err
	}
	estimate := make(map[uint]*int64, len(cases))
	for _, c := range cases {
		estimate[c.ID] = c.Estimate
	}
	statuses, err := s.core.Repos.Status.Find(dbc, repos.VisibleToProject(p.ProjectID))
	if err != nil {
		return nil, err
	}
	buckets := map[uint]*PlanStatistic{}
	var order []uint
	for _, st := range statuses {
		id := st.ID
		buckets[id] = &PlanStatistic{StatusID: &id, Label: st.Name, Color: st.Color}
		order = append(order, id)
	}
	untested := &PlanStatistic{Label: "Untested"}
	for _, t := range tests {
		if t.IsArchive {
			continue
		}
		b := untested
		if sid, ok := latest[t.ID]; ok {
			if bb, ok := buckets[sid]; ok {
				b = bb
			}
		}
		b.Value++
		if e := estimate[t.CaseID]; e != nil {
			b.Estimates += *e
		} else {
			b.Empty++
		}
	}
	out := make([]PlanStatistic, 0, len(order)+1)
	for _, id := range order {
		out = append(out, *buckets[id])
	}
	return append(out, *untested), nil
}

func (s *planService) Progress(ctx context.Context, projectID uint, parent *uint, r DateRange) ([]PlanProgress, error) {
	if err := s.core.checkIn(ctx, projectID, "testplan", access.ActionView); err != nil {
		return nil, err
	}
	dbc := read(ctx)
	children, err := s.core.Repos.Plan.Find(dbc, repos.ProjectScope(projectID), repos.ParentScope(parentList(parent), parent == nil),
		func(db *gorm.DB) *gorm.DB { return db.Where("is_archive = ?", false) })
	if err != nil {
		return nil, err
	}
	out := make([]PlanProgress, 0, len(children))
	for _, child := range children {
		planIDs, err := s.core.Trees.DescendantIDs(dbc, tree.Plans, []uint{child.ID}, true)
		if err != nil {
			return nil, err
		}
		tests, err := s.core.Repos.Test.ForPlans(dbc, planIDs)
		if err != nil {
			return nil, err
		}
		ids := make([]uint, 0, len(tests))
		for _, t := range tests {
			if !t.IsArchive {
				ids = append(ids, t.ID)
			}
		}
		latest, err := s.latestInRange(dbc, ids, r)
		if err != nil {
			return nil, err
		}
		out = append(out, PlanProgress{ID: child.ID, Name: child.Name, TestsTotal: int64(len(ids)), TestsProgress: int64(len(latest))})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func parentList(parent *uint) []uint {
	if parent == nil {
		return nil
	}
	return []uint{*parent}
}
