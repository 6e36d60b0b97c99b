package services

import (
	"context"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/attachments"
	"github.com/yungbote/testbridge-backend/internal/data/history"
	"github.com/yungbote/testbridge-backend/internal/data/labels"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type PlanCopyInput struct {
	Plans      []uint `json:"plans"`
	DstProject uint   `json:"dst_project_id"`
	DstPlan    *uint  `json:"dst_plan_id"`
	// Name renames the copied roots when set.
	Name        *string `json:"name"`
	DropResults bool    `json:"drop_results"`
	// IncludedStatuses holds status ids, or "null" for tests without a result.
	IncludedStatuses []string `json:"included_statuses"`
}

type SuiteCopyInput struct {
	Suites     []uint `json:"suites"`
	DstProject uint   `json:"dst_project_id"`
	DstSuite   *uint  `json:"dst_suite_id"`
}

type CaseCopyInput struct {
	Cases    []uint `json:"cases"`
	DstSuite uint   `json:"dst_suite_id"`
}

// CopyResult maps every source id to its copy.
type CopyResult struct {
	Plans  map[uint]uint `json:"plans"`
	Suites map[uint]uint `json:"suites"`
	Cases  map[uint]uint `json:"cases"`
	Tests  map[uint]uint `json:"tests"`
}

func newCopyResult() *CopyResult {
	return &CopyResult{Plans: map[uint]uint{}, Suites: map[uint]uint{}, Cases: map[uint]uint{}, Tests: map[uint]uint{}}
}

// StatusSelection is a parsed included_statuses filter.
type StatusSelection struct {
	IDs      map[uint]bool
	Untested bool
}

func ParseStatusSelection(raw []string) (*StatusSelection, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	sel := &StatusSelection{IDs: map[uint]bool{}}
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if strings.EqualFold(r, "null") {
			sel.Untested = true
			continue
		}
		id, err := strconv.ParseUint(r, 10, 64)
		if err != nil {
			return nil, apierr.FieldValidation("copy.plan", "included_statuses", "Expected status ids or \"null\".")
		}
		sel.IDs[uint(id)] = true
	}
	return sel, nil
}

func (s *StatusSelection) Match(t *domain.Test) bool {
	if s == nil {
		return true
	}
	if t.LastStatusID == nil {
		return s.Untested
	}
	return s.IDs[*t.LastStatusID]
}

type CopyService interface {
	CopyPlans(ctx context.Context, in PlanCopyInput) (*CopyResult, error)
	CopySuites(ctx context.Context, in SuiteCopyInput) (*CopyResult, error)
	CopyCases(ctx context.Context, in CaseCopyInput) (*CopyResult, error)
}

type copyService struct {
	core   *Core
	params ParameterService
	log    *logger.Logger
}

func NewCopyService(core *Core, params ParameterService) CopyService {
	return &copyService{core: core, params: params, log: core.Log.With("service", "CopyService")}
}

// copier carries the id mappings of one copy operation.
type copier struct {
	core   *Core
	params ParameterService
	dbc    dbctx.Context
	user   *uint
	dst    uint
	res    *CopyResult
	steps  map[uint]map[uint]uint
	counts map[domain.Kind]int64
}

func (s *copyService) newCopier(ctx context.Context, dbc dbctx.Context, dst uint) *copier {
	return &copier{
		core:   s.core,
		params: s.params,
		dbc:    dbc,
		user:   actor(ctx),
		dst:    dst,
		res:    newCopyResult(),
		steps:  map[uint]map[uint]uint{},
		counts: map[domain.Kind]int64{},
	}
}

// flush applies the collected counter deltas to the destination project.
func (c *copier) flush() error {
	for kind, n := range c.counts {
		if n == 0 {
			continue
		}
		if err := c.core.Stats.Apply(c.dbc, kind, c.dst, n); err != nil {
			return err
		}
	}
	return nil
}

// parentOf maps a source parent into the copy; parents outside the copied set
// attach to root.
func parentOf(src *uint, mapping map[uint]uint, root *uint) (*uint, bool) {
	if src != nil {
		if m, ok := mapping[*src]; ok {
			return &m, false
		}
	}
	return root, true
}

func (c *copier) suites(nodes []tree.Node, root *uint) error {
	ids := make([]uint, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	rows, err := c.core.Repos.Suite.GetByIDs(c.dbc, ids)
	if err != nil {
		return err
	}
	byID := make(map[uint]*domain.Suite, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	var roots []uint
	for _, n := range nodes {
		src, ok := byID[n.ID]
		if !ok {
			continue
		}
		cp := domain.Suite{ProjectID: c.dst, Name: src.Name, Description: src.Description}
		parent, isRoot := parentOf(src.ParentID, c.res.Suites, root)
		cp.ParentID = parent
		if err := c.core.Repos.Suite.Create(c.dbc, &cp); err != nil {
			return err
		}
		if isRoot {
			roots = append(roots, cp.ID)
		}
		c.res.Suites[src.ID] = cp.ID
		c.counts[domain.KindSuite]++
	}
	return c.core.Trees.Rebuild(c.dbc, tree.Suites, roots)
}

// cases clones cases with their steps, labels and attachments. suite picks the
// destination suite of each source case.
func (c *copier) cases(src []*domain.Case, suite func(*domain.Case) uint) error {
	ids := make([]uint, 0, len(src))
	for _, cs := range src {
		ids = append(ids, cs.ID)
	}
	byCase, err := c.core.Labels.ForTargets(c.dbc, domain.KindCase, ids)
	if err != nil {
		return err
	}
	for _, cs := range src {
		dstSuite := suite(cs)
		cp, stepMap, err := c.core.History.CloneCase(c.dbc, *cs, func(x *domain.Case) {
			x.ProjectID = c.dst
			x.SuiteID = dstSuite
		}, c.user)
		if err != nil {
			return err
		}
		hid, err := c.core.History.LatestCaseHistoryID(c.dbc, cp.ID)
		if err != nil {
			return err
		}
		target := domain.Target{Kind: domain.KindCase, ID: cp.ID}
		if ls := byCase[cs.ID]; len(ls) > 0 {
			refs := make([]labels.Ref, 0, len(ls))
			for _, l := range ls {
				refs = append(refs, labels.Ref{Name: l.Name})
			}
			if err := c.core.Labels.Add(c.dbc, c.dst, refs, target, hid, c.user); err != nil {
				return err
			}
		}
		srcHID, err := c.core.History.LatestCaseHistoryID(c.dbc, cs.ID)
		if err != nil {
			return err
		}
		mapping, err := c.core.Attachments.CloneTo(c.dbc, domain.Target{Kind: domain.KindCase, ID: cs.ID}, srcHID, target, &c.dst, hid)
		if err != nil {
			return err
		}
		if len(mapping) > 0 {
			cp.Setup = attachments.RewriteReferences(cp.Setup, mapping)
			cp.Scenario = attachments.RewriteReferences(cp.Scenario, mapping)
			cp.Expected = attachments.RewriteReferences(cp.Expected, mapping)
			cp.Teardown = attachments.RewriteReferences(cp.Teardown, mapping)
			cp.Description = attachments.RewriteReferences(cp.Description, mapping)
			if _, err := c.core.History.Update(c.dbc, cp, history.UpdateOptions{
				UserID:      c.user,
				Columns:     []string{"setup", "scenario", "expected", "teardown", "description"},
				SkipHistory: true,
			}); err != nil {
				return err
			}
		}
		c.res.Cases[cs.ID] = cp.ID
		c.steps[cs.ID] = stepMap
		if !cp.IsArchive {
			c.counts[domain.KindCase]++
		}
	}
	return nil
}

func (c *copier) plans(nodes []tree.Node, root *uint, name *string) error {
	ids := make([]uint, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	rows, err := c.core.Repos.Plan.WithParameters(c.dbc, ids)
	if err != nil {
		return err
	}
	byID := make(map[uint]*domain.Plan, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	var roots []uint
	for _, n := range nodes {
		src, ok := byID[n.ID]
		if !ok {
			continue
		}
		cp := domain.Plan{
			ProjectID: c.dst, Name: src.Name, Description: src.Description,
			StartedAt: src.StartedAt, DueDate: src.DueDate, FinishedAt: src.FinishedAt,
			IsArchive: src.IsArchive, Attributes: src.Attributes,
		}
		parent, isRoot := parentOf(src.ParentID, c.res.Plans, root)
		cp.ParentID = parent
		if isRoot && name != nil && strings.TrimSpace(*name) != "" {
			cp.Name = strings.TrimSpace(*name)
		}
		if err := c.core.Repos.Plan.DB(c.dbc).Omit("Parameters").Create(&cp).Error; err != nil {
			return apierr.MapDB("copy.plan", err)
		}
		params, err := c.parameters(src)
		if err != nil {
			return err
		}
		if len(params) > 0 {
			if err := c.core.Repos.Plan.DB(c.dbc).Model(&cp).Association("Parameters").Append(params); err != nil {
				return err
			}
		}
		if isRoot {
			roots = append(roots, cp.ID)
		}
		c.res.Plans[src.ID] = cp.ID
		if !cp.IsArchive {
			c.counts[domain.KindPlan]++
		}
	}
	return c.core.Trees.Rebuild(c.dbc, tree.Plans, roots)
}

// parameters resolves the plan's parameters in the destination project,
// creating missing (group, value) pairs.
func (c *copier) parameters(src *domain.Plan) ([]domain.Parameter, error) {
	if src.ProjectID == c.dst {
		return src.Parameters, nil
	}
	out := make([]domain.Parameter, 0, len(src.Parameters))
	for _, p := range src.Parameters {
		got, err := c.params.Ensure(c.dbc, c.dst, ParameterInput{GroupName: p.GroupName, Data: p.Data})
		if err != nil {
			return nil, err
		}
		out = append(out, *got)
	}
	return out, nil
}

func (c *copier) tests(tests []*domain.Test, withResults bool) error {
	for _, t := range tests {
		planID, ok := c.res.Plans[t.PlanID]
		if !ok {
			continue
		}
		caseID := t.CaseID
		if m, ok := c.res.Cases[t.CaseID]; ok {
			caseID = m
		}
		cross := t.ProjectID != c.dst
		cp, err := c.core.History.CloneTest(c.dbc, *t, func(x *domain.Test) {
			x.ProjectID = c.dst
			x.PlanID = planID
			x.CaseID = caseID
			if cross {
				x.AssigneeID = nil
			}
		}, withResults, c.steps[t.CaseID], c.user)
		if err != nil {
			return err
		}
		c.res.Tests[t.ID] = cp.ID
		if !cp.IsArchive {
			c.counts[domain.KindTest]++
		}
	}
	return nil
}

func (s *copyService) destination(ctx context.Context, dbc dbctx.Context, projectID uint, models ...string) error {
	if _, err := s.core.liveProject(dbc, projectID); err != nil {
		return err
	}
	for _, m := range models {
		if err := s.core.checkIn(ctx, projectID, m, access.ActionAdd); err != nil {
			return err
		}
	}
	return nil
}

func (s *copyService) CopyPlans(ctx context.Context, in PlanCopyInput) (*CopyResult, error) {
	if len(in.Plans) == 0 {
		return nil, apierr.FieldValidation("copy.plan", "plans", "This field is required.")
	}
	sel, err := ParseStatusSelection(in.IncludedStatuses)
	if err != nil {
		return nil, err
	}
	var out *CopyResult
	err = s.core.Writer.Write(ctx, "copy.plan", func(dbc dbctx.Context) error {
		srcRows, err := s.core.Repos.Plan.GetByIDs(dbc, uniq(in.Plans))
		if err != nil {
			return err
		}
		if len(srcRows) != len(uniq(in.Plans)) {
			return apierr.NotFound("copy.plan", "test plan", in.Plans)
		}
		srcProject := srcRows[0].ProjectID
		for _, p := range srcRows {
			if err := requireSameProject("copy.plan", "plans", srcProject, p.ProjectID); err != nil {
				return err
			}
		}
		if err := s.core.checkIn(ctx, srcProject, "testplan", access.ActionView); err != nil {
			return err
		}
		models := []string{"testplan", "test"}
		cross := srcProject != in.DstProject
		if cross {
			models = append(models, "testsuite", "testcase")
		}
		if err := s.destination(ctx, dbc, in.DstProject, models...); err != nil {
			return err
		}
		if in.DstPlan != nil {
			parent, err := s.core.Repos.Plan.Get(dbc, *in.DstPlan)
			if err != nil {
				return err
			}
			if err := requireSameProject("copy.plan", "dst_plan_id", in.DstProject, parent.ProjectID); err != nil {
				return err
			}
		}

		nodes, err := s.core.Trees.Descendants(dbc, tree.Plans, uniq(in.Plans), true)
		if err != nil {
			return err
		}
		nodes = liveNodes(nodes)
		planIDs := make([]uint, 0, len(nodes))
		for _, n := range nodes {
			planIDs = append(planIDs, n.ID)
		}
		all, err := s.core.Repos.Test.ForPlans(dbc, planIDs)
		if err != nil {
			return err
		}
		var tests []*domain.Test
		var caseIDs []uint
		for _, t := range all {
			if sel.Match(t) {
				tests = append(tests, t)
				caseIDs = append(caseIDs, t.CaseID)
			}
		}

		cp := s.newCopier(ctx, dbc, in.DstProject)
		if cross {
			cases, err := s.core.Repos.Case.GetByIDs(dbc, uniq(caseIDs))
			if err != nil {
				return err
			}
			suiteIDs := make([]uint, 0, len(cases))
			for _, c := range cases {
				suiteIDs = append(suiteIDs, c.SuiteID)
			}
			suites, err := s.core.Trees.Ancestors(dbc, tree.Suites, uniq(suiteIDs), true)
			if err != nil {
				return err
			}
			if err := cp.suites(liveNodes(suites), nil); err != nil {
				return err
			}
			if err := cp.cases(cases, func(c *domain.Case) uint { return cp.res.Suites[c.SuiteID] }); err != nil {
				return err
			}
		}
		if err := cp.plans(nodes, in.DstPlan, in.Name); err != nil {
			return err
		}
		if err := cp.tests(tests, !in.DropResults); err != nil {
			return err
		}
		if err := cp.flush(); err != nil {
			return err
		}
		out = cp.res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("plans copied", "dst_project_id", in.DstProject, "plans", len(out.Plans), "tests", len(out.Tests), "cases", len(out.Cases))
	return out, nil
}

func (s *copyService) CopySuites(ctx context.Context, in SuiteCopyInput) (*CopyResult, error) {
	if len(in.Suites) == 0 {
		return nil, apierr.FieldValidation("copy.suite", "suites", "This field is required.")
	}
	var out *CopyResult
	err := s.core.Writer.Write(ctx, "copy.suite", func(dbc dbctx.Context) error {
		srcRows, err := s.core.Repos.Suite.GetByIDs(dbc, uniq(in.Suites))
		if err != nil {
			return err
		}
		if len(srcRows) != len(uniq(in.Suites)) {
			return apierr.NotFound("copy.suite", "test suite", in.Suites)
		}
		for _, su := range srcRows {
			if err := s.core.checkIn(ctx, su.ProjectID, "testsuite", access.ActionView); err != nil {
				return err
			}
		}
		if err := s.destination(ctx, dbc, in.DstProject, "testsuite", "testcase"); err != nil {
			return err
		}
		if in.DstSuite != nil {
			parent, err := s.core.Repos.Suite.Get(dbc, *in.DstSuite)
			if err != nil {
				return err
			}
			if err := requireSameProject("copy.suite", "dst_suite_id", in.DstProject, parent.ProjectID); err != nil {
				return err
			}
		}
		nodes, err := s.core.Trees.Descendants(dbc, tree.Suites, uniq(in.Suites), true)
		if err != nil {
			return err
		}
		nodes = liveNodes(nodes)
		if in.DstSuite != nil {
			for _, n := range nodes {
				if n.ID == *in.DstSuite {
					return apierr.FieldValidation("copy.suite", "dst_suite_id", "Cannot copy a suite into its own subtree.")
				}
			}
		}
		suiteIDs := make([]uint, 0, len(nodes))
		for _, n := range nodes {
			suiteIDs = append(suiteIDs, n.ID)
		}
		cases, err := s.core.Repos.Case.Find(dbc, func(db *gorm.DB) *gorm.DB { return db.Where("suite_id IN ?", suiteIDs) })
		if err != nil {
			return err
		}
		cp := s.newCopier(ctx, dbc, in.DstProject)
		if err := cp.suites(nodes, in.DstSuite); err != nil {
			return err
		}
		if err := cp.cases(cases, func(c *domain.Case) uint { return cp.res.Suites[c.SuiteID] }); err != nil {
			return err
		}
		if err := cp.flush(); err != nil {
			return err
		}
		out = cp.res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("suites copied", "dst_project_id", in.DstProject, "suites", len(out.Suites), "cases", len(out.Cases))
	return out, nil
}

func (s *copyService) CopyCases(ctx context.Context, in CaseCopyInput) (*CopyResult, error) {
	if len(in.Cases) == 0 {
		return nil, apierr.FieldValidation("copy.case", "cases", "This field is required.")
	}
	var out *CopyResult
	err := s.core.Writer.Write(ctx, "copy.case", func(dbc dbctx.Context) error {
		dst, err := s.core.Repos.Suite.Get(dbc, in.DstSuite)
		if err != nil {
			return err
		}
		if err := s.destination(ctx, dbc, dst.ProjectID, "testcase"); err != nil {
			return err
		}
		cases, err := s.core.Repos.Case.GetByIDs(dbc, uniq(in.Cases))
		if err != nil {
			return err
		}
		if len(cases) != len(uniq(in.Cases)) {
			return apierr.NotFound("copy.case", "test case", in.Cases)
		}
		for _, c := range cases {
			if err := s.core.checkIn(ctx, c.ProjectID, "testcase", access.ActionView); err != nil {
				return err
			}
		}
		cp := s.newCopier(ctx, dbc, dst.ProjectID)
		if err := cp.cases(cases, func(*domain.Case) uint { return dst.ID }); err != nil {
			return err
		}
		if err := cp.flush(); err != nil {
			return err
		}
		out = cp.res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("cases copied", "dst_suite_id", in.DstSuite, "cases", len(out.Cases))
	return out, nil
}

func liveNodes(nodes []tree.Node) []tree.Node {
	out := nodes[:0]
	for _, n := range nodes {
		if !n.IsDeleted {
			out = append(out, n)
		}
	}
	return out
}
