package services

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/history"
	"github.com/yungbote/testbridge-backend/internal/data/labels"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/stats"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type StepInput struct {
	ID          *uint  `json:"id"`
	Name        string `json:"name"`
	Scenario    string `json:"scenario"`
	Expected    string `json:"expected"`
	SortOrder   int    `json:"sort_order"`
	Attachments []uint `json:"attachments"`
}

// CaseInput is a create or partial update; nil fields are left unchanged.
type CaseInput struct {
	Suite       *uint          `json:"suite"`
	Name        *string        `json:"name"`
	Setup       *string        `json:"setup"`
	Scenario    *string        `json:"scenario"`
	Expected    *string        `json:"expected"`
	Teardown    *string        `json:"teardown"`
	Description *string        `json:"description"`
	Estimate    *int64         `json:"estimate"`
	IsSteps     *bool          `json:"is_steps"`
	Attributes  map[string]any `json:"attributes"`
	Labels      *[]labels.Ref  `json:"labels"`
	Attachments *[]uint        `json:"attachments"`
	Steps       *[]StepInput   `json:"steps"`
	// SkipHistory saves without a new version; superusers only.
	SkipHistory bool `json:"skip_history"`
}

// CaseFilter narrows case listings.
type CaseFilter struct {
	Suites []uint
	// Descendants widens Suites to their subtrees.
	Descendants bool
	IsArchive   *bool
	Labels      labels.Filter
}

// CaseView is a case with its current steps, labels and attachments.
type CaseView struct {
	*domain.Case
	CurrentVersion uint                `json:"current_version"`
	Steps          []*domain.Step      `json:"steps"`
	Labels         []domain.Label      `json:"labels"`
	Attachments    []domain.Attachment `json:"attachments"`
}

type CaseService interface {
	List(ctx context.Context, projectID uint, q repos.Query, f CaseFilter) (*repos.Page[domain.Case], error)
	Get(ctx context.Context, id uint) (*CaseView, error)
	Create(ctx context.Context, projectID uint, in CaseInput) (*CaseView, error)
	Update(ctx context.Context, id uint, in CaseInput) (*CaseView, error)
	History(ctx context.Context, id uint) ([]domain.CaseHistory, error)
	Version(ctx context.Context, id, historyID uint) (*domain.CaseHistory, []domain.StepHistory, error)
	Restore(ctx context.Context, id, historyID uint) (*CaseView, error)
	Steps(ctx context.Context, id uint) ([]*domain.Step, error)
}

type caseService struct {
	core  *Core
	attrs CustomAttributeService
	log   *logger.Logger
}

func NewCaseService(core *Core, attrs CustomAttributeService) CaseService {
	return &caseService{core: core, attrs: attrs, log: core.Log.With("service", "CaseService")}
}

func caseTarget(id uint) domain.Target { return domain.Target{Kind: domain.KindCase, ID: id} }

func (s *caseService) List(ctx context.Context, projectID uint, q repos.Query, f CaseFilter) (*repos.Page[domain.Case], error) {
	if err := s.core.checkIn(ctx, projectID, "testcase", access.ActionView); err != nil {
		return nil, err
	}
	dbc := read(ctx)
	scopes := []repos.Scope{repos.ProjectScope(projectID)}
	if len(f.Suites) > 0 {
		suites := f.Suites
		if f.Descendants {
			ids, err := s.core.Trees.DescendantIDs(dbc, tree.Suites, f.Suites, true)
			if err != nil {
				return nil, err
			}
			suites = ids
		}
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("suite_id IN ?", suites) })
	}
	if f.IsArchive != nil {
		archived := *f.IsArchive
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("is_archive = ?", archived) })
	}
	if !f.Labels.Empty() {
		lf := f.Labels
		lf.Kind = domain.KindCase
		scopes = append(scopes, lf.Scope)
	}
	return s.core.Repos.Case.List(dbc, q, scopes...)
}

func (s *caseService) view(dbc dbctx.Context, c *domain.Case) (*CaseView, error) {
	v := &CaseView{Case: c}
	var err error
	if v.CurrentVersion, err = s.core.History.LatestCaseHistoryID(dbc, c.ID); err != nil {
		return nil, err
	}
	if v.Steps, err = s.core.Repos.Step.ForCase(dbc, c.ID); err != nil {
		return nil, err
	}
	byCase, err := s.core.Labels.ForTargets(dbc, domain.KindCase, []uint{c.ID})
	if err != nil {
		return nil, err
	}
	v.Labels = byCase[c.ID]
	if v.Attachments, err = s.currentAttachments(dbc, c.ID, v.CurrentVersion); err != nil {
		return nil, err
	}
	return v, nil
}

// currentAttachments are the live attachments bound to the current version.
func (s *caseService) currentAttachments(dbc dbctx.Context, caseID, historyID uint) ([]domain.Attachment, error) {
	all, err := s.core.Attachments.ForTarget(dbc, caseTarget(caseID))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Attachment, 0, len(all))
	for _, a := range all {
		if a.HasVersion(historyID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *caseService) Get(ctx context.Context, id uint) (*CaseView, error) {
	dbc := read(ctx)
	c, err := s.core.Repos.Case.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, c.ProjectID, "testcase", access.ActionView); err != nil {
		return nil, err
	}
	return s.view(dbc, c)
}

func (s *caseService) suite(dbc dbctx.Context, projectID, suiteID uint) error {
	su, err := s.core.Repos.Suite.Get(dbc, suiteID)
	if apierr.IsCode(err, apierr.CodeNotFound) {
		return apierr.FieldValidation("case.suite", "suite", "Suite does not exist.")
	}
	if err != nil {
		return err
	}
	return requireSameProject("case.suite", "suite", projectID, su.ProjectID)
}

func applyCase(c *domain.Case, in CaseInput) error {
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return apierr.FieldValidation("case.validate", "name", "This field may not be blank.")
		}
		c.Name = strings.TrimSpace(*in.Name)
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Setup, in.Setup)
	set(&c.Scenario, in.Scenario)
	set(&c.Expected, in.Expected)
	set(&c.Teardown, in.Teardown)
	set(&c.Description, in.Description)
	if in.Estimate != nil {
		if *in.Estimate < 0 {
			return apierr.FieldValidation("case.validate", "estimate", "Estimate cannot be negative.")
		}
		c.Estimate = in.Estimate
	}
	if in.IsSteps != nil {
		c.IsSteps = *in.IsSteps
	}
	if in.Suite != nil {
		c.SuiteID = *in.Suite
	}
	if in.Attributes != nil {
		c.Attributes = datatypes.JSONMap(in.Attributes)
	}
	return nil
}

func (s *caseService) Create(ctx context.Context, projectID uint, in CaseInput) (*CaseView, error) {
	if err := s.core.checkIn(ctx, projectID, "testcase", access.ActionAdd); err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, apierr.FieldValidation("case.create", "name", "This field is required.")
	}
	if in.Suite == nil {
		return nil, apierr.FieldValidation("case.create", "suite", "This field is required.")
	}
	c := &domain.Case{CaseFields: domain.CaseFields{ProjectID: projectID}}
	if err := applyCase(c, in); err != nil {
		return nil, err
	}
	user := actor(ctx)
	var out *CaseView
	err := s.core.Writer.Write(ctx, "case.create", func(dbc dbctx.Context) error {
		if _, err := s.core.liveProject(dbc, projectID); err != nil {
			return err
		}
		if err := s.suite(dbc, projectID, c.SuiteID); err != nil {
			return err
		}
		if err := s.attrs.Validate(dbc, projectID, AttributeScope{Kind: domain.KindCase, SuiteID: &c.SuiteID}, c.Attributes); err != nil {
			return err
		}
		hid, err := s.core.History.Insert(dbc, c, user)
		if err != nil {
			return err
		}
		if err := s.core.Stats.Track(dbc, domain.KindCase, projectID, stats.State{}, stats.Live(c.IsArchive)); err != nil {
			return err
		}
		if err := s.bindRelations(dbc, c, in, hid, 0, user); err != nil {
			return err
		}
		if c.IsSteps && in.Steps != nil {
			if err := s.writeSteps(dbc, c, *in.Steps, hid, user); err != nil {
				return err
			}
		}
		out, err = s.view(dbc, c)
		return err
	})
	return out, err
}

// bindRelations binds labels and attachments to version hid. prevHID is the
// version being superseded; zero on create.
func (s *caseService) bindRelations(dbc dbctx.Context, c *domain.Case, in CaseInput, hid, prevHID uint, user *uint) error {
	target := caseTarget(c.ID)
	switch {
	case in.Labels != nil:
		if err := s.core.Labels.Set(dbc, c.ProjectID, *in.Labels, target, hid, user); err != nil {
			return err
		}
	case prevHID != 0 && prevHID != hid:
		if err := s.core.Labels.Carry(dbc, target, hid); err != nil {
			return err
		}
	}
	switch {
	case in.Attachments != nil:
		if _, err := s.core.Attachments.BindIDs(dbc, uniq(*in.Attachments), target, hid); err != nil {
			return err
		}
	case prevHID != 0:
		current, err := s.currentAttachments(dbc, c.ID, prevHID)
		if err != nil {
			return err
		}
		if err := s.core.Attachments.RefreshVersions(dbc, current, hid); err != nil {
			return err
		}
	}
	return nil
}

// writeSteps reconciles the live steps of c with in at case version hid.
// Steps named by id are updated, new ones inserted, the rest deleted.
func (s *caseService) writeSteps(dbc dbctx.Context, c *domain.Case, in []StepInput, hid uint, user *uint) error {
	current, err := s.core.Repos.Step.ForCase(dbc, c.ID)
	if err != nil {
		return err
	}
	byID := make(map[uint]*domain.Step, len(current))
	for _, st := range current {
		byID[st.ID] = st
	}
	kept := map[uint]bool{}
	for i, si := range in {
		if strings.TrimSpace(si.Name) == "" {
			return apierr.FieldValidation("case.steps", "steps", "Step name may not be blank.")
		}
		order := si.SortOrder
		if order == 0 {
			order = i + 1
		}
		var step *domain.Step
		var shid uint
		if si.ID != nil {
			existing, ok := byID[*si.ID]
			if !ok {
				return apierr.FieldValidation("case.steps", "steps", "Step does not belong to the test case.")
			}
			existing.Name, existing.Scenario, existing.Expected = si.Name, si.Scenario, si.Expected
			existing.SortOrder = order
			existing.CaseHistoryID = hid
			existing.UpdatedAt = s.core.now()
			if shid, err = s.core.History.Update(dbc, existing, history.UpdateOptions{UserID: user}); err != nil {
				return err
			}
			step = existing
			kept[existing.ID] = true
		} else {
			step = &domain.Step{StepFields: domain.StepFields{
				ProjectID: c.ProjectID, CaseID: c.ID, Name: si.Name, Scenario: si.Scenario,
				Expected: si.Expected, SortOrder: order, CaseHistoryID: hid,
			}}
			if shid, err = s.core.History.Insert(dbc, step, user); err != nil {
				return err
			}
		}
		if len(si.Attachments) > 0 {
			if _, err := s.core.Attachments.BindIDs(dbc, uniq(si.Attachments), domain.Target{Kind: domain.KindStep, ID: step.ID}, shid); err != nil {
				return err
			}
		}
	}
	var drop []domain.Step
	for _, st := range current {
		if !kept[st.ID] {
			drop = append(drop, *st)
		}
	}
	return s.core.History.DeleteSteps(dbc, drop, hid, user)
}

func (s *caseService) Update(ctx context.Context, id uint, in CaseInput) (*CaseView, error) {
	user := actor(ctx)
	if in.SkipHistory && !subject(ctx).IsSuperuser {
		return nil, apierr.Permission("case.update", "Only superusers can edit without history.")
	}
	var out *CaseView
	err := s.core.Writer.Write(ctx, "case.update", func(dbc dbctx.Context) error {
		c, err := s.core.Repos.Case.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, c.ProjectID, "testcase", access.ActionChange); err != nil {
			return err
		}
		prevHID, err := s.core.History.LatestCaseHistoryID(dbc, id)
		if err != nil {
			return err
		}
		oldSuite := c.SuiteID
		if err := applyCase(c, in); err != nil {
			return err
		}
		if c.SuiteID != oldSuite {
			if err := s.suite(dbc, c.ProjectID, c.SuiteID); err != nil {
				return err
			}
		}
		if err := s.attrs.Validate(dbc, c.ProjectID, AttributeScope{Kind: domain.KindCase, SuiteID: &c.SuiteID}, c.Attributes); err != nil {
			return err
		}
		c.UpdatedAt = s.core.now()
		hid, err := s.core.History.Update(dbc, c, history.UpdateOptions{UserID: user, SkipHistory: in.SkipHistory})
		if err != nil {
			return err
		}
		if err := s.bindRelations(dbc, c, in, hid, prevHID, user); err != nil {
			return err
		}
		switch {
		case !c.IsSteps:
			live, err := s.core.Repos.Step.ForCase(dbc, id)
			if err != nil {
				return err
			}
			steps := make([]domain.Step, len(live))
			for i, st := range live {
				steps[i] = *st
			}
			if err := s.core.History.DeleteSteps(dbc, steps, hid, user); err != nil {
				return err
			}
		case in.Steps != nil:
			if err := s.writeSteps(dbc, c, *in.Steps, hid, user); err != nil {
				return err
			}
		case hid != prevHID:
			if _, err := s.core.History.ResaveSteps(dbc, id, hid, user); err != nil {
				return err
			}
		}
		out, err = s.view(dbc, c)
		return err
	})
	return out, err
}

func (s *caseService) History(ctx context.Context, id uint) ([]domain.CaseHistory, error) {
	if _, err := s.loadVisible(ctx, id); err != nil {
		return nil, err
	}
	return s.core.History.CaseVersions(read(ctx), id)
}

func (s *caseService) Version(ctx context.Context, id, historyID uint) (*domain.CaseHistory, []domain.StepHistory, error) {
	if _, err := s.loadVisible(ctx, id); err != nil {
		return nil, nil, err
	}
	dbc := read(ctx)
	h, err := s.core.History.CaseVersion(dbc, id, historyID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := s.core.History.StepsAt(dbc, historyID)
	if err != nil {
		return nil, nil, err
	}
	return h, steps, nil
}

func (s *caseService) loadVisible(ctx context.Context, id uint) (*domain.Case, error) {
	c, err := s.core.Repos.Case.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	return c, s.core.checkIn(ctx, c.ProjectID, "testcase", access.ActionView)
}

func (s *caseService) Restore(ctx context.Context, id, historyID uint) (*CaseView, error) {
	user := actor(ctx)
	var out *CaseView
	err := s.core.Writer.Write(ctx, "case.restore_version", func(dbc dbctx.Context) error {
		c, err := s.core.Repos.Case.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, c.ProjectID, "testcase", access.ActionChange); err != nil {
			return err
		}
		snap, err := s.core.History.CaseVersion(dbc, id, historyID)
		if err != nil {
			return err
		}
		if snap.SuiteID != c.SuiteID {
			if err := s.suite(dbc, c.ProjectID, snap.SuiteID); err != nil {
				return err
			}
		}
		res, err := s.core.History.RestoreCase(dbc, id, historyID, user)
		if err != nil {
			return err
		}
		target := caseTarget(id)
		if err := s.core.Labels.RestoreByVersion(dbc, target, historyID, res.HistoryID); err != nil {
			return err
		}
		if err := s.core.Attachments.RestoreByVersion(dbc, target, historyID, res.HistoryID); err != nil {
			return err
		}
		out, err = s.view(dbc, res.Case)
		return err
	})
	return out, err
}

func (s *caseService) Steps(ctx context.Context, id uint) ([]*domain.Step, error) {
	if _, err := s.loadVisible(ctx, id); err != nil {
		return nil, err
	}
	return s.core.Repos.Step.ForCase(read(ctx), id)
}
