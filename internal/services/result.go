package services

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/history"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type StepResultInput struct {
	Step   uint `json:"step"`
	Status uint `json:"status"`
}

type ResultInput struct {
	Status        *uint              `json:"status"`
	Comment       *string            `json:"comment"`
	ExecutionTime *float64           `json:"execution_time"`
	Attributes    map[string]any     `json:"attributes"`
	Attachments   *[]uint            `json:"attachments"`
	StepsResults  *[]StepResultInput `json:"steps_results"`
}

type ResultService interface {
	List(ctx context.Context, testID uint, q repos.Query) (*repos.Page[domain.Result], error)
	Get(ctx context.Context, id uint) (*domain.Result, error)
	Create(ctx context.Context, testID uint, in ResultInput) (*domain.Result, error)
	Update(ctx context.Context, id uint, in ResultInput) (*domain.Result, error)
}

type resultService struct {
	core   *Core
	attrs  CustomAttributeService
	notify NotificationService
	log    *logger.Logger
}

func NewResultService(core *Core, attrs CustomAttributeService, notify NotificationService) ResultService {
	return &resultService{core: core, attrs: attrs, notify: notify, log: core.Log.With("service", "ResultService")}
}

// CheckEditWindow reports whether a result may change beyond its comment.
// The returned error names the window that was exceeded.
func CheckEditWindow(st domain.ProjectSettings, createdAt, now time.Time, resultVersion, caseVersion uint) error {
	const op = "result.edit_window"
	if !st.IsResultEditable {
		return apierr.Validation(op, "Results are not editable in this project; only the comment can be changed.")
	}
	if st.ResultEditLimit != nil {
		limit := time.Duration(*st.ResultEditLimit) * time.Second
		if now.Sub(createdAt) > limit {
			return apierr.Validation(op, "Results can only be edited within %d seconds (%s) of creation; only the comment can be changed.",
				*st.ResultEditLimit, limit)
		}
	}
	if caseVersion != resultVersion {
		return apierr.Validation(op, "Test case was changed after the result was added; only the comment can be changed.")
	}
	return nil
}

func (s *resultService) List(ctx context.Context, testID uint, q repos.Query) (*repos.Page[domain.Result], error) {
	t, err := s.core.Repos.Test.Get(read(ctx), testID)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, t.ProjectID, "testresult", access.ActionView); err != nil {
		return nil, err
	}
	dbc := read(ctx)
	page, err := s.core.Repos.Result.List(dbc, q, func(db *gorm.DB) *gorm.DB { return db.Where("test_id = ?", testID) })
	if err != nil {
		return nil, err
	}
	ids := make([]uint, len(page.Results))
	byID := make(map[uint]*domain.Result, len(page.Results))
	for i, r := range page.Results {
		ids[i] = r.ID
		byID[r.ID] = r
	}
	if len(ids) > 0 {
		var steps []domain.StepResult
		if err := s.core.Repos.Result.DB(dbc).Where("result_id IN ? AND is_deleted = ?", ids, false).
			Order("id ASC").Find(&steps).Error; err != nil {
			return nil, err
		}
		for _, st := range steps {
			byID[st.ResultID].StepResults = append(byID[st.ResultID].StepResults, st)
		}
	}
	return page, nil
}

func (s *resultService) Get(ctx context.Context, id uint) (*domain.Result, error) {
	r, err := s.core.Repos.Result.WithSteps(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, r.ProjectID, "testresult", access.ActionView); err != nil {
		return nil, err
	}
	return r, nil
}

// status loads a status visible to the project.
func (s *resultService) status(dbc dbctx.Context, projectID, id uint, field string) error {
	ok, err := s.core.Repos.Status.Exists(dbc, repos.IDsScope([]uint{id}), repos.VisibleToProject(projectID))
	if err != nil {
		return err
	}
	if !ok {
		return apierr.FieldValidation("result.status", field, fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id))
	}
	return nil
}

func (s *resultService) validateAttributes(dbc dbctx.Context, t *domain.Test, statusID uint, values map[string]any) error {
	c, err := s.core.Repos.Case.Get(dbc, t.CaseID)
	if err != nil {
		return err
	}
	return s.attrs.Validate(dbc, t.ProjectID, AttributeScope{Kind: domain.KindResult, SuiteID: &c.SuiteID, StatusID: &statusID}, values)
}

func (s *resultService) writeStepResults(dbc dbctx.Context, t *domain.Test, r *domain.Result, in []StepResultInput) error {
	steps, err := s.core.Repos.Step.ForCase(dbc, t.CaseID)
	if err != nil {
		return err
	}
	valid := map[uint]bool{}
	for _, st := range steps {
		valid[st.ID] = true
	}
	db := s.core.Repos.Result.DB(dbc)
	now := s.core.now()
	if err := db.Model(&domain.StepResult{}).Where("result_id = ? AND is_deleted = ?", r.ID, false).
		UpdateColumns(map[string]any{"is_deleted": true, "deleted_at": now}).Error; err != nil {
		return err
	}
	r.StepResults = nil
	for _, sr := range in {
		if !valid[sr.Step] {
			return apierr.FieldValidation("result.steps_results", "steps_results", fmt.Sprintf("Step %d does not belong to the test case.", sr.Step))
		}
		if err := s.status(dbc, t.ProjectID, sr.Status, "steps_results"); err != nil {
			return err
		}
		row := domain.StepResult{ProjectID: t.ProjectID, ResultID: r.ID, StepID: sr.Step, StatusID: sr.Status}
		if err := db.Create(&row).Error; err != nil {
			return err
		}
		r.StepResults = append(r.StepResults, row)
	}
	return nil
}

// refreshLastStatus points each test at the status of its newest live result.
func (c *Core) refreshLastStatus(dbc dbctx.Context, testIDs ...uint) error {
	for _, id := range uniq(testIDs) {
		latest, err := c.Repos.Result.Latest(dbc, id)
		if err != nil {
			return err
		}
		var status *uint
		if latest != nil {
			status = &latest.StatusID
		}
		if err := c.Repos.Test.UpdateColumns(dbc, id, map[string]any{"last_status_id": status}); err != nil {
			return err
		}
	}
	return nil
}

func (s *resultService) Create(ctx context.Context, testID uint, in ResultInput) (*domain.Result, error) {
	if in.Status == nil {
		return nil, apierr.FieldValidation("result.create", "status", "This field is required.")
	}
	user := actor(ctx)
	var out *domain.Result
	err := s.core.Writer.Write(ctx, "result.create", func(dbc dbctx.Context) error {
		t, err := s.core.Repos.Test.Get(dbc, testID)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, t.ProjectID, "testresult", access.ActionAdd); err != nil {
			return err
		}
		if t.IsArchive {
			return apierr.FieldValidation("result.create", "test", "Cannot add results to an archived test.")
		}
		if err := s.status(dbc, t.ProjectID, *in.Status, "status"); err != nil {
			return err
		}
		if err := s.validateAttributes(dbc, t, *in.Status, in.Attributes); err != nil {
			return err
		}
		version, err := s.core.History.LatestCaseHistoryID(dbc, t.CaseID)
		if err != nil {
			return err
		}
		now := s.core.now()
		r := &domain.Result{ResultFields: domain.ResultFields{
			ProjectID:       t.ProjectID,
			TestID:          t.ID,
			StatusID:        *in.Status,
			UserID:          user,
			ExecutionTime:   in.ExecutionTime,
			TestCaseVersion: version,
			Attributes:      datatypes.JSONMap(in.Attributes),
		}}
		r.CreatedAt, r.UpdatedAt = now, now
		if in.Comment != nil {
			r.Comment = *in.Comment
		}
		hid, err := s.core.History.Insert(dbc, r, user)
		if err != nil {
			return err
		}
		if in.StepsResults != nil {
			if err := s.writeStepResults(dbc, t, r, *in.StepsResults); err != nil {
				return err
			}
		}
		if in.Attachments != nil {
			if _, err := s.core.Attachments.BindIDs(dbc, uniq(*in.Attachments), domain.Target{Kind: domain.KindResult, ID: r.ID}, hid); err != nil {
				return err
			}
		}
		if err := s.core.refreshLastStatus(dbc, t.ID); err != nil {
			return err
		}
		if t.AssigneeID != nil && (user == nil || *t.AssigneeID != *user) {
			if _, err := s.notify.Notify(dbc, NotificationEvent{
				Target:    domain.Target{Kind: domain.KindTest, ID: t.ID},
				Recipient: *t.AssigneeID,
				Code:      domain.ActionResultAdded,
				Actor:     user,
				Vars:      s.resultVars(dbc, t, r.StatusID),
			}); err != nil {
				return err
			}
		}
		out = r
		return nil
	})
	return out, err
}

func (s *resultService) resultVars(dbc dbctx.Context, t *domain.Test, statusID uint) map[string]any {
	name := ""
	if c, err := s.core.Repos.Case.Get(dbc, t.CaseID); err == nil {
		name = c.Name
	}
	vars := testVars(t, name)
	if st, err := s.core.Repos.Status.Get(dbc, statusID); err == nil {
		vars["status"] = st.Name
	}
	return vars
}

// changesBeyondComment reports whether in touches anything but the comment.
func changesBeyondComment(r *domain.Result, in ResultInput) bool {
	if in.Status != nil && *in.Status != r.StatusID {
		return true
	}
	if in.ExecutionTime != nil && (r.ExecutionTime == nil || *in.ExecutionTime != *r.ExecutionTime) {
		return true
	}
	if in.Attributes != nil && !reflect.DeepEqual(map[string]any(r.Attributes), in.Attributes) {
		return true
	}
	return in.Attachments != nil || in.StepsResults != nil
}

func (s *resultService) Update(ctx context.Context, id uint, in ResultInput) (*domain.Result, error) {
	user := actor(ctx)
	var out *domain.Result
	err := s.core.Writer.Write(ctx, "result.update", func(dbc dbctx.Context) error {
		r, err := s.core.Repos.Result.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, r.ProjectID, "testresult", access.ActionChange); err != nil {
			return err
		}
		t, err := s.core.Repos.Test.Get(dbc, r.TestID)
		if err != nil {
			return err
		}
		if changesBeyondComment(r, in) {
			p, err := s.core.Repos.Project.Get(dbc, r.ProjectID)
			if err != nil {
				return err
			}
			version, err := s.core.History.LatestCaseHistoryID(dbc, t.CaseID)
			if err != nil {
				return err
			}
			if err := CheckEditWindow(p.Settings.Data(), r.CreatedAt, s.core.now(), r.TestCaseVersion, version); err != nil {
				return err
			}
		}
		if in.Status != nil && *in.Status != r.StatusID {
			if err := s.status(dbc, r.ProjectID, *in.Status, "status"); err != nil {
				return err
			}
			r.StatusID = *in.Status
		}
		if in.Comment != nil {
			r.Comment = *in.Comment
		}
		if in.ExecutionTime != nil {
			r.ExecutionTime = in.ExecutionTime
		}
		if in.Attributes != nil {
			r.Attributes = datatypes.JSONMap(in.Attributes)
		}
		if in.Status != nil || in.Attributes != nil {
			if err := s.validateAttributes(dbc, t, r.StatusID, r.Attributes); err != nil {
				return err
			}
		}
		r.UpdatedAt = s.core.now()
		hid, err := s.core.History.Update(dbc, r, history.UpdateOptions{UserID: user})
		if err != nil {
			return err
		}
		if in.StepsResults != nil {
			if err := s.writeStepResults(dbc, t, r, *in.StepsResults); err != nil {
				return err
			}
		}
		target := domain.Target{Kind: domain.KindResult, ID: r.ID}
		if in.Attachments != nil {
			if _, err := s.core.Attachments.BindIDs(dbc, uniq(*in.Attachments), target, hid); err != nil {
				return err
			}
		}
		if err := s.core.refreshLastStatus(dbc, t.ID); err != nil {
			return err
		}
		out, err = s.core.Repos.Result.WithSteps(dbc, r.ID)
		return err
	})
	return out, err
}
