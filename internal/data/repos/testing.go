package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type SuiteRepo struct{ Repo[domain.Suite] }

func NewSuiteRepo(db *gorm.DB, baseLog *logger.Logger) *SuiteRepo {
	return &SuiteRepo{newRepo[domain.Suite](db, baseLog, "test suite", Spec{
		SearchFields: []string{"name"},
		OrderFields:  map[string]string{"name": "name", "created_at": "created_at", "path": "path"},
		DefaultOrder: "path ASC, id ASC",
	})}
}

type PlanRepo struct{ Repo[domain.Plan] }

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) *PlanRepo {
	return &PlanRepo{newRepo[domain.Plan](db, baseLog, "test plan", Spec{
		SearchFields: []string{"name"},
		OrderFields: map[string]string{
			"name": "name", "started_at": "started_at", "due_date": "due_date", "created_at": "created_at", "path": "path",
		},
		DefaultOrder: "path ASC, id ASC",
	})}
}

// WithParameters loads plans with their parameters.
func (r *PlanRepo) WithParameters(dbc dbctx.Context, ids []uint) ([]*domain.Plan, error) {
	var out []*domain.Plan
	if len(ids) == 0 {
		return out, nil
	}
	err := r.DB(dbc).Preload("Parameters").Where("id IN ? AND is_deleted = ?", ids, false).Order("id ASC").Find(&out).Error
	return out, err
}

// ParentScope filters tree rows by parent: nil selects roots.
func ParentScope(parents []uint, roots bool) Scope {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case roots && len(parents) > 0:
			return db.Where("parent_id IS NULL OR parent_id IN ?", parents)
		case roots:
			return db.Where("parent_id IS NULL")
		default:
			return db.Where("parent_id IN ?", parents)
		}
	}
}

type CaseRepo struct{ Repo[domain.Case] }

func NewCaseRepo(db *gorm.DB, baseLog *logger.Logger) *CaseRepo {
	return &CaseRepo{newRepo[domain.Case](db, baseLog, "test case", Spec{
		SearchFields: []string{"name", "scenario"},
		OrderFields:  map[string]string{"name": "name", "created_at": "created_at", "suite": "suite_id", "estimate": "estimate"},
		DefaultOrder: "name ASC, id ASC",
	})}
}

type StepRepo struct{ Repo[domain.Step] }

func NewStepRepo(db *gorm.DB, baseLog *logger.Logger) *StepRepo {
	return &StepRepo{newRepo[domain.Step](db, baseLog, "test case step", Spec{DefaultOrder: "sort_order ASC, id ASC"})}
}

// ForCase returns the live steps of a case in sort order.
func (r *StepRepo) ForCase(dbc dbctx.Context, caseID uint) ([]*domain.Step, error) {
	return r.Find(dbc, func(db *gorm.DB) *gorm.DB { return db.Where("case_id = ?", caseID) })
}

type TestRepo struct{ Repo[domain.Test] }

func NewTestRepo(db *gorm.DB, baseLog *logger.Logger) *TestRepo {
	return &TestRepo{newRepo[domain.Test](db, baseLog, "test", Spec{
		OrderFields:  map[string]string{"created_at": "created_at", "case": "case_id", "plan": "plan_id", "assignee": "assignee_id", "last_status": "last_status_id"},
		DefaultOrder: "id ASC",
	})}
}

// ForPlans returns live tests of the given plans.
func (r *TestRepo) ForPlans(dbc dbctx.Context, planIDs []uint) ([]*domain.Test, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}
	return r.Find(dbc, func(db *gorm.DB) *gorm.DB { return db.Where("plan_id IN ?", planIDs) })
}

type ResultRepo struct{ Repo[domain.Result] }

func NewResultRepo(db *gorm.DB, baseLog *logger.Logger) *ResultRepo {
	return &ResultRepo{newRepo[domain.Result](db, baseLog, "test result", Spec{
		SearchFields: []string{"comment"},
		OrderFields:  map[string]string{"created_at": "created_at", "status": "status_id"},
		DefaultOrder: "created_at DESC, id DESC",
	})}
}

// Latest returns the most recent live result of a test, nil when none.
func (r *ResultRepo) Latest(dbc dbctx.Context, testID uint) (*domain.Result, error) {
	var res domain.Result
	q := r.DB(dbc).Where("test_id = ? AND is_deleted = ?", testID, false).Order("created_at DESC, id DESC").Limit(1).Find(&res)
	if q.Error != nil {
		return nil, q.Error
	}
	if q.RowsAffected == 0 {
		return nil, nil
	}
	return &res, nil
}

// WithSteps loads a live result with its step results.
func (r *ResultRepo) WithSteps(dbc dbctx.Context, id uint) (*domain.Result, error) {
	res, err := r.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := r.DB(dbc).Where("result_id = ? AND is_deleted = ?", id, false).Order("id ASC").Find(&res.StepResults).Error; err != nil {
		return nil, err
	}
	return res, nil
}

type StatusRepo struct{ Repo[domain.ResultStatus] }

func NewStatusRepo(db *gorm.DB, baseLog *logger.Logger) *StatusRepo {
	return &StatusRepo{newRepo[domain.ResultStatus](db, baseLog, "result status", Spec{
		SearchFields: []string{"name"},
		OrderFields:  map[string]string{"name": "name", "type": "type"},
		DefaultOrder: "id ASC",
	})}
}

// VisibleToProject keeps system statuses and the project's custom ones.
func VisibleToProject(projectID uint) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where("project_id IS NULL OR project_id = ?", projectID) }
}
