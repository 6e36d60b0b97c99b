package testutil

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
)

func mustCreate(tb testing.TB, db *gorm.DB, v any) {
	tb.Helper()
	if err := db.Create(v).Error; err != nil {
		tb.Fatalf("seed %T: %v", v, err)
	}
}

func SeedUser(tb testing.TB, db *gorm.DB, username string) *domain.User {
	tb.Helper()
	u := &domain.User{Username: username, Email: username + "@example.com", IsActive: true}
	mustCreate(tb, db, u)
	return u
}

func SeedProject(tb testing.TB, db *gorm.DB, name string) *domain.Project {
	tb.Helper()
	p := &domain.Project{Name: name}
	mustCreate(tb, db, p)
	mustCreate(tb, db, &domain.ProjectStatistics{ProjectID: p.ID})
	return p
}

// placePath sets path and tree_id the way the tree store would.
func placePath(tb testing.TB, db *gorm.DB, table string, id uint, parent *domain.TreeFields) domain.TreeFields {
	tb.Helper()
	tf := domain.TreeFields{Path: domain.NewPath(id), TreeID: id}
	if parent != nil {
		tf.Path = parent.Path.Child(id)
		tf.TreeID = parent.TreeID
	}
	if err := db.Table(table).Where("id = ?", id).
		UpdateColumns(map[string]any{"path": tf.Path, "tree_id": tf.TreeID}).Error; err != nil {
		tb.Fatalf("place %s %d: %v", table, id, err)
	}
	return tf
}

func SeedSuite(tb testing.TB, db *gorm.DB, projectID uint, name string, parent *domain.Suite) *domain.Suite {
	tb.Helper()
	s := &domain.Suite{ProjectID: projectID, Name: name}
	var pf *domain.TreeFields
	if parent != nil {
		s.ParentID = &parent.ID
		pf = &parent.TreeFields
	}
	mustCreate(tb, db, s)
	tf := placePath(tb, db, "test_suite", s.ID, pf)
	s.Path, s.TreeID = tf.Path, tf.TreeID
	return s
}

func SeedPlan(tb testing.TB, db *gorm.DB, projectID uint, name string, parent *domain.Plan) *domain.Plan {
	tb.Helper()
	now := time.Now().UTC()
	p := &domain.Plan{ProjectID: projectID, Name: name, StartedAt: now, DueDate: now.Add(24 * time.Hour)}
	var pf *domain.TreeFields
	if parent != nil {
		p.ParentID = &parent.ID
		pf = &parent.TreeFields
	}
	mustCreate(tb, db, p)
	tf := placePath(tb, db, "test_plan", p.ID, pf)
	p.Path, p.TreeID = tf.Path, tf.TreeID
	return p
}

func SeedCase(tb testing.TB, db *gorm.DB, suite *domain.Suite, name string) *domain.Case {
	tb.Helper()
	c := &domain.Case{CaseFields: domain.CaseFields{ProjectID: suite.ProjectID, SuiteID: suite.ID, Name: name}}
	mustCreate(tb, db, c)
	return c
}

func SeedTest(tb testing.TB, db *gorm.DB, plan *domain.Plan, c *domain.Case) *domain.Test {
	tb.Helper()
	t := &domain.Test{TestFields: domain.TestFields{ProjectID: plan.ProjectID, PlanID: plan.ID, CaseID: c.ID}}
	mustCreate(tb, db, t)
	return t
}

func SeedResult(tb testing.TB, db *gorm.DB, test *domain.Test, statusID uint) *domain.Result {
	tb.Helper()
	r := &domain.Result{ResultFields: domain.ResultFields{ProjectID: test.ProjectID, TestID: test.ID, StatusID: statusID}}
	mustCreate(tb, db, r)
	if err := db.Model(&domain.Test{}).Where("id = ?", test.ID).UpdateColumn("last_status_id", statusID).Error; err != nil {
		tb.Fatalf("seed last status: %v", err)
	}
	return r
}
