package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Identity + access
		// =========================
		&domain.User{},
		&domain.Token{},
		&domain.Permission{},
		&domain.Role{},
		&domain.Membership{},

		// =========================
		// Projects
		// =========================
		&domain.Project{},
		&domain.ProjectStatistics{},
		&domain.Parameter{},
		&domain.ResultStatus{},
		&domain.CustomAttribute{},

		// =========================
		// Trees
		// =========================
		&domain.Suite{},
		&domain.Plan{},

		// =========================
		// Versioned entities
		// =========================
		&domain.Case{},
		&domain.CaseHistory{},
		&domain.Step{},
		&domain.StepHistory{},
		&domain.Test{},
		&domain.TestHistory{},
		&domain.Result{},
		&domain.ResultHistory{},
		&domain.StepResult{},

		// =========================
		// Polymorphic
		// =========================
		&domain.Label{},
		&domain.LabeledItem{},
		&domain.LabelIDs{},
		&domain.Attachment{},
		&domain.Comment{},

		// =========================
		// Notifications + misc
		// =========================
		&domain.NotificationSetting{},
		&domain.Notification{},
		&domain.SystemMessage{},
		&domain.Task{},
	)
}

// EnsureIndexes creates the partial unique indexes gorm tags cannot express.
// Every statement is valid on both postgres and sqlite.
func EnsureIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_parameter_live
			ON parameter(project_id, group_name, data) WHERE is_deleted = false`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_label_live
			ON label(project_id, LOWER(name)) WHERE is_deleted = false`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_result_status_custom_live
			ON result_status(project_id, LOWER(name)) WHERE is_deleted = false AND project_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_test_plan_case_live
			ON test(plan_id, case_id) WHERE is_deleted = false`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_users_username_ci
			ON users(LOWER(username)) WHERE is_deleted = false`,
		`CREATE INDEX IF NOT EXISTS idx_test_suite_tree ON test_suite(tree_id, path)`,
		`CREATE INDEX IF NOT EXISTS idx_test_plan_tree ON test_plan(tree_id, path)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_recipient_unread
			ON notification(recipient_id, unread) WHERE is_deleted = false`,
		`CREATE INDEX IF NOT EXISTS idx_task_claim ON task(status, run_after)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
