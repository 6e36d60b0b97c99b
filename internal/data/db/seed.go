package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/testbridge-backend/internal/domain"
)

// System result statuses. Ids are fixed so settings and filters can refer to them.
const (
	StatusFailed   uint = 1
	StatusPassed   uint = 2
	StatusSkipped  uint = 3
	StatusBroken   uint = 4
	StatusBlocked  uint = 5
	StatusUntested uint = 6
	StatusRetest   uint = 7
)

var systemStatuses = []domain.ResultStatus{
	{ID: StatusFailed, Name: "Failed", Color: "#ef5350", Type: domain.StatusSystem},
	{ID: StatusPassed, Name: "Passed", Color: "#66bb6a", Type: domain.StatusSystem},
	{ID: StatusSkipped, Name: "Skipped", Color: "#ffca28", Type: domain.StatusSystem},
	{ID: StatusBroken, Name: "Broken", Color: "#ab47bc", Type: domain.StatusSystem},
	{ID: StatusBlocked, Name: "Blocked", Color: "#8d6e63", Type: domain.StatusSystem},
	{ID: StatusUntested, Name: "Untested", Color: "#bdbdbd", Type: domain.StatusSystem},
	{ID: StatusRetest, Name: "Retest", Color: "#42a5f5", Type: domain.StatusSystem},
}

// PermissionModels are the resources guarded by add/change/delete/view permissions.
var PermissionModels = []string{
	"project", "parameter", "testplan", "testsuite", "testcase", "test", "testresult",
	"resultstatus", "label", "customattribute", "attachment", "comment", "membership",
}

var notificationSettings = []domain.NotificationSetting{
	{
		ActionCode:      domain.ActionTestAssigned,
		VerboseName:     "Test assigned",
		Message:         "{actor} assigned you to test",
		PlaceholderText: "{name}",
		PlaceholderLink: "/projects/{project_id}/plans/{plan_id}/?test={test_id}",
	},
	{
		ActionCode:      domain.ActionTestUnassigned,
		VerboseName:     "Test unassigned",
		Message:         "{actor} unassigned you from test",
		PlaceholderText: "{name}",
		PlaceholderLink: "/projects/{project_id}/plans/{plan_id}/?test={test_id}",
	},
	{
		ActionCode:      domain.ActionCommentAdded,
		VerboseName:     "Comment added",
		Message:         "{actor} left a comment on",
		PlaceholderText: "{name}",
		PlaceholderLink: "{link}",
	},
	{
		ActionCode:      domain.ActionResultAdded,
		VerboseName:     "Result added",
		Message:         "{actor} added result {status} to test",
		PlaceholderText: "{name}",
		PlaceholderLink: "/projects/{project_id}/plans/{plan_id}/?test={test_id}",
	},
}

// Seed inserts system statuses, permissions, built-in roles and notification settings.
// It is idempotent.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, s := range systemStatuses {
			s.CreatedAt, s.UpdatedAt = now, now
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&s).Error; err != nil {
				return fmt.Errorf("seed status %s: %w", s.Name, err)
			}
		}
		if tx.Dialector.Name() == DriverPostgres {
			if err := tx.Exec(`SELECT setval(pg_get_serial_sequence('result_status', 'id'), (SELECT MAX(id) FROM result_status))`).Error; err != nil {
				return fmt.Errorf("advance result_status sequence: %w", err)
			}
		}

		var perms []domain.Permission
		for _, model := range PermissionModels {
			for _, action := range []string{"add", "change", "delete", "view"} {
				code := action + "_" + model
				perms = append(perms, domain.Permission{Codename: code, Name: "Can " + action + " " + model})
			}
		}
		perms = append(perms, domain.Permission{Codename: domain.PermissionProjectRestricted, Name: "Restricted to member projects"})
		if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "codename"}}, DoNothing: true}).Create(&perms).Error; err != nil {
			return fmt.Errorf("seed permissions: %w", err)
		}

		var all []domain.Permission
		if err := tx.Find(&all).Error; err != nil {
			return err
		}
		byCode := map[string]domain.Permission{}
		for _, p := range all {
			byCode[p.Codename] = p
		}
		roles := []struct {
			name  string
			typ   domain.RoleType
			match func(code string) bool
		}{
			{"Admin", domain.RoleSystem, func(c string) bool { return c != domain.PermissionProjectRestricted }},
			{"Tester", domain.RoleSystem, func(c string) bool {
				return strings.HasPrefix(c, "view_") || c == "add_testresult" || c == "change_testresult" ||
					c == "add_comment" || c == "add_attachment" || c == "change_test"
			}},
			{"External", domain.RoleSuperuserOnly, func(c string) bool {
				return strings.HasPrefix(c, "view_") || c == domain.PermissionProjectRestricted
			}},
		}
		for _, r := range roles {
			var existing domain.Role
			err := tx.Where("name = ?", r.name).Limit(1).Find(&existing).Error
			if err != nil {
				return err
			}
			if existing.ID != 0 {
				continue
			}
			role := domain.Role{Name: r.name, Type: r.typ}
			for code, p := range byCode {
				if r.match(code) {
					role.Permissions = append(role.Permissions, p)
				}
			}
			if err := tx.Create(&role).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", r.name, err)
			}
		}

		for _, ns := range notificationSettings {
			if err := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "action_code"}}, DoNothing: true}).Create(&ns).Error; err != nil {
				return fmt.Errorf("seed notification setting %s: %w", ns.ActionCode, err)
			}
		}
		return nil
	})
}
