// Package access decides whether a caller may perform an action on a model
// within a project, using roles granted through project memberships.
package access

import (
	"context"
	"net/http"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type Action string

const (
	ActionNone   Action = ""
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
)

// ActionFromMethod maps an HTTP method to the permission action it needs.
func ActionFromMethod(method string) Action {
	switch method {
	case http.MethodGet:
		return ActionView
	case http.MethodPost:
		return ActionAdd
	case http.MethodPut, http.MethodPatch:
		return ActionChange
	case http.MethodDelete:
		return ActionDelete
	}
	return ActionNone
}

// Codename is the permission required for action on model, e.g. "change_testcase".
func Codename(action Action, model string) string { return string(action) + "_" + model }

// Subject is the authenticated caller.
type Subject struct {
	UserID      uint
	IsSuperuser bool
}

type Request struct {
	Subject   Subject
	ProjectID *uint
	Model     string
	Action    Action
	// ChangesPrivacy is set when an update flips the project's is_private.
	ChangesPrivacy bool
}

// Store loads the facts the evaluator decides on.
type Store interface {
	ProjectPrivacy(ctx context.Context, projectID uint) (isPrivate bool, found bool, err error)
	ProjectPermissions(ctx context.Context, userID, projectID uint) (map[string]bool, error)
	HasAnyPermission(ctx context.Context, userID uint, codename string) (bool, error)
}

type Evaluator struct {
	store Store
	log   *logger.Logger
}

func NewEvaluator(store Store, baseLog *logger.Logger) *Evaluator {
	return &Evaluator{store: store, log: baseLog.With("component", "AccessEvaluator")}
}

func deny() error {
	return apierr.Permission("access.check", "You do not have permission to perform this action.")
}

// Check returns nil when req is allowed and a permission error otherwise.
func (e *Evaluator) Check(ctx context.Context, req Request) error {
	if req.Subject.IsSuperuser {
		return nil
	}
	if req.Action == ActionNone {
		return nil
	}
	if req.Subject.UserID == 0 {
		return apierr.Auth("access.check", "Authentication credentials were not provided.")
	}
	restricted, err := e.store.HasAnyPermission(ctx, req.Subject.UserID, domain.PermissionProjectRestricted)
	if err != nil {
		return err
	}
	if req.ProjectID == nil {
		// Outside a project only reads and project creation are open, and
		// restricted users may not create projects.
		if req.Action == ActionView || (req.Model == "project" && req.Action == ActionAdd && !restricted) {
			return nil
		}
		return deny()
	}
	isPrivate, found, err := e.store.ProjectPrivacy(ctx, *req.ProjectID)
	if err != nil {
		return err
	}
	if !found {
		return apierr.NotFound("access.check", "project", *req.ProjectID)
	}
	perms, err := e.store.ProjectPermissions(ctx, req.Subject.UserID, *req.ProjectID)
	if err != nil {
		return err
	}
	if req.ChangesPrivacy && !perms[Codename(ActionChange, "project")] {
		e.log.Debug("privacy change denied", "user_id", req.Subject.UserID, "project_id", *req.ProjectID)
		return deny()
	}
	if !isPrivate && !restricted && req.Action == ActionView {
		return nil
	}
	if perms[Codename(req.Action, req.Model)] {
		return nil
	}
	return deny()
}

// CanSeeProject reports whether the subject may read the project at all.
func (e *Evaluator) CanSeeProject(ctx context.Context, s Subject, projectID uint) (bool, error) {
	err := e.Check(ctx, Request{Subject: s, ProjectID: &projectID, Model: "project", Action: ActionView})
	if err == nil {
		return true, nil
	}
	if apierr.IsCode(err, apierr.CodePermission) || apierr.IsCode(err, apierr.CodeNotFound) {
		return false, nil
	}
	return false, err
}

// IsRestricted reports whether the subject only sees member projects.
func (e *Evaluator) IsRestricted(ctx context.Context, s Subject) (bool, error) {
	if s.IsSuperuser {
		return false, nil
	}
	return e.store.HasAnyPermission(ctx, s.UserID, domain.PermissionProjectRestricted)
}

// CanAssignRole enforces that superuser-only and restricting roles are
// granted by superusers alone.
func CanAssignRole(s Subject, role *domain.Role) error {
	if s.IsSuperuser {
		return nil
	}
	if role.Type == domain.RoleSuperuserOnly {
		return apierr.Permission("access.assign_role", "Only superusers can assign role "+role.Name+".")
	}
	if role.HasPermission(domain.PermissionProjectRestricted) {
		return apierr.Permission("access.assign_role", "Only superusers can assign roles restricting project access.")
	}
	return nil
}

// CanListRole hides superuser-only roles from everyone else.
func CanListRole(s Subject, role *domain.Role) bool {
	return s.IsSuperuser || role.Type != domain.RoleSuperuserOnly
}
