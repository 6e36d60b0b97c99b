package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type RoleInput struct {
	Name        *string          `json:"name"`
	Type        *domain.RoleType `json:"type"`
	Permissions *[]string        `json:"permissions"`
}

type MembershipInput struct {
	User uint `json:"user"`
	Role uint `json:"role"`
}

type RoleService interface {
	List(ctx context.Context, q repos.Query) (*repos.Page[domain.Role], error)
	Get(ctx context.Context, id uint) (*domain.Role, error)
	Create(ctx context.Context, in RoleInput) (*domain.Role, error)
	Update(ctx context.Context, id uint, in RoleInput) (*domain.Role, error)
	Permissions(ctx context.Context) ([]*domain.Permission, error)

	Memberships(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.Membership], error)
	Assign(ctx context.Context, projectID uint, in MembershipInput) (*domain.Membership, error)
	Unassign(ctx context.Context, membershipID uint) error
}

type roleService struct {
	core *Core
	log  *logger.Logger
}

func NewRoleService(core *Core) RoleService {
	return &roleService{core: core, log: core.Log.With("service", "RoleService")}
}

func (s *roleService) List(ctx context.Context, q repos.Query) (*repos.Page[domain.Role], error) {
	sub := subject(ctx)
	if sub.UserID == 0 {
		return nil, apierr.Auth("roles.list", "Authentication credentials were not provided.")
	}
	var scopes []repos.Scope
	if !sub.IsSuperuser {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("type <> ?", domain.RoleSuperuserOnly) })
	}
	dbc := read(ctx)
	page, err := s.core.Repos.Role.List(dbc, q, scopes...)
	if err != nil {
		return nil, err
	}
	for _, role := range page.Results {
		if err := s.core.Repos.Role.DB(dbc).Model(role).Association("Permissions").Find(&role.Permissions); err != nil {
			return nil, err
		}
	}
	return page, nil
}

func (s *roleService) Get(ctx context.Context, id uint) (*domain.Role, error) {
	role, err := s.core.Repos.Role.WithPermissions(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if !access.CanListRole(subject(ctx), role) {
		return nil, apierr.NotFound("roles.get", "role", id)
	}
	return role, nil
}

func (s *roleService) Permissions(ctx context.Context) ([]*domain.Permission, error) {
	if subject(ctx).UserID == 0 {
		return nil, apierr.Auth("roles.permissions", "Authentication credentials were not provided.")
	}
	return s.core.Repos.Permission.Find(read(ctx))
}

func (s *roleService) Create(ctx context.Context, in RoleInput) (*domain.Role, error) {
	if !subject(ctx).IsSuperuser {
		return nil, apierr.Permission("roles.create", "Only superusers can manage roles.")
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, apierr.FieldValidation("roles.create", "name", "This field is required.")
	}
	role := &domain.Role{Name: strings.TrimSpace(*in.Name), Type: domain.RoleCustom}
	if in.Type != nil {
		role.Type = *in.Type
	}
	err := s.core.Writer.Write(ctx, "roles.create", func(dbc dbctx.Context) error {
		if err := s.core.Repos.Role.Create(dbc, role); err != nil {
			return err
		}
		if in.Permissions != nil {
			return s.core.Repos.Role.SetPermissions(dbc, role, *in.Permissions)
		}
		return nil
	})
	return role, err
}

func (s *roleService) Update(ctx context.Context, id uint, in RoleInput) (*domain.Role, error) {
	if !subject(ctx).IsSuperuser {
		return nil, apierr.Permission("roles.update", "Only superusers can manage roles.")
	}
	var out *domain.Role
	err := s.core.Writer.Write(ctx, "roles.update", func(dbc dbctx.Context) error {
		role, err := s.core.Repos.Role.WithPermissions(dbc, id)
		if err != nil {
			return err
		}
		if role.Type == domain.RoleSystem && (in.Name != nil || in.Type != nil) {
			return apierr.Validation("roles.update", "System roles cannot be renamed.")
		}
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return apierr.FieldValidation("roles.update", "name", "This field may not be blank.")
			}
			role.Name = strings.TrimSpace(*in.Name)
		}
		if in.Type != nil {
			role.Type = *in.Type
		}
		if err := s.core.Repos.Role.DB(dbc).Omit("Permissions").Save(role).Error; err != nil {
			return apierr.MapDB("roles.update", err)
		}
		if in.Permissions != nil {
			if err := s.core.Repos.Role.SetPermissions(dbc, role, *in.Permissions); err != nil {
				return err
			}
		}
		out = role
		return nil
	})
	return out, err
}

func (s *roleService) Memberships(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.Membership], error) {
	if err := s.core.checkIn(ctx, projectID, "membership", access.ActionView); err != nil {
		return nil, err
	}
	sub := subject(ctx)
	scopes := []repos.Scope{repos.ProjectScope(projectID)}
	if !sub.IsSuperuser {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where("role_id NOT IN (?)", db.Session(&gorm.Session{NewDB: true}).
				Model(&domain.Role{}).Select("id").Where("type = ?", domain.RoleSuperuserOnly))
		})
	}
	return s.core.Repos.Membership.List(read(ctx), q, scopes...)
}

func (s *roleService) Assign(ctx context.Context, projectID uint, in MembershipInput) (*domain.Membership, error) {
	if err := s.core.checkIn(ctx, projectID, "membership", access.ActionAdd); err != nil {
		return nil, err
	}
	var out *domain.Membership
	err := s.core.Writer.Write(ctx, "membership.assign", func(dbc dbctx.Context) error {
		if _, err := s.core.liveProject(dbc, projectID); err != nil {
			return err
		}
		if _, err := s.core.Repos.User.Get(dbc, in.User); err != nil {
			if apierr.IsCode(err, apierr.CodeNotFound) {
				return apierr.FieldValidation("membership.assign", "user", "User does not exist.")
			}
			return err
		}
		role, err := s.core.Repos.Role.WithPermissions(dbc, in.Role)
		if apierr.IsCode(err, apierr.CodeNotFound) {
			return apierr.FieldValidation("membership.assign", "role", "Role does not exist.")
		}
		if err != nil {
			return err
		}
		if err := access.CanAssignRole(subject(ctx), role); err != nil {
			return err
		}
		exists, err := s.core.Repos.Membership.Exists(dbc, repos.ProjectScope(projectID), func(db *gorm.DB) *gorm.DB {
			return db.Where("user_id = ? AND role_id = ?", in.User, in.Role)
		})
		if err != nil {
			return err
		}
		if exists {
			return apierr.Validation("membership.assign", "User already has role %s in this project.", role.Name)
		}
		out = &domain.Membership{ProjectID: projectID, UserID: in.User, RoleID: in.Role}
		return s.core.Repos.Membership.Create(dbc, out)
	})
	return out, err
}

func (s *roleService) Unassign(ctx context.Context, membershipID uint) error {
	return s.core.Writer.Write(ctx, "membership.unassign", func(dbc dbctx.Context) error {
		m, err := s.core.Repos.Membership.Get(dbc, membershipID)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, m.ProjectID, "membership", access.ActionDelete); err != nil {
			return err
		}
		role, err := s.core.Repos.Role.WithPermissions(dbc, m.RoleID)
		if err != nil {
			return err
		}
		if err := access.CanAssignRole(subject(ctx), role); err != nil {
			return err
		}
		return s.core.Repos.Membership.Delete(dbc, m.ID)
	})
}
