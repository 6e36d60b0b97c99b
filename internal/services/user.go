package services

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type UserInput struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
}

type UserService interface {
	List(ctx context.Context, q repos.Query, projectID *uint) (*repos.Page[domain.User], error)
	Get(ctx context.Context, id uint) (*domain.User, error)
	Me(ctx context.Context) (*domain.User, error)
	Create(ctx context.Context, in UserInput) (*domain.User, error)
	Update(ctx context.Context, id uint, in UserInput) (*domain.User, error)
	// UpdateConfig merges patch into the caller's config blob; null values remove keys.
	UpdateConfig(ctx context.Context, patch map[string]any) (map[string]any, error)
	CreateSuperuser(ctx context.Context, username, email, password string) (*domain.User, error)
}

type userService struct {
	core *Core
	log  *logger.Logger
}

func NewUserService(core *Core) UserService {
	return &userService{core: core, log: core.Log.With("service", "UserService")}
}

func normalizeUsername(v string) string { return strings.TrimSpace(v) }

func normalizeEmail(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func (us *userService) me(ctx context.Context) (uint, error) {
	id := ctxutil.UserID(ctx)
	if id == 0 {
		return 0, apierr.Auth("users.me", "Authentication credentials were not provided.")
	}
	return id, nil
}

func (us *userService) List(ctx context.Context, q repos.Query, projectID *uint) (*repos.Page[domain.User], error) {
	if _, err := us.me(ctx); err != nil {
		return nil, err
	}
	var scopes []repos.Scope
	if projectID != nil {
		if err := us.core.check(ctx, projectID, "membership", access.ActionView); err != nil {
			return nil, err
		}
		pid := *projectID
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where("id IN (?)", db.Session(&gorm.Session{NewDB: true}).
				Model(&domain.Membership{}).Select("user_id").Where("project_id = ?", pid))
		})
	}
	return us.core.Repos.User.List(read(ctx), q, scopes...)
}

func (us *userService) Get(ctx context.Context, id uint) (*domain.User, error) {
	if _, err := us.me(ctx); err != nil {
		return nil, err
	}
	return us.core.Repos.User.Get(read(ctx), id)
}

func (us *userService) Me(ctx context.Context) (*domain.User, error) {
	id, err := us.me(ctx)
	if err != nil {
		return nil, err
	}
	return us.core.Repos.User.Get(read(ctx), id)
}

func (us *userService) uniqueUsername(dbc dbctx.Context, username string, exceptID uint) error {
	hit, err := us.core.Repos.User.ByUsername(dbc, username)
	if err != nil {
		return err
	}
	if hit != nil && hit.ID != exceptID {
		return apierr.Conflict("users.username", "A user with username %q already exists.", hit.Username)
	}
	return nil
}

func (us *userService) create(dbc dbctx.Context, u *domain.User, password string) error {
	if u.Username == "" {
		return apierr.FieldValidation("users.create", "username", "This field is required.")
	}
	if len(password) < 8 {
		return apierr.FieldValidation("users.create", "password", "Password must contain at least 8 characters.")
	}
	if err := us.uniqueUsername(dbc, u.Username, 0); err != nil {
		return err
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashed
	u.IsActive = true
	return us.core.Repos.User.Create(dbc, u)
}

func (us *userService) Create(ctx context.Context, in UserInput) (*domain.User, error) {
	if !subject(ctx).IsSuperuser {
		return nil, apierr.Permission("users.create", "Only superusers can create users.")
	}
	u := &domain.User{}
	if in.Username != nil {
		u.Username = normalizeUsername(*in.Username)
	}
	if in.Email != nil {
		u.Email = normalizeEmail(*in.Email)
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.IsSuperuser != nil {
		u.IsSuperuser = *in.IsSuperuser
	}
	password := ""
	if in.Password != nil {
		password = *in.Password
	}
	err := us.core.Writer.Write(ctx, "users.create", func(dbc dbctx.Context) error {
		return us.create(dbc, u, password)
	})
	return u, err
}

func (us *userService) Update(ctx context.Context, id uint, in UserInput) (*domain.User, error) {
	sub := subject(ctx)
	if sub.UserID == 0 {
		return nil, apierr.Auth("users.update", "Authentication credentials were not provided.")
	}
	if !sub.IsSuperuser && sub.UserID != id {
		return nil, apierr.Permission("users.update", "You can only change your own profile.")
	}
	if !sub.IsSuperuser && (in.IsSuperuser != nil || in.IsActive != nil) {
		return nil, apierr.Permission("users.update", "Only superusers can change account status.")
	}
	var out *domain.User
	err := us.core.Writer.Write(ctx, "users.update", func(dbc dbctx.Context) error {
		u, err := us.core.Repos.User.Get(dbc, id)
		if err != nil {
			return err
		}
		if in.Username != nil {
			name := normalizeUsername(*in.Username)
			if name == "" {
				return apierr.FieldValidation("users.update", "username", "This field may not be blank.")
			}
			if err := us.uniqueUsername(dbc, name, u.ID); err != nil {
				return err
			}
			u.Username = name
		}
		if in.Email != nil {
			u.Email = normalizeEmail(*in.Email)
		}
		if in.FirstName != nil {
			u.FirstName = strings.TrimSpace(*in.FirstName)
		}
		if in.LastName != nil {
			u.LastName = strings.TrimSpace(*in.LastName)
		}
		if in.IsActive != nil {
			u.IsActive = *in.IsActive
		}
		if in.IsSuperuser != nil {
			u.IsSuperuser = *in.IsSuperuser
		}
		if in.Password != nil {
			if len(*in.Password) < 8 {
				return apierr.FieldValidation("users.update", "password", "Password must contain at least 8 characters.")
			}
			if u.Password, err = hashPassword(*in.Password); err != nil {
				return err
			}
		}
		out = u
		return us.core.Repos.User.Save(dbc, u)
	})
	return out, err
}

// MergeConfig applies a JSON merge patch one level deep.
func MergeConfig(current, patch map[string]any) map[string]any {
	out := make(map[string]any, len(current)+len(patch))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func (us *userService) UpdateConfig(ctx context.Context, patch map[string]any) (map[string]any, error) {
	id, err := us.me(ctx)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	err = us.core.Writer.Write(ctx, "users.config", func(dbc dbctx.Context) error {
		u, err := us.core.Repos.User.Get(dbc, id)
		if err != nil {
			return err
		}
		out = MergeConfig(u.Config, patch)
		return us.core.Repos.User.UpdateColumns(dbc, id, map[string]any{"config": datatypes.JSONMap(out)})
	})
	return out, err
}

func (us *userService) CreateSuperuser(ctx context.Context, username, email, password string) (*domain.User, error) {
	u := &domain.User{Username: normalizeUsername(username), Email: normalizeEmail(email), IsSuperuser: true}
	err := us.core.Writer.Write(ctx, "users.create_superuser", func(dbc dbctx.Context) error {
		return us.create(dbc, u, password)
	})
	if err != nil {
		return nil, err
	}
	us.log.Info("superuser created", "user_id", u.ID, "username", u.Username)
	return u, nil
}
