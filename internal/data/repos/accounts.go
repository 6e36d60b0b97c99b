package repos

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type UserRepo struct{ Repo[domain.User] }

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) *UserRepo {
	return &UserRepo{newRepo[domain.User](db, baseLog, "user", Spec{
		SearchFields: []string{"username", "email", "first_name", "last_name"},
		OrderFields:  map[string]string{"username": "username", "email": "email", "last_name": "last_name"},
		DefaultOrder: "username ASC, id ASC",
	})}
}

// ByUsername finds a live user case-insensitively; nil when absent.
func (r *UserRepo) ByUsername(dbc dbctx.Context, username string) (*domain.User, error) {
	var u domain.User
	res := r.DB(dbc).Where("LOWER(username) = ? AND is_deleted = ?", strings.ToLower(strings.TrimSpace(username)), false).
		Limit(1).Find(&u)
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, res.Error
	}
	return &u, nil
}

type TokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTokenRepo(db *gorm.DB, baseLog *logger.Logger) *TokenRepo {
	return &TokenRepo{db: db, log: baseLog.With("repo", "TokenRepo")}
}

func (r *TokenRepo) Create(dbc dbctx.Context, t *domain.Token) error {
	return dbc.DB(r.db).Create(t).Error
}

// Get returns the token with key; nil when absent.
func (r *TokenRepo) Get(dbc dbctx.Context, key string) (*domain.Token, error) {
	var t domain.Token
	res := dbc.DB(r.db).Where(map[string]any{"key": key}).Limit(1).Find(&t)
	if res.Error != nil || res.RowsAffected == 0 {
		return nil, res.Error
	}
	return &t, nil
}

func (r *TokenRepo) Delete(dbc dbctx.Context, key string) error {
	return dbc.DB(r.db).Where(map[string]any{"key": key}).Delete(&domain.Token{}).Error
}

// DeleteExpired removes tokens that expired before now.
func (r *TokenRepo) DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error) {
	res := dbc.DB(r.db).Where("expires_at < ?", now).Delete(&domain.Token{})
	return res.RowsAffected, res.Error
}

type RoleRepo struct{ Repo[domain.Role] }

func NewRoleRepo(db *gorm.DB, baseLog *logger.Logger) *RoleRepo {
	return &RoleRepo{newRepo[domain.Role](db, baseLog, "role", Spec{
		SearchFields: []string{"name"},
		OrderFields:  map[string]string{"name": "name", "type": "type"},
		DefaultOrder: "name ASC, id ASC",
		Permanent:    true,
	})}
}

// WithPermissions loads a role and its permissions.
func (r *RoleRepo) WithPermissions(dbc dbctx.Context, id uint) (*domain.Role, error) {
	role, err := r.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := r.DB(dbc).Model(role).Association("Permissions").Find(&role.Permissions); err != nil {
		return nil, err
	}
	return role, nil
}

// SetPermissions replaces the role's permissions by codename.
func (r *RoleRepo) SetPermissions(dbc dbctx.Context, role *domain.Role, codenames []string) error {
	var perms []domain.Permission
	if len(codenames) > 0 {
		if err := r.DB(dbc).Where("codename IN ?", codenames).Find(&perms).Error; err != nil {
			return err
		}
	}
	role.Permissions = perms
	return r.DB(dbc).Model(role).Association("Permissions").Replace(perms)
}

type MembershipRepo struct{ Repo[domain.Membership] }

func NewMembershipRepo(db *gorm.DB, baseLog *logger.Logger) *MembershipRepo {
	return &MembershipRepo{newRepo[domain.Membership](db, baseLog, "membership", Spec{
		OrderFields:  map[string]string{"user": "user_id", "role": "role_id", "project": "project_id"},
		DefaultOrder: "project_id ASC, user_id ASC, id ASC",
		Permanent:    true,
	})}
}

// MemberIDs returns the users holding any role in a project.
func (r *MembershipRepo) MemberIDs(dbc dbctx.Context, projectID uint) ([]uint, error) {
	var ids []uint
	err := r.DB(dbc).Model(&domain.Membership{}).Where("project_id = ?", projectID).Distinct("user_id").Pluck("user_id", &ids).Error
	return ids, err
}

type PermissionRepo struct{ Repo[domain.Permission] }

func NewPermissionRepo(db *gorm.DB, baseLog *logger.Logger) *PermissionRepo {
	return &PermissionRepo{newRepo[domain.Permission](db, baseLog, "permission", Spec{
		SearchFields: []string{"codename", "name"},
		OrderFields:  map[string]string{"codename": "codename"},
		DefaultOrder: "codename ASC",
		Permanent:    true,
	})}
}
