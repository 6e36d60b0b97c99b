package access

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
)

type gormStore struct {
	db *gorm.DB
}

// NewGormStore reads projects, memberships and role permissions with gorm.
func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) ProjectPrivacy(ctx context.Context, projectID uint) (bool, bool, error) {
	var p domain.Project
	res := s.db.WithContext(ctx).Select("id", "is_private").
		Where("id = ? AND is_deleted = ?", projectID, false).Limit(1).Find(&p)
	if res.Error != nil {
		return false, false, res.Error
	}
	return p.IsPrivate, res.RowsAffected > 0, nil
}

func (s *gormStore) permissions(ctx context.Context, userID uint) *gorm.DB {
	return s.db.WithContext(ctx).Table("membership AS m").
		Joins("JOIN role_permissions AS rp ON rp.role_id = m.role_id").
		Joins("JOIN permission AS p ON p.id = rp.permission_id").
		Where("m.user_id = ?", userID)
}

func (s *gormStore) ProjectPermissions(ctx context.Context, userID, projectID uint) (map[string]bool, error) {
	var codes []string
	if err := s.permissions(ctx, userID).Where("m.project_id = ?", projectID).
		Distinct("p.codename").Pluck("p.codename", &codes).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(codes))
	for _, c := range codes {
		out[c] = true
	}
	return out, nil
}

func (s *gormStore) HasAnyPermission(ctx context.Context, userID uint, codename string) (bool, error) {
	var n int64
	err := s.permissions(ctx, userID).Where("p.codename = ?", codename).Count(&n).Error
	return n > 0, err
}
