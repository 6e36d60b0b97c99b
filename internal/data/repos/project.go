package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type ProjectRepo struct{ Repo[domain.Project] }

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) *ProjectRepo {
	return &ProjectRepo{newRepo[domain.Project](db, baseLog, "project", Spec{
		SearchFields: []string{"name"},
		OrderFields:  map[string]string{"name": "name", "created_at": "created_at", "is_archive": "is_archive"},
		DefaultOrder: "name ASC, id ASC",
	})}
}

// VisibleScope keeps projects a non-superuser may see: members always, and
// public projects unless the user is restricted.
func VisibleScope(userID uint, restricted bool) Scope {
	return func(db *gorm.DB) *gorm.DB {
		member := db.Session(&gorm.Session{NewDB: true}).Table("membership").Select("project_id").Where("user_id = ?", userID)
		if restricted {
			return db.Where("id IN (?)", member)
		}
		return db.Where("is_private = ? OR id IN (?)", false, member)
	}
}

type ParameterRepo struct{ Repo[domain.Parameter] }

func NewParameterRepo(db *gorm.DB, baseLog *logger.Logger) *ParameterRepo {
	return &ParameterRepo{newRepo[domain.Parameter](db, baseLog, "parameter", Spec{
		SearchFields: []string{"data", "group_name"},
		OrderFields:  map[string]string{"data": "data", "group_name": "group_name"},
		DefaultOrder: "group_name ASC, data ASC, id ASC",
	})}
}

type SystemMessageRepo struct{ Repo[domain.SystemMessage] }

func NewSystemMessageRepo(db *gorm.DB, baseLog *logger.Logger) *SystemMessageRepo {
	return &SystemMessageRepo{newRepo[domain.SystemMessage](db, baseLog, "system message", Spec{
		OrderFields:  map[string]string{"created_at": "created_at", "level": "level"},
		DefaultOrder: "created_at DESC, id DESC",
		Permanent:    true,
	})}
}
