package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/datatypes"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/attachments"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type ProjectInput struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	IsArchive   *bool                   `json:"is_archive"`
	IsPrivate   *bool                   `json:"is_private"`
	Settings    *domain.ProjectSettings `json:"settings"`
}

type ProjectService interface {
	List(ctx context.Context, q repos.Query) (*repos.Page[domain.Project], error)
	Get(ctx context.Context, id uint) (*domain.Project, error)
	Create(ctx context.Context, in ProjectInput) (*domain.Project, error)
	Update(ctx context.Context, id uint, in ProjectInput) (*domain.Project, error)
	UploadIcon(ctx context.Context, id uint, f attachments.File) (*domain.Project, error)
	Icon(ctx context.Context, id uint, width, height int) (*attachments.Served, error)
	Progress(ctx context.Context, id uint) (*domain.ProjectStatistics, error)
}

type projectService struct {
	core *Core
	log  *logger.Logger
}

func NewProjectService(core *Core) ProjectService {
	return &projectService{core: core, log: core.Log.With("service", "ProjectService")}
}

func (s *projectService) List(ctx context.Context, q repos.Query) (*repos.Page[domain.Project], error) {
	sub := subject(ctx)
	if sub.UserID == 0 && !sub.IsSuperuser {
		return nil, apierr.Auth("project.list", "Authentication credentials were not provided.")
	}
	if sub.IsSuperuser {
		return s.core.Repos.Project.List(read(ctx), q)
	}
	restricted, err := s.core.Access.IsRestricted(ctx, sub)
	if err != nil {
		return nil, err
	}
	return s.core.Repos.Project.List(read(ctx), q, repos.VisibleScope(sub.UserID, restricted))
}

func (s *projectService) Get(ctx context.Context, id uint) (*domain.Project, error) {
	p, err := s.core.Repos.Project.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, id, "project", access.ActionView); err != nil {
		return nil, err
	}
	return p, nil
}

// validateSettings checks the edit window and the status references of settings.
func (s *projectService) validateSettings(dbc dbctx.Context, projectID uint, st domain.ProjectSettings) error {
	const op = "project.settings"
	if st.ResultEditLimit != nil && *st.ResultEditLimit < 0 {
		return apierr.FieldValidation(op, "settings", "result_edit_limit must be a non-negative number of seconds or null.")
	}
	var ids []uint
	if st.DefaultStatus != nil {
		ids = append(ids, *st.DefaultStatus)
	}
	for k := range st.StatusOrder {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return apierr.FieldValidation(op, "settings", fmt.Sprintf("status_order key %q is not a status id.", k))
		}
		ids = append(ids, uint(id))
	}
	if len(ids) == 0 {
		return nil
	}
	ids = uniq(ids)
	visible, err := s.core.Repos.Status.Find(dbc, repos.IDsScope(ids), repos.VisibleToProject(projectID))
	if err != nil {
		return err
	}
	if len(visible) != len(ids) {
		found := map[uint]bool{}
		for _, v := range visible {
			found[v.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return apierr.FieldValidation(op, "settings", fmt.Sprintf("Status %d is not available in this project.", id))
			}
		}
	}
	return nil
}

func (s *projectService) Create(ctx context.Context, in ProjectInput) (*domain.Project, error) {
	if err := s.core.check(ctx, nil, "project", access.ActionAdd); err != nil {
		return nil, err
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, apierr.FieldValidation("project.create", "name", "This field is required.")
	}
	p := &domain.Project{Name: strings.TrimSpace(*in.Name)}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.IsArchive != nil {
		p.IsArchive = *in.IsArchive
	}
	if in.IsPrivate != nil {
		p.IsPrivate = *in.IsPrivate
	}
	err := s.core.Writer.Write(ctx, "project.create", func(dbc dbctx.Context) error {
		if in.Settings != nil {
			p.Settings = datatypes.NewJSONType(*in.Settings)
		}
		if err := s.core.Repos.Project.Create(dbc, p); err != nil {
			return err
		}
		if in.Settings != nil {
			if err := s.validateSettings(dbc, p.ID, *in.Settings); err != nil {
				return err
			}
		}
		if err := s.core.Stats.Ensure(dbc, p.ID); err != nil {
			return err
		}
		sub := subject(ctx)
		if sub.IsSuperuser || sub.UserID == 0 {
			return nil
		}
		// the creator administers the new project
		var admin domain.Role
		if err := dbc.DB(s.core.DB).Where("name = ? AND type = ?", "Admin", domain.RoleSystem).Limit(1).Find(&admin).Error; err != nil {
			return err
		}
		if admin.ID == 0 {
			return nil
		}
		return s.core.Repos.Membership.Create(dbc, &domain.Membership{ProjectID: p.ID, UserID: sub.UserID, RoleID: admin.ID})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("project created", "project_id", p.ID)
	return p, nil
}

func (s *projectService) Update(ctx context.Context, id uint, in ProjectInput) (*domain.Project, error) {
	var out *domain.Project
	err := s.core.Writer.Write(ctx, "project.update", func(dbc dbctx.Context) error {
		p, err := s.core.Repos.Project.Get(dbc, id)
		if err != nil {
			return err
		}
		privacy := in.IsPrivate != nil && *in.IsPrivate != p.IsPrivate
		if err := s.core.Access.Check(ctx, access.Request{
			Subject: subject(ctx), ProjectID: &id, Model: "project", Action: access.ActionChange, ChangesPrivacy: privacy,
		}); err != nil {
			return err
		}
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return apierr.FieldValidation("project.update", "name", "This field may not be blank.")
			}
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.IsPrivate != nil {
			p.IsPrivate = *in.IsPrivate
		}
		if in.Settings != nil {
			if err := s.validateSettings(dbc, id, *in.Settings); err != nil {
				return err
			}
			p.Settings = datatypes.NewJSONType(*in.Settings)
		}
		if err := s.core.Repos.Project.Save(dbc, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *projectService) UploadIcon(ctx context.Context, id uint, f attachments.File) (*domain.Project, error) {
	if err := s.core.checkIn(ctx, id, "project", access.ActionChange); err != nil {
		return nil, err
	}
	p, err := s.core.Repos.Project.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	key, err := s.core.Attachments.SaveIcon(ctx, id, f, p.IconKey)
	if err != nil {
		return nil, err
	}
	err = s.core.Writer.Write(ctx, "project.icon", func(dbc dbctx.Context) error {
		return s.core.Repos.Project.Updates(dbc, id, map[string]any{"icon_key": key})
	})
	if err != nil {
		return nil, err
	}
	p.IconKey = key
	return p, nil
}

func (s *projectService) Icon(ctx context.Context, id uint, width, height int) (*attachments.Served, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IconKey == "" {
		return nil, apierr.NotFound("project.icon", "project icon", id)
	}
	return s.core.Attachments.OpenKey(ctx, p.IconKey, width, height)
}

func (s *projectService) Progress(ctx context.Context, id uint) (*domain.ProjectStatistics, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.core.Stats.Get(read(ctx), id)
}
