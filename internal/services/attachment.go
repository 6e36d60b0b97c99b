package services

import (
	"context"
	"fmt"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/attachments"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/softdelete"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// targetProject resolves the project owning a live polymorphic target.
func (c *Core) targetProject(dbc dbctx.Context, t domain.Target) (uint, error) {
	const op = "target.resolve"
	switch t.Kind {
	case domain.KindProject:
		if _, err := c.liveProject(dbc, t.ID); err != nil {
			return 0, err
		}
		return t.ID, nil
	case domain.KindComment:
		cm, err := c.Repos.Comment.Get(dbc, t.ID)
		if err != nil {
			return 0, err
		}
		return c.targetProject(dbc, domain.Target{Kind: cm.ContentType, ID: cm.ObjectID})
	}
	table, ok := softdelete.Table(t.Kind)
	if !ok {
		return 0, apierr.FieldValidation(op, "content_type", fmt.Sprintf("%q is not a valid target.", t.Kind))
	}
	var row struct{ ProjectID *uint }
	res := dbc.DB(c.DB).Table(table).Select("project_id").Where("id = ? AND is_deleted = ?", t.ID, false).Limit(1).Scan(&row)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 || row.ProjectID == nil {
		return 0, apierr.NotFound(op, string(t.Kind), t.ID)
	}
	return *row.ProjectID, nil
}

type AttachmentFilter struct {
	Target *domain.Target
}

type AttachmentService interface {
	List(ctx context.Context, projectID uint, q repos.Query, f AttachmentFilter) (*repos.Page[domain.Attachment], error)
	Get(ctx context.Context, id uint) (*domain.Attachment, error)
	// Upload stores files in a project, binding them to target when given.
	Upload(ctx context.Context, projectID uint, files []attachments.File, target *domain.Target) ([]domain.Attachment, error)
	Serve(ctx context.Context, id uint, width, height int) (*attachments.Served, error)
	Delete(ctx context.Context, id uint) error
}

type attachmentService struct {
	core *Core
	log  *logger.Logger
}

func NewAttachmentService(core *Core) AttachmentService {
	return &attachmentService{core: core, log: core.Log.With("service", "AttachmentService")}
}

func (s *attachmentService) List(ctx context.Context, projectID uint, q repos.Query, f AttachmentFilter) (*repos.Page[domain.Attachment], error) {
	if err := s.core.checkIn(ctx, projectID, "attachment", access.ActionView); err != nil {
		return nil, err
	}
	scopes := []repos.Scope{repos.ProjectScope(projectID)}
	if f.Target != nil {
		scopes = append(scopes, repos.TargetScope(*f.Target))
	}
	return s.core.Repos.Attachment.List(read(ctx), q, scopes...)
}

func (s *attachmentService) load(ctx context.Context, id uint, action access.Action) (*domain.Attachment, error) {
	att, err := s.core.Repos.Attachment.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if att.ProjectID != nil {
		if err := s.core.checkIn(ctx, *att.ProjectID, "attachment", action); err != nil {
			return nil, err
		}
	}
	return att, nil
}

func (s *attachmentService) Get(ctx context.Context, id uint) (*domain.Attachment, error) {
	return s.load(ctx, id, access.ActionView)
}

func (s *attachmentService) Upload(ctx context.Context, projectID uint, files []attachments.File, target *domain.Target) ([]domain.Attachment, error) {
	if len(files) == 0 {
		return nil, apierr.FieldValidation("attachment.upload", "file", "No file was submitted.")
	}
	if err := s.core.checkIn(ctx, projectID, "attachment", access.ActionAdd); err != nil {
		return nil, err
	}
	var out []domain.Attachment
	err := s.core.Writer.Write(ctx, "attachment.upload", func(dbc dbctx.Context) error {
		if _, err := s.core.liveProject(dbc, projectID); err != nil {
			return err
		}
		if target != nil {
			owner, err := s.core.targetProject(dbc, *target)
			if err != nil {
				return err
			}
			if err := requireSameProject("attachment.upload", "object_id", projectID, owner); err != nil {
				return err
			}
		}
		var err error
		out, err = s.core.Attachments.Upload(dbc, files, &projectID, actor(ctx), target, 0)
		return err
	})
	return out, err
}

func (s *attachmentService) Serve(ctx context.Context, id uint, width, height int) (*attachments.Served, error) {
	att, err := s.load(ctx, id, access.ActionView)
	if err != nil {
		return nil, err
	}
	return s.core.Attachments.Open(ctx, att, width, height)
}

func (s *attachmentService) Delete(ctx context.Context, id uint) error {
	return s.core.Writer.Write(ctx, "attachment.delete", func(dbc dbctx.Context) error {
		att, err := s.core.Repos.Attachment.Get(dbc, id)
		if err != nil {
			return err
		}
		if att.ProjectID != nil {
			if err := s.core.checkIn(ctx, *att.ProjectID, "attachment", access.ActionDelete); err != nil {
				return err
			}
		}
		return s.core.Attachments.Delete(dbc, att)
	})
}
