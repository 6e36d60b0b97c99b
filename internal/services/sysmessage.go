package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type SystemMessageInput struct {
	Content  *string `json:"content"`
	Level    *int    `json:"level"`
	IsActive *bool   `json:"is_active"`
}

type SystemMessageService interface {
	// List returns active messages; superusers may include inactive ones.
	List(ctx context.Context, q repos.Query, all bool) (*repos.Page[domain.SystemMessage], error)
	Create(ctx context.Context, in SystemMessageInput) (*domain.SystemMessage, error)
	Update(ctx context.Context, id uint, in SystemMessageInput) (*domain.SystemMessage, error)
	Delete(ctx context.Context, id uint) error
}

type systemMessageService struct {
	core *Core
	log  *logger.Logger
}

func NewSystemMessageService(core *Core) SystemMessageService {
	return &systemMessageService{core: core, log: core.Log.With("service", "SystemMessageService")}
}

func requireSuperuser(ctx context.Context, op string) error {
	if !subject(ctx).IsSuperuser {
		return apierr.Permission(op, "superuser required")
	}
	return nil
}

func (s *systemMessageService) List(ctx context.Context, q repos.Query, all bool) (*repos.Page[domain.SystemMessage], error) {
	var scopes []repos.Scope
	if !all || !subject(ctx).IsSuperuser {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("is_active = ?", true) })
	}
	return s.core.Repos.SystemMessage.List(read(ctx), q, scopes...)
}

func (s *systemMessageService) Create(ctx context.Context, in SystemMessageInput) (*domain.SystemMessage, error) {
	if err := requireSuperuser(ctx, "sysmessage.create"); err != nil {
		return nil, err
	}
	if in.Content == nil || strings.TrimSpace(*in.Content) == "" {
		return nil, apierr.FieldValidation("sysmessage.create", "content", "This field is required.")
	}
	out := &domain.SystemMessage{Content: *in.Content, IsActive: true}
	if in.Level != nil {
		out.Level = *in.Level
	}
	if in.IsActive != nil {
		out.IsActive = *in.IsActive
	}
	err := s.core.Writer.Write(ctx, "sysmessage.create", func(dbc dbctx.Context) error {
		return s.core.Repos.SystemMessage.Create(dbc, out)
	})
	return out, err
}

func (s *systemMessageService) Update(ctx context.Context, id uint, in SystemMessageInput) (*domain.SystemMessage, error) {
	if err := requireSuperuser(ctx, "sysmessage.update"); err != nil {
		return nil, err
	}
	var out *domain.SystemMessage
	err := s.core.Writer.Write(ctx, "sysmessage.update", func(dbc dbctx.Context) error {
		m, err := s.core.Repos.SystemMessage.Get(dbc, id)
		if err != nil {
			return err
		}
		if in.Content != nil {
			if strings.TrimSpace(*in.Content) == "" {
				return apierr.FieldValidation("sysmessage.update", "content", "This field may not be blank.")
			}
			m.Content = *in.Content
		}
		if in.Level != nil {
			m.Level = *in.Level
		}
		if in.IsActive != nil {
			m.IsActive = *in.IsActive
		}
		out = m
		return s.core.Repos.SystemMessage.Save(dbc, m)
	})
	return out, err
}

func (s *systemMessageService) Delete(ctx context.Context, id uint) error {
	if err := requireSuperuser(ctx, "sysmessage.delete"); err != nil {
		return err
	}
	return s.core.Writer.Write(ctx, "sysmessage.delete", func(dbc dbctx.Context) error {
		if _, err := s.core.Repos.SystemMessage.Get(dbc, id); err != nil {
			return err
		}
		return s.core.Repos.SystemMessage.Delete(dbc, id)
	})
}
