package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type LabelInput struct {
	Name *string           `json:"name"`
	Type *domain.LabelType `json:"type"`
}

type LabelService interface {
	List(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.Label], error)
	Get(ctx context.Context, id uint) (*domain.Label, error)
	Create(ctx context.Context, projectID uint, in LabelInput) (*domain.Label, error)
	Update(ctx context.Context, id uint, in LabelInput) (*domain.Label, error)
}

type labelService struct {
	core *Core
	log  *logger.Logger
}

func NewLabelService(core *Core) LabelService {
	return &labelService{core: core, log: core.Log.With("service", "LabelService")}
}

func (s *labelService) List(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.Label], error) {
	if err := s.core.checkIn(ctx, projectID, "label", access.ActionView); err != nil {
		return nil, err
	}
	return s.core.Repos.Label.List(read(ctx), q, repos.ProjectScope(projectID))
}

func (s *labelService) Get(ctx context.Context, id uint) (*domain.Label, error) {
	l, err := s.core.Repos.Label.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, l.ProjectID, "label", access.ActionView); err != nil {
		return nil, err
	}
	return l, nil
}

// unique rejects a name already taken case-insensitively in the project. The
// message names the existing label and the project.
func (s *labelService) unique(dbc dbctx.Context, p *domain.Project, name string, exceptID uint) error {
	hit, err := s.core.Repos.Label.ByName(dbc, p.ID, name)
	if err != nil {
		return err
	}
	if hit != nil && hit.ID != exceptID {
		return apierr.FieldValidation("label.unique", "name",
			fmt.Sprintf("Label %q already exists in project %q.", hit.Name, p.Name))
	}
	return nil
}

func (s *labelService) Create(ctx context.Context, projectID uint, in LabelInput) (*domain.Label, error) {
	if err := s.core.checkIn(ctx, projectID, "label", access.ActionAdd); err != nil {
		return nil, err
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, apierr.FieldValidation("label.create", "name", "This field is required.")
	}
	out := &domain.Label{ProjectID: projectID, Name: strings.TrimSpace(*in.Name), Type: domain.LabelCustom, UserID: actor(ctx)}
	if in.Type != nil {
		out.Type = *in.Type
	}
	err := s.core.Writer.Write(ctx, "label.create", func(dbc dbctx.Context) error {
		p, err := s.core.liveProject(dbc, projectID)
		if err != nil {
			return err
		}
		if err := s.unique(dbc, p, out.Name, 0); err != nil {
			return err
		}
		return s.core.Repos.Label.Create(dbc, out)
	})
	return out, err
}

func (s *labelService) Update(ctx context.Context, id uint, in LabelInput) (*domain.Label, error) {
	var out *domain.Label
	err := s.core.Writer.Write(ctx, "label.update", func(dbc dbctx.Context) error {
		l, err := s.core.Repos.Label.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, l.ProjectID, "label", access.ActionChange); err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apierr.FieldValidation("label.update", "name", "This field may not be blank.")
			}
			p, err := s.core.liveProject(dbc, l.ProjectID)
			if err != nil {
				return err
			}
			if err := s.unique(dbc, p, name, l.ID); err != nil {
				return err
			}
			l.Name = name
		}
		if in.Type != nil {
			l.Type = *in.Type
		}
		out = l
		return s.core.Repos.Label.Save(dbc, l)
	})
	return out, err
}
