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

type ParameterInput struct {
	GroupName string `json:"group_name"`
	Data      string `json:"data"`
}

type ParameterService interface {
	List(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.Parameter], error)
	Get(ctx context.Context, id uint) (*domain.Parameter, error)
	Create(ctx context.Context, projectID uint, in ParameterInput) (*domain.Parameter, error)
	Update(ctx context.Context, id uint, in ParameterInput) (*domain.Parameter, error)
	// Ensure returns the live parameter with the same group and value in the
	// project, creating it when absent.
	Ensure(dbc dbctx.Context, projectID uint, in ParameterInput) (*domain.Parameter, error)
}

type parameterService struct {
	core *Core
	log  *logger.Logger
}

func NewParameterService(core *Core) ParameterService {
	return &parameterService{core: core, log: core.Log.With("service", "ParameterService")}
}

func (s *parameterService) List(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.Parameter], error) {
	if err := s.core.checkIn(ctx, projectID, "parameter", access.ActionView); err != nil {
		return nil, err
	}
	return s.core.Repos.Parameter.List(read(ctx), q, repos.ProjectScope(projectID))
}

func (s *parameterService) Get(ctx context.Context, id uint) (*domain.Parameter, error) {
	p, err := s.core.Repos.Parameter.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, p.ProjectID, "parameter", access.ActionView); err != nil {
		return nil, err
	}
	return p, nil
}

func sameParameter(projectID uint, in ParameterInput, exceptID uint) repos.Scope {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("project_id = ? AND group_name = ? AND data = ?", projectID, in.GroupName, in.Data)
		if exceptID != 0 {
			db = db.Where("id <> ?", exceptID)
		}
		return db
	}
}

func normalizeParameter(in ParameterInput) (ParameterInput, error) {
	in.GroupName = strings.TrimSpace(in.GroupName)
	in.Data = strings.TrimSpace(in.Data)
	if in.GroupName == "" {
		return in, apierr.FieldValidation("parameter.validate", "group_name", "This field may not be blank.")
	}
	if in.Data == "" {
		return in, apierr.FieldValidation("parameter.validate", "data", "This field may not be blank.")
	}
	return in, nil
}

func (s *parameterService) unique(dbc dbctx.Context, projectID uint, in ParameterInput, exceptID uint) error {
	exists, err := s.core.Repos.Parameter.Exists(dbc, sameParameter(projectID, in, exceptID))
	if err != nil {
		return err
	}
	if exists {
		return apierr.Validation("parameter.validate", "The fields group_name, data, project must make a unique set.")
	}
	return nil
}

func (s *parameterService) Create(ctx context.Context, projectID uint, in ParameterInput) (*domain.Parameter, error) {
	if err := s.core.checkIn(ctx, projectID, "parameter", access.ActionAdd); err != nil {
		return nil, err
	}
	in, err := normalizeParameter(in)
	if err != nil {
		return nil, err
	}
	out := &domain.Parameter{ProjectID: projectID, GroupName: in.GroupName, Data: in.Data}
	err = s.core.Writer.Write(ctx, "parameter.create", func(dbc dbctx.Context) error {
		if _, err := s.core.liveProject(dbc, projectID); err != nil {
			return err
		}
		if err := s.unique(dbc, projectID, in, 0); err != nil {
			return err
		}
		return s.core.Repos.Parameter.Create(dbc, out)
	})
	return out, err
}

func (s *parameterService) Update(ctx context.Context, id uint, in ParameterInput) (*domain.Parameter, error) {
	in, err := normalizeParameter(in)
	if err != nil {
		return nil, err
	}
	var out *domain.Parameter
	err = s.core.Writer.Write(ctx, "parameter.update", func(dbc dbctx.Context) error {
		p, err := s.core.Repos.Parameter.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, p.ProjectID, "parameter", access.ActionChange); err != nil {
			return err
		}
		if err := s.unique(dbc, p.ProjectID, in, id); err != nil {
			return err
		}
		p.GroupName, p.Data = in.GroupName, in.Data
		out = p
		return s.core.Repos.Parameter.Save(dbc, p)
	})
	return out, err
}

func (s *parameterService) Ensure(dbc dbctx.Context, projectID uint, in ParameterInput) (*domain.Parameter, error) {
	found, err := s.core.Repos.Parameter.Find(dbc, sameParameter(projectID, in, 0))
	if err != nil {
		return nil, err
	}
	if len(found) > 0 {
		return found[0], nil
	}
	p := &domain.Parameter{ProjectID: projectID, GroupName: in.GroupName, Data: in.Data}
	if err := s.core.Repos.Parameter.Create(dbc, p); err != nil {
		return nil, err
	}
	return p, nil
}
