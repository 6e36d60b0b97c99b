package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type StatusInput struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

type StatusService interface {
	List(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.ResultStatus], error)
	Get(ctx context.Context, id uint) (*domain.ResultStatus, error)
	// Create adds a custom status to a project, or a system status when
	// projectID is nil.
	Create(ctx context.Context, projectID *uint, in StatusInput) (*domain.ResultStatus, error)
	Update(ctx context.Context, id uint, in StatusInput) (*domain.ResultStatus, error)
}

type statusService struct {
	core *Core
	log  *logger.Logger
}

func NewStatusService(core *Core) StatusService {
	return &statusService{core: core, log: core.Log.With("service", "StatusService")}
}

// SortStatuses orders statuses by the project's status_order positions.
// Statuses without a position follow in id order.
func SortStatuses(statuses []*domain.ResultStatus, order map[string]int) {
	pos := func(s *domain.ResultStatus) (int, bool) {
		p, ok := order[strconv.FormatUint(uint64(s.ID), 10)]
		return p, ok
	}
	sort.SliceStable(statuses, func(i, j int) bool {
		pi, oki := pos(statuses[i])
		pj, okj := pos(statuses[j])
		switch {
		case oki && okj && pi != pj:
			return pi < pj
		case oki != okj:
			return oki
		}
		return statuses[i].ID < statuses[j].ID
	})
}

func (s *statusService) List(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[domain.ResultStatus], error) {
	if err := s.core.checkIn(ctx, projectID, "resultstatus", access.ActionView); err != nil {
		return nil, err
	}
	dbc := read(ctx)
	page, err := s.core.Repos.Status.List(dbc, q, repos.VisibleToProject(projectID))
	if err != nil {
		return nil, err
	}
	if len(q.Ordering) == 0 {
		p, err := s.core.Repos.Project.Get(dbc, projectID)
		if err != nil {
			return nil, err
		}
		if order := p.Settings.Data().StatusOrder; len(order) > 0 {
			SortStatuses(page.Results, order)
		}
	}
	return page, nil
}

func (s *statusService) Get(ctx context.Context, id uint) (*domain.ResultStatus, error) {
	st, err := s.core.Repos.Status.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if st.ProjectID != nil {
		if err := s.core.checkIn(ctx, *st.ProjectID, "resultstatus", access.ActionView); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// clash rejects a name used by a system status or another live status of the project.
func (s *statusService) clash(dbc dbctx.Context, projectID *uint, name string, exceptID uint) error {
	var hit domain.ResultStatus
	q := s.core.Repos.Status.DB(dbc).Where("LOWER(name) = ? AND is_deleted = ? AND id <> ?", strings.ToLower(name), false, exceptID)
	if projectID == nil {
		q = q.Where("project_id IS NULL")
	} else {
		q = q.Where("project_id IS NULL OR project_id = ?", *projectID)
	}
	res := q.Limit(1).Find(&hit)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	if hit.Type == domain.StatusSystem {
		return apierr.FieldValidation("status.clash", "name", fmt.Sprintf("Status name %q clashes with a system status.", hit.Name))
	}
	return apierr.FieldValidation("status.clash", "name", fmt.Sprintf("Status with name %q already exists in the project.", hit.Name))
}

func (s *statusService) Create(ctx context.Context, projectID *uint, in StatusInput) (*domain.ResultStatus, error) {
	if projectID == nil && !subject(ctx).IsSuperuser {
		return nil, apierr.Permission("status.create", "Only superusers can create system statuses.")
	}
	if err := s.core.check(ctx, projectID, "resultstatus", access.ActionAdd); err != nil {
		return nil, err
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, apierr.FieldValidation("status.create", "name", "This field is required.")
	}
	out := &domain.ResultStatus{ProjectID: projectID, Name: strings.TrimSpace(*in.Name), Type: domain.StatusCustom}
	if projectID == nil {
		out.Type = domain.StatusSystem
	}
	if in.Color != nil {
		out.Color = *in.Color
	}
	err := s.core.Writer.Write(ctx, "status.create", func(dbc dbctx.Context) error {
		if projectID != nil {
			if _, err := s.core.liveProject(dbc, *projectID); err != nil {
				return err
			}
		}
		if err := s.clash(dbc, projectID, out.Name, 0); err != nil {
			return err
		}
		return s.core.Repos.Status.Create(dbc, out)
	})
	return out, err
}

func (s *statusService) Update(ctx context.Context, id uint, in StatusInput) (*domain.ResultStatus, error) {
	var out *domain.ResultStatus
	err := s.core.Writer.Write(ctx, "status.update", func(dbc dbctx.Context) error {
		st, err := s.core.Repos.Status.Get(dbc, id)
		if err != nil {
			return err
		}
		if st.Type == domain.StatusSystem && !subject(ctx).IsSuperuser {
			return apierr.Permission("status.update", "System statuses cannot be changed.")
		}
		if err := s.core.check(ctx, st.ProjectID, "resultstatus", access.ActionChange); err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apierr.FieldValidation("status.update", "name", "This field may not be blank.")
			}
			if err := s.clash(dbc, st.ProjectID, name, st.ID); err != nil {
				return err
			}
			st.Name = name
		}
		if in.Color != nil {
			st.Color = *in.Color
		}
		out = st
		return s.core.Repos.Status.Save(dbc, st)
	})
	return out, err
}
