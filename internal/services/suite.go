package services

import (
	"context"
	"strings"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/stats"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type SuiteInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	// Parent is only applied when ParentSet; a nil Parent makes the suite a root.
	Parent    *uint `json:"parent"`
	ParentSet bool  `json:"-"`
}

type SuiteService interface {
	List(ctx context.Context, projectID uint, q repos.Query, f TreeFilter) (*repos.Page[domain.Suite], error)
	Tree(ctx context.Context, projectID uint, f TreeFilter) ([]*TreeNode[domain.Suite], error)
	Get(ctx context.Context, id uint) (*domain.Suite, error)
	Create(ctx context.Context, projectID uint, in SuiteInput) (*domain.Suite, error)
	Update(ctx context.Context, id uint, in SuiteInput) (*domain.Suite, error)
	Ancestors(ctx context.Context, id uint) ([]*domain.Suite, error)
	Descendants(ctx context.Context, id uint) ([]*domain.Suite, error)
}

type suiteService struct {
	core *Core
	log  *logger.Logger
}

func NewSuiteService(core *Core) SuiteService {
	return &suiteService{core: core, log: core.Log.With("service", "SuiteService")}
}

func (s *suiteService) List(ctx context.Context, projectID uint, q repos.Query, f TreeFilter) (*repos.Page[domain.Suite], error) {
	if err := s.core.checkIn(ctx, projectID, "testsuite", access.ActionView); err != nil {
		return nil, err
	}
	return s.core.Repos.Suite.List(read(ctx), q, repos.ProjectScope(projectID), f.Scope())
}

func (s *suiteService) Tree(ctx context.Context, projectID uint, f TreeFilter) ([]*TreeNode[domain.Suite], error) {
	if err := s.core.checkIn(ctx, projectID, "testsuite", access.ActionView); err != nil {
		return nil, err
	}
	dbc := read(ctx)
	scopes := []repos.Scope{repos.ProjectScope(projectID)}
	if f.ParentSet && len(f.Parents) > 0 {
		ids, err := s.core.Trees.DescendantIDs(dbc, tree.Suites, f.Parents, false)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, repos.IDsScope(ids))
	}
	rows, err := s.core.Repos.Suite.Find(dbc, scopes...)
	if err != nil {
		return nil, err
	}
	return BuildTree(rows, func(x *domain.Suite) uint { return x.ID }, func(x *domain.Suite) *uint { return x.ParentID }), nil
}

func (s *suiteService) Get(ctx context.Context, id uint) (*domain.Suite, error) {
	su, err := s.core.Repos.Suite.Get(read(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.core.checkIn(ctx, su.ProjectID, "testsuite", access.ActionView); err != nil {
		return nil, err
	}
	return su, nil
}

func (s *suiteService) parent(dbc dbctx.Context, projectID uint, id *uint) error {
	if id == nil {
		return nil
	}
	p, err := s.core.Repos.Suite.Get(dbc, *id)
	if apierr.IsCode(err, apierr.CodeNotFound) {
		return apierr.FieldValidation("suite.parent", "parent", "Parent suite does not exist.")
	}
	if err != nil {
		return err
	}
	return requireSameProject("suite.parent", "parent", projectID, p.ProjectID)
}

func (s *suiteService) Create(ctx context.Context, projectID uint, in SuiteInput) (*domain.Suite, error) {
	if err := s.core.checkIn(ctx, projectID, "testsuite", access.ActionAdd); err != nil {
		return nil, err
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return nil, apierr.FieldValidation("suite.create", "name", "This field is required.")
	}
	out := &domain.Suite{ProjectID: projectID, Name: strings.TrimSpace(*in.Name)}
	if in.Description != nil {
		out.Description = *in.Description
	}
	err := s.core.Writer.Write(ctx, "suite.create", func(dbc dbctx.Context) error {
		if _, err := s.core.liveProject(dbc, projectID); err != nil {
			return err
		}
		if err := s.parent(dbc, projectID, in.Parent); err != nil {
			return err
		}
		if err := s.core.Repos.Suite.Create(dbc, out); err != nil {
			return err
		}
		node, err := s.core.Trees.Place(dbc, tree.Suites, out.ID, in.Parent)
		if err != nil {
			return err
		}
		out.ParentID, out.Path, out.TreeID = node.ParentID, node.Path, node.TreeID
		return s.core.Stats.Track(dbc, domain.KindSuite, projectID, stats.State{}, stats.Live(false))
	})
	return out, err
}

func (s *suiteService) Update(ctx context.Context, id uint, in SuiteInput) (*domain.Suite, error) {
	var out *domain.Suite
	err := s.core.Writer.Write(ctx, "suite.update", func(dbc dbctx.Context) error {
		su, err := s.core.Repos.Suite.Get(dbc, id)
		if err != nil {
			return err
		}
		if err := s.core.checkIn(ctx, su.ProjectID, "testsuite", access.ActionChange); err != nil {
			return err
		}
		cols := map[string]any{}
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return apierr.FieldValidation("suite.update", "name", "This field may not be blank.")
			}
			cols["name"] = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			cols["description"] = *in.Description
		}
		if len(cols) > 0 {
			if err := s.core.Repos.Suite.Updates(dbc, id, cols); err != nil {
				return err
			}
		}
		if in.ParentSet && !sameRef(in.Parent, su.ParentID) {
			if err := s.parent(dbc, su.ProjectID, in.Parent); err != nil {
				return err
			}
			if _, err := s.core.Trees.Move(dbc, tree.Suites, id, in.Parent); err != nil {
				return treeErr("suite.move", err)
			}
		}
		out, err = s.core.Repos.Suite.Get(dbc, id)
		return err
	})
	return out, err
}

func (s *suiteService) nodes(ctx context.Context, id uint, ancestors bool) ([]*domain.Suite, error) {
	su, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dbc := read(ctx)
	var nodes []tree.Node
	if ancestors {
		nodes, err = s.core.Trees.Ancestors(dbc, tree.Suites, []uint{su.ID}, false)
	} else {
		nodes, err = s.core.Trees.Descendants(dbc, tree.Suites, []uint{su.ID}, false)
	}
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	rows, err := s.core.Repos.Suite.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	return orderByIDs(rows, ids, func(x *domain.Suite) uint { return x.ID }), nil
}

func (s *suiteService) Ancestors(ctx context.Context, id uint) ([]*domain.Suite, error) {
	return s.nodes(ctx, id, true)
}

func (s *suiteService) Descendants(ctx context.Context, id uint) ([]*domain.Suite, error) {
	return s.nodes(ctx, id, false)
}

func sameRef(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// orderByIDs reorders rows to follow ids.
func orderByIDs[T any](rows []*T, ids []uint, id func(*T) uint) []*T {
	byID := make(map[uint]*T, len(rows))
	for _, r := range rows {
		byID[id(r)] = r
	}
	out := make([]*T, 0, len(rows))
	for _, i := range ids {
		if r, ok := byID[i]; ok {
			out = append(out, r)
		}
	}
	return out
}
