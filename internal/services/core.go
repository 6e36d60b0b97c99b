// Package services holds the domain services. Every mutation runs inside one
// transaction opened by the aggregate writer and is checked by the access
// evaluator against the caller attached to the request context.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/access"
	"github.com/yungbote/testbridge-backend/internal/data/aggregates"
	"github.com/yungbote/testbridge-backend/internal/data/attachments"
	"github.com/yungbote/testbridge-backend/internal/data/history"
	"github.com/yungbote/testbridge-backend/internal/data/labels"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/softdelete"
	"github.com/yungbote/testbridge-backend/internal/data/stats"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/blob"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// Core carries the stores shared by every domain service.
type Core struct {
	DB          *gorm.DB
	Log         *logger.Logger
	Writer      *aggregates.Writer
	Access      *access.Evaluator
	Repos       *repos.Set
	Trees       *tree.Store
	History     *history.Store
	Labels      *labels.Store
	Attachments *attachments.Store
	Stats       *stats.Engine
	SoftDelete  *softdelete.Engine
	Now         func() time.Time
}

// NewCore wires the shared stores over db. hooks may be nil.
func NewCore(db *gorm.DB, log *logger.Logger, blobs blob.Store, resolutions []attachments.Resolution, hooks aggregates.Hooks) *Core {
	trees := tree.NewStore(db, log)
	statsEngine := stats.NewEngine(db, log)
	labelStore := labels.NewStore(db, log)
	return &Core{
		DB:          db,
		Log:         log,
		Writer:      aggregates.NewWriter(aggregates.NewGormTxRunner(db), hooks, log),
		Access:      access.NewEvaluator(access.NewGormStore(db), log),
		Repos:       repos.NewSet(db, log),
		Trees:       trees,
		History:     history.NewStore(db, log),
		Labels:      labelStore,
		Attachments: attachments.NewStore(db, blobs, resolutions, log),
		Stats:       statsEngine,
		SoftDelete:  softdelete.NewEngine(db, trees, statsEngine, labelStore, log),
	}
}

func (c *Core) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// read opens a non-transactional dbctx for queries.
func read(ctx context.Context) dbctx.Context { return dbctx.Context{Ctx: ctx} }

func subject(ctx context.Context) access.Subject {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		return access.Subject{}
	}
	return access.Subject{UserID: rd.UserID, IsSuperuser: rd.IsSuperuser}
}

// actor returns the caller id as a nullable column value.
func actor(ctx context.Context) *uint {
	id := ctxutil.UserID(ctx)
	if id == 0 {
		return nil
	}
	return &id
}

func (c *Core) check(ctx context.Context, projectID *uint, model string, action access.Action) error {
	return c.Access.Check(ctx, access.Request{Subject: subject(ctx), ProjectID: projectID, Model: model, Action: action})
}

func (c *Core) checkIn(ctx context.Context, projectID uint, model string, action access.Action) error {
	return c.check(ctx, &projectID, model, action)
}

// liveProject loads a project that is neither deleted nor missing.
func (c *Core) liveProject(dbc dbctx.Context, id uint) (*domain.Project, error) {
	return c.Repos.Project.Get(dbc, id)
}

// requireSameProject rejects references into another project.
func requireSameProject(op, field string, want, got uint) error {
	if want != got {
		return apierr.FieldValidation(op, field, "Object does not belong to the project.")
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func uniq(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
