package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/data/db"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/http"
	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/envutil"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/realtime"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Core     *services.Core
	Services Services
	Metrics  *observability.Metrics
	Hub      *realtime.Hub
	Clients  Clients
	Router   *gin.Engine

	server       *http.Server
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger() (*logger.Logger, error) {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDB connects with cfg and applies migrations and seed rows.
func OpenDB(log *logger.Logger, cfg Config) (*db.Service, error) {
	svc, err := db.Open(cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.Migrate(); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return svc, nil
}

func New() (*App, error) {
	log, err := NewLogger()
	if err != nil {
		return nil, err
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if cfg.LogMode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	otelShutdown := observability.InitOTel(context.Background(), log, cfg.Otel)

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	dbService, err := OpenDB(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	blobs, err := resolveBlobStore(context.Background(), log, cfg.Storage)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	clients, err := wireClients(log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	core := wireRepos(dbService.DB(), log, cfg, blobs, metrics)
	serviceset, err := wireServices(log, cfg, core, clients, metrics)
	if err != nil {
		_ = clients.Bus.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	hub := realtime.NewHub(log, metrics.WSGauge())
	sqlDB, err := dbService.DB().DB()
	if err != nil {
		_ = clients.Bus.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("sql db handle: %w", err)
	}
	handlerset := wireHandlers(log, cfg, sqlDB, serviceset, hub)
	middleware := wireMiddleware(log, serviceset)
	router := wireRouter(log, cfg, metrics, handlerset, middleware)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           dbService,
		Core:         core,
		Services:     serviceset,
		Metrics:      metrics,
		Hub:          hub,
		Clients:      clients,
		Router:       router,
		server:       &http.Server{Engine: router},
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the bus forwarder, the task worker and the queue sampler.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Clients.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		cancel()
		a.cancel = nil
		return fmt.Errorf("start notification forwarder: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Services.Worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Log.Error("task worker stopped", "error", err)
		}
	}()

	a.Metrics.StartTaskQueueCollector(ctx, a.Log, a.DB.DB(), 15*time.Second)
	return nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.server.Run(addr)
}

// RebuildStats recomputes counters for one project, or for all when
// projectID is nil, and returns how many projects were rebuilt.
func (a *App) RebuildStats(ctx context.Context, projectID *uint) (int, error) {
	var ids []uint
	if projectID != nil {
		ids = []uint{*projectID}
	} else if err := a.DB.DB().WithContext(ctx).Model(&domain.Project{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("list projects: %w", err)
	}
	for i, id := range ids {
		err := a.Core.Writer.Write(ctx, "stats.rebuild", func(dbc dbctx.Context) error {
			_, err := a.Core.Stats.Rebuild(dbc, id)
			return err
		})
		if err != nil {
			return i, fmt.Errorf("rebuild project %d: %w", id, err)
		}
		a.Log.Info("project statistics rebuilt", "project_id", id)
	}
	return len(ids), nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.Log.Warn("http shutdown failed", "error", err)
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.wg.Wait()
	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.Close(); err != nil {
			a.Log.Warn("bus close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	a.Log.Sync()
}
