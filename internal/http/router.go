package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/testbridge-backend/internal/domain"
	httpH "github.com/yungbote/testbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/testbridge-backend/internal/http/middleware"
	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	TracingEnabled bool
	CORSOrigins    []string

	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler          *httpH.HealthHandler
	AuthHandler            *httpH.AuthHandler
	UserHandler            *httpH.UserHandler
	ProjectHandler         *httpH.ProjectHandler
	SuiteHandler           *httpH.SuiteHandler
	CaseHandler            *httpH.CaseHandler
	PlanHandler            *httpH.PlanHandler
	TestHandler            *httpH.TestHandler
	ResultHandler          *httpH.ResultHandler
	ParameterHandler       *httpH.ParameterHandler
	StatusHandler          *httpH.StatusHandler
	LabelHandler           *httpH.LabelHandler
	CustomAttributeHandler *httpH.CustomAttributeHandler
	AttachmentHandler      *httpH.AttachmentHandler
	CommentHandler         *httpH.CommentHandler
	RoleHandler            *httpH.RoleHandler
	NotificationHandler    *httpH.NotificationHandler
	SystemMessageHandler   *httpH.SystemMessageHandler
	ArchiveHandler         *httpH.ArchiveHandler
	CopyHandler            *httpH.CopyHandler
	SocketHandler          *httpH.NotificationSocketHandler
}

// crud is the handler set of a collection mounted at /<path>/ and /<path>/:id/.
type crud struct {
	list, get, create, update gin.HandlerFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	if cfg.TracingEnabled {
		name := cfg.ServiceName
		if name == "" {
			name = "testbridge"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Recover(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	var auth []gin.HandlerFunc
	if cfg.AuthMiddleware != nil {
		auth = append(auth, cfg.AuthMiddleware.RequireAuth())
	}
	if cfg.SocketHandler != nil {
		chain := append(append([]gin.HandlerFunc{}, auth...), cfg.SocketHandler.Serve)
		r.GET("/ws/notifications/:user_id/", chain...)
	}

	for _, version := range []string{"v1", "v2"} {
		api := r.Group("/api/" + version)
		if cfg.AuthHandler != nil {
			api.POST("/auth/login/", cfg.AuthHandler.Login)
		}
		protected := api.Group("/", auth...)
		registerAPI(protected, cfg, version == "v2")
	}
	return r
}

func registerAPI(g *gin.RouterGroup, cfg RouterConfig, v2 bool) {
	mount := func(path string, kind domain.Kind, h crud) {
		g.GET(path+"/", h.list)
		g.POST(path+"/", h.create)
		g.GET(path+"/:id/", h.get)
		g.PATCH(path+"/:id/", h.update)
		g.PUT(path+"/:id/", h.update)
		if kind == "" || cfg.ArchiveHandler == nil {
			return
		}
		ah := cfg.ArchiveHandler
		g.DELETE(path+"/:id/", ah.Delete(kind))
		g.GET(path+"/deleted/", ah.DeletedList(kind))
		g.POST(path+"/deleted/recover/", ah.DeletedRecover(kind))
		g.POST(path+"/deleted/remove/", ah.DeletedRemove(kind))
		if v2 {
			g.POST(path+"/archive-preview/", ah.Preview(kind))
			g.POST(path+"/archive-commit/", ah.Commit)
			g.POST(path+"/archive-restore/", ah.Restore(kind))
		}
	}

	if h := cfg.AuthHandler; h != nil {
		g.POST("/auth/logout/", h.Logout)
	}
	if h := cfg.UserHandler; h != nil {
		g.GET("/users/me/", h.Me)
		g.PATCH("/users/me/config/", h.UpdateConfig)
		mount("/users", "", crud{h.List, h.Get, h.Create, h.Update})
	}
	if h := cfg.ProjectHandler; h != nil {
		mount("/projects", domain.KindProject, crud{h.List, h.Get, h.Create, h.Update})
		g.POST("/projects/:id/icon/", h.UploadIcon)
		g.GET("/projects/:id/icon/", h.Icon)
		g.GET("/projects/:id/progress/", h.Progress)
	}
	if h := cfg.SuiteHandler; h != nil {
		mount("/suites", domain.KindSuite, crud{h.List, h.Get, h.Create, h.Update})
		g.GET("/suites/:id/ancestors/", h.Ancestors)
		g.GET("/suites/:id/descendants/", h.Descendants)
	}
	if h := cfg.CaseHandler; h != nil {
		mount("/cases", domain.KindCase, crud{h.List, h.Get, h.Create, h.Update})
		g.GET("/cases/:id/steps/", h.Steps)
		g.GET("/cases/:id/history/", h.History)
		g.GET("/cases/:id/history/:history_id/", h.Version)
		g.POST("/cases/:id/history/:history_id/restore/", h.Restore)
	}
	if h := cfg.PlanHandler; h != nil {
		mount("/testplans", domain.KindPlan, crud{h.List, h.Get, h.Create, h.Update})
		g.GET("/testplans/progress/", h.Progress)
		g.GET("/testplans/:id/statistics/", h.Statistics)
		g.GET("/testplans/:id/ancestors/", h.Ancestors)
		g.GET("/testplans/:id/descendants/", h.Descendants)
	}
	if h := cfg.TestHandler; h != nil {
		g.GET("/tests/", h.List)
		g.GET("/tests/:id/", h.Get)
		g.PATCH("/tests/:id/", h.Update)
		g.PUT("/tests/bulk-update/", h.BulkUpdate)
		if ah := cfg.ArchiveHandler; ah != nil {
			g.DELETE("/tests/:id/", ah.Delete(domain.KindTest))
			g.GET("/tests/deleted/", ah.DeletedList(domain.KindTest))
			g.POST("/tests/deleted/recover/", ah.DeletedRecover(domain.KindTest))
			g.POST("/tests/deleted/remove/", ah.DeletedRemove(domain.KindTest))
			if v2 {
				g.POST("/tests/archive-preview/", ah.Preview(domain.KindTest))
				g.POST("/tests/archive-commit/", ah.Commit)
				g.POST("/tests/archive-restore/", ah.Restore(domain.KindTest))
			}
		}
	}
	if h := cfg.ResultHandler; h != nil {
		mount("/results", domain.KindResult, crud{h.List, h.Get, h.Create, h.Update})
	}
	if h := cfg.ParameterHandler; h != nil {
		mount("/parameters", domain.KindParameter, crud{h.List, h.Get, h.Create, h.Update})
	}
	if h := cfg.StatusHandler; h != nil {
		mount("/statuses", domain.KindStatus, crud{h.List, h.Get, h.Create, h.Update})
	}
	if h := cfg.LabelHandler; h != nil {
		mount("/labels", domain.KindLabel, crud{h.List, h.Get, h.Create, h.Update})
	}
	if h := cfg.CustomAttributeHandler; h != nil {
		mount("/custom-attributes", domain.KindCustomAttribute, crud{h.List, h.Get, h.Create, h.Update})
	}
	if h := cfg.AttachmentHandler; h != nil {
		g.GET("/attachments/", h.List)
		g.POST("/attachments/", h.Upload)
		g.GET("/attachments/:id/", h.Get)
		g.GET("/attachments/:id/file/", h.Serve)
		g.DELETE("/attachments/:id/", h.Delete)
	}
	if h := cfg.CommentHandler; h != nil {
		g.GET("/comments/", h.List)
		g.POST("/comments/", h.Create)
		g.PATCH("/comments/:id/", h.Update)
		g.DELETE("/comments/:id/", h.Delete)
	}
	if h := cfg.RoleHandler; h != nil {
		g.GET("/roles/permissions/", h.Permissions)
		mount("/roles", "", crud{h.List, h.Get, h.Create, h.Update})
		g.GET("/memberships/", h.Memberships)
		g.POST("/memberships/", h.Assign)
		g.DELETE("/memberships/:id/", h.Unassign)
	}
	if h := cfg.NotificationHandler; h != nil {
		g.GET("/notifications/", h.List)
		g.GET("/notifications/unread-count/", h.UnreadCount)
		g.POST("/notifications/mark-as/", h.MarkAs)
		g.GET("/notification-settings/", h.Settings)
		g.POST("/notification-settings/enable/", h.Enable)
		g.POST("/notification-settings/disable/", h.Disable)
	}
	if h := cfg.SystemMessageHandler; h != nil {
		g.GET("/system-messages/", h.List)
		g.POST("/system-messages/", h.Create)
		g.PATCH("/system-messages/:id/", h.Update)
		g.DELETE("/system-messages/:id/", h.Delete)
	}
	if h := cfg.CopyHandler; h != nil {
		g.POST("/testplans/copy/", h.Plans)
		g.POST("/suites/copy/", h.Suites)
		g.POST("/cases/copy/", h.Cases)
	}
}
