package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http"
	httpH "github.com/yungbote/testbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/testbridge-backend/internal/http/middleware"
	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health          *httpH.HealthHandler
	Auth            *httpH.AuthHandler
	User            *httpH.UserHandler
	Project         *httpH.ProjectHandler
	Suite           *httpH.SuiteHandler
	Case            *httpH.CaseHandler
	Plan            *httpH.PlanHandler
	Test            *httpH.TestHandler
	Result          *httpH.ResultHandler
	Parameter       *httpH.ParameterHandler
	Status          *httpH.StatusHandler
	Label           *httpH.LabelHandler
	CustomAttribute *httpH.CustomAttributeHandler
	Attachment      *httpH.AttachmentHandler
	Comment         *httpH.CommentHandler
	Role            *httpH.RoleHandler
	Notification    *httpH.NotificationHandler
	SystemMessage   *httpH.SystemMessageHandler
	Archive         *httpH.ArchiveHandler
	Copy            *httpH.CopyHandler
	Socket          *httpH.NotificationSocketHandler
}

func wireHandlers(log *logger.Logger, cfg Config, db httpH.Pinger, s Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:          httpH.NewHealthHandler(db),
		Auth:            httpH.NewAuthHandler(s.Auth),
		User:            httpH.NewUserHandler(s.User),
		Project:         httpH.NewProjectHandler(s.Project),
		Suite:           httpH.NewSuiteHandler(s.Suite),
		Case:            httpH.NewCaseHandler(s.Case),
		Plan:            httpH.NewPlanHandler(s.Plan),
		Test:            httpH.NewTestHandler(s.Test),
		Result:          httpH.NewResultHandler(s.Result),
		Parameter:       httpH.NewParameterHandler(s.Parameter),
		Status:          httpH.NewStatusHandler(s.Status),
		Label:           httpH.NewLabelHandler(s.Label),
		CustomAttribute: httpH.NewCustomAttributeHandler(s.CustomAttribute),
		Attachment:      httpH.NewAttachmentHandler(s.Attachment),
		Comment:         httpH.NewCommentHandler(s.Comment),
		Role:            httpH.NewRoleHandler(s.Role),
		Notification:    httpH.NewNotificationHandler(s.Notification),
		SystemMessage:   httpH.NewSystemMessageHandler(s.SystemMessage),
		Archive:         httpH.NewArchiveHandler(s.Archive),
		Copy:            httpH.NewCopyHandler(s.Copy),
		Socket:          httpH.NewNotificationSocketHandler(log, hub, s.Notification, cfg.CORSOrigins),
	}
}

func wireMiddleware(log *logger.Logger, s Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{Auth: httpMW.NewAuthMiddleware(log, s.Auth)}
}

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, h Handlers, mw Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		ServiceName:    cfg.Otel.ServiceName,
		TracingEnabled: cfg.Otel.Enabled,
		CORSOrigins:    cfg.CORSOrigins,
		AuthMiddleware: mw.Auth,

		HealthHandler:          h.Health,
		AuthHandler:            h.Auth,
		UserHandler:            h.User,
		ProjectHandler:         h.Project,
		SuiteHandler:           h.Suite,
		CaseHandler:            h.Case,
		PlanHandler:            h.Plan,
		TestHandler:            h.Test,
		ResultHandler:          h.Result,
		ParameterHandler:       h.Parameter,
		StatusHandler:          h.Status,
		LabelHandler:           h.Label,
		CustomAttributeHandler: h.CustomAttribute,
		AttachmentHandler:      h.Attachment,
		CommentHandler:         h.Comment,
		RoleHandler:            h.Role,
		NotificationHandler:    h.Notification,
		SystemMessageHandler:   h.SystemMessage,
		ArchiveHandler:         h.Archive,
		CopyHandler:            h.Copy,
		SocketHandler:          h.Socket,
	})
}
