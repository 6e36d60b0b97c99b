package app

import (
	"fmt"

	"github.com/yungbote/testbridge-backend/internal/data/softdelete"
	"github.com/yungbote/testbridge-backend/internal/jobs"
	"github.com/yungbote/testbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/testbridge-backend/internal/jobs/worker"
	"github.com/yungbote/testbridge-backend/internal/observability"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/realtime"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type Services struct {
	Auth            services.AuthService
	User            services.UserService
	Project         services.ProjectService
	Suite           services.SuiteService
	Case            services.CaseService
	Plan            services.PlanService
	Test            services.TestService
	Result          services.ResultService
	Parameter       services.ParameterService
	Status          services.StatusService
	Label           services.LabelService
	CustomAttribute services.CustomAttributeService
	Attachment      services.AttachmentService
	Comment         services.CommentService
	Role            services.RoleService
	Notification    services.NotificationService
	SystemMessage   services.SystemMessageService
	Archive         services.ArchiveService
	Copy            services.CopyService

	Worker *worker.Worker
}

func wireServices(log *logger.Logger, cfg Config, core *services.Core, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	registry := runtime.NewRegistry()
	w := worker.NewWorker(log, core.Repos.Task, registry, metrics, worker.Config{
		Concurrency: cfg.WorkerConcurrency,
		Timeout:     cfg.TaskTimeout,
	})
	queue := jobs.NewQueue(core.Repos.Task, cfg.TaskMaxAttempts, w.Wake)

	publisher := realtime.CountPublisher{Sink: clients.Bus}
	notify := services.NewNotificationService(core, publisher, queue, clients.Mail != nil)
	attrs := services.NewCustomAttributeService(core)
	params := services.NewParameterService(core)
	previewer := softdelete.NewPreviewer(core.SoftDelete, clients.PreviewCache, []byte(cfg.ArchiveSecret), cfg.ArchivePreviewTTL, log)

	fanout := jobs.FanoutHandler{Writer: core.Writer, Notify: notify, Log: log.With("task", services.TaskNotificationsFanout)}
	if err := jobs.Register(registry, fanout, clients.Mail); err != nil {
		return Services{}, fmt.Errorf("register task handlers: %w", err)
	}

	return Services{
		Auth:            services.NewAuthService(core, cfg.TokenTTL),
		User:            services.NewUserService(core),
		Project:         services.NewProjectService(core),
		Suite:           services.NewSuiteService(core),
		Case:            services.NewCaseService(core, attrs),
		Plan:            services.NewPlanService(core, attrs),
		Test:            services.NewTestService(core, notify, queue, cfg.BulkNotifyInlineLimit),
		Result:          services.NewResultService(core, attrs, notify),
		Parameter:       params,
		Status:          services.NewStatusService(core),
		Label:           services.NewLabelService(core),
		CustomAttribute: attrs,
		Attachment:      services.NewAttachmentService(core),
		Comment:         services.NewCommentService(core, notify),
		Role:            services.NewRoleService(core),
		Notification:    notify,
		SystemMessage:   services.NewSystemMessageService(core),
		Archive:         services.NewArchiveService(core, previewer),
		Copy:            services.NewCopyService(core, params),
		Worker:          w,
	}, nil
}
