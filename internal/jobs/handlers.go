package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yungbote/testbridge-backend/internal/data/aggregates"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/platform/sendgrid"
	"github.com/yungbote/testbridge-backend/internal/services"
)

// FanoutHandler writes bulk assignment notifications in one transaction.
type FanoutHandler struct {
	Writer *aggregates.Writer
	Notify services.NotificationService
	Log    *logger.Logger
}

func (FanoutHandler) Type() string { return services.TaskNotificationsFanout }

func (h FanoutHandler) Run(ctx context.Context, t *domain.Task) error {
	var evs []services.NotificationEvent
	if err := json.Unmarshal(t.Payload, &evs); err != nil {
		return runtime.Permanent(fmt.Errorf("decode fanout payload: %w", err))
	}
	var written int
	err := h.Writer.Write(ctx, "notifications.fanout", func(dbc dbctx.Context) error {
		n, err := h.Notify.NotifyMany(dbc, evs)
		written = n
		return err
	})
	if err != nil {
		return err
	}
	h.Log.Debug("notifications fanned out", "task_id", t.ID, "events", len(evs), "written", written)
	return nil
}

// EmailHandler sends the mail copy of a notification.
type EmailHandler struct {
	Client sendgrid.Client
}

func (EmailHandler) Type() string { return services.TaskEmailSend }

func (h EmailHandler) Run(ctx context.Context, t *domain.Task) error {
	var p services.EmailPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return runtime.Permanent(fmt.Errorf("decode email payload: %w", err))
	}
	_, err := h.Client.Send(ctx, sendgrid.SendEmailRequest{
		To:         []sendgrid.EmailAddress{{Email: p.To, Name: p.Name}},
		Subject:    p.Subject,
		Text:       p.Text,
		Categories: []string{"notification"},
	})
	var he *sendgrid.HTTPError
	if errors.As(err, &he) && !he.Retryable() {
		return runtime.Permanent(err)
	}
	return err
}

// Register installs the handlers on r. A nil mail client leaves email.send
// unhandled, so such tasks land in the failure queue.
func Register(r *runtime.Registry, fanout FanoutHandler, mail sendgrid.Client) error {
	if err := r.Register(fanout); err != nil {
		return err
	}
	if mail == nil {
		return nil
	}
	return r.Register(EmailHandler{Client: mail})
}
