package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

const (
	TaskNotificationsFanout = "notifications.fanout"
	TaskEmailSend           = "email.send"
)

// CountPublisher pushes a recipient's unread count to its websocket group.
type CountPublisher interface {
	PublishCount(ctx context.Context, userID uint, count int64) error
}

// TaskQueue persists background tasks inside the caller's transaction.
type TaskQueue interface {
	Enqueue(dbc dbctx.Context, taskType string, payload any) error
}

// NotificationEvent is one notify call.
type NotificationEvent struct {
	Target    domain.Target     `json:"target"`
	Recipient uint              `json:"recipient"`
	Code      domain.ActionCode `json:"action_code"`
	Actor     *uint             `json:"actor,omitempty"`
	Vars      map[string]any    `json:"vars,omitempty"`
}

// EmailPayload is the body of an email.send task.
type EmailPayload struct {
	To      string `json:"to"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// FormatTemplate fills {name} placeholders from vars; unknown placeholders stay.
func FormatTemplate(tmpl string, vars map[string]any) string {
	if tmpl == "" || len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

type NotificationSettingView struct {
	ActionCode  domain.ActionCode `json:"action_code"`
	VerboseName string            `json:"verbose_name"`
	Enabled     bool              `json:"enabled"`
}

type NotificationService interface {
	// Notify writes an inbox row when the recipient subscribes to the action
	// code and publishes the new unread count once the transaction commits.
	Notify(dbc dbctx.Context, ev NotificationEvent) (*domain.Notification, error)
	NotifyMany(dbc dbctx.Context, evs []NotificationEvent) (int, error)
	List(ctx context.Context, q repos.Query, unread *bool) (*repos.Page[domain.Notification], error)
	UnreadCount(ctx context.Context, userID uint) (int64, error)
	MarkAs(ctx context.Context, read bool, ids []uint) (int64, error)
	Settings(ctx context.Context) ([]NotificationSettingView, error)
	Enable(ctx context.Context, codes []domain.ActionCode) error
	Disable(ctx context.Context, codes []domain.ActionCode) error
}

type notificationService struct {
	core      *Core
	log       *logger.Logger
	publisher CountPublisher
	tasks     TaskQueue
	email     bool
}

// NewNotificationService wires the engine; a nil publisher or queue disables
// pushes or mail copies respectively.
func NewNotificationService(core *Core, publisher CountPublisher, tasks TaskQueue, emailEnabled bool) NotificationService {
	return &notificationService{
		core:      core,
		log:       core.Log.With("service", "NotificationService"),
		publisher: publisher,
		tasks:     tasks,
		email:     emailEnabled && tasks != nil,
	}
}

func (s *notificationService) Notify(dbc dbctx.Context, ev NotificationEvent) (*domain.Notification, error) {
	setting, err := s.core.Repos.NotificationSetting.ByCode(dbc, ev.Code)
	if apierr.IsCode(err, apierr.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	subscribed, err := s.core.Repos.NotificationSetting.Subscribed(dbc, ev.Code, []uint{ev.Recipient})
	if err != nil {
		return nil, err
	}
	if !subscribed[ev.Recipient] {
		return nil, nil
	}
	vars := map[string]any{}
	for k, v := range ev.Vars {
		vars[k] = v
	}
	if _, ok := vars["actor"]; !ok {
		vars["actor"] = "Someone"
		if ev.Actor != nil {
			if u, err := s.core.Repos.User.Get(dbc, *ev.Actor); err == nil {
				vars["actor"] = u.Username
			}
		}
	}
	n := &domain.Notification{
		RecipientID:     ev.Recipient,
		ActorID:         ev.Actor,
		ActionCode:      ev.Code,
		TargetType:      ev.Target.Kind,
		TargetID:        ev.Target.ID,
		Verb:            FormatTemplate(setting.Message, vars),
		PlaceholderText: FormatTemplate(setting.PlaceholderText, vars),
		PlaceholderLink: FormatTemplate(setting.PlaceholderLink, vars),
		Unread:          true,
	}
	if err := s.core.Repos.Notification.Create(dbc, n); err != nil {
		return nil, err
	}
	s.publishAfterCommit(dbc, ev.Recipient)
	if err := s.mailCopy(dbc, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *notificationService) NotifyMany(dbc dbctx.Context, evs []NotificationEvent) (int, error) {
	written := 0
	for _, ev := range evs {
		n, err := s.Notify(dbc, ev)
		if err != nil {
			return written, err
		}
		if n != nil {
			written++
		}
	}
	return written, nil
}

func (s *notificationService) mailCopy(dbc dbctx.Context, n *domain.Notification) error {
	if !s.email {
		return nil
	}
	u, err := s.core.Repos.User.Get(dbc, n.RecipientID)
	if err != nil || strings.TrimSpace(u.Email) == "" {
		return nil
	}
	text := strings.TrimSpace(n.Verb + " " + n.PlaceholderText)
	return s.tasks.Enqueue(dbc, TaskEmailSend, EmailPayload{
		To:      u.Email,
		Name:    strings.TrimSpace(u.FirstName + " " + u.LastName),
		Subject: n.ActionCode.String(),
		Text:    text,
	})
}

// publishAfterCommit pushes the committed unread count; failures are logged only.
func (s *notificationService) publishAfterCommit(dbc dbctx.Context, userID uint) {
	if s.publisher == nil {
		return
	}
	dbc.AfterCommit(func(ctx context.Context) {
		count, err := s.core.Repos.Notification.UnreadCount(dbctx.Context{Ctx: ctx}, userID)
		if err != nil {
			s.log.Warn("unread count failed", "user_id", userID, "error", err)
			return
		}
		if err := s.publisher.PublishCount(ctx, userID, count); err != nil {
			s.log.Warn("notification count publish failed", "user_id", userID, "error", err)
		}
	})
}

func (s *notificationService) me(ctx context.Context) (uint, error) {
	id := ctxutil.UserID(ctx)
	if id == 0 {
		return 0, apierr.Auth("notifications", "Authentication credentials were not provided.")
	}
	return id, nil
}

func (s *notificationService) List(ctx context.Context, q repos.Query, unread *bool) (*repos.Page[domain.Notification], error) {
	uid, err := s.me(ctx)
	if err != nil {
		return nil, err
	}
	scopes := []repos.Scope{repos.RecipientScope(uid)}
	if unread != nil {
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB { return db.Where("unread = ?", *unread) })
	}
	return s.core.Repos.Notification.List(read(ctx), q, scopes...)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.core.Repos.Notification.UnreadCount(read(ctx), userID)
}

func (s *notificationService) MarkAs(ctx context.Context, markRead bool, ids []uint) (int64, error) {
	uid, err := s.me(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.core.Writer.Write(ctx, "notification.mark_as", func(dbc dbctx.Context) error {
		var err error
		n, err = s.core.Repos.Notification.MarkAs(dbc, uid, ids, !markRead)
		if err != nil {
			return err
		}
		s.publishAfterCommit(dbc, uid)
		return nil
	})
	return n, err
}

func (s *notificationService) Settings(ctx context.Context) ([]NotificationSettingView, error) {
	uid, err := s.me(ctx)
	if err != nil {
		return nil, err
	}
	dbc := read(ctx)
	all, err := s.core.Repos.NotificationSetting.Find(dbc)
	if err != nil {
		return nil, err
	}
	codes, err := s.core.Repos.NotificationSetting.SubscribedCodes(dbc, uid)
	if err != nil {
		return nil, err
	}
	on := map[domain.ActionCode]bool{}
	for _, c := range codes {
		on[c] = true
	}
	out := make([]NotificationSettingView, 0, len(all))
	for _, st := range all {
		out = append(out, NotificationSettingView{ActionCode: st.ActionCode, VerboseName: st.VerboseName, Enabled: on[st.ActionCode]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionCode < out[j].ActionCode })
	return out, nil
}

func (s *notificationService) toggle(ctx context.Context, codes []domain.ActionCode, on bool) error {
	uid, err := s.me(ctx)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return apierr.FieldValidation("notification.settings", "settings", "This list may not be empty.")
	}
	return s.core.Writer.Write(ctx, "notification.settings", func(dbc dbctx.Context) error {
		return s.core.Repos.NotificationSetting.SetSubscribed(dbc, uid, codes, on)
	})
}

func (s *notificationService) Enable(ctx context.Context, codes []domain.ActionCode) error {
	return s.toggle(ctx, codes, true)
}

func (s *notificationService) Disable(ctx context.Context, codes []domain.ActionCode) error {
	return s.toggle(ctx, codes, false)
}
