package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/testbridge-backend/internal/data/aggregates"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/jobs/runtime"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/sendgrid"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type recordingNotifier struct {
	services.NotificationService
	got []services.NotificationEvent
}

func (r *recordingNotifier) NotifyMany(_ dbctx.Context, evs []services.NotificationEvent) (int, error) {
	r.got = append(r.got, evs...)
	return len(evs), nil
}

type fakeMailer struct {
	reqs []sendgrid.SendEmailRequest
	err  error
}

func (f *fakeMailer) Send(_ context.Context, req sendgrid.SendEmailRequest) (*sendgrid.SendEmailResult, error) {
	f.reqs = append(f.reqs, req)
	return &sendgrid.SendEmailResult{StatusCode: 202}, f.err
}

func task(t *testing.T, taskType string, payload any) *domain.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &domain.Task{ID: 1, Type: taskType, Payload: datatypes.JSON(raw)}
}

func TestQueueEnqueueAfterCommit(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewTaskRepo(db, log)
	woken := 0
	q := NewQueue(repo, 0, func() { woken++ })

	runner := aggregates.NewGormTxRunner(db)
	err := runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		require.NoError(t, q.Enqueue(dbc, services.TaskEmailSend, services.EmailPayload{To: "a@example.com"}))
		assert.Zero(t, woken)
		return errors.New("rollback")
	})
	require.Error(t, err)
	assert.Zero(t, woken)

	require.NoError(t, runner.InTx(context.Background(), func(dbc dbctx.Context) error {
		return q.Enqueue(dbc, services.TaskEmailSend, services.EmailPayload{To: "a@example.com"})
	}))
	assert.Equal(t, 1, woken)

	rows, err := repo.Find(dbctx.Context{Ctx: context.Background()})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TaskQueued, rows[0].Status)
	assert.Equal(t, 5, rows[0].MaxAttempts)
}

func TestFanoutHandler(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	notify := &recordingNotifier{}
	h := FanoutHandler{Writer: aggregates.NewWriter(aggregates.NewGormTxRunner(db), nil, log), Notify: notify, Log: log}

	evs := []services.NotificationEvent{
		{Target: domain.Target{Kind: domain.KindTest, ID: 3}, Recipient: 7, Code: domain.ActionTestAssigned, Vars: map[string]any{"name": "Login"}},
		{Target: domain.Target{Kind: domain.KindTest, ID: 4}, Recipient: 7, Code: domain.ActionTestAssigned},
	}
	require.NoError(t, h.Run(context.Background(), task(t, services.TaskNotificationsFanout, evs)))
	require.Len(t, notify.got, 2)
	assert.Equal(t, uint(7), notify.got[0].Recipient)
	assert.Equal(t, "Login", notify.got[0].Vars["name"])

	err := h.Run(context.Background(), &domain.Task{Payload: datatypes.JSON(`{"bad"`)})
	assert.True(t, runtime.IsPermanent(err))
}

func TestEmailHandler(t *testing.T) {
	mail := &fakeMailer{}
	h := EmailHandler{Client: mail}
	require.NoError(t, h.Run(context.Background(), task(t, services.TaskEmailSend, services.EmailPayload{
		To: "u@example.com", Name: "U", Subject: "TEST_ASSIGNED", Text: "admin assigned you to test",
	})))
	require.Len(t, mail.reqs, 1)
	assert.Equal(t, "u@example.com", mail.reqs[0].To[0].Email)
	assert.Equal(t, "TEST_ASSIGNED", mail.reqs[0].Subject)

	mail.err = &sendgrid.HTTPError{StatusCode: 400}
	err := h.Run(context.Background(), task(t, services.TaskEmailSend, services.EmailPayload{To: "u@example.com"}))
	assert.True(t, runtime.IsPermanent(err))

	mail.err = &sendgrid.HTTPError{StatusCode: 503}
	err = h.Run(context.Background(), task(t, services.TaskEmailSend, services.EmailPayload{To: "u@example.com"}))
	require.Error(t, err)
	assert.False(t, runtime.IsPermanent(err))
}

func TestRegisterSkipsEmailWithoutClient(t *testing.T) {
	reg := runtime.NewRegistry()
	require.NoError(t, Register(reg, FanoutHandler{}, nil))
	_, ok := reg.Get(services.TaskEmailSend)
	assert.False(t, ok)
	_, ok = reg.Get(services.TaskNotificationsFanout)
	assert.True(t, ok)
}
