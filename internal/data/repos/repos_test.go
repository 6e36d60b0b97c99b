package repos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

func TestRepoListSearchOrderPaginate(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	r := NewProjectRepo(db, testutil.Logger(t))

	for _, n := range []string{"Alpha", "beta", "Gamma_1", "delta"} {
		testutil.SeedProject(t, db, n)
	}

	page, err := r.List(dbc, Query{Search: "A", Ordering: []string{"-name"}})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Count)

	page, err = r.List(dbc, Query{Search: "_1"})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Gamma_1", page.Results[0].Name)

	page, err = r.List(dbc, Query{Page: 2, PageSize: 3, Ordering: []string{"name"}})
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Count)
	require.Len(t, page.Results, 1)

	_, err = r.List(dbc, Query{Ordering: []string{"password"}})
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
}

func TestRepoDeletedPartition(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	r := NewProjectRepo(db, testutil.Logger(t))

	live := testutil.SeedProject(t, db, "live")
	gone := testutil.SeedProject(t, db, "gone")
	require.NoError(t, r.UpdateColumns(dbc, gone.ID, map[string]any{"is_deleted": true, "deleted_at": time.Now().UTC()}))

	_, err := r.Get(dbc, gone.ID)
	assert.True(t, apierr.IsCode(err, apierr.CodeNotFound))
	got, err := r.GetDeleted(dbc, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, "gone", got.Name)

	page, err := r.List(dbc, Query{Deleted: true})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, gone.ID, page.Results[0].ID)

	rows, err := r.GetByIDs(dbc, []uint{live.ID, gone.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, live.ID, rows[0].ID)
}

func TestVisibleScope(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	r := NewProjectRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, db, "ann")
	pub := testutil.SeedProject(t, db, "public")
	priv := testutil.SeedProject(t, db, "private")
	mine := testutil.SeedProject(t, db, "mine")
	require.NoError(t, db.Model(&domain.Project{}).Where("id IN ?", []uint{priv.ID, mine.ID}).Update("is_private", true).Error)
	require.NoError(t, db.Create(&domain.Membership{ProjectID: mine.ID, UserID: u.ID, RoleID: 1}).Error)

	rows, err := r.Find(dbc, VisibleScope(u.ID, false))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{pub.ID, mine.ID}, ids(rows))

	rows, err = r.Find(dbc, VisibleScope(u.ID, true))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{mine.ID}, ids(rows))
}

func ids(rows []*domain.Project) []uint {
	out := make([]uint, len(rows))
	for i, p := range rows {
		out[i] = p.ID
	}
	return out
}

func TestUserAndLabelCaseInsensitive(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	log := testutil.Logger(t)

	testutil.SeedUser(t, db, "Bob")
	u, err := NewUserRepo(db, log).ByUsername(dbc, " bob ")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Bob", u.Username)

	p := testutil.SeedProject(t, db, "p")
	labels := NewLabelRepo(db, log)
	require.NoError(t, labels.Create(dbc, &domain.Label{ProjectID: p.ID, Name: "Smoke"}))
	l, err := labels.ByName(dbc, p.ID, "SMOKE")
	require.NoError(t, err)
	require.NotNil(t, l)
	missing, err := labels.ByName(dbc, p.ID+1, "smoke")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNotificationSubscriptions(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	log := testutil.Logger(t)
	settings := NewNotificationSettingRepo(db, log)
	notes := NewNotificationRepo(db, log)

	u := testutil.SeedUser(t, db, "sub")
	other := testutil.SeedUser(t, db, "other")
	require.NoError(t, settings.SetSubscribed(dbc, u.ID, []domain.ActionCode{domain.ActionTestAssigned, domain.ActionCommentAdded}, true))

	got, err := settings.Subscribed(dbc, domain.ActionTestAssigned, []uint{u.ID, other.ID})
	require.NoError(t, err)
	assert.Equal(t, map[uint]bool{u.ID: true}, got)

	codes, err := settings.SubscribedCodes(dbc, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.ActionCode{domain.ActionTestAssigned, domain.ActionCommentAdded}, codes)

	require.NoError(t, settings.SetSubscribed(dbc, u.ID, []domain.ActionCode{domain.ActionCommentAdded}, false))
	codes, err = settings.SubscribedCodes(dbc, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.ActionCode{domain.ActionTestAssigned}, codes)

	for i := 0; i < 3; i++ {
		require.NoError(t, notes.Create(dbc, &domain.Notification{RecipientID: u.ID, ActionCode: domain.ActionTestAssigned, Unread: true}))
	}
	n, err := notes.UnreadCount(dbc, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	page, err := notes.List(dbc, Query{}, RecipientScope(u.ID))
	require.NoError(t, err)
	_, err = notes.MarkAs(dbc, u.ID, []uint{page.Results[0].ID}, false)
	require.NoError(t, err)
	n, err = notes.UnreadCount(dbc, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = notes.MarkAs(dbc, other.ID, nil, false)
	require.NoError(t, err)
	n, err = notes.UnreadCount(dbc, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestTaskClaim(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: t.Context()}
	r := NewTaskRepo(db, testutil.Logger(t))
	now := time.Now().UTC()

	due := &domain.Task{Type: "a", Status: domain.TaskQueued, RunAfter: now.Add(-time.Second), MaxAttempts: 3}
	later := &domain.Task{Type: "b", Status: domain.TaskQueued, RunAfter: now.Add(time.Hour), MaxAttempts: 3}
	require.NoError(t, r.Create(dbc, due, later))

	got, err := r.Claim(dbc, now, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
	assert.Equal(t, 1, got[0].Attempts)

	again, err := r.Claim(dbc, now, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	stale, err := r.Claim(dbc, now.Add(2*time.Minute), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	stale[0].Status = domain.TaskFailed
	stale[0].LastError = "boom"
	require.NoError(t, r.Finish(dbc, stale[0]))
	failed, err := r.Failed(dbc, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].LastError)
}
