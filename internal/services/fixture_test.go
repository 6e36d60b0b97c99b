package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/blob"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

// fixture wires every store over a fresh sqlite database. Calls run as a
// superuser so access checks never reach the store inside a transaction.
type fixture struct {
	db    *gorm.DB
	core  *Core
	ctx   context.Context
	admin *domain.User
	now   time.Time
	pub   *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	counts map[uint][]int64
}

func (p *recordingPublisher) PublishCount(_ context.Context, userID uint, count int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = map[uint][]int64{}
	}
	p.counts[userID] = append(p.counts[userID], count)
	return nil
}

func (p *recordingPublisher) pushes(userID uint) []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.counts[userID]...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	admin := testutil.SeedUser(t, db, "admin")
	require.NoError(t, db.Model(admin).Update("is_superuser", true).Error)

	f := &fixture{
		db:    db,
		admin: admin,
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		pub:   &recordingPublisher{},
	}
	f.core = NewCore(db, log, blob.NewMemory(), nil, nil)
	f.core.Now = func() time.Time { return f.now }
	f.ctx = ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{
		UserID: admin.ID, Username: admin.Username, IsSuperuser: true,
	})
	return f
}

func (f *fixture) dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func (f *fixture) counters(t *testing.T, projectID uint) *domain.ProjectStatistics {
	t.Helper()
	st, err := f.core.Stats.Get(f.dbc(), projectID)
	require.NoError(t, err)
	return st
}

func (f *fixture) settings(t *testing.T, projectID uint, st domain.ProjectSettings) {
	t.Helper()
	require.NoError(t, f.db.Model(&domain.Project{}).Where("id = ?", projectID).
		Update("settings", datatypes.NewJSONType(st)).Error)
}

func (f *fixture) notifications() NotificationService {
	return NewNotificationService(f.core, f.pub, nil, false)
}
