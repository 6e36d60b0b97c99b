package softdelete

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

func newPreviewer(t *testing.T, f *fixture) *Previewer {
	t.Helper()
	return NewPreviewer(f.engine, NewLRUCache(16, time.Minute), []byte("test-secret"), time.Minute, testutil.Logger(t))
}

func TestPreviewCommitArchivesPlan(t *testing.T) {
	f := newFixture(t)
	p := newPreviewer(t, f)

	prev, err := p.Preview(f.dbc, 1, ModeArchive, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, prev.Token)
	assert.Equal(t, map[domain.Kind]int{domain.KindPlan: 1, domain.KindTest: 2, domain.KindResult: 10}, prev.Counts)

	res, err := p.Commit(f.dbc, 1, prev.Token)
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.EqualValues(t, 0, f.counters(t).TestsCount)

	_, err = p.Commit(f.dbc, 1, prev.Token)
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
}

func TestPreviewCommitDeleteKeepsRowsInDeletedObjects(t *testing.T) {
	f := newFixture(t)
	p := newPreviewer(t, f)

	prev, err := p.Preview(f.dbc, 1, ModeDelete, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)
	res, err := p.Commit(f.dbc, 1, prev.Token)
	require.NoError(t, err)
	require.True(t, res.Committed)
	assert.EqualValues(t, 0, f.counters(t).TestsCount)

	ids, err := f.engine.Deleted(f.dbc, domain.KindTest, &f.project.ID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestCommitAfterMutationReturnsFreshPreview(t *testing.T) {
	f := newFixture(t)
	p := newPreviewer(t, f)

	prev, err := p.Preview(f.dbc, 1, ModeArchive, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)

	extra := testutil.SeedCase(t, f.tx, f.suite, "C3")
	testutil.SeedTest(t, f.tx, f.plan, extra)

	res, err := p.Commit(f.dbc, 1, prev.Token)
	require.NoError(t, err)
	assert.False(t, res.Committed)
	require.NotNil(t, res.Fresh)
	assert.Equal(t, 3, res.Fresh.Counts[domain.KindTest])
	assert.NotEqual(t, prev.Token, res.Fresh.Token)

	res, err = p.Commit(f.dbc, 1, res.Fresh.Token)
	require.NoError(t, err)
	assert.True(t, res.Committed)
}

func TestCommitRejectsOtherUserAndBadToken(t *testing.T) {
	f := newFixture(t)
	p := newPreviewer(t, f)

	prev, err := p.Preview(f.dbc, 1, ModeDelete, domain.KindTest, []uint{f.tests[0].ID})
	require.NoError(t, err)

	_, err = p.Commit(f.dbc, 2, prev.Token)
	assert.True(t, apierr.IsCode(err, apierr.CodePermission))

	_, err = p.Commit(f.dbc, 1, "not-a-token")
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))

	other := NewPreviewer(f.engine, NewLRUCache(16, time.Minute), []byte("other-secret"), time.Minute, testutil.Logger(t))
	_, err = other.Commit(f.dbc, 1, prev.Token)
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
}

func TestCommitAfterEditReturnsFreshPreview(t *testing.T) {
	f := newFixture(t)
	p := newPreviewer(t, f)

	prev, err := p.Preview(f.dbc, 1, ModeArchive, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)

	require.NoError(t, f.tx.Model(&domain.Plan{}).Where("id = ?", f.plan.ID).Updates(map[string]any{
		"name":       "P1 renamed",
		"updated_at": f.plan.UpdatedAt.Add(time.Second),
	}).Error)

	res, err := p.Commit(f.dbc, 1, prev.Token)
	require.NoError(t, err)
	assert.False(t, res.Committed)
	require.NotNil(t, res.Fresh)
	assert.Equal(t, prev.Counts, res.Fresh.Counts)

	var plan domain.Plan
	require.NoError(t, f.tx.First(&plan, f.plan.ID).Error)
	assert.False(t, plan.IsArchive)

	res, err = p.Commit(f.dbc, 1, res.Fresh.Token)
	require.NoError(t, err)
	assert.True(t, res.Committed)
}

func TestCommitRolledBackKeepsToken(t *testing.T) {
	f := newFixture(t)
	p := newPreviewer(t, f)

	prev, err := p.Preview(f.dbc, 1, ModeArchive, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)

	effects := dbctx.NewEffects()
	abort := errors.New("abort")
	err = f.tx.Transaction(func(inner *gorm.DB) error {
		res, err := p.Commit(dbctx.Context{Ctx: context.Background(), Tx: inner, Effects: effects}, 1, prev.Token)
		require.NoError(t, err)
		require.True(t, res.Committed)
		return abort
	})
	require.ErrorIs(t, err, abort)
	effects.Discard(context.Background())

	var plan domain.Plan
	require.NoError(t, f.tx.First(&plan, f.plan.ID).Error)
	require.False(t, plan.IsArchive)

	res, err := p.Commit(f.dbc, 1, prev.Token)
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.EqualValues(t, 0, f.counters(t).TestsCount)
}
