package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

func TestDelta(t *testing.T) {
	absent := State{}
	live := Live(false)
	archived := Live(true)
	deleted := State{Exists: true, Deleted: true}

	cases := []struct {
		name          string
		before, after State
		want          int64
	}{
		{"insert", absent, live, 1},
		{"insert archived", absent, archived, 0},
		{"archive", live, archived, -1},
		{"unarchive", archived, live, 1},
		{"delete", live, deleted, -1},
		{"delete archived", archived, State{Exists: true, Deleted: true, Archived: true}, 0},
		{"restore", deleted, live, 1},
		{"hard delete", live, absent, -1},
		{"hard delete deleted", deleted, absent, 0},
		{"noop", live, live, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Delta(tc.before, tc.after))
		})
	}
}

func TestEngine_ApplyAndRebuild(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	e := NewEngine(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	require.NoError(t, e.Apply(dbc, domain.KindCase, 7, 2))
	require.NoError(t, e.Apply(dbc, domain.KindCase, 7, -1))
	require.NoError(t, e.Apply(dbc, domain.KindTest, 7, 3))
	require.NoError(t, e.Apply(dbc, domain.KindLabel, 7, 3))

	got, err := e.Get(dbc, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.CasesCount)
	assert.EqualValues(t, 3, got.TestsCount)

	require.NoError(t, tx.Create(&domain.Case{CaseFields: domain.CaseFields{ProjectID: 7, SuiteID: 1, Name: "a"}}).Error)
	require.NoError(t, tx.Create(&domain.Case{CaseFields: domain.CaseFields{ProjectID: 7, SuiteID: 1, Name: "b", IsArchive: true}}).Error)
	require.NoError(t, tx.Create(&domain.Suite{ProjectID: 7, Name: "s"}).Error)

	rebuilt, err := e.Rebuild(dbc, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rebuilt.CasesCount)
	assert.EqualValues(t, 1, rebuilt.SuitesCount)
	assert.EqualValues(t, 0, rebuilt.TestsCount)
	assert.EqualValues(t, 0, rebuilt.PlansCount)
}
