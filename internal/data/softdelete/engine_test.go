package softdelete

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/data/db"
	"github.com/yungbote/testbridge-backend/internal/data/labels"
	"github.com/yungbote/testbridge-backend/internal/data/stats"
	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

type fixture struct {
	tx      *gorm.DB
	dbc     dbctx.Context
	engine  *Engine
	stats   *stats.Engine
	labels  *labels.Store
	project *domain.Project
	suite   *domain.Suite
	plan    *domain.Plan
	cases   []*domain.Case
	tests   []*domain.Test
}

// newFixture seeds one plan with two tests and five results per test.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	f := &fixture{tx: tx, dbc: dbctx.Context{Ctx: context.Background(), Tx: tx}}
	f.stats = stats.NewEngine(gdb, log)
	f.labels = labels.NewStore(gdb, log)
	f.engine = NewEngine(gdb, tree.NewStore(gdb, log), f.stats, f.labels, log)

	f.project = testutil.SeedProject(t, tx, "Alpha")
	f.suite = testutil.SeedSuite(t, tx, f.project.ID, "S1", nil)
	f.plan = testutil.SeedPlan(t, tx, f.project.ID, "P1", nil)
	for _, name := range []string{"C1", "C2"} {
		c := testutil.SeedCase(t, tx, f.suite, name)
		f.cases = append(f.cases, c)
		tt := testutil.SeedTest(t, tx, f.plan, c)
		f.tests = append(f.tests, tt)
		for i := 0; i < 5; i++ {
			testutil.SeedResult(t, tx, tt, db.StatusPassed)
		}
	}
	_, err := f.stats.Rebuild(f.dbc, f.project.ID)
	require.NoError(t, err)
	return f
}

func (f *fixture) counters(t *testing.T) *domain.ProjectStatistics {
	t.Helper()
	s, err := f.stats.Get(f.dbc, f.project.ID)
	require.NoError(t, err)
	return s
}

func TestCollect_ArchivePlanCounts(t *testing.T) {
	f := newFixture(t)
	set, err := f.engine.Collect(f.dbc, ModeArchive, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)
	assert.Equal(t, map[domain.Kind]int{domain.KindPlan: 1, domain.KindTest: 2, domain.KindResult: 10}, set.Counts())
}

func TestCollect_DeleteSuiteIncludesDescendants(t *testing.T) {
	f := newFixture(t)
	child := testutil.SeedSuite(t, f.tx, f.project.ID, "child", f.suite)
	grandchild := testutil.SeedSuite(t, f.tx, f.project.ID, "grandchild", child)
	testutil.SeedCase(t, f.tx, grandchild, "deep")

	set, err := f.engine.Collect(f.dbc, ModeDelete, domain.KindSuite, []uint{f.suite.ID})
	require.NoError(t, err)
	counts := set.Counts()
	assert.Equal(t, 3, counts[domain.KindSuite])
	assert.Equal(t, 3, counts[domain.KindCase])
	assert.Equal(t, 2, counts[domain.KindTest])
	assert.Equal(t, 10, counts[domain.KindResult])
	assert.Zero(t, counts[domain.KindPlan])
}

func TestDeleteAndRestoreCase(t *testing.T) {
	f := newFixture(t)
	// deleted earlier in a separate cascade; must stay deleted
	early := testutil.SeedResult(t, f.tx, f.tests[0], db.StatusFailed)
	_, err := f.engine.Delete(f.dbc, domain.KindResult, []uint{early.ID})
	require.NoError(t, err)

	set, err := f.engine.Delete(f.dbc, domain.KindCase, []uint{f.cases[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, set.Counts()[domain.KindTest])
	assert.Equal(t, 5, set.Counts()[domain.KindResult])

	var stamps []time.Time
	require.NoError(t, f.tx.Table("test_result").Where("test_id = ? AND id <> ?", f.tests[0].ID, early.ID).Pluck("deleted_at", &stamps).Error)
	require.Len(t, stamps, 5)
	for _, s := range stamps {
		assert.True(t, s.Equal(stamps[0]))
	}

	c := f.counters(t)
	assert.EqualValues(t, 1, c.CasesCount)
	assert.EqualValues(t, 1, c.TestsCount)

	restored, err := f.engine.Restore(f.dbc, domain.KindCase, []uint{f.cases[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 5, restored.Counts()[domain.KindResult])

	c = f.counters(t)
	assert.EqualValues(t, 2, c.CasesCount)
	assert.EqualValues(t, 2, c.TestsCount)

	var stillDeleted domain.Result
	require.NoError(t, f.tx.First(&stillDeleted, early.ID).Error)
	assert.True(t, stillDeleted.IsDeleted)
}

func TestRestoreUnderDeletedParentFails(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Delete(f.dbc, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)

	_, err = f.engine.Restore(f.dbc, domain.KindTest, []uint{f.tests[0].ID})
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
}

func TestArchiveAndUnarchive(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Archive(f.dbc, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)
	c := f.counters(t)
	assert.EqualValues(t, 0, c.PlansCount)
	assert.EqualValues(t, 0, c.TestsCount)
	assert.EqualValues(t, 2, c.CasesCount)

	_, err = f.engine.Unarchive(f.dbc, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)
	c = f.counters(t)
	assert.EqualValues(t, 1, c.PlansCount)
	assert.EqualValues(t, 2, c.TestsCount)
}

func TestHardDeletePlan(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.HardDelete(f.dbc, domain.KindPlan, []uint{f.plan.ID})
	require.NoError(t, err)

	var n int64
	require.NoError(t, f.tx.Model(&domain.Result{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, f.tx.Model(&domain.Test{}).Count(&n).Error)
	assert.Zero(t, n)
	c := f.counters(t)
	assert.EqualValues(t, 0, c.PlansCount)
	assert.EqualValues(t, 2, c.CasesCount)
}

func TestDeleteLabelRestoresItems(t *testing.T) {
	f := newFixture(t)
	target := domain.Target{Kind: domain.KindCase, ID: f.cases[0].ID}
	require.NoError(t, f.labels.Add(f.dbc, f.project.ID, []labels.Ref{{Name: "smoke"}}, target, 1, nil))
	ls, err := f.labels.ForTargets(f.dbc, domain.KindCase, []uint{target.ID})
	require.NoError(t, err)
	require.Len(t, ls[target.ID], 1)
	labelID := ls[target.ID][0].ID

	_, err = f.engine.Delete(f.dbc, domain.KindLabel, []uint{labelID})
	require.NoError(t, err)
	ids, err := f.labels.LabelIDs(f.dbc, target)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = f.engine.Restore(f.dbc, domain.KindLabel, []uint{labelID})
	require.NoError(t, err)
	ids, err = f.labels.LabelIDs(f.dbc, target)
	require.NoError(t, err)
	assert.Equal(t, []uint{labelID}, ids)
}

func TestSetFingerprintIsOrderIndependent(t *testing.T) {
	a := Set{domain.KindTest: {3, 1, 2}, domain.KindPlan: {9}}
	b := Set{domain.KindPlan: {9}, domain.KindTest: {1, 2, 3}}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.add(domain.KindResult, 4)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
