package labels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

func setup(t *testing.T) (*Store, dbctx.Context) {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	return NewStore(db, testutil.Logger(t)), dbctx.Context{Ctx: context.Background(), Tx: tx}
}

func names(ls []domain.Label) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.Name
	}
	return out
}

func TestStore_AddResolvesCaseInsensitively(t *testing.T) {
	s, dbc := setup(t)
	target := domain.Target{Kind: domain.KindCase, ID: 10}

	require.NoError(t, s.Add(dbc, 1, []Ref{{Name: "Smoke"}}, target, 100, nil))
	require.NoError(t, s.Add(dbc, 1, []Ref{{Name: "smoke"}, {Name: "Regression"}}, target, 100, nil))

	var count int64
	require.NoError(t, dbc.Tx.Model(&domain.Label{}).Where("project_id = ?", 1).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	got, err := s.ForTargets(dbc, domain.KindCase, []uint{10})
	require.NoError(t, err)
	assert.Equal(t, []string{"Smoke", "Regression"}, names(got[10]))

	ids, err := s.LabelIDs(dbc, target)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestStore_LabelIDsFollowLiveItems(t *testing.T) {
	s, dbc := setup(t)
	target := domain.Target{Kind: domain.KindCase, ID: 3}

	require.NoError(t, s.Set(dbc, 1, []Ref{{Name: "a"}, {Name: "b"}}, target, 1, nil))
	require.NoError(t, s.Set(dbc, 1, []Ref{{Name: "b"}}, target, 2, nil))

	ids, err := s.LabelIDs(dbc, target)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	var live []domain.LabeledItem
	require.NoError(t, dbc.Tx.Where("content_type = ? AND object_id = ? AND is_deleted = ?", target.Kind, target.ID, false).Find(&live).Error)
	require.Len(t, live, 1)
	assert.Equal(t, live[0].LabelID, ids[0])
	assert.EqualValues(t, 2, live[0].ContentObjectHistoryID)

	require.NoError(t, s.Clear(dbc, target))
	var rows int64
	require.NoError(t, dbc.Tx.Model(&domain.LabelIDs{}).Where("content_type = ? AND object_id = ?", target.Kind, target.ID).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestStore_RestoreByVersion(t *testing.T) {
	s, dbc := setup(t)
	target := domain.Target{Kind: domain.KindCase, ID: 5}

	require.NoError(t, s.Set(dbc, 1, []Ref{{Name: "old"}}, target, 1, nil))
	require.NoError(t, s.Set(dbc, 1, []Ref{{Name: "new"}}, target, 2, nil))

	require.NoError(t, s.RestoreByVersion(dbc, target, 1, 3))

	got, err := s.ForTargets(dbc, domain.KindCase, []uint{5})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, names(got[5]))

	var item domain.LabeledItem
	require.NoError(t, dbc.Tx.Where("content_type = ? AND object_id = ? AND is_deleted = ?", target.Kind, target.ID, false).First(&item).Error)
	assert.EqualValues(t, 3, item.ContentObjectHistoryID)
}

func TestFilter_Scope(t *testing.T) {
	s, dbc := setup(t)
	for _, name := range []string{"c1", "c2", "c3"} {
		require.NoError(t, dbc.Tx.Create(&domain.Case{CaseFields: domain.CaseFields{ProjectID: 1, SuiteID: 1, Name: name}}).Error)
	}
	var cases []domain.Case
	require.NoError(t, dbc.Tx.Order("id").Find(&cases).Error)

	require.NoError(t, s.Set(dbc, 1, []Ref{{Name: "a"}, {Name: "b"}}, domain.Target{Kind: domain.KindCase, ID: cases[0].ID}, 1, nil))
	require.NoError(t, s.Set(dbc, 1, []Ref{{Name: "a"}}, domain.Target{Kind: domain.KindCase, ID: cases[1].ID}, 1, nil))
	require.NoError(t, s.Set(dbc, 1, []Ref{{Name: "b"}, {Name: "x"}}, domain.Target{Kind: domain.KindCase, ID: cases[2].ID}, 1, nil))

	resolved, err := s.Resolve(dbc, 1, []Ref{{Name: "a"}, {Name: "b"}, {Name: "x"}}, nil)
	require.NoError(t, err)
	a, b, x := resolved[0].ID, resolved[1].ID, resolved[2].ID

	query := func(f Filter) []string {
		var out []domain.Case
		f.Kind = domain.KindCase
		require.NoError(t, dbc.Tx.Model(&domain.Case{}).Scopes(f.Scope).Order("id").Find(&out).Error)
		res := make([]string, len(out))
		for i, c := range out {
			res[i] = c.Name
		}
		return res
	}

	assert.Equal(t, []string{"c1"}, query(Filter{Labels: []uint{a, b}, Condition: And}))
	assert.Equal(t, []string{"c1", "c2", "c3"}, query(Filter{Labels: []uint{a, b}, Condition: Or}))
	assert.Equal(t, []string{"c1", "c2"}, query(Filter{Labels: []uint{a, b}, NotLabels: []uint{x}, Condition: Or}))
	assert.Equal(t, []string{"c2"}, query(Filter{NotLabels: []uint{b}}))
}
