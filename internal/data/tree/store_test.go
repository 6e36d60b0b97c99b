package tree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/data/testutil"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
)

func newSuite(t *testing.T, s *Store, dbc dbctx.Context, name string, parent *uint) *domain.Suite {
	t.Helper()
	suite := &domain.Suite{ProjectID: 1, Name: name}
	require.NoError(t, dbc.Tx.Create(suite).Error)
	n, err := s.Place(dbc, Suites, suite.ID, parent)
	require.NoError(t, err)
	suite.Path, suite.TreeID, suite.ParentID = n.Path, n.TreeID, n.ParentID
	return suite
}

func ids(nodes []Node) []uint {
	out := make([]uint, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestStore_PlaceAndMove(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	s := NewStore(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	a := newSuite(t, s, dbc, "A", nil)
	b := newSuite(t, s, dbc, "B", &a.ID)
	c := newSuite(t, s, dbc, "C", &b.ID)
	d := newSuite(t, s, dbc, "D", nil)

	assert.Equal(t, domain.NewPath(a.ID, b.ID, c.ID), c.Path)
	assert.Equal(t, a.ID, c.TreeID)

	moved, err := s.Move(dbc, Suites, c.ID, &d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewPath(d.ID, c.ID), moved.Path)
	assert.Equal(t, d.ID, moved.TreeID)

	underA, err := s.Descendants(dbc, Suites, []uint{a.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ID}, ids(underA))

	underD, err := s.Descendants(dbc, Suites, []uint{d.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, []uint{d.ID, c.ID}, ids(underD))
}

func TestStore_MoveRewritesSubtree(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	s := NewStore(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	a := newSuite(t, s, dbc, "A", nil)
	b := newSuite(t, s, dbc, "B", &a.ID)
	c := newSuite(t, s, dbc, "C", &b.ID)
	e := newSuite(t, s, dbc, "E", &c.ID)
	root := newSuite(t, s, dbc, "Root", nil)

	_, err := s.Move(dbc, Suites, b.ID, &root.ID)
	require.NoError(t, err)

	nodes, err := s.Descendants(dbc, Suites, []uint{root.ID}, true)
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	for _, n := range nodes {
		assert.Equal(t, n.ID, n.Path.Last())
		assert.Equal(t, root.ID, n.TreeID)
		assert.Equal(t, n.TreeID, n.Path.Root())
		assert.True(t, n.Path.IsDescendantOf(domain.NewPath(root.ID)))
	}
	assert.Equal(t, []uint{root.ID, b.ID, c.ID, e.ID}, ids(nodes))

	anc, err := s.Ancestors(dbc, Suites, []uint{e.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, []uint{root.ID, b.ID, c.ID}, ids(anc))

	_, err = s.Move(dbc, Suites, b.ID, nil)
	require.NoError(t, err)
	moved, err := s.Descendants(dbc, Suites, []uint{b.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, domain.NewPath(b.ID, c.ID, e.ID), moved[2].Path)
	assert.Equal(t, b.ID, moved[2].TreeID)
}

func TestStore_MoveUnderDescendantFails(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	s := NewStore(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	a := newSuite(t, s, dbc, "A", nil)
	b := newSuite(t, s, dbc, "B", &a.ID)

	_, err := s.Move(dbc, Suites, a.ID, &b.ID)
	var recErr *RecursionError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, a.ID, recErr.NodeID)

	_, err = s.Move(dbc, Suites, a.ID, &a.ID)
	require.ErrorAs(t, err, &recErr)
}

func TestStore_RebuildFromParents(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	s := NewStore(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	root := &domain.Suite{ProjectID: 2, Name: "root"}
	require.NoError(t, tx.Create(root).Error)
	child := &domain.Suite{ProjectID: 2, Name: "child", TreeFields: domain.TreeFields{ParentID: &root.ID}}
	require.NoError(t, tx.Create(child).Error)
	leaf := &domain.Suite{ProjectID: 2, Name: "leaf", TreeFields: domain.TreeFields{ParentID: &child.ID}}
	require.NoError(t, tx.Create(leaf).Error)

	require.NoError(t, s.Rebuild(dbc, Suites, []uint{root.ID}))

	var got domain.Suite
	require.NoError(t, tx.First(&got, leaf.ID).Error)
	assert.Equal(t, domain.NewPath(root.ID, child.ID, leaf.ID), got.Path)
	assert.Equal(t, root.ID, got.TreeID)
}
