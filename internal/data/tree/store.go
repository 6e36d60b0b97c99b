// Package tree maintains labeled-path trees for suites and plans.
//
// Every node stores path (ancestor ids ending with its own id) and tree_id (the
// root id). Insert and parent changes recompute the node's path from its parent;
// a changed path is propagated to every strict descendant in the same statement.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// Table names a tree-shaped table.
type Table string

const (
	Suites Table = "test_suite"
	Plans  Table = "test_plan"
)

func (t Table) Kind() domain.Kind {
	if t == Plans {
		return domain.KindPlan
	}
	return domain.KindSuite
}

// Node is the path projection of a tree row.
type Node struct {
	ID        uint
	ProjectID uint
	ParentID  *uint
	Path      domain.Path
	TreeID    uint
	IsDeleted bool
}

// RecursionError reports a move that would make a node its own ancestor.
type RecursionError struct {
	Table    Table
	NodeID   uint
	ParentID uint
}

func (e *RecursionError) Error() string {
	return fmt.Sprintf("%s %d cannot be moved under its own descendant %d", e.Table.Kind(), e.NodeID, e.ParentID)
}

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) *Store {
	return &Store{db: db, log: baseLog.With("store", "TreeStore")}
}

func (s *Store) get(dbc dbctx.Context, table Table, id uint) (*Node, error) {
	return s.load(dbc, table, id, false)
}

// lockParent loads a parent row, locking it on postgres so concurrent inserts
// under the same parent serialize.
func (s *Store) lockParent(dbc dbctx.Context, table Table, id uint) (*Node, error) {
	return s.load(dbc, table, id, dbc.Tx != nil && dbc.Tx.Dialector.Name() == "postgres")
}

func (s *Store) load(dbc dbctx.Context, table Table, id uint, forUpdate bool) (*Node, error) {
	var n Node
	q := dbc.DB(s.db).Table(string(table))
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	res := q.Select("id, project_id, parent_id, path, tree_id, is_deleted").
		Where("id = ?", id).Limit(1).Scan(&n)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apierr.NotFound("tree.get", string(table.Kind()), id)
	}
	return &n, nil
}

// Place computes path and tree_id for a freshly inserted node.
func (s *Store) Place(dbc dbctx.Context, table Table, id uint, parentID *uint) (*Node, error) {
	path := domain.NewPath(id)
	treeID := id
	if parentID != nil {
		parent, err := s.lockParent(dbc, table, *parentID)
		if err != nil {
			return nil, err
		}
		path = parent.Path.Child(id)
		treeID = parent.TreeID
	}
	if err := dbc.DB(s.db).Table(string(table)).Where("id = ?", id).
		UpdateColumns(map[string]any{"parent_id": parentID, "path": path, "tree_id": treeID}).Error; err != nil {
		return nil, fmt.Errorf("place %s %d: %w", table, id, err)
	}
	return s.get(dbc, table, id)
}

// Move re-parents a node and rewrites the paths of its whole subtree.
// A nil parent turns the node into a root.
func (s *Store) Move(dbc dbctx.Context, table Table, id uint, parentID *uint) (*Node, error) {
	node, err := s.get(dbc, table, id)
	if err != nil {
		return nil, err
	}
	newPath := domain.NewPath(id)
	newTree := id
	if parentID != nil {
		if *parentID == id {
			return nil, &RecursionError{Table: table, NodeID: id, ParentID: *parentID}
		}
		parent, err := s.lockParent(dbc, table, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.Path.IsDescendantOf(node.Path) {
			return nil, &RecursionError{Table: table, NodeID: id, ParentID: *parentID}
		}
		newPath = parent.Path.Child(id)
		newTree = parent.TreeID
	}

	db := dbc.DB(s.db)
	if err := db.Table(string(table)).Where("id = ?", id).
		UpdateColumns(map[string]any{"parent_id": parentID, "path": newPath, "tree_id": newTree}).Error; err != nil {
		return nil, fmt.Errorf("move %s %d: %w", table, id, err)
	}
	if newPath != node.Path {
		if err := s.rewriteDescendants(dbc, table, node.Path, newPath, newTree); err != nil {
			return nil, err
		}
	}
	s.log.Debug("tree node moved", "table", table, "id", id, "from", node.Path, "to", newPath)
	return s.get(dbc, table, id)
}

func (s *Store) rewriteDescendants(dbc dbctx.Context, table Table, oldPath, newPath domain.Path, treeID uint) error {
	q := fmt.Sprintf(
		`UPDATE %s SET path = CAST(? AS TEXT) || substr(path, ?), tree_id = ? WHERE path LIKE ?`,
		table,
	)
	err := dbc.DB(s.db).Exec(q, string(newPath), len(oldPath)+1, treeID, string(oldPath)+".%").Error
	if err != nil {
		return fmt.Errorf("rewrite descendants of %s: %w", oldPath, err)
	}
	return nil
}

// Descendants returns every node whose path lies under one of ids, ordered by path.
func (s *Store) Descendants(dbc dbctx.Context, table Table, ids []uint, includeSelf bool) ([]Node, error) {
	roots, err := s.nodes(dbc, table, ids)
	if err != nil || len(roots) == 0 {
		return nil, err
	}
	db := dbc.DB(s.db).Table(string(table)).Select("id, project_id, parent_id, path, tree_id, is_deleted")
	var conds []string
	var args []any
	for _, r := range roots {
		conds = append(conds, "path = ? OR path LIKE ?")
		args = append(args, string(r.Path), string(r.Path)+".%")
	}
	var out []Node
	if err := db.Where(strings.Join(conds, " OR "), args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	if !includeSelf {
		out = exclude(out, ids)
	}
	sortByPath(out)
	return out, nil
}

// Ancestors returns every node whose path is a prefix of one of ids, ordered by path.
func (s *Store) Ancestors(dbc dbctx.Context, table Table, ids []uint, includeSelf bool) ([]Node, error) {
	nodes, err := s.nodes(dbc, table, ids)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	set := map[uint]struct{}{}
	for _, n := range nodes {
		for _, l := range n.Path.Labels() {
			set[l] = struct{}{}
		}
	}
	all := make([]uint, 0, len(set))
	for id := range set {
		all = append(all, id)
	}
	out, err := s.nodes(dbc, table, all)
	if err != nil {
		return nil, err
	}
	if !includeSelf {
		out = exclude(out, ids)
	}
	sortByPath(out)
	return out, nil
}

// DescendantIDs is Descendants projected to ids.
func (s *Store) DescendantIDs(dbc dbctx.Context, table Table, ids []uint, includeSelf bool) ([]uint, error) {
	nodes, err := s.Descendants(dbc, table, ids, includeSelf)
	if err != nil {
		return nil, err
	}
	out := make([]uint, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out, nil
}

// Rebuild recomputes paths below the given roots from parent_id links,
// used after rows were inserted without path maintenance.
func (s *Store) Rebuild(dbc dbctx.Context, table Table, rootIDs []uint) error {
	queue := append([]uint(nil), rootIDs...)
	for _, id := range rootIDs {
		n, err := s.get(dbc, table, id)
		if err != nil {
			return err
		}
		if _, err := s.Place(dbc, table, id, n.ParentID); err != nil {
			return err
		}
	}
	for len(queue) > 0 {
		var children []Node
		if err := dbc.DB(s.db).Table(string(table)).Select("id, parent_id").
			Where("parent_id IN ?", queue).Scan(&children).Error; err != nil {
			return err
		}
		queue = queue[:0]
		for _, c := range children {
			if _, err := s.Place(dbc, table, c.ID, c.ParentID); err != nil {
				return err
			}
			queue = append(queue, c.ID)
		}
	}
	return nil
}

func (s *Store) nodes(dbc dbctx.Context, table Table, ids []uint) ([]Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Node
	err := dbc.DB(s.db).Table(string(table)).
		Select("id, project_id, parent_id, path, tree_id, is_deleted").
		Where("id IN ?", ids).Scan(&out).Error
	return out, err
}

func exclude(nodes []Node, ids []uint) []Node {
	skip := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		skip[id] = struct{}{}
	}
	out := nodes[:0]
	for _, n := range nodes {
		if _, ok := skip[n.ID]; !ok {
			out = append(out, n)
		}
	}
	return out
}

func sortByPath(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Path.Compare(nodes[j].Path) < 0 })
}
