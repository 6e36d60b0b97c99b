package services

import (
	"encoding/json"
	"errors"
	"sort"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
)

// TreeFilter carries the tree-oriented collection parameters.
type TreeFilter struct {
	// ParentSet is true when a parent parameter was supplied.
	ParentSet bool
	Parents   []uint
	// Roots selects nodes without a parent (parent=null).
	Roots    bool
	IsFlat   bool
	Treeview bool
}

// Scope narrows a flat listing by parent.
func (f TreeFilter) Scope() repos.Scope {
	if !f.ParentSet || f.IsFlat {
		return func(db *gorm.DB) *gorm.DB { return db }
	}
	return repos.ParentScope(f.Parents, f.Roots)
}

// TreeNode renders an item with its nested children.
type TreeNode[T any] struct {
	Item     *T
	Children []*TreeNode[T]
}

func (n *TreeNode[T]) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(n.Item)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	children := n.Children
	if children == nil {
		children = []*TreeNode[T]{}
	}
	if fields["children"], err = json.Marshal(children); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// BuildTree nests items by parent. Items whose parent is absent from the set
// become roots; siblings keep the input order.
func BuildTree[T any](items []*T, id func(*T) uint, parent func(*T) *uint) []*TreeNode[T] {
	nodes := make(map[uint]*TreeNode[T], len(items))
	for _, it := range items {
		nodes[id(it)] = &TreeNode[T]{Item: it}
	}
	var roots []*TreeNode[T]
	for _, it := range items {
		n := nodes[id(it)]
		if p := parent(it); p != nil {
			if pn, ok := nodes[*p]; ok {
				pn.Children = append(pn.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}

// treeErr turns a recursion error into a validation error on parent.
func treeErr(op string, err error) error {
	var rec *tree.RecursionError
	if errors.As(err, &rec) {
		return apierr.FieldValidation(op, "parent", "Recursion detected: "+rec.Error()+".")
	}
	return err
}

func sortUint(ids []uint) []uint {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
