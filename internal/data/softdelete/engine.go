// Package softdelete owns is_deleted/deleted_at bookkeeping: cascading
// logical delete and archive, restore of implied dependents, hard delete and
// cached previews of what a cascade would take down.
package softdelete

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/data/stats"
	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

type Mode string

const (
	ModeDelete  Mode = "delete"
	ModeArchive Mode = "archive"
)

func (m Mode) Valid() bool { return m == ModeDelete || m == ModeArchive }

// LabelItems keeps labeled items in step with their labels.
type LabelItems interface {
	DeleteByLabels(dbc dbctx.Context, labelIDs []uint, at time.Time) error
	RestoreByLabels(dbc dbctx.Context, labelIDs []uint, deletedAt time.Time) error
}

type state int

const (
	stateLive state = iota
	stateUnarchived
	stateArchived
	stateDeletedAt
	stateAny
)

type Engine struct {
	db     *gorm.DB
	trees  *tree.Store
	stats  *stats.Engine
	labels LabelItems
	log    *logger.Logger
	now    func() time.Time
}

func NewEngine(db *gorm.DB, trees *tree.Store, statsEngine *stats.Engine, labels LabelItems, baseLog *logger.Logger) *Engine {
	return &Engine{
		db:     db,
		trees:  trees,
		stats:  statsEngine,
		labels: labels,
		log:    baseLog.With("engine", "SoftDeleteEngine"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

func (e *Engine) scope(db *gorm.DB, kind domain.Kind, st state, at time.Time) *gorm.DB {
	switch st {
	case stateLive:
		return db.Where("is_deleted = ?", false)
	case stateUnarchived:
		db = db.Where("is_deleted = ?", false)
		if archivable[kind] {
			db = db.Where("is_archive = ?", false)
		}
		return db
	case stateArchived:
		db = db.Where("is_deleted = ?", false)
		if archivable[kind] {
			db = db.Where("is_archive = ?", true)
		}
		return db
	case stateDeletedAt:
		return db.Where("is_deleted = ? AND deleted_at = ?", true, at)
	}
	return db
}

func (e *Engine) filter(dbc dbctx.Context, kind domain.Kind, column string, ids []uint, st state, at time.Time) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table, ok := tables[kind]
	if !ok {
		return nil, apierr.Validation("softdelete.collect", "%s cannot be deleted", kind)
	}
	var out []uint
	q := e.scope(dbc.DB(e.db).Table(table), kind, st, at).Where(column+" IN ?", ids).Order("id ASC")
	if err := q.Pluck("id", &out).Error; err != nil {
		return nil, fmt.Errorf("collect %s: %w", kind, err)
	}
	return out, nil
}

// collect walks graph from the roots, keeping rows in state st. Kinds for
// which include is false are walked but not returned.
func (e *Engine) collect(dbc dbctx.Context, graph map[domain.Kind][]edge, include func(domain.Kind) bool, st, childState state, at time.Time, kind domain.Kind, ids []uint) (Set, error) {
	roots, err := e.filter(dbc, kind, "id", ids, st, at)
	if err != nil {
		return nil, err
	}
	out, visited := Set{}, Set{}
	visited.add(kind, roots...)
	if include(kind) {
		out.add(kind, roots...)
	}
	type item struct {
		kind domain.Kind
		ids  []uint
	}
	queue := []item{{kind, roots}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		cur := it.ids
		if tt, ok := treeTable(it.kind); ok && len(cur) > 0 {
			desc, err := e.trees.DescendantIDs(dbc, tt, cur, false)
			if err != nil {
				return nil, err
			}
			desc, err = e.filter(dbc, it.kind, "id", desc, childState, at)
			if err != nil {
				return nil, err
			}
			fresh := visited.add(it.kind, desc...)
			if include(it.kind) {
				out.add(it.kind, fresh...)
			}
			cur = append(append([]uint(nil), cur...), fresh...)
		}
		for _, ed := range graph[it.kind] {
			childIDs, err := e.filter(dbc, ed.child, ed.column, cur, childState, at)
			if err != nil {
				return nil, err
			}
			fresh := visited.add(ed.child, childIDs...)
			if len(fresh) == 0 {
				continue
			}
			if include(ed.child) {
				out.add(ed.child, fresh...)
			}
			queue = append(queue, item{ed.child, fresh})
		}
	}
	return out, nil
}

func all(domain.Kind) bool { return true }

// Collect returns the live rows that mode would take down starting at ids.
func (e *Engine) Collect(dbc dbctx.Context, mode Mode, kind domain.Kind, ids []uint) (Set, error) {
	if mode == ModeArchive {
		if !archivable[kind] && kind != domain.KindSuite {
			return nil, apierr.Validation("softdelete.collect", "%s cannot be archived", kind)
		}
		return e.collect(dbc, archiveCascade, Archivable, stateUnarchived, stateUnarchived, time.Time{}, kind, ids)
	}
	return e.collect(dbc, cascade, all, stateLive, stateLive, time.Time{}, kind, ids)
}

// Delete logically deletes ids and their live dependents with one shared deleted_at.
func (e *Engine) Delete(dbc dbctx.Context, kind domain.Kind, ids []uint) (Set, error) {
	set, err := e.Collect(dbc, ModeDelete, kind, ids)
	if err != nil {
		return nil, err
	}
	return set, e.apply(dbc, ModeDelete, set)
}

// Archive sets is_archive on ids and their unarchived dependents.
func (e *Engine) Archive(dbc dbctx.Context, kind domain.Kind, ids []uint) (Set, error) {
	set, err := e.Collect(dbc, ModeArchive, kind, ids)
	if err != nil {
		return nil, err
	}
	return set, e.apply(dbc, ModeArchive, set)
}

// apply takes down a collected set.
func (e *Engine) apply(dbc dbctx.Context, mode Mode, set Set) error {
	if set.Empty() {
		return nil
	}
	before, err := e.counted(dbc, set)
	if err != nil {
		return err
	}
	at := e.now()
	for kind, ids := range set {
		if len(ids) == 0 {
			continue
		}
		cols := map[string]any{"is_deleted": true, "deleted_at": at}
		if mode == ModeArchive {
			cols = map[string]any{"is_archive": true}
		}
		if err := dbc.DB(e.db).Table(tables[kind]).Where("id IN ?", ids).UpdateColumns(cols).Error; err != nil {
			return fmt.Errorf("%s %s: %w", mode, kind, err)
		}
	}
	if mode == ModeDelete && e.labels != nil && len(set[domain.KindLabel]) > 0 {
		if err := e.labels.DeleteByLabels(dbc, set[domain.KindLabel], at); err != nil {
			return err
		}
	}
	if err := e.applyCounts(dbc, before, -1); err != nil {
		return err
	}
	e.log.Debug("cascade applied", "mode", mode, "counts", set.Counts())
	return nil
}

// Restore restores ids and every dependent deleted in the same cascade.
func (e *Engine) Restore(dbc dbctx.Context, kind domain.Kind, ids []uint) (Set, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, apierr.Validation("softdelete.restore", "%s cannot be restored", kind)
	}
	var roots []struct {
		ID        uint
		DeletedAt *time.Time
	}
	if err := dbc.DB(e.db).Table(table).Select("id, deleted_at").
		Where("id IN ? AND is_deleted = ?", ids, true).Order("id ASC").Scan(&roots).Error; err != nil {
		return nil, err
	}
	total := Set{}
	for _, r := range roots {
		var set Set
		var err error
		if r.DeletedAt == nil {
			set = Set{kind: {r.ID}}
		} else {
			set, err = e.collect(dbc, cascade, all, stateAny, stateDeletedAt, *r.DeletedAt, kind, []uint{r.ID})
			if err != nil {
				return nil, err
			}
		}
		for k, v := range set {
			if len(v) == 0 {
				continue
			}
			if err := dbc.DB(e.db).Table(tables[k]).Where("id IN ?", v).
				UpdateColumns(map[string]any{"is_deleted": false, "deleted_at": nil}).Error; err != nil {
				return nil, fmt.Errorf("restore %s: %w", k, err)
			}
		}
		if e.labels != nil && r.DeletedAt != nil && len(set[domain.KindLabel]) > 0 {
			if err := e.labels.RestoreByLabels(dbc, set[domain.KindLabel], *r.DeletedAt); err != nil {
				return nil, err
			}
		}
		for k, v := range set {
			total.add(k, v...)
		}
	}
	if err := e.checkParents(dbc, kind, total[kind]); err != nil {
		return nil, err
	}
	after, err := e.counted(dbc, total)
	if err != nil {
		return nil, err
	}
	return total, e.applyCounts(dbc, after, 1)
}

// Unarchive clears is_archive on ids and their archived dependents.
func (e *Engine) Unarchive(dbc dbctx.Context, kind domain.Kind, ids []uint) (Set, error) {
	if !archivable[kind] && kind != domain.KindSuite {
		return nil, apierr.Validation("softdelete.unarchive", "%s cannot be archived", kind)
	}
	set, err := e.collect(dbc, archiveCascade, Archivable, stateArchived, stateArchived, time.Time{}, kind, ids)
	if err != nil {
		return nil, err
	}
	for k, v := range set {
		if len(v) == 0 {
			continue
		}
		if err := dbc.DB(e.db).Table(tables[k]).Where("id IN ?", v).UpdateColumn("is_archive", false).Error; err != nil {
			return nil, fmt.Errorf("unarchive %s: %w", k, err)
		}
	}
	after, err := e.counted(dbc, set)
	if err != nil {
		return nil, err
	}
	return set, e.applyCounts(dbc, after, 1)
}

// parents lists the columns whose targets must be live for a row to be restored.
var parents = map[domain.Kind][]edge{
	domain.KindSuite:      {{domain.KindProject, "project_id"}, {domain.KindSuite, "parent_id"}},
	domain.KindPlan:       {{domain.KindProject, "project_id"}, {domain.KindPlan, "parent_id"}},
	domain.KindCase:       {{domain.KindSuite, "suite_id"}},
	domain.KindStep:       {{domain.KindCase, "case_id"}},
	domain.KindTest:       {{domain.KindPlan, "plan_id"}, {domain.KindCase, "case_id"}},
	domain.KindResult:     {{domain.KindTest, "test_id"}},
	domain.KindStepResult: {{domain.KindResult, "result_id"}},
}

func (e *Engine) checkParents(dbc dbctx.Context, kind domain.Kind, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	for _, p := range parents[kind] {
		var n int64
		err := dbc.DB(e.db).Table(tables[kind]+" AS c").
			Joins("JOIN "+tables[p.child]+" AS p ON p.id = c."+p.column).
			Where("c.id IN ? AND p.is_deleted = ?", ids, true).Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return apierr.Validation("softdelete.restore", "cannot restore %s: parent %s is deleted", kind, p.child)
		}
	}
	return nil
}

// HardDelete removes ids and every dependent row regardless of state.
func (e *Engine) HardDelete(dbc dbctx.Context, kind domain.Kind, ids []uint) (Set, error) {
	set, err := e.collect(dbc, cascade, all, stateAny, stateAny, time.Time{}, kind, ids)
	if err != nil {
		return nil, err
	}
	before, err := e.counted(dbc, set)
	if err != nil {
		return nil, err
	}
	db := dbc.DB(e.db)
	exec := func(sql string, args ...any) error { return db.Exec(sql, args...).Error }
	for _, k := range order {
		v := set[k]
		if len(v) == 0 {
			continue
		}
		if err := exec("DELETE FROM labeled_item WHERE content_type = ? AND object_id IN ?", k, v); err != nil {
			return nil, err
		}
		if err := exec("DELETE FROM label_ids WHERE content_type = ? AND object_id IN ?", k, v); err != nil {
			return nil, err
		}
		switch k {
		case domain.KindPlan:
			if err := exec("DELETE FROM plan_parameters WHERE plan_id IN ?", v); err != nil {
				return nil, err
			}
		case domain.KindLabel:
			if e.labels != nil {
				if err := e.labels.DeleteByLabels(dbc, v, e.now()); err != nil {
					return nil, err
				}
			}
			if err := exec("DELETE FROM labeled_item WHERE label_id IN ?", v); err != nil {
				return nil, err
			}
		case domain.KindProject:
			if err := exec("DELETE FROM membership WHERE project_id IN ?", v); err != nil {
				return nil, err
			}
			if err := exec("DELETE FROM project_statistics WHERE project_id IN ?", v); err != nil {
				return nil, err
			}
		}
		if err := exec("DELETE FROM "+tables[k]+" WHERE id IN ?", v); err != nil {
			return nil, fmt.Errorf("hard delete %s: %w", k, err)
		}
	}
	if len(set[domain.KindProject]) == 0 {
		if err := e.applyCounts(dbc, before, -1); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Deleted returns the ids of logically deleted rows of a kind in a project.
func (e *Engine) Deleted(dbc dbctx.Context, kind domain.Kind, projectID *uint) ([]uint, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, apierr.Validation("softdelete.deleted", "%s has no deleted list", kind)
	}
	q := dbc.DB(e.db).Table(table).Where("is_deleted = ?", true)
	if projectID != nil {
		col := "project_id"
		if kind == domain.KindProject {
			col = "id"
		}
		q = q.Where(col+" = ?", *projectID)
	}
	var ids []uint
	return ids, q.Order("deleted_at DESC, id DESC").Pluck("id", &ids).Error
}

type countedSet map[domain.Kind]map[uint]int64

func (e *Engine) counted(dbc dbctx.Context, set Set) (countedSet, error) {
	out := countedSet{}
	for kind, ids := range set {
		if !stats.IsCounted(kind) || len(ids) == 0 {
			continue
		}
		m, err := e.stats.CountedByProject(dbc, kind, ids)
		if err != nil {
			return nil, err
		}
		out[kind] = m
	}
	return out, nil
}

func (e *Engine) applyCounts(dbc dbctx.Context, c countedSet, sign int64) error {
	for kind, byProject := range c {
		deltas := make(map[uint]int64, len(byProject))
		for p, n := range byProject {
			deltas[p] = sign * n
		}
		if err := e.stats.ApplyGrouped(dbc, kind, deltas); err != nil {
			return err
		}
	}
	return nil
}
