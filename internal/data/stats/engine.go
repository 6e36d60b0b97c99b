// Package stats maintains the per-project counters of cases, suites, plans and tests.
package stats

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

var columns = map[domain.Kind]string{
	domain.KindCase:  "cases_count",
	domain.KindSuite: "suites_count",
	domain.KindPlan:  "plans_count",
	domain.KindTest:  "tests_count",
}

var tables = map[domain.Kind]string{
	domain.KindCase:  "test_case",
	domain.KindSuite: "test_suite",
	domain.KindPlan:  "test_plan",
	domain.KindTest:  "test",
}

// hasArchive lists counted kinds carrying an is_archive column.
var hasArchive = map[domain.Kind]bool{
	domain.KindCase: true,
	domain.KindPlan: true,
	domain.KindTest: true,
}

// IsCounted reports whether kind contributes to project statistics.
func IsCounted(kind domain.Kind) bool {
	_, ok := columns[kind]
	return ok
}

// HasArchive reports whether a counted kind has an archive flag.
func HasArchive(kind domain.Kind) bool { return hasArchive[kind] }

// State is the counted-relevant state of a row; the zero value is "absent".
type State struct {
	Exists   bool
	Deleted  bool
	Archived bool
}

func Live(archived bool) State { return State{Exists: true, Archived: archived} }

func (s State) Counted() bool { return s.Exists && !s.Deleted && !s.Archived }

// Delta is counted(after) - counted(before).
func Delta(before, after State) int64 {
	var d int64
	if after.Counted() {
		d++
	}
	if before.Counted() {
		d--
	}
	return d
}

type Engine struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEngine(db *gorm.DB, baseLog *logger.Logger) *Engine {
	return &Engine{db: db, log: baseLog.With("engine", "StatisticsEngine")}
}

// Ensure creates the counters row of a project.
func (e *Engine) Ensure(dbc dbctx.Context, projectID uint) error {
	return dbc.DB(e.db).Where(domain.ProjectStatistics{ProjectID: projectID}).
		FirstOrCreate(&domain.ProjectStatistics{ProjectID: projectID}).Error
}

// Track applies the counter change of a single row transition.
func (e *Engine) Track(dbc dbctx.Context, kind domain.Kind, projectID uint, before, after State) error {
	return e.Apply(dbc, kind, projectID, Delta(before, after))
}

// Apply adds delta to the kind's counter of a project.
func (e *Engine) Apply(dbc dbctx.Context, kind domain.Kind, projectID uint, delta int64) error {
	col, ok := columns[kind]
	if !ok || delta == 0 || projectID == 0 {
		return nil
	}
	db := dbc.DB(e.db)
	res := db.Model(&domain.ProjectStatistics{}).Where("project_id = ?", projectID).
		UpdateColumn(col, gorm.Expr(col+" + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("apply %s delta: %w", col, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	row := domain.ProjectStatistics{ProjectID: projectID}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("create statistics row: %w", err)
	}
	return db.Model(&row).UpdateColumn(col, delta).Error
}

// ApplyGrouped applies per-project deltas for a kind.
func (e *Engine) ApplyGrouped(dbc dbctx.Context, kind domain.Kind, deltas map[uint]int64) error {
	for projectID, d := range deltas {
		if err := e.Apply(dbc, kind, projectID, d); err != nil {
			return err
		}
	}
	return nil
}

// CountedByProject counts rows among ids that currently contribute to the counters.
func (e *Engine) CountedByProject(dbc dbctx.Context, kind domain.Kind, ids []uint) (map[uint]int64, error) {
	out := map[uint]int64{}
	table, ok := tables[kind]
	if !ok || len(ids) == 0 {
		return out, nil
	}
	q := dbc.DB(e.db).Table(table).Select("project_id, COUNT(*) AS n").
		Where("id IN ? AND is_deleted = ?", ids, false)
	if hasArchive[kind] {
		q = q.Where("is_archive = ?", false)
	}
	var rows []struct {
		ProjectID uint
		N         int64
	}
	if err := q.Group("project_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.ProjectID] = r.N
	}
	return out, nil
}

func (e *Engine) Get(dbc dbctx.Context, projectID uint) (*domain.ProjectStatistics, error) {
	row := domain.ProjectStatistics{ProjectID: projectID}
	if err := dbc.DB(e.db).Where("project_id = ?", projectID).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	row.ProjectID = projectID
	return &row, nil
}

// Rebuild recomputes the counters of a project from its rows.
func (e *Engine) Rebuild(dbc dbctx.Context, projectID uint) (*domain.ProjectStatistics, error) {
	if err := e.Ensure(dbc, projectID); err != nil {
		return nil, err
	}
	db := dbc.DB(e.db)
	updates := map[string]any{}
	for kind, col := range columns {
		q := db.Table(tables[kind]).Where("project_id = ? AND is_deleted = ?", projectID, false)
		if hasArchive[kind] {
			q = q.Where("is_archive = ?", false)
		}
		var n int64
		if err := q.Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", kind, err)
		}
		updates[col] = n
	}
	if err := db.Model(&domain.ProjectStatistics{}).Where("project_id = ?", projectID).UpdateColumns(updates).Error; err != nil {
		return nil, err
	}
	e.log.Info("project statistics rebuilt", "project_id", projectID, "counters", updates)
	return e.Get(dbc, projectID)
}
