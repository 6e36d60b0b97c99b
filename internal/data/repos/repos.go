// Package repos holds one repository per table. Every repo reads live rows
// unless asked for deleted ones and takes a dbctx.Context so calls join the
// caller's transaction.
package repos

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/dbctx"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// Scope narrows a query.
type Scope = func(*gorm.DB) *gorm.DB

// Query is a parsed collection request.
type Query struct {
	Page     int
	PageSize int
	Ordering []string
	Search   string
	Deleted  bool
}

// Spec declares the searchable and orderable columns of a table.
type Spec struct {
	SearchFields []string
	OrderFields  map[string]string
	DefaultOrder string
	// Permanent tables have no is_deleted column.
	Permanent bool
}

type Page[T any] struct {
	Count   int64 `json:"count"`
	Results []*T  `json:"results"`
}

// Repo is the shared surface of a soft-deletable table.
type Repo[T any] struct {
	db   *gorm.DB
	log  *logger.Logger
	name string
	spec Spec
}

func newRepo[T any](db *gorm.DB, baseLog *logger.Logger, name string, spec Spec) Repo[T] {
	if spec.DefaultOrder == "" {
		spec.DefaultOrder = "id ASC"
	}
	return Repo[T]{db: db, log: baseLog.With("repo", name), name: name, spec: spec}
}

// DB returns the handle bound to the caller's transaction and context.
func (r *Repo[T]) DB(dbc dbctx.Context) *gorm.DB { return dbc.DB(r.db) }

func (r *Repo[T]) model(dbc dbctx.Context) *gorm.DB { return r.DB(dbc).Model(new(T)) }

func (r *Repo[T]) state(db *gorm.DB, deleted bool) *gorm.DB {
	if r.spec.Permanent {
		if deleted {
			return db.Where("1 = 0")
		}
		return db
	}
	return db.Where("is_deleted = ?", deleted)
}

func (r *Repo[T]) Create(dbc dbctx.Context, rows ...*T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.DB(dbc).Create(rows).Error; err != nil {
		return apierr.MapDB(r.name+".create", err)
	}
	return nil
}

func (r *Repo[T]) Save(dbc dbctx.Context, row *T) error {
	if err := r.DB(dbc).Save(row).Error; err != nil {
		return apierr.MapDB(r.name+".save", err)
	}
	return nil
}

func (r *Repo[T]) get(dbc dbctx.Context, id uint, deleted bool) (*T, error) {
	row := new(T)
	res := r.state(r.DB(dbc).Where("id = ?", id), deleted).Limit(1).Find(row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apierr.NotFound(r.name+".get", r.name, id)
	}
	return row, nil
}

// Get returns a live row or a not-found error.
func (r *Repo[T]) Get(dbc dbctx.Context, id uint) (*T, error) { return r.get(dbc, id, false) }

func (r *Repo[T]) GetDeleted(dbc dbctx.Context, id uint) (*T, error) { return r.get(dbc, id, true) }

// GetByIDs returns the live rows among ids ordered by id.
func (r *Repo[T]) GetByIDs(dbc dbctx.Context, ids []uint) ([]*T, error) {
	var out []*T
	if len(ids) == 0 {
		return out, nil
	}
	err := r.state(r.DB(dbc).Where("id IN ?", ids), false).Order("id ASC").Find(&out).Error
	return out, err
}

// Find returns live rows matching scopes.
func (r *Repo[T]) Find(dbc dbctx.Context, scopes ...Scope) ([]*T, error) {
	var out []*T
	err := r.state(r.DB(dbc), false).Scopes(scopes...).Order(r.spec.DefaultOrder).Find(&out).Error
	return out, err
}

// Exists reports whether a live row matches scopes.
func (r *Repo[T]) Exists(dbc dbctx.Context, scopes ...Scope) (bool, error) {
	var n int64
	err := r.state(r.model(dbc), false).Scopes(scopes...).Count(&n).Error
	return n > 0, err
}

// UpdateColumns writes cols on the row without hooks or timestamps.
func (r *Repo[T]) UpdateColumns(dbc dbctx.Context, id uint, cols map[string]any) error {
	if err := r.model(dbc).Where("id = ?", id).UpdateColumns(cols).Error; err != nil {
		return apierr.MapDB(r.name+".update", err)
	}
	return nil
}

// Updates writes cols and bumps updated_at.
func (r *Repo[T]) Updates(dbc dbctx.Context, id uint, cols map[string]any) error {
	if err := r.model(dbc).Where("id = ?", id).Updates(cols).Error; err != nil {
		return apierr.MapDB(r.name+".update", err)
	}
	return nil
}

// List applies search, ordering and pagination to live or deleted rows.
func (r *Repo[T]) List(dbc dbctx.Context, q Query, scopes ...Scope) (*Page[T], error) {
	db := r.state(r.model(dbc), q.Deleted).Scopes(scopes...)
	if s := strings.TrimSpace(q.Search); s != "" && len(r.spec.SearchFields) > 0 {
		like := "%" + strings.ToLower(escapeLike(s)) + "%"
		var conds []string
		var args []any
		for _, f := range r.spec.SearchFields {
			conds = append(conds, "LOWER("+f+") LIKE ? ESCAPE '\\'")
			args = append(args, like)
		}
		db = db.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
	page := &Page[T]{}
	if err := db.Count(&page.Count).Error; err != nil {
		return nil, fmt.Errorf("%s count: %w", r.name, err)
	}
	order, err := r.order(q.Ordering)
	if err != nil {
		return nil, err
	}
	db = db.Order(order)
	if q.PageSize > 0 {
		p := q.Page
		if p < 1 {
			p = 1
		}
		db = db.Offset((p - 1) * q.PageSize).Limit(q.PageSize)
	}
	if err := db.Find(&page.Results).Error; err != nil {
		return nil, fmt.Errorf("%s list: %w", r.name, err)
	}
	return page, nil
}

func (r *Repo[T]) order(fields []string) (string, error) {
	if len(fields) == 0 {
		return r.spec.DefaultOrder, nil
	}
	var parts []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		dir := "ASC"
		if strings.HasPrefix(f, "-") {
			dir = "DESC"
			f = f[1:]
		}
		col, ok := r.spec.OrderFields[f]
		if !ok && f == "id" {
			col, ok = "id", true
		}
		if !ok {
			return "", apierr.FieldValidation(r.name+".list", "ordering", fmt.Sprintf("Cannot order by %q.", f))
		}
		parts = append(parts, col+" "+dir)
	}
	if len(parts) == 0 {
		return r.spec.DefaultOrder, nil
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", "), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ProjectScope filters by project_id.
func ProjectScope(projectID uint) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where("project_id = ?", projectID) }
}

// IDsScope filters by primary key.
func IDsScope(ids []uint) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where("id IN ?", ids) }
}

// Delete removes rows of a permanent table.
func (r *Repo[T]) Delete(dbc dbctx.Context, ids ...uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.DB(dbc).Where("id IN ?", ids).Delete(new(T)).Error; err != nil {
		return apierr.MapDB(r.name+".delete", err)
	}
	return nil
}
