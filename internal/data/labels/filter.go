package labels

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/testbridge-backend/internal/domain"
)

// Condition combines included labels: "and" needs every label, "or" any of them.
type Condition string

const (
	And Condition = "and"
	Or  Condition = "or"
)

func ParseCondition(s string) Condition {
	if strings.EqualFold(strings.TrimSpace(s), string(And)) {
		return And
	}
	return Or
}

// Filter narrows a query over kind's table by live label bindings. Objects
// carrying any of notLabels are always excluded.
type Filter struct {
	Kind      domain.Kind
	Labels    []uint
	NotLabels []uint
	Condition Condition
	// Column is the object id column of the outer query.
	Column string
}

func (f Filter) Empty() bool { return len(f.Labels) == 0 && len(f.NotLabels) == 0 }

func (f Filter) Scope(db *gorm.DB) *gorm.DB {
	col := f.Column
	if col == "" {
		col = "id"
	}
	items := func(labelIDs []uint) *gorm.DB {
		return db.Session(&gorm.Session{NewDB: true}).Model(&domain.LabeledItem{}).Select("object_id").
			Where("content_type = ? AND is_deleted = ? AND label_id IN ?", f.Kind, false, labelIDs)
	}
	if len(f.Labels) > 0 {
		sub := items(f.Labels)
		if f.Condition == And {
			sub = sub.Group("object_id").Having("COUNT(DISTINCT label_id) = ?", len(unique(f.Labels)))
		}
		db = db.Where(col+" IN (?)", sub)
	}
	if len(f.NotLabels) > 0 {
		db = db.Where(col+" NOT IN (?)", items(f.NotLabels))
	}
	return db
}

func unique(ids []uint) []uint {
	seen := map[uint]struct{}{}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
