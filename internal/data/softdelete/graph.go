package softdelete

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/testbridge-backend/internal/data/tree"
	"github.com/yungbote/testbridge-backend/internal/domain"
)

var tables = map[domain.Kind]string{
	domain.KindProject:         "project",
	domain.KindSuite:           "test_suite",
	domain.KindPlan:            "test_plan",
	domain.KindCase:            "test_case",
	domain.KindStep:            "test_case_step",
	domain.KindTest:            "test",
	domain.KindResult:          "test_result",
	domain.KindStepResult:      "test_step_result",
	domain.KindParameter:       "parameter",
	domain.KindLabel:           "label",
	domain.KindStatus:          "result_status",
	domain.KindCustomAttribute: "custom_attribute",
	domain.KindAttachment:      "attachment",
	domain.KindComment:         "comment",
}

// Table returns the table of a soft-deletable kind.
func Table(kind domain.Kind) (string, bool) {
	t, ok := tables[kind]
	return t, ok
}

type edge struct {
	child  domain.Kind
	column string
}

// cascade lists the dependents taken down with a parent.
var cascade = map[domain.Kind][]edge{
	domain.KindProject: {
		{domain.KindSuite, "project_id"},
		{domain.KindPlan, "project_id"},
		{domain.KindParameter, "project_id"},
		{domain.KindLabel, "project_id"},
		{domain.KindStatus, "project_id"},
		{domain.KindCustomAttribute, "project_id"},
	},
	domain.KindSuite:  {{domain.KindCase, "suite_id"}},
	domain.KindPlan:   {{domain.KindTest, "plan_id"}},
	domain.KindCase:   {{domain.KindStep, "case_id"}, {domain.KindTest, "case_id"}},
	domain.KindTest:   {{domain.KindResult, "test_id"}},
	domain.KindResult: {{domain.KindStepResult, "result_id"}},
	domain.KindStep:   {{domain.KindStepResult, "step_id"}},
}

// archiveCascade is the archive-flag subset of cascade. Suites carry no flag
// and are only walked through.
var archiveCascade = map[domain.Kind][]edge{
	domain.KindProject: {{domain.KindSuite, "project_id"}, {domain.KindPlan, "project_id"}},
	domain.KindSuite:   {{domain.KindCase, "suite_id"}},
	domain.KindPlan:    {{domain.KindTest, "plan_id"}},
	domain.KindCase:    {{domain.KindTest, "case_id"}},
	domain.KindTest:    {{domain.KindResult, "test_id"}},
}

var archivable = map[domain.Kind]bool{
	domain.KindProject: true,
	domain.KindPlan:    true,
	domain.KindCase:    true,
	domain.KindTest:    true,
	domain.KindResult:  true,
}

// Archivable reports whether kind carries an is_archive flag.
func Archivable(kind domain.Kind) bool { return archivable[kind] }

func treeTable(kind domain.Kind) (tree.Table, bool) {
	switch kind {
	case domain.KindSuite:
		return tree.Suites, true
	case domain.KindPlan:
		return tree.Plans, true
	}
	return "", false
}

// Set is a collection of row ids per kind.
type Set map[domain.Kind][]uint

func (s Set) add(kind domain.Kind, ids ...uint) []uint {
	seen := make(map[uint]struct{}, len(s[kind]))
	for _, id := range s[kind] {
		seen[id] = struct{}{}
	}
	var fresh []uint
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		s[kind] = append(s[kind], id)
		fresh = append(fresh, id)
	}
	return fresh
}

// Counts returns the number of ids per kind.
func (s Set) Counts() map[domain.Kind]int {
	out := make(map[domain.Kind]int, len(s))
	for k, ids := range s {
		if len(ids) > 0 {
			out[k] = len(ids)
		}
	}
	return out
}

func (s Set) Empty() bool {
	for _, ids := range s {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Fingerprint is a stable digest of the set.
func (s Set) Fingerprint() string {
	kinds := make([]string, 0, len(s))
	for k := range s {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	var b strings.Builder
	for _, k := range kinds {
		ids := append([]uint(nil), s[domain.Kind(k)]...)
		if len(ids) == 0 {
			continue
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		fmt.Fprintf(&b, "%s:%v;", k, ids)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// order is the leaf-first order used for hard deletes.
var order = []domain.Kind{
	domain.KindStepResult,
	domain.KindResult,
	domain.KindTest,
	domain.KindStep,
	domain.KindCase,
	domain.KindSuite,
	domain.KindPlan,
	domain.KindParameter,
	domain.KindLabel,
	domain.KindStatus,
	domain.KindCustomAttribute,
	domain.KindAttachment,
	domain.KindComment,
	domain.KindProject,
}
