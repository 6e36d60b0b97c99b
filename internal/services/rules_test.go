package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
)

func TestCrossProduct(t *testing.T) {
	params := []domain.Parameter{
		{ID: 1, GroupName: "os", Data: "linux"},
		{ID: 2, GroupName: "browser", Data: "chrome"},
		{ID: 3, GroupName: "os", Data: "mac"},
		{ID: 4, GroupName: "browser", Data: "firefox"},
		{ID: 5, GroupName: "locale", Data: "en"},
	}
	combos := CrossProduct(params)
	require.Len(t, combos, 4)

	ids := func(c []domain.Parameter) []uint {
		out := make([]uint, len(c))
		for i, p := range c {
			out[i] = p.ID
		}
		return out
	}
	assert.Equal(t, []uint{1, 2, 5}, ids(combos[0]))
	assert.Equal(t, []uint{1, 4, 5}, ids(combos[1]))
	assert.Equal(t, []uint{3, 2, 5}, ids(combos[2]))
	assert.Equal(t, []uint{3, 4, 5}, ids(combos[3]))

	empty := CrossProduct(nil)
	require.Len(t, empty, 1)
	assert.Empty(t, empty[0])
}

func TestCheckEditWindow(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	limit := int64(3600)

	tests := []struct {
		name    string
		st      domain.ProjectSettings
		after   time.Duration
		version uint
		want    string
	}{
		{"editable within limit", domain.ProjectSettings{IsResultEditable: true, ResultEditLimit: &limit}, 30 * time.Second, 7, ""},
		{"unlimited", domain.ProjectSettings{IsResultEditable: true}, 1000 * time.Hour, 7, ""},
		{"not editable", domain.ProjectSettings{}, time.Second, 7, "not editable"},
		{"outside limit", domain.ProjectSettings{IsResultEditable: true, ResultEditLimit: &limit}, 3700 * time.Second, 7, "within 3600 seconds (1h0m0s)"},
		{"case changed", domain.ProjectSettings{IsResultEditable: true}, time.Second, 8, "Test case was changed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckEditWindow(tc.st, created, created.Add(tc.after), 7, tc.version)
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestAssignmentEvents(t *testing.T) {
	test := &domain.Test{ID: 9, TestFields: domain.TestFields{ProjectID: 1, PlanID: 2}}
	alice, bob := uint(10), uint(11)

	assert.Empty(t, AssignmentEvents(test, "Login", &alice, &alice, nil))
	assert.Empty(t, AssignmentEvents(test, "Login", nil, nil, nil))

	evs := AssignmentEvents(test, "Login", &alice, &bob, &alice)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.ActionTestUnassigned, evs[0].Code)
	assert.Equal(t, alice, evs[0].Recipient)
	assert.Equal(t, domain.ActionTestAssigned, evs[1].Code)
	assert.Equal(t, bob, evs[1].Recipient)
	assert.Equal(t, "Login", evs[1].Vars["name"])
	assert.Equal(t, domain.Target{Kind: domain.KindTest, ID: 9}, evs[1].Target)

	evs = AssignmentEvents(test, "Login", nil, &bob, nil)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.ActionTestAssigned, evs[0].Code)
}

func TestSortStatuses(t *testing.T) {
	statuses := []*domain.ResultStatus{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	SortStatuses(statuses, map[string]int{"3": 0, "1": 1})
	got := make([]uint, len(statuses))
	for i, s := range statuses {
		got[i] = s.ID
	}
	assert.Equal(t, []uint{3, 1, 2, 4}, got)
}

func TestMergeConfig(t *testing.T) {
	current := map[string]any{"theme": "dark", "page_size": 50.0}
	got := MergeConfig(current, map[string]any{"theme": nil, "lang": "en"})
	assert.Equal(t, map[string]any{"page_size": 50.0, "lang": "en"}, got)
	assert.Equal(t, "dark", current["theme"])
}

func TestFormatTemplate(t *testing.T) {
	vars := map[string]any{"actor": "ann", "test_id": 12}
	assert.Equal(t, "ann assigned you to test 12 {unknown}", FormatTemplate("{actor} assigned you to test {test_id} {unknown}", vars))
	assert.Equal(t, "", FormatTemplate("", vars))
	assert.Equal(t, "{actor}", FormatTemplate("{actor}", nil))
}

func TestRequiredAndValidateAttributes(t *testing.T) {
	suite, status := uint(5), uint(2)
	attr := func(name string, applied map[domain.Kind]domain.AppliedConfig) *domain.CustomAttribute {
		return &domain.CustomAttribute{Name: name, AppliedTo: datatypes.NewJSONType(applied)}
	}
	attrs := []*domain.CustomAttribute{
		attr("browser", map[domain.Kind]domain.AppliedConfig{domain.KindCase: {IsRequired: true}}),
		attr("build", map[domain.Kind]domain.AppliedConfig{domain.KindResult: {IsRequired: true, StatusSpecific: []uint{1}}}),
		attr("env", map[domain.Kind]domain.AppliedConfig{domain.KindResult: {IsRequired: true}}),
		attr("owner", map[domain.Kind]domain.AppliedConfig{domain.KindCase: {IsRequired: true, SuiteIDs: []uint{9}}}),
	}

	assert.Equal(t, []string{"browser"}, RequiredAttributes(attrs, AttributeScope{Kind: domain.KindCase, SuiteID: &suite}))
	assert.Equal(t, []string{"env"}, RequiredAttributes(attrs, AttributeScope{Kind: domain.KindResult, SuiteID: &suite, StatusID: &status}))

	err := ValidateAttributes(map[string]any{}, []string{"browser", "env"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing following required attributes: [browser, env]")

	err = ValidateAttributes(map[string]any{"browser": "  ", "env": "ci"}, []string{"browser", "env"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Found empty required attributes: [browser]")

	err = ValidateAttributes(map[string]any{"a,b": "x"}, nil)
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))

	assert.NoError(t, ValidateAttributes(map[string]any{"browser": "chrome"}, []string{"browser"}))
}

func TestParseStatusSelection(t *testing.T) {
	sel, err := ParseStatusSelection(nil)
	require.NoError(t, err)
	assert.Nil(t, sel)
	assert.True(t, sel.Match(&domain.Test{}))

	sel, err = ParseStatusSelection([]string{"2", "null"})
	require.NoError(t, err)
	passed, failed := uint(2), uint(1)
	assert.True(t, sel.Match(&domain.Test{}))
	assert.True(t, sel.Match(&domain.Test{TestFields: domain.TestFields{LastStatusID: &passed}}))
	assert.False(t, sel.Match(&domain.Test{TestFields: domain.TestFields{LastStatusID: &failed}}))

	_, err = ParseStatusSelection([]string{"passed"})
	assert.True(t, apierr.IsCode(err, apierr.CodeValidation))
}

func TestBuildTree(t *testing.T) {
	one, two := uint(1), uint(2)
	rows := []*domain.Suite{
		{ID: 1, Name: "root"},
		{ID: 2, Name: "child", TreeFields: domain.TreeFields{ParentID: &one}},
		{ID: 3, Name: "grandchild", TreeFields: domain.TreeFields{ParentID: &two}},
		{ID: 4, Name: "other"},
	}
	roots := BuildTree(rows, func(s *domain.Suite) uint { return s.ID }, func(s *domain.Suite) *uint { return s.ParentID })
	require.Len(t, roots, 2)
	assert.Equal(t, "root", roots[0].Item.Name)
	require.Len(t, roots[0].Children, 1)
	require.Len(t, roots[0].Children[0].Children, 1)
	assert.Equal(t, "grandchild", roots[0].Children[0].Children[0].Item.Name)
}
