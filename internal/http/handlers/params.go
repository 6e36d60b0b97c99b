package handlers

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/data/labels"
	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/services"
)

const maxPageSize = 1000

func invalid(field, message string) error {
	return apierr.FieldValidation("request", field, message)
}

// listQuery reads page, page_size, ordering and search.
func listQuery(c *gin.Context) (repos.Query, error) {
	var q repos.Query
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, invalid("page", "Invalid page.")
		}
		q.Page = n
	}
	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, invalid("page_size", "A valid integer is required.")
		}
		q.PageSize = min(n, maxPageSize)
	}
	if q.Page > 0 && q.PageSize == 0 {
		q.PageSize = 100
	}
	for _, field := range strings.Split(c.Query("ordering"), ",") {
		if field = strings.TrimSpace(field); field != "" {
			q.Ordering = append(q.Ordering, field)
		}
	}
	q.Search = strings.TrimSpace(c.Query("search"))
	return q, nil
}

func parseUint(field, raw string) (uint, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, invalid(field, "A valid integer is required.")
	}
	return uint(n), nil
}

// pathID reads a numeric path parameter.
func pathID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apierr.NotFound("request", "object", c.Param(name))
	}
	return uint(id), nil
}

// uintList splits a comma separated id list.
func uintList(field, raw string) ([]uint, error) {
	var out []uint
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := parseUint(field, part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// queryIDs accepts repeated and comma separated values: ?labels=1&labels=2,3.
func queryIDs(c *gin.Context, field string) ([]uint, error) {
	var out []uint
	for _, raw := range c.QueryArray(field) {
		ids, err := uintList(field, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func optionalUint(c *gin.Context, field string) (*uint, error) {
	raw := strings.TrimSpace(c.Query(field))
	if raw == "" {
		return nil, nil
	}
	id, err := parseUint(field, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// projectParam reads the project filter most collections require.
func projectParam(c *gin.Context) (uint, error) {
	raw := strings.TrimSpace(c.Query("project"))
	if raw == "" {
		return 0, invalid("project", "This field is required.")
	}
	return parseUint("project", raw)
}

func parseBool(field, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, invalid(field, "Must be a valid boolean.")
}

func queryBool(c *gin.Context, field string) (bool, error) {
	return parseBool(field, c.Query(field))
}

// optionalBool distinguishes an absent flag from false.
func optionalBool(c *gin.Context, field string) (*bool, error) {
	raw, ok := c.GetQuery(field)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := parseBool(field, raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// treeFilter reads treeview, is_flat and parent=<id|null|csv>.
func treeFilter(c *gin.Context) (services.TreeFilter, error) {
	var f services.TreeFilter
	var err error
	if f.Treeview, err = queryBool(c, "treeview"); err != nil {
		return f, err
	}
	if f.IsFlat, err = queryBool(c, "is_flat"); err != nil {
		return f, err
	}
	raw, ok := c.GetQuery("parent")
	if !ok {
		return f, nil
	}
	f.ParentSet = true
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case strings.EqualFold(part, "null"):
			f.Roots = true
		default:
			id, err := parseUint("parent", part)
			if err != nil {
				return f, err
			}
			f.Parents = append(f.Parents, id)
		}
	}
	if len(f.Parents) == 0 && !f.Roots {
		f.Roots = true
	}
	return f, nil
}

// labelFilter reads labels, not_labels and labels_condition.
func labelFilter(c *gin.Context) (labels.Filter, error) {
	var f labels.Filter
	var err error
	if f.Labels, err = queryIDs(c, "labels"); err != nil {
		return f, err
	}
	if f.NotLabels, err = queryIDs(c, "not_labels"); err != nil {
		return f, err
	}
	f.Condition = labels.ParseCondition(c.Query("labels_condition"))
	return f, nil
}

func parseTime(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, invalid(field, "Datetime has wrong format.")
}

// dateRange reads start_date and end_date; both are optional.
func dateRange(c *gin.Context) (services.DateRange, error) {
	var r services.DateRange
	var err error
	if r.Start, err = parseTime("start_date", c.Query("start_date")); err != nil {
		return r, err
	}
	if r.End, err = parseTime("end_date", c.Query("end_date")); err != nil {
		return r, err
	}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return r, invalid("end_date", "End date must be after start date.")
	}
	return r, nil
}

// idsBody is the common {"ids": [...]} payload of bulk endpoints.
type idsBody struct {
	IDs []uint `json:"ids"`
}

func bindIDs(c *gin.Context) ([]uint, error) {
	var body idsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, invalid("ids", "A list of ids is required.")
	}
	if len(body.IDs) == 0 {
		return nil, invalid("ids", "This field is required.")
	}
	return body.IDs, nil
}

// bindJSON decodes the request body, reporting malformed input as a 400.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apierr.Validation("request", "JSON parse error - %s", err.Error())
	}
	return nil
}

// decodeBody decodes the JSON body into dst and reports which top-level keys
// were present, so an explicit null can be told apart from an omitted field.
func decodeBody(c *gin.Context, dst any) (map[string]bool, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, apierr.Validation("request", "unable to read request body")
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, apierr.Validation("request", "JSON parse error - %s", err.Error())
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, apierr.Validation("request", "JSON object expected")
	}
	present := make(map[string]bool, len(keys))
	for k := range keys {
		present[k] = true
	}
	return present, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatUint(n uint) string { return strconv.FormatUint(uint64(n), 10) }
