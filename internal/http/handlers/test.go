package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type TestHandler struct {
	tests services.TestService
}

func NewTestHandler(tests services.TestService) *TestHandler {
	return &TestHandler{tests: tests}
}

// testFilter reads plan, nested_search, suite, assignee (an id or "null"),
// last_status (ids plus "null" for untested), is_archive and the label filter.
func testFilter(c *gin.Context) (services.TestFilter, error) {
	var f services.TestFilter
	var err error
	if f.Plans, err = queryIDs(c, "plan"); err != nil {
		return f, err
	}
	if f.NestedSearch, err = queryBool(c, "nested_search"); err != nil {
		return f, err
	}
	if f.Suites, err = queryIDs(c, "suite"); err != nil {
		return f, err
	}
	switch raw := c.Query("assignee"); raw {
	case "":
	case "null":
		f.Unassigned = true
	default:
		id, err := parseUint("assignee", raw)
		if err != nil {
			return f, err
		}
		f.Assignee = &id
	}
	for _, raw := range c.QueryArray("last_status") {
		for _, part := range splitCSV(raw) {
			if part == "null" {
				f.Untested = true
				continue
			}
			id, err := parseUint("last_status", part)
			if err != nil {
				return f, err
			}
			f.LastStatus = append(f.LastStatus, id)
		}
	}
	if f.IsArchive, err = optionalBool(c, "is_archive"); err != nil {
		return f, err
	}
	f.Labels, err = labelFilter(c)
	return f, err
}

// GET /tests/?project=&plan=&...
func (h *TestHandler) List(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	f, err := testFilter(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.tests.List(c.Request.Context(), project, q, f)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /tests/:id/
func (h *TestHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	v, err := h.tests.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// PATCH /tests/:id/
// body: { "assignee": <id|null> }
func (h *TestHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.TestInput
	present, err := decodeBody(c, &in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	in.AssigneeSet = present["assignee"]
	v, err := h.tests.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// PUT /tests/bulk-update/?project=&<test filters>
// body: { "included_tests": [...], "excluded_tests": [...], "assignee": <id|null>, "plan": <id>, "is_archive": <bool> }
func (h *TestHandler) BulkUpdate(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.BulkTestInput
	present, err := decodeBody(c, &in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	in.AssigneeSet = present["assignee"]
	if in.Filter, err = testFilter(c); err != nil {
		response.RespondError(c, err)
		return
	}
	tests, err := h.tests.BulkUpdate(c.Request.Context(), project, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, tests)
}
