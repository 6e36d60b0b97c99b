package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type CaseHandler struct {
	cases services.CaseService
}

func NewCaseHandler(cases services.CaseService) *CaseHandler {
	return &CaseHandler{cases: cases}
}

func caseFilter(c *gin.Context) (services.CaseFilter, error) {
	var f services.CaseFilter
	var err error
	if f.Suites, err = queryIDs(c, "suite"); err != nil {
		return f, err
	}
	if f.Descendants, err = queryBool(c, "descendants"); err != nil {
		return f, err
	}
	if f.IsArchive, err = optionalBool(c, "is_archive"); err != nil {
		return f, err
	}
	f.Labels, err = labelFilter(c)
	return f, err
}

// GET /cases/?project=&suite=&descendants=&is_archive=&labels=&not_labels=&labels_condition=
func (h *CaseHandler) List(c *gin.Context) {
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
	f, err := caseFilter(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.cases.List(c.Request.Context(), project, q, f)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /cases/:id/
func (h *CaseHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	v, err := h.cases.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// POST /cases/?project=
func (h *CaseHandler) Create(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.CaseInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	v, err := h.cases.Create(c.Request.Context(), project, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, v)
}

// PATCH /cases/:id/
func (h *CaseHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.CaseInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	v, err := h.cases.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// GET /cases/:id/history/
func (h *CaseHandler) History(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.cases.History(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /cases/:id/history/:history_id/
func (h *CaseHandler) Version(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	historyID, err := pathID(c, "history_id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	version, steps, err := h.cases.Version(c.Request.Context(), id, historyID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"case": version, "steps": steps})
}

// POST /cases/:id/history/:history_id/restore/
func (h *CaseHandler) Restore(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	historyID, err := pathID(c, "history_id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	v, err := h.cases.Restore(c.Request.Context(), id, historyID)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, v)
}

// GET /cases/:id/steps/
func (h *CaseHandler) Steps(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	steps, err := h.cases.Steps(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, steps)
}
