package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type SuiteHandler struct {
	suites services.SuiteService
}

func NewSuiteHandler(suites services.SuiteService) *SuiteHandler {
	return &SuiteHandler{suites: suites}
}

// GET /suites/?project=&parent=&treeview=&is_flat=
func (h *SuiteHandler) List(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	f, err := treeFilter(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if f.Treeview {
		nodes, err := h.suites.Tree(c.Request.Context(), project, f)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, nodes)
		return
	}
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.suites.List(c.Request.Context(), project, q, f)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /suites/:id/
func (h *SuiteHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	s, err := h.suites.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, s)
}

// POST /suites/?project=
func (h *SuiteHandler) Create(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.SuiteInput
	present, err := decodeBody(c, &in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	in.ParentSet = present["parent"]
	s, err := h.suites.Create(c.Request.Context(), project, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, s)
}

// PATCH /suites/:id/
func (h *SuiteHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.SuiteInput
	present, err := decodeBody(c, &in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	in.ParentSet = present["parent"]
	s, err := h.suites.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, s)
}

// GET /suites/:id/ancestors/
func (h *SuiteHandler) Ancestors(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.suites.Ancestors(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /suites/:id/descendants/
func (h *SuiteHandler) Descendants(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.suites.Descendants(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}
