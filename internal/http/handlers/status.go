package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type StatusHandler struct {
	statuses services.StatusService
}

func NewStatusHandler(statuses services.StatusService) *StatusHandler {
	return &StatusHandler{statuses: statuses}
}

// GET /statuses/?project=
// Lists system statuses plus the project's own, in the project's status_order.
func (h *StatusHandler) List(c *gin.Context) {
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
	page, err := h.statuses.List(c.Request.Context(), project, q)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /statuses/:id/
func (h *StatusHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	st, err := h.statuses.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, st)
}

// POST /statuses/[?project=]
// Without a project the status is global; only superusers may create those.
func (h *StatusHandler) Create(c *gin.Context) {
	project, err := optionalUint(c, "project")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.StatusInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	st, err := h.statuses.Create(c.Request.Context(), project, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, st)
}

// PATCH /statuses/:id/
func (h *StatusHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.StatusInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	st, err := h.statuses.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, st)
}
