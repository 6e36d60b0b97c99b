package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type SystemMessageHandler struct {
	messages services.SystemMessageService
}

func NewSystemMessageHandler(messages services.SystemMessageService) *SystemMessageHandler {
	return &SystemMessageHandler{messages: messages}
}

// GET /system-messages/?all=
func (h *SystemMessageHandler) List(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	all, err := queryBool(c, "all")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.messages.List(c.Request.Context(), q, all)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// POST /system-messages/
func (h *SystemMessageHandler) Create(c *gin.Context) {
	var in services.SystemMessageInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	m, err := h.messages.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, m)
}

// PATCH /system-messages/:id/
func (h *SystemMessageHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.SystemMessageInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	m, err := h.messages.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, m)
}

// DELETE /system-messages/:id/
func (h *SystemMessageHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.messages.Delete(c.Request.Context(), id); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondNoContent(c)
}
