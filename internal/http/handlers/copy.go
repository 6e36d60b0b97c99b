package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type CopyHandler struct {
	copies services.CopyService
}

func NewCopyHandler(copies services.CopyService) *CopyHandler {
	return &CopyHandler{copies: copies}
}

// POST /testplans/copy/
func (h *CopyHandler) Plans(c *gin.Context) {
	var in services.PlanCopyInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	res, err := h.copies.CopyPlans(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /suites/copy/
func (h *CopyHandler) Suites(c *gin.Context) {
	var in services.SuiteCopyInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	res, err := h.copies.CopySuites(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /cases/copy/
func (h *CopyHandler) Cases(c *gin.Context) {
	var in services.CaseCopyInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	res, err := h.copies.CopyCases(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, res)
}
