package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type ResultHandler struct {
	results services.ResultService
}

func NewResultHandler(results services.ResultService) *ResultHandler {
	return &ResultHandler{results: results}
}

func testParam(c *gin.Context) (uint, error) {
	raw := c.Query("test")
	if raw == "" {
		return 0, invalid("test", "This field is required.")
	}
	return parseUint("test", raw)
}

// GET /results/?test=
func (h *ResultHandler) List(c *gin.Context) {
	testID, err := testParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.results.List(c.Request.Context(), testID, q)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /results/:id/
func (h *ResultHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	r, err := h.results.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, r)
}

// POST /results/?test=
func (h *ResultHandler) Create(c *gin.Context) {
	testID, err := testParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.ResultInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	r, err := h.results.Create(c.Request.Context(), testID, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, r)
}

// PATCH /results/:id/
func (h *ResultHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.ResultInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	r, err := h.results.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, r)
}
