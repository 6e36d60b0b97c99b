package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type PlanHandler struct {
	plans services.PlanService
}

func NewPlanHandler(plans services.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// GET /testplans/?project=&parent=&treeview=&is_flat=
func (h *PlanHandler) List(c *gin.Context) {
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
		nodes, err := h.plans.Tree(c.Request.Context(), project, f)
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
	page, err := h.plans.List(c.Request.Context(), project, q, f)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /testplans/:id/
func (h *PlanHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	p, err := h.plans.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, p)
}

// POST /testplans/?project=
// One plan is created per parameter combination; the response lists all of them.
func (h *PlanHandler) Create(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.PlanInput
	present, err := decodeBody(c, &in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	in.ParentSet = present["parent"]
	plans, err := h.plans.Create(c.Request.Context(), project, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, plans)
}

// PATCH /testplans/:id/
func (h *PlanHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.PlanInput
	present, err := decodeBody(c, &in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	in.ParentSet = present["parent"]
	p, err := h.plans.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, p)
}

// GET /testplans/:id/ancestors/
func (h *PlanHandler) Ancestors(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.plans.Ancestors(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /testplans/:id/descendants/
func (h *PlanHandler) Descendants(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.plans.Descendants(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /testplans/:id/statistics/?start_date=&end_date=
func (h *PlanHandler) Statistics(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	r, err := dateRange(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.plans.Statistics(c.Request.Context(), id, r)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /testplans/progress/?project=&parent=&start_date=&end_date=
func (h *PlanHandler) Progress(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	parent, err := optionalUint(c, "parent")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	r, err := dateRange(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.plans.Progress(c.Request.Context(), project, parent, r)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}
