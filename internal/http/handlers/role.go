package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type RoleHandler struct {
	roles services.RoleService
}

func NewRoleHandler(roles services.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// GET /roles/
func (h *RoleHandler) List(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.roles.List(c.Request.Context(), q)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /roles/:id/
func (h *RoleHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	r, err := h.roles.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, r)
}

// POST /roles/
func (h *RoleHandler) Create(c *gin.Context) {
	var in services.RoleInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	r, err := h.roles.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, r)
}

// PATCH /roles/:id/
func (h *RoleHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.RoleInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	r, err := h.roles.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, r)
}

// GET /roles/permissions/
func (h *RoleHandler) Permissions(c *gin.Context) {
	perms, err := h.roles.Permissions(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, perms)
}

// GET /memberships/?project=
func (h *RoleHandler) Memberships(c *gin.Context) {
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
	page, err := h.roles.Memberships(c.Request.Context(), project, q)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// POST /memberships/?project=
// body: { "user": 1, "role": 2 }
func (h *RoleHandler) Assign(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.MembershipInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	m, err := h.roles.Assign(c.Request.Context(), project, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, m)
}

// DELETE /memberships/:id/
func (h *RoleHandler) Unassign(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if err := h.roles.Unassign(c.Request.Context(), id); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondNoContent(c)
}
