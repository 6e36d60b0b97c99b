package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GET /users/?project=
func (uh *UserHandler) List(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	project, err := optionalUint(c, "project")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := uh.userService.List(c.Request.Context(), q, project)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /users/:id/
func (uh *UserHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	u, err := uh.userService.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, u)
}

// GET /users/me/
func (uh *UserHandler) Me(c *gin.Context) {
	me, err := uh.userService.Me(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, me)
}

// POST /users/
func (uh *UserHandler) Create(c *gin.Context) {
	var in services.UserInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	u, err := uh.userService.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, u)
}

// PATCH /users/:id/
func (uh *UserHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in services.UserInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	u, err := uh.userService.Update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, u)
}

// PATCH /users/me/config/
// body: any JSON object, merged into the stored config.
func (uh *UserHandler) UpdateConfig(c *gin.Context) {
	var patch map[string]any
	if err := bindJSON(c, &patch); err != nil {
		response.RespondError(c, err)
		return
	}
	cfg, err := uh.userService.UpdateConfig(c.Request.Context(), patch)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, cfg)
}
