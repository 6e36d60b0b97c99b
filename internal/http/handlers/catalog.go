package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/data/repos"
	"github.com/yungbote/testbridge-backend/internal/http/response"
)

// projectCRUD serves the flat project-scoped collections: parameters,
// labels and custom attributes.
type projectCRUD[T any, In any] struct {
	list   func(ctx context.Context, projectID uint, q repos.Query) (*repos.Page[T], error)
	get    func(ctx context.Context, id uint) (*T, error)
	create func(ctx context.Context, projectID uint, in In) (*T, error)
	update func(ctx context.Context, id uint, in In) (*T, error)
}

func (h projectCRUD[T, In]) List(c *gin.Context) {
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
	page, err := h.list(c.Request.Context(), project, q)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

func (h projectCRUD[T, In]) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.get(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func (h projectCRUD[T, In]) Create(c *gin.Context) {
	project, err := projectParam(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in In
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.create(c.Request.Context(), project, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, out)
}

func (h projectCRUD[T, In]) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	var in In
	if err := bindJSON(c, &in); err != nil {
		response.RespondError(c, err)
		return
	}
	out, err := h.update(c.Request.Context(), id, in)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}
