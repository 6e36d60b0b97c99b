package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/data/softdelete"
	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/services"
)

// ArchiveHandler serves delete, archive and trash endpoints. Each method
// returns a handler bound to the resource kind it is mounted under.
type ArchiveHandler struct {
	archive services.ArchiveService
}

func NewArchiveHandler(archive services.ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{archive: archive}
}

func setPreviewCookie(c *gin.Context, p *softdelete.Preview) {
	maxAge := int(time.Until(p.ExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(softdelete.CookieName, p.Token, maxAge, "/", "", c.Request.TLS != nil, true)
}

func clearPreviewCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(softdelete.CookieName, "", -1, "/", "", c.Request.TLS != nil, true)
}

// Delete soft-deletes one object and its cascade: DELETE /<resource>/:id/.
func (h *ArchiveHandler) Delete(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c, "id")
		if err != nil {
			response.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		p, err := h.archive.Preview(ctx, softdelete.ModeDelete, kind, []uint{id})
		if err != nil {
			response.RespondError(c, err)
			return
		}
		res, err := h.archive.Commit(ctx, p.Token)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		if !res.Committed {
			// Rows changed between the two calls; let the client confirm.
			setPreviewCookie(c, res.Fresh)
			c.JSON(http.StatusConflict, res)
			return
		}
		response.RespondNoContent(c)
	}
}

// Preview counts what would be archived or deleted and sets the archive_cache
// cookie: POST /<resource>/archive-preview/ {"ids": [...], "mode": "archive|delete"}.
func (h *ArchiveHandler) Preview(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			IDs  []uint          `json:"ids"`
			Mode softdelete.Mode `json:"mode"`
		}
		if err := bindJSON(c, &req); err != nil {
			response.RespondError(c, err)
			return
		}
		if req.Mode == "" {
			req.Mode = softdelete.ModeArchive
		}
		p, err := h.archive.Preview(c.Request.Context(), req.Mode, kind, req.IDs)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		setPreviewCookie(c, p)
		response.RespondOK(c, p)
	}
}

// Commit applies a preview: POST /<resource>/archive-commit/. The token comes
// from the archive_cache cookie or {"token": "..."}. A stale preview is not
// applied; the response carries a fresh one and the cookie is replaced.
func (h *ArchiveHandler) Commit(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if c.Request.ContentLength > 0 {
		if err := bindJSON(c, &req); err != nil {
			response.RespondError(c, err)
			return
		}
	}
	if req.Token == "" {
		req.Token, _ = c.Cookie(softdelete.CookieName)
	}
	res, err := h.archive.Commit(c.Request.Context(), req.Token)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	if res.Committed {
		clearPreviewCookie(c)
	} else {
		setPreviewCookie(c, res.Fresh)
	}
	response.RespondOK(c, res)
}

// Restore unarchives objects: POST /<resource>/archive-restore/ {"ids": [...]}.
func (h *ArchiveHandler) Restore(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := bindIDs(c)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		counts, err := h.archive.Unarchive(c.Request.Context(), kind, ids)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"counts": counts})
	}
}

// DeletedList lists soft-deleted roots: GET /<resource>/deleted/?project=.
func (h *ArchiveHandler) DeletedList(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		project, err := optionalUint(c, "project")
		if err != nil {
			response.RespondError(c, err)
			return
		}
		rows, err := h.archive.Deleted(c.Request.Context(), kind, project)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, rows)
	}
}

// DeletedRecover restores soft-deleted objects: POST /<resource>/deleted/recover/.
func (h *ArchiveHandler) DeletedRecover(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := bindIDs(c)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		counts, err := h.archive.Recover(c.Request.Context(), kind, ids)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"counts": counts})
	}
}

// DeletedRemove purges soft-deleted objects: POST /<resource>/deleted/remove/.
func (h *ArchiveHandler) DeletedRemove(kind domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := bindIDs(c)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		counts, err := h.archive.Remove(c.Request.Context(), kind, ids)
		if err != nil {
			response.RespondError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"counts": counts})
	}
}
