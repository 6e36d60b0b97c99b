package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/testbridge-backend/internal/domain"
	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/services"
)

type NotificationHandler struct {
	notifications services.NotificationService
}

func NewNotificationHandler(notifications services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// GET /notifications/?unread=
func (h *NotificationHandler) List(c *gin.Context) {
	q, err := listQuery(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	unread, err := optionalBool(c, "unread")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	page, err := h.notifications.List(c.Request.Context(), q, unread)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /notifications/unread-count/
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	n, err := h.notifications.UnreadCount(c.Request.Context(), ctxutil.UserID(c.Request.Context()))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"count": n})
}

// POST /notifications/mark-as/
// body: { "unread": false, "notifications": [1, 2] }; an empty list marks all.
func (h *NotificationHandler) MarkAs(c *gin.Context) {
	var req struct {
		Unread        bool   `json:"unread"`
		Notifications []uint `json:"notifications"`
	}
	if err := bindJSON(c, &req); err != nil {
		response.RespondError(c, err)
		return
	}
	n, err := h.notifications.MarkAs(c.Request.Context(), !req.Unread, req.Notifications)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"updated": n})
}

// GET /notification-settings/
func (h *NotificationHandler) Settings(c *gin.Context) {
	out, err := h.notifications.Settings(c.Request.Context())
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, out)
}

type settingsBody struct {
	Settings []domain.ActionCode `json:"settings"`
}

// POST /notification-settings/enable/
func (h *NotificationHandler) Enable(c *gin.Context) {
	h.toggle(c, h.notifications.Enable)
}

// POST /notification-settings/disable/
func (h *NotificationHandler) Disable(c *gin.Context) {
	h.toggle(c, h.notifications.Disable)
}

func (h *NotificationHandler) toggle(c *gin.Context, apply func(ctx context.Context, codes []domain.ActionCode) error) {
	var body settingsBody
	if err := bindJSON(c, &body); err != nil {
		response.RespondError(c, err)
		return
	}
	if len(body.Settings) == 0 {
		response.Invalid(c, "settings", "This field is required.")
		return
	}
	if err := apply(c.Request.Context(), body.Settings); err != nil {
		response.RespondError(c, err)
		return
	}
	h.Settings(c)
}
