package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yungbote/testbridge-backend/internal/http/response"
	"github.com/yungbote/testbridge-backend/internal/platform/apierr"
	"github.com/yungbote/testbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/realtime"
	"github.com/yungbote/testbridge-backend/internal/services"
)

// NotificationSocketHandler streams the caller's unread notification count.
type NotificationSocketHandler struct {
	log           *logger.Logger
	hub           *realtime.Hub
	notifications services.NotificationService
	upgrader      websocket.Upgrader
}

// NewNotificationSocketHandler accepts upgrades from origins; an empty list
// accepts any origin, since the socket is authenticated by token.
func NewNotificationSocketHandler(log *logger.Logger, hub *realtime.Hub, notifications services.NotificationService, origins []string) *NotificationSocketHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &NotificationSocketHandler{
		log:           log.With("handler", "NotificationSocket"),
		hub:           hub,
		notifications: notifications,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// GET /ws/notifications/:user_id/?token=
func (h *NotificationSocketHandler) Serve(c *gin.Context) {
	userID, err := pathID(c, "user_id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if ctxutil.UserID(ctx) != userID {
		response.RespondError(c, apierr.Permission("ws.notifications", "You can only subscribe to your own notifications."))
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := h.hub.NewClient(userID)
	client.Logger = h.log.With("clientID", client.ID, "user_id", userID)
	// Join before reading the count so no later update is lost.
	h.hub.Join(client, realtime.CountGroup(userID))

	count, err := h.notifications.UnreadCount(ctx, userID)
	if err != nil {
		client.Logger.Warn("initial unread count failed", "error", err)
		h.hub.Close(client)
		_ = conn.Close()
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.hub.WriteTimeout))
	if err := conn.WriteJSON(gin.H{"count": count}); err != nil {
		h.hub.Close(client)
		_ = conn.Close()
		return
	}
	h.hub.Serve(ctx, conn, client)
}
