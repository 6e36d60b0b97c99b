package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/testbridge-backend/internal/platform/logger"
)

// Client is one live connection. Outbound is bounded; when it is full the
// oldest queued message is discarded, since only the latest count matters.
type Client struct {
	ID       uuid.UUID
	UserID   uint
	Groups   map[string]bool
	Outbound chan Message
	done     chan struct{}
	once     sync.Once
	Logger   *logger.Logger
}

// Done is closed when the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// offer queues msg, evicting the oldest message when the buffer is full.
// It reports whether a message was dropped.
func (c *Client) offer(msg Message) (dropped bool) {
	for {
		select {
		case <-c.done:
			return false
		default:
		}
		select {
		case c.Outbound <- msg:
			return dropped
		default:
		}
		select {
		case <-c.Outbound:
			dropped = true
		default:
		}
	}
}
