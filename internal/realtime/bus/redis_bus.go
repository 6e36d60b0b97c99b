package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/realtime"
)

const defaultChannel = "testbridge.notifications"

// redisBus maps every hub group onto its own redis channel "<prefix>:<group>"
// so a count for one user never wakes subscribers of another pattern.
type redisBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

func NewRedisBus(cfg Config, log *logger.Logger) (Bus, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("redis bus: REDIS_ADDR is empty")
	}
	if log == nil {
		return nil, errors.New("redis bus: logger required")
	}
	prefix := strings.TrimSpace(cfg.Channel)
	if prefix == "" {
		prefix = defaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis bus: ping %s: %w", addr, err)
	}
	log.Info("redis notification bus connected", "addr", addr, "prefix", prefix)

	return &redisBus{log: log.With("component", "RedisBus"), rdb: rdb, prefix: prefix}, nil
}

// Redis returns the client behind b so the archive preview cache can share the
// connection; it is nil for a local bus.
func Redis(b Bus) *goredis.Client {
	if rb, ok := b.(*redisBus); ok {
		return rb.rdb
	}
	return nil
}

func channelFor(prefix, group string) string { return prefix + ":" + group }

func groupOf(prefix, channel string) (string, bool) {
	group, ok := strings.CutPrefix(channel, prefix+":")
	return group, ok && group != ""
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.Message) error {
	if msg.Group == "" {
		return errors.New("redis bus: message without group")
	}
	raw, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("redis bus: encode %s: %w", msg.Group, err)
	}
	return b.rdb.Publish(ctx, channelFor(b.prefix, msg.Group), raw).Err()
}

// StartForwarder pattern-subscribes to every group under the prefix and hands
// decoded messages to onMsg until ctx is done.
func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return errors.New("redis bus: forwarder callback required")
	}
	sub := b.rdb.PSubscribe(ctx, channelFor(b.prefix, "*"))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis bus: psubscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					b.log.Warn("redis subscription closed")
					return
				}
				group, ok := groupOf(b.prefix, m.Channel)
				if !ok {
					continue
				}
				msg := realtime.Message{Group: group}
				if m.Payload != "" {
					msg.Data = json.RawMessage(m.Payload)
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	return b.rdb.Close()
}
