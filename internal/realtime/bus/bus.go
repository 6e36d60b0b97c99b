package bus

import (
	"context"

	"github.com/yungbote/testbridge-backend/internal/platform/logger"
	"github.com/yungbote/testbridge-backend/internal/realtime"
)

// Bus fans messages out to every instance; each instance forwards what it
// receives to its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}

type Config struct {
	RedisAddr string
	Channel   string
}

// New returns a redis bus when an address is configured, otherwise a
// process-local bus.
func New(cfg Config, log *logger.Logger) (Bus, error) {
	if cfg.RedisAddr == "" {
		return NewLocalBus(), nil
	}
	return NewRedisBus(cfg, log)
}

type localBus struct {
	ch chan realtime.Message
}

func NewLocalBus() Bus { return &localBus{ch: make(chan realtime.Message, 256)} }

func (b *localBus) Publish(ctx context.Context, msg realtime.Message) error {
	select {
	case b.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-b.ch:
				onMsg(m)
			}
		}
	}()
	return nil
}

func (b *localBus) Close() error { return nil }
