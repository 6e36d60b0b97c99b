package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/testbridge-backend/internal/realtime"
)

func TestLocalBusForwards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := New(Config{}, nil)
	require.NoError(t, err)
	got := make(chan realtime.Message, 1)
	require.NoError(t, b.StartForwarder(ctx, func(m realtime.Message) { got <- m }))

	require.NoError(t, realtime.CountPublisher{Sink: b}.PublishCount(ctx, 4, 2))
	select {
	case m := <-got:
		assert.Equal(t, "notifications.count.4", m.Group)
		assert.Equal(t, map[string]int64{"count": 2}, m.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded message")
	}
}

func TestRedisBusRequiresAddress(t *testing.T) {
	_, err := NewRedisBus(Config{}, nil)
	assert.Error(t, err)
}

func TestRedisOfLocalBusIsNil(t *testing.T) {
	assert.Nil(t, Redis(NewLocalBus()))
}

func TestRedisChannelMapping(t *testing.T) {
	ch := channelFor("tb", realtime.CountGroup(7))
	assert.Equal(t, "tb:notifications.count.7", ch)

	group, ok := groupOf("tb", ch)
	require.True(t, ok)
	assert.Equal(t, "notifications.count.7", group)

	_, ok = groupOf("tb", "other:notifications.count.7")
	assert.False(t, ok)
	_, ok = groupOf("tb", "tb:")
	assert.False(t, ok)
}
