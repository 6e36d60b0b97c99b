package realtime

import "context"

// Sink carries messages to the hubs of every instance.
type Sink interface {
	Publish(ctx context.Context, msg Message) error
}

// CountPublisher pushes unread counts as {"count": n} to the recipient's group.
type CountPublisher struct {
	Sink Sink
}

func (p CountPublisher) PublishCount(ctx context.Context, userID uint, count int64) error {
	return p.Sink.Publish(ctx, Message{Group: CountGroup(userID), Data: map[string]int64{"count": count}})
}
