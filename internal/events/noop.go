package events

import "context"

// NoopPublisher is a Publisher that does nothing (used when NATS is not configured).
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}

// Or returns p, or a NoopPublisher when p is nil.
func Or(p Publisher) Publisher {
	if p == nil {
		return &NoopPublisher{}
	}
	return p
}
