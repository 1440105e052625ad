package events

import "context"

// NoopPublisher is a Publisher that does nothing. The scheduler uses it in
// tests and in API-only deployments that never publish.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error {
	return nil
}
