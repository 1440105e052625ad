package events

// Message is one payload received from the bus.
type Message struct {
	Topic string
	Data  []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers payloads for topic (NATS wildcard syntax) on the
	// returned channel. Call the returned cancel function to unsubscribe
	// and close the channel.
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}

// subscriptionBuffer is the channel capacity of a subscription.
const subscriptionBuffer = 256
