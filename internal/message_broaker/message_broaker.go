package message_broaker

import "context"

// MessageBroker carries serialized hub events between dagsync processes.
// Every consumer of a topic receives every message published on it.
type MessageBroker interface {
	Publish(topic string, message []byte) error
	Consume(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}
