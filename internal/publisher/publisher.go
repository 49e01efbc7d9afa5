// Package publisher defines the notification boundary used to announce archived
// chapters to downstream consumers.
package publisher

import "context"

// Publisher sends a JSON-serializable payload to a named topic and returns the
// broker-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
