// Package publisher emits run-summary events for downstream consumers.
package publisher

import "context"

// Publisher sends one JSON payload to a named topic and returns the message
// id assigned by the transport.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
