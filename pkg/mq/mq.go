package mq

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message is a broker-agnostic delivery handed to subscribers.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	Redelivered bool
}

// Handler processes a message. A returned error causes the message to be
// negatively acknowledged.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by concrete brokers.
type Backend interface {
	Publish(ctx context.Context, queue string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, queue string, handler Handler) error
	Close() error
}

// Broker wraps a Backend with JSON helpers.
type Broker struct {
	backend Backend
}

// New constructs a Broker for the provided backend.
func New(backend Backend) *Broker {
	return &Broker{backend: backend}
}

// Publish sends raw bytes to the named queue.
func (b *Broker) Publish(ctx context.Context, queue string, data []byte, attrs map[string]string) (string, error) {
	return b.backend.Publish(ctx, queue, data, attrs)
}

// PublishJSON marshals v and publishes it to the named queue.
func (b *Broker) PublishJSON(ctx context.Context, queue string, v interface{}, attrs map[string]string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	if attrs == nil {
		attrs = map[string]string{}
	}
	if _, ok := attrs["content_type"]; !ok {
		attrs["content_type"] = "application/json"
	}
	return b.backend.Publish(ctx, queue, data, attrs)
}

// Subscribe consumes messages from the named queue until ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, queue string, handler Handler) error {
	return b.backend.Subscribe(ctx, queue, handler)
}

// Close releases the underlying backend.
func (b *Broker) Close() error {
	return b.backend.Close()
}
