// Package events publishes admission decisions to interested sinks: the
// websocket hub, a Redis pub/sub channel, or nothing at all.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// Event is a single admission decision.
type Event struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Algorithm string    `json:"algorithm"`
	Allowed   bool      `json:"allowed"`
	Time      time.Time `json:"time"`
}

// NewEvent builds an Event with a fresh ID.
func NewEvent(key, algorithm string, allowed bool, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Key:       key,
		Algorithm: algorithm,
		Allowed:   allowed,
		Time:      at,
	}
}

// Encode serializes e as JSON.
func Encode(e Event) ([]byte, error) {
	data, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", e.ID, err)
	}
	return data, nil
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := sonic.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	return e, nil
}

// Sink receives decision events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every sink. All sinks are tried; their errors
// are joined.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
