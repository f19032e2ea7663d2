// Package nop provides the Publisher used when events.provider is "none".
package nop

import (
	"context"

	"github.com/papercomputeco/reel/pkg/eventstream"
)

// Publisher drops every event.
type Publisher struct{}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishTurn rejects nil events like every other publisher, then drops the
// event.
func (*Publisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}
	return nil
}

func (*Publisher) Close() error { return nil }
