package eventstream

import (
	"context"
	"errors"
)

// ErrNilTurnEvent is returned by publishers handed a nil event.
var ErrNilTurnEvent = errors.New("nil turn event")

// Publisher delivers turn events to a backend. The worker pool calls
// PublishTurn after the turn's conversation is saved; a failed publish is
// logged and never undoes the save.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnCompletedEvent) error
	Close() error
}
