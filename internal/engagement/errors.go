package engagement

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrToggleRejected marks a like or unlike that failed after retries and
	// was rolled back.
	ErrToggleRejected = errors.New("toggle rejected")

	// ErrToggleInFlight is returned for a toggle on an entity whose previous
	// toggle has not resolved yet. Nothing is applied.
	ErrToggleInFlight = errors.New("toggle already in flight")

	// ErrChannelDisconnected is reported when resubscribing to a scope keeps
	// failing. The multiplexer keeps trying after reporting it.
	ErrChannelDisconnected = errors.New("change channel disconnected")

	ErrSessionClosed = errors.New("session closed")
)

type ToggleError struct {
	EntityID uuid.UUID
	// Like is the intent that failed: true for like, false for unlike.
	Like bool
	Err  error
}

func (e *ToggleError) Error() string {
	action := "unlike"
	if e.Like {
		action = "like"
	}
	return fmt.Sprintf("%s %s: %v", action, e.EntityID, e.Err)
}

func (e *ToggleError) Unwrap() error { return e.Err }

func (e *ToggleError) Is(target error) bool { return target == ErrToggleRejected }

// DisconnectError carries the scope and the last subscribe failure.
type DisconnectError struct {
	Scope    string
	Failures int
	Err      error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("scope %s: %d reconnect attempts failed: %v", e.Scope, e.Failures, e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

func (e *DisconnectError) Is(target error) bool { return target == ErrChannelDisconnected }
