package agent

import (
	"errors"
	"fmt"

	"git.0xdad.com/tblyler/lifespan/notify"
)

// ErrInvalidTransition occurs when an action arrives for a notification that
// is no longer shown
var ErrInvalidTransition = errors.New("invalid notification transition")

// State of a shown notification
type State string

const (
	StateShown     State = "shown"
	StateTaken     State = "taken"
	StateSnoozed   State = "snoozed"
	StateDismissed State = "dismissed"
	// StateInformational marks notifications without actions, such as the
	// snooze confirmation
	StateInformational State = "informational"
)

// Next state after action. Only a shown notification accepts actions.
func (s State) Next(action notify.Action) (State, error) {
	if s != StateShown {
		return s, fmt.Errorf("%s on %s notification: %w", action, s, ErrInvalidTransition)
	}

	switch action {
	case notify.ActionTaken:
		return StateTaken, nil
	case notify.ActionSnooze:
		return StateSnoozed, nil
	case notify.ActionDismissed:
		return StateDismissed, nil
	}

	return s, fmt.Errorf("unknown action %q: %w", action, ErrInvalidTransition)
}

// Terminal reports whether no further action is accepted
func (s State) Terminal() bool {
	return s != StateShown
}
