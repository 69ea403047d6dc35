package domain

import "fmt"

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "pending"
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusPaused    SubscriptionStatus = "paused"
)

// SubscriptionEvent drives a status transition.
type SubscriptionEvent string

const (
	EventActivate SubscriptionEvent = "activate"
	EventResume   SubscriptionEvent = "resume"
	EventPause    SubscriptionEvent = "pause"
	EventExpire   SubscriptionEvent = "expire"
	EventCancel   SubscriptionEvent = "cancel"
)

// transitions is the complete status table. expired and cancelled have no
// outgoing edges.
var transitions = map[SubscriptionStatus]map[SubscriptionEvent]SubscriptionStatus{
	StatusPending: {
		EventActivate: StatusActive,
		EventCancel:   StatusCancelled,
	},
	StatusActive: {
		EventActivate: StatusActive,
		EventResume:   StatusActive,
		EventPause:    StatusPaused,
		EventExpire:   StatusExpired,
		EventCancel:   StatusCancelled,
	},
	StatusPaused: {
		EventActivate: StatusActive,
		EventResume:   StatusActive,
		EventPause:    StatusPaused,
		EventExpire:   StatusExpired,
		EventCancel:   StatusCancelled,
	},
}

// Transition returns the status reached from "from" on event, or ErrInvalidTransition.
func Transition(from SubscriptionStatus, event SubscriptionEvent) (SubscriptionStatus, error) {
	if to, ok := transitions[from][event]; ok {
		return to, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
}

// CanTransition reports whether event is allowed from status.
func CanTransition(from SubscriptionStatus, event SubscriptionEvent) bool {
	_, ok := transitions[from][event]
	return ok
}

// Ended reports whether the status is terminal.
func (s SubscriptionStatus) Ended() bool {
	return s == StatusExpired || s == StatusCancelled
}
