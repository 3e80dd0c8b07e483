package order

import (
	"errors"
	"fmt"
)

// Status is the order lifecycle state. Orders are created as pending
// while checkout runs its stock reduction; they flip to received on
// success or failed when the reduction could not be committed. From
// received onward the transitions are driven by seller and delivery
// actions.
type Status string

const (
	StatusPending        Status = "pending"
	StatusReceived       Status = "received"
	StatusPacked         Status = "packed"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusNotDelivered   Status = "not_delivered"
	StatusFailed         Status = "failed"
)

var (
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// validTransitions defines allowed state transitions.
var validTransitions = map[Status][]Status{
	StatusPending:        {StatusReceived, StatusFailed},
	StatusReceived:       {StatusPacked},
	StatusPacked:         {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered, StatusNotDelivered},
	StatusDelivered:      {}, // terminal
	StatusNotDelivered:   {StatusOutForDelivery}, // delivery retry
	StatusFailed:         {}, // terminal
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Terminal reports whether no further transition can leave s.
// not_delivered is not terminal: it can be retried back out for delivery.
func (s Status) Terminal() bool {
	allowed, ok := validTransitions[s]
	return ok && len(allowed) == 0
}

// CanTransitionTo checks whether the status may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// CheckTransition returns nil when the move is legal, and a descriptive
// error otherwise. Callers enforce this at the boundary so illegal
// requests (say delivered back to packed) never reach the store.
func CheckTransition(from, to Status) error {
	if !from.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, from)
	}
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
