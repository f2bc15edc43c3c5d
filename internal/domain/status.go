package domain

// Status represents the lifecycle status of a netplay session.
type Status string

const (
	// StatusPending: created, host present, waiting for the first guest.
	StatusPending Status = "PENDING"
	// StatusActive: at least one guest joined, session in use.
	StatusActive Status = "ACTIVE"
	// StatusEnded: graceful close. Terminal.
	StatusEnded Status = "ENDED"
	// StatusCancelled: aborted by the host, an admin, or expiry. Terminal.
	StatusCancelled Status = "CANCELLED"
)

// LiveStatuses are the statuses a joinable session can be in. Join-code
// uniqueness is scoped to these.
var LiveStatuses = []Status{StatusPending, StatusActive}

// Live reports whether the session can still accept events.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusActive
}

// Terminal reports whether the status is final. Terminal sessions are never
// resurrected.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusCancelled
}

// CanTransition reports whether from → to is a legal move on the session
// state machine. Self-transitions are not status changes and return false.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusActive || to == StatusEnded || to == StatusCancelled
	case StatusActive:
		return to == StatusEnded || to == StatusCancelled
	default:
		return false
	}
}
