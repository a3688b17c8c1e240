package driverdesk

import "fmt"

// canTransitionStatus checks whether an application may move from one
// verification status to another. Returns true if the transition is allowed,
// false with an error otherwise.
//
// pending    -> approved, rejected
// rejected   -> pending (applicant corrections re-open the review)
// approved   -> terminated
// terminated -> (none)
func canTransitionStatus(from, to VerificationStatus) (bool, error) {
	switch from {
	case StatusPending:
		if to == StatusApproved || to == StatusRejected {
			return true, nil
		}
	case StatusRejected:
		if to == StatusPending {
			return true, nil
		}
	case StatusApproved:
		if to == StatusTerminated {
			return true, nil
		}
	case StatusTerminated:
		// terminal
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidStatusTransition, from)
	}
	return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}

// ValidStatus reports whether s is a known verification status.
func ValidStatus(s VerificationStatus) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusTerminated:
		return true
	}
	return false
}
