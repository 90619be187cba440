package types

// BusinessError is a user-visible failure with a stable code. Handlers map
// codes to HTTP statuses; internal errors are never surfaced verbatim.
type BusinessError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"-"`
}

func (e *BusinessError) Error() string {
	return e.Message
}

var (
	ErrInsufficientCapacity = &BusinessError{
		Code:    "insufficient_capacity",
		Message: "not enough slots remaining for the requested participants",
	}
	ErrCapacityNotFound = &BusinessError{
		Code:    "capacity_not_found",
		Message: "registration window not found or no longer active",
	}
	ErrConcurrencyConflict = &BusinessError{
		Code:      "concurrency_conflict",
		Message:   "the registration window was updated concurrently, please retry",
		Retryable: true,
	}
	ErrDuplicateActiveReservation = &BusinessError{
		Code:    "duplicate_active_reservation",
		Message: "an active reservation for this tour already exists",
	}
	ErrIllegalStateTransition = &BusinessError{
		Code:    "illegal_state_transition",
		Message: "the reservation is not in a status that allows this action",
	}
	ErrIdempotencyKeyReuseConflict = &BusinessError{
		Code:    "idempotency_key_reuse_conflict",
		Message: "the idempotency key was already used with a different payload",
	}
	ErrRequestInFlight = &BusinessError{
		Code:      "request_in_flight",
		Message:   "an identical request is still being processed, retry shortly",
		Retryable: true,
	}
	ErrPersistenceFailure = &BusinessError{
		Code:      "persistence_failure",
		Message:   "the change could not be committed, it will be retried",
		Retryable: true,
	}
	ErrRegistrationClosed = &BusinessError{
		Code:    "registration_closed",
		Message: "registration for this window is not open",
	}
	ErrMembershipInactive = &BusinessError{
		Code:    "membership_inactive",
		Message: "owner has no active membership",
	}
	ErrInvalidParticipantCount = &BusinessError{
		Code:    "invalid_participant_count",
		Message: "participant count is outside the allowed range for this window",
	}
)
