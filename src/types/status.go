package types

type ReservationStatus string

const (
	RESERVATION_DRAFT            ReservationStatus = "draft"
	RESERVATION_HELD             ReservationStatus = "held"
	RESERVATION_PAYING           ReservationStatus = "paying"
	RESERVATION_CONFIRMED        ReservationStatus = "confirmed"
	RESERVATION_EXPIRED          ReservationStatus = "expired"
	RESERVATION_PAYMENT_FAILED   ReservationStatus = "payment_failed"
	RESERVATION_CANCELED         ReservationStatus = "canceled"
	RESERVATION_SYSTEM_CANCELED  ReservationStatus = "system_canceled"
	RESERVATION_WAITLISTED       ReservationStatus = "waitlisted"
	RESERVATION_REFUNDING        ReservationStatus = "refunding"
	RESERVATION_REFUNDED         ReservationStatus = "refunded"
	RESERVATION_NO_SHOW          ReservationStatus = "no_show"
	RESERVATION_CANCEL_REQUESTED ReservationStatus = "cancel_requested"
	RESERVATION_AMEND_REQUESTED  ReservationStatus = "amend_requested"
	RESERVATION_REJECTED         ReservationStatus = "rejected"
)

// reservationTransitions is the single source of truth for legal status
// changes. Any pair not listed here is illegal.
var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	RESERVATION_DRAFT: {
		RESERVATION_HELD,
		RESERVATION_PAYING,
		RESERVATION_WAITLISTED,
		RESERVATION_CANCELED,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_HELD: {
		RESERVATION_PAYING,
		RESERVATION_EXPIRED,
		RESERVATION_CANCELED,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_PAYING: {
		RESERVATION_CONFIRMED,
		RESERVATION_PAYMENT_FAILED,
		RESERVATION_CANCELED,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_CONFIRMED: {
		RESERVATION_CANCEL_REQUESTED,
		RESERVATION_AMEND_REQUESTED,
		RESERVATION_NO_SHOW,
		RESERVATION_REFUNDING,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_PAYMENT_FAILED: {
		RESERVATION_PAYING,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_WAITLISTED: {
		RESERVATION_HELD,
		RESERVATION_CANCELED,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_CANCEL_REQUESTED: {
		RESERVATION_CANCELED,
		RESERVATION_REJECTED,
		RESERVATION_REFUNDING,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_AMEND_REQUESTED: {
		RESERVATION_CONFIRMED,
		RESERVATION_REJECTED,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_REFUNDING: {
		RESERVATION_REFUNDED,
		RESERVATION_SYSTEM_CANCELED,
	},
	RESERVATION_NO_SHOW: {
		RESERVATION_REFUNDING,
		RESERVATION_SYSTEM_CANCELED,
	},
}

// IsValidTransition reports whether moving a reservation from current to
// target is legal. It is a pure lookup and performs no I/O.
func IsValidTransition(current, target ReservationStatus) bool {
	for _, next := range reservationTransitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// CanBeCancelled reports whether an owner-initiated cancellation is
// permitted from the given status.
func CanBeCancelled(current ReservationStatus) bool {
	switch current {
	case RESERVATION_DRAFT, RESERVATION_HELD, RESERVATION_PAYING, RESERVATION_CANCEL_REQUESTED:
		return true
	}
	return false
}

// IsTerminalStatus reports whether a reservation can no longer change.
func IsTerminalStatus(current ReservationStatus) bool {
	switch current {
	case RESERVATION_EXPIRED, RESERVATION_CANCELED, RESERVATION_SYSTEM_CANCELED,
		RESERVATION_REJECTED, RESERVATION_REFUNDED:
		return true
	}
	return false
}

// ActiveStatuses is the set of statuses that count against the
// one-active-reservation-per-owner-per-tour rule and that still hold
// capacity.
var ActiveStatuses = []ReservationStatus{
	RESERVATION_HELD,
	RESERVATION_PAYING,
	RESERVATION_CONFIRMED,
}

func IsActiveStatus(s ReservationStatus) bool {
	for _, a := range ActiveStatuses {
		if a == s {
			return true
		}
	}
	return false
}
