package models

import (
	"time"

	"wab/src/types"

	"github.com/google/uuid"
)

// Reservation is one member's or guest's claim against a capacity window.
// Status changes go through the transition table in types; callers persist
// them with a status-guarded update so a release can never run twice for
// the same reservation. The partial unique index on (tour, owner) holds
// the one-active-reservation rule even against concurrent inserts that
// both pass the application-level count.
type Reservation struct {
	ID              uint                    `gorm:"primarykey" json:"id"`
	TourID          uint                    `gorm:"uniqueIndex:idx_reservations_active_owner,where:status = 'held' OR status = 'paying' OR status = 'confirmed'" json:"tour_id,omitempty"`
	CapacityID      *uint                   `json:"capacity_id,omitempty"`
	OwnerID         uint                    `gorm:"uniqueIndex:idx_reservations_active_owner,where:status = 'held' OR status = 'paying' OR status = 'confirmed'" json:"owner_id,omitempty"`
	OwnerType       types.OwnerType         `gorm:"default:'member'" json:"owner_type,omitempty"`
	TrackingCode    string                  `gorm:"uniqueIndex;size:64" json:"tracking_code,omitempty"`
	Status          types.ReservationStatus `gorm:"default:'draft'" json:"status,omitempty"`
	RequestedAmount int64                   `json:"requested_amount,omitempty"`
	ConfirmedAmount int64                   `json:"confirmed_amount,omitempty"`
	PaidAmount      int64                   `json:"paid_amount,omitempty"`
	Currency        string                  `json:"currency,omitempty"`
	ReservedAt      time.Time               `json:"reserved_at,omitempty"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
	ConfirmedAt     *time.Time              `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time              `json:"cancelled_at,omitempty"`
	CancelReason    *string                 `json:"cancel_reason,omitempty"`
	TenantID        *uuid.UUID              `gorm:"type:uuid" json:"-"`

	Tour           Tour                     `json:"tour,omitempty"`
	Capacity       *TourCapacity            `gorm:"foreignKey:capacity_id" json:"capacity,omitempty"`
	Participants   []ReservationParticipant `json:"participants,omitempty"`
	PriceSnapshots []PriceSnapshot          `json:"price_snapshots,omitempty"`

	types.Timestamps
}

type ReservationParticipant struct {
	ID            uint                  `gorm:"primarykey" json:"id"`
	ReservationID uint                  `json:"reservation_id,omitempty"`
	Type          types.ParticipantType `json:"type,omitempty"`
	FullName      string                `json:"full_name,omitempty"`
	UnitAmount    int64                 `json:"unit_amount,omitempty"`

	types.Timestamps
}

// PriceSnapshot freezes the resolved price for one participant type at
// reservation creation.
type PriceSnapshot struct {
	ID            uint                  `gorm:"primarykey" json:"id"`
	ReservationID uint                  `json:"reservation_id,omitempty"`
	Type          types.ParticipantType `json:"type,omitempty"`
	UnitAmount    int64                 `json:"unit_amount,omitempty"`
	Currency      string                `json:"currency,omitempty"`
	Basis         string                `json:"basis,omitempty"`

	types.Timestamps
}

func (r *Reservation) GetParticipantCount() uint {
	return uint(len(r.Participants))
}

func (r *Reservation) transitionTo(target types.ReservationStatus) error {
	if !types.IsValidTransition(r.Status, target) {
		return types.ErrIllegalStateTransition
	}
	r.Status = target
	return nil
}

// MarkAsExpired moves a lapsed hold to its failure terminal. Legal only
// from Held; the caller releases capacity after the guarded update sticks.
func (r *Reservation) MarkAsExpired(now time.Time) error {
	if err := r.transitionTo(types.RESERVATION_EXPIRED); err != nil {
		return err
	}
	reason := "hold expired"
	r.CancelReason = &reason
	r.CancelledAt = &now
	return nil
}

// MarkPaymentFailed is the Paying counterpart of MarkAsExpired, applied
// only after the extended payment-callback grace window has passed.
func (r *Reservation) MarkPaymentFailed(reason string, now time.Time) error {
	if err := r.transitionTo(types.RESERVATION_PAYMENT_FAILED); err != nil {
		return err
	}
	r.CancelReason = &reason
	r.CancelledAt = &now
	return nil
}

// Cancel applies an owner-initiated cancellation.
func (r *Reservation) Cancel(reason string, now time.Time) error {
	if !types.CanBeCancelled(r.Status) {
		return types.ErrIllegalStateTransition
	}
	if err := r.transitionTo(types.RESERVATION_CANCELED); err != nil {
		return err
	}
	r.CancelReason = &reason
	r.CancelledAt = &now
	return nil
}

// BeginPayment hands the reservation off to the payment flow.
func (r *Reservation) BeginPayment() error {
	return r.transitionTo(types.RESERVATION_PAYING)
}

// Confirm applies a successful payment signal.
func (r *Reservation) Confirm(paidAmount int64, now time.Time) error {
	if err := r.transitionTo(types.RESERVATION_CONFIRMED); err != nil {
		return err
	}
	r.ConfirmedAmount = r.RequestedAmount
	r.PaidAmount = paidAmount
	r.ConfirmedAt = &now
	return nil
}
