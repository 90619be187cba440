package models

import (
	"time"

	"wab/src/types"

	"github.com/google/uuid"
)

type Tour struct {
	ID       uint             `gorm:"primarykey" json:"id"`
	Title    string           `json:"title,omitempty"`
	Name     string           `json:"name,omitempty"`
	About    *string          `json:"about,omitempty"`
	Location string           `json:"location,omitempty"`
	StartsAt time.Time        `json:"starts_at,omitempty"`
	Status   types.TourStatus `gorm:"default:'draft'" json:"status,omitempty"`
	TenantID *uuid.UUID       `gorm:"type:uuid" json:"-"`

	Capacities []TourCapacity `json:"capacities,omitempty"`

	types.Timestamps
}

// TourCapacity is one bookable registration window for a tour. Remaining
// slots move only through the ledger's reserve/release operations; the
// Version column is the optimistic-concurrency token guarding them.
type TourCapacity struct {
	ID                   uint       `gorm:"primarykey" json:"id"`
	TourID               uint       `json:"tour_id,omitempty"`
	MaxSlots             uint       `json:"max_slots"`
	RemainingSlots       uint       `json:"remaining_slots"`
	MinPerReservation    uint       `gorm:"default:1" json:"min_per_reservation,omitempty"`
	MaxPerReservation    uint       `json:"max_per_reservation,omitempty"`
	RegistrationOpensAt  time.Time  `json:"registration_opens_at"`
	RegistrationClosesAt time.Time  `json:"registration_closes_at"`
	Active               bool       `gorm:"default:true" json:"active"`
	Special              bool       `json:"special,omitempty"`
	Version              int64      `json:"-"`
	TenantID             *uuid.UUID `gorm:"type:uuid" json:"-"`

	Tour Tour `json:"tour,omitempty"`

	types.Timestamps
}
