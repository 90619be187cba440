package types

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type TourStatus string

const (
	TOUR_DRAFT        TourStatus = "draft"
	TOUR_REGISTRATION TourStatus = "registration"
	TOUR_CLOSED       TourStatus = "closed"
	TOUR_COMPLETED    TourStatus = "completed"
	TOUR_ARCHIVED     TourStatus = "archived"
)

type ParticipantType string

const (
	PARTICIPANT_ADULT ParticipantType = "adult"
	PARTICIPANT_CHILD ParticipantType = "child"
	PARTICIPANT_GUEST ParticipantType = "guest"
)

type OwnerType string

const (
	OWNER_MEMBER OwnerType = "member"
	OWNER_GUEST  OwnerType = "guest"
)

// SweeperConfig carries every externally tunable knob of the expiry
// sweeper. It is passed explicitly into the constructor so tests can
// inject short intervals and a fake clock.
type SweeperConfig struct {
	CleanupInterval            time.Duration
	ErrorRetryInterval         time.Duration
	HoldGracePeriod            time.Duration
	PaymentCallbackGracePeriod time.Duration
	IdempotencyRetention       time.Duration
	SweepBatchSize             int
}

// PriceQuote is the frozen output of the pricing resolver for one
// participant type. Amounts are integral minor units.
type PriceQuote struct {
	ParticipantType ParticipantType `json:"participant_type"`
	UnitAmount      int64           `json:"unit_amount"`
	Currency        string          `json:"currency"`
	Basis           string          `json:"basis,omitempty"`
}

type CreateTourRequestBody struct {
	Title    string `json:"title" binding:"required"`
	Name     string `json:"name" binding:"required"`
	About    string `json:"about,omitempty"`
	Location string `json:"location,omitempty" binding:"required"`
	StartsAt string `json:"starts_at" binding:"required,bookabledate" time_format:"2006-01-02 15:04:05 -07:00"`
}

type CreateCapacityRequestBody struct {
	MaxSlots          uint   `json:"max_slots" binding:"required,min=1"`
	MinPerReservation uint   `json:"min_per_reservation,omitempty" binding:"omitempty,min=1"`
	MaxPerReservation uint   `json:"max_per_reservation,omitempty"`
	OpensAt           string `json:"opens_at" binding:"required" time_format:"2006-01-02 15:04:05 -07:00"`
	ClosesAt          string `json:"closes_at" binding:"required,gtdate=OpensAt" time_format:"2006-01-02 15:04:05 -07:00"`
	Special           bool   `json:"special,omitempty"`
}

type ReservationParticipantInput struct {
	Type     ParticipantType `json:"type" binding:"required,oneof=adult child guest"`
	FullName string          `json:"full_name" binding:"required"`
}

type CreateReservationRequestBody struct {
	TourID       uint                          `json:"tour" binding:"required"`
	CapacityID   uint                          `json:"capacity" binding:"required"`
	OwnerType    OwnerType                     `json:"owner_type,omitempty" binding:"omitempty,oneof=member guest"`
	Participants []ReservationParticipantInput `json:"participants" binding:"required,min=1,dive"`
}

type CancelReservationRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type CapacityURIParams struct {
	TourID     uint `uri:"id" binding:"required"`
	CapacityID uint `uri:"capacityId" binding:"required"`
}

type APIResponseReservation struct {
	ID           uint              `json:"id"`
	TrackingCode string            `json:"tracking_code"`
	Status       ReservationStatus `json:"status"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Amount       int64             `json:"amount,omitempty"`
	Currency     string            `json:"currency,omitempty"`
}

type Claims struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	TenantID    string   `json:"tenant_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// PaymentCallback is the normalized shape of a gateway completion or
// failure signal, whether it arrived over the webhook or the queue.
type PaymentCallback struct {
	CallbackID    string `json:"callback_id"`
	ReservationID uint   `json:"reservation_id"`
	Succeeded     bool   `json:"succeeded"`
	Reason        string `json:"reason,omitempty"`
	PaidAmount    int64  `json:"paid_amount,omitempty"`
}

type Handler func(payload string)
