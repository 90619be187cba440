package utils

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"wab/src/config"
	"wab/src/db"
	"wab/src/lib"
	"wab/src/models"
	"wab/src/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewTrackingCode(tourName string) string {
	fragment := strings.Split(uuid.NewString(), "-")[0]
	return strings.ToUpper(fmt.Sprintf("%s-%s", slug.Make(tourName), fragment))
}

// CreateReservation runs the whole admission pipeline in one transaction:
// membership gate, window checks, duplicate check, capacity reserve, price
// snapshots, and finally the Held row with its hold deadline. Any failure
// rolls the slot take back with the rest.
func CreateReservation(ctx *gin.Context, params *types.CreateReservationRequestBody, ownerId uint) (*models.Reservation, error) {
	tenantId, _ := uuid.Parse(ctx.GetString("tenant_id"))
	ownerType := params.OwnerType
	if ownerType == "" {
		ownerType = types.OWNER_MEMBER
	}
	count := uint(len(params.Participants))
	now := time.Now().UTC()

	if ownerType == types.OWNER_MEMBER {
		active, err := lib.GetMembershipService().GetOwnerActiveMembership(ctx, ownerId)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, types.ErrMembershipInactive
		}
	}

	var reservation *models.Reservation
	db := db.GetDb()
	err := db.Transaction(func(tx *gorm.DB) error {
		var tour models.Tour
		if err := tx.Where(&models.Tour{ID: params.TourID}).First(&tour).Error; err != nil {
			return types.ErrCapacityNotFound
		}

		var entry models.TourCapacity
		err := tx.
			Where(&models.TourCapacity{ID: params.CapacityID, TourID: params.TourID, Active: true}).
			First(&entry).
			Error
		if err != nil {
			return types.ErrCapacityNotFound
		}
		if !IsWithinRegistrationWindow(&entry, now) {
			return types.ErrRegistrationClosed
		}
		if count < entry.MinPerReservation {
			return types.ErrInvalidParticipantCount
		}
		if entry.MaxPerReservation > 0 && count > entry.MaxPerReservation {
			return types.ErrInvalidParticipantCount
		}

		var existing int64
		err = tx.
			Model(&models.Reservation{}).
			Where(&models.Reservation{TourID: params.TourID, OwnerID: ownerId}).
			Where(clause.IN{Column: "status", Values: statusesAsAny(types.ActiveStatuses)}).
			Count(&existing).
			Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return types.ErrDuplicateActiveReservation
		}

		if _, err := ReserveCapacity(tx, entry.ID, count); err != nil {
			return err
		}

		quotes := map[types.ParticipantType]*types.PriceQuote{}
		resolver := lib.GetPricingResolver()
		snapshots := []models.PriceSnapshot{}
		participants := []models.ReservationParticipant{}
		var total int64
		currency := "usd"
		for _, p := range params.Participants {
			quote, ok := quotes[p.Type]
			if !ok {
				q, err := resolver.ResolvePrice(ctx, params.TourID, p.Type, nil, nil)
				if err != nil {
					return err
				}
				quotes[p.Type] = q
				quote = q
				snapshots = append(snapshots, models.PriceSnapshot{
					Type:       p.Type,
					UnitAmount: q.UnitAmount,
					Currency:   q.Currency,
					Basis:      q.Basis,
				})
			}
			if quote.Currency != "" {
				currency = quote.Currency
			}
			total += quote.UnitAmount
			participants = append(participants, models.ReservationParticipant{
				Type:       p.Type,
				FullName:   p.FullName,
				UnitAmount: quote.UnitAmount,
			})
		}

		expiresAt := now.Add(config.HoldDuration())
		r := models.Reservation{
			TourID:          params.TourID,
			CapacityID:      &entry.ID,
			OwnerID:         ownerId,
			OwnerType:       ownerType,
			TrackingCode:    NewTrackingCode(tour.Name),
			Status:          types.RESERVATION_HELD,
			RequestedAmount: total,
			Currency:        currency,
			ReservedAt:      now,
			ExpiresAt:       &expiresAt,
			TenantID:        &tenantId,
			Participants:    participants,
			PriceSnapshots:  snapshots,
		}
		if err := tx.Create(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// A concurrent create slipped past the duplicate count
				return types.ErrDuplicateActiveReservation
			}
			log.Printf("Error creating reservation: %s\n", err.Error())
			return err
		}
		reservation = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// CancelReservation applies an owner cancellation. Slots go back only when
// the reservation was still holding them; the old-status guard on the
// update is what keeps a racing sweeper from releasing a second time.
func CancelReservation(reservationId uint, ownerId uint, reason string) (*models.Reservation, error) {
	var reservation models.Reservation
	now := time.Now().UTC()
	db := db.GetDb()
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where(&models.Reservation{ID: reservationId, OwnerID: ownerId}).
			First(&reservation).
			Error
		if err != nil {
			return err
		}
		priorStatus := reservation.Status
		if err := reservation.Cancel(reason, now); err != nil {
			return err
		}
		res := tx.
			Model(&models.Reservation{}).
			Where("id = ? AND status = ?", reservation.ID, priorStatus).
			Updates(map[string]any{
				"status":        reservation.Status,
				"cancel_reason": reason,
				"cancelled_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrConcurrencyConflict
		}
		holdsSlots := priorStatus == types.RESERVATION_HELD || priorStatus == types.RESERVATION_PAYING
		if holdsSlots && reservation.CapacityID != nil {
			var count int64
			if err := tx.
				Model(&models.ReservationParticipant{}).
				Where(&models.ReservationParticipant{ReservationID: reservation.ID}).
				Count(&count).
				Error; err != nil {
				return err
			}
			if err := ReleaseCapacity(tx, *reservation.CapacityID, uint(count)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// StartPayment moves a reservation into Paying and opens a Stripe checkout
// session for it. A Stripe failure rolls the status change back so the
// hold deadline keeps protecting the slots.
func StartPayment(reservationId uint, ownerId uint) (*models.Reservation, string, error) {
	var reservation models.Reservation
	var checkoutURL string
	db := db.GetDb()
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.
			Where(&models.Reservation{ID: reservationId, OwnerID: ownerId}).
			Preload("Tour").
			First(&reservation).
			Error
		if err != nil {
			return err
		}
		priorStatus := reservation.Status
		if err := reservation.BeginPayment(); err != nil {
			return err
		}
		res := tx.
			Model(&models.Reservation{}).
			Where("id = ? AND status = ?", reservation.ID, priorStatus).
			Update("status", reservation.Status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return types.ErrConcurrencyConflict
		}

		sc := lib.GetStripeClient()
		successUrl := fmt.Sprintf("%s/checkout/callback/success", os.Getenv("APP_HOST"))
		createParams := &stripe.CheckoutSessionCreateParams{
			SuccessURL: stripe.String(successUrl),
			UIMode:     stripe.String("hosted"),
			Mode:       stripe.String("payment"),
			LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
				{
					PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
						Currency:   stripe.String(reservation.Currency),
						UnitAmount: stripe.Int64(reservation.RequestedAmount),
						ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
							Name: stripe.String(reservation.Tour.Title),
						},
					},
					Quantity: stripe.Int64(1),
				},
			},
			Metadata: map[string]string{
				"reservation_id": fmt.Sprint(reservation.ID),
				"tracking_code":  reservation.TrackingCode,
			},
		}
		checkoutSession, err := sc.V1CheckoutSessions.Create(context.Background(), createParams)
		if err != nil {
			log.Printf("Error creating checkout session for reservation %d: %s\n", reservation.ID, err.Error())
			return err
		}
		checkoutURL = checkoutSession.URL
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return &reservation, checkoutURL, nil
}

// ApplyPaymentResult consumes one gateway completion or failure signal.
// The callback id claims an idempotency record inside the same transaction
// as the status change, so a webhook retry or a queue redelivery is a
// no-op replay. A signal arriving after the sweeper already resolved the
// reservation is logged and acknowledged without releasing anything.
func ApplyPaymentResult(cb *types.PaymentCallback) error {
	now := time.Now().UTC()
	var confirmed bool
	db := db.GetDb()
	err := db.Transaction(func(tx *gorm.DB) error {
		record, proceed, err := BeginIdempotent(tx, nil, "payment-callback", cb.CallbackID, paymentCallbackHash(cb), config.IdempotencyRetention())
		if err != nil {
			return err
		}
		if !proceed {
			log.Printf("Duplicate payment callback %s for reservation %d, skipping\n", cb.CallbackID, cb.ReservationID)
			return nil
		}

		var reservation models.Reservation
		err = tx.
			Where(&models.Reservation{ID: cb.ReservationID}).
			First(&reservation).
			Error
		if err != nil {
			return err
		}
		priorStatus := reservation.Status

		if cb.Succeeded {
			if err := reservation.Confirm(cb.PaidAmount, now); err != nil {
				log.Printf("Payment callback %s arrived for reservation %d in status %s, ignoring\n", cb.CallbackID, reservation.ID, priorStatus)
				return CompleteIdempotent(tx, record, 200, nil)
			}
			res := tx.
				Model(&models.Reservation{}).
				Where("id = ? AND status = ?", reservation.ID, priorStatus).
				Updates(map[string]any{
					"status":           reservation.Status,
					"confirmed_amount": reservation.ConfirmedAmount,
					"paid_amount":      reservation.PaidAmount,
					"confirmed_at":     now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return types.ErrConcurrencyConflict
			}
			confirmed = true
		} else {
			if err := reservation.MarkPaymentFailed(cb.Reason, now); err != nil {
				log.Printf("Payment failure %s arrived for reservation %d in status %s, ignoring\n", cb.CallbackID, reservation.ID, priorStatus)
				return CompleteIdempotent(tx, record, 200, nil)
			}
			res := tx.
				Model(&models.Reservation{}).
				Where("id = ? AND status = ?", reservation.ID, priorStatus).
				Updates(map[string]any{
					"status":        reservation.Status,
					"cancel_reason": cb.Reason,
					"cancelled_at":  now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return types.ErrConcurrencyConflict
			}
			if reservation.CapacityID != nil {
				var count int64
				if err := tx.
					Model(&models.ReservationParticipant{}).
					Where(&models.ReservationParticipant{ReservationID: reservation.ID}).
					Count(&count).
					Error; err != nil {
					return err
				}
				if err := ReleaseCapacity(tx, *reservation.CapacityID, uint(count)); err != nil {
					return err
				}
			}
		}
		return CompleteIdempotent(tx, record, 200, nil)
	})
	if err != nil {
		return err
	}
	if confirmed {
		go func() {
			err := lib.KafkaProduceMessage("ReservationsConfirmedProducer", "reservations-confirmed", map[string]any{
				"id":          cb.ReservationID,
				"callback_id": cb.CallbackID,
				"paid_amount": cb.PaidAmount,
			})
			if err != nil {
				log.Printf("Error producing confirmation message: %s\n", err.Error())
			}
		}()
	}
	return nil
}

// GetRemainingCapacity reads the live remaining-slot count, with a short
// cache so hot windows do not hammer the ledger.
func GetRemainingCapacity(ctx context.Context, capacityId uint) (uint, error) {
	cacheKey := fmt.Sprintf("capacity::%d:remaining", capacityId)
	rd := lib.GetRedisClient()
	if rd != nil {
		if cached, err := rd.Get(ctx, cacheKey).Uint64(); err == nil {
			return uint(cached), nil
		}
	}
	var entry models.TourCapacity
	db := db.GetDb()
	err := db.
		Where(&models.TourCapacity{ID: capacityId}).
		First(&entry).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, types.ErrCapacityNotFound
		}
		return 0, err
	}
	if rd != nil {
		rd.SetEx(ctx, cacheKey, uint64(entry.RemainingSlots), 5*time.Second)
	}
	return entry.RemainingSlots, nil
}

func paymentCallbackHash(cb *types.PaymentCallback) string {
	return HashPayload(fmt.Sprintf("%d|%t|%s|%d", cb.ReservationID, cb.Succeeded, cb.Reason, cb.PaidAmount))
}

func statusesAsAny(statuses []types.ReservationStatus) []any {
	vals := make([]any, 0, len(statuses))
	for _, s := range statuses {
		vals = append(vals, s)
	}
	return vals
}
