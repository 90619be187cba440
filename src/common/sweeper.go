package common

import (
	"fmt"
	"log"
	"time"

	"wab/src/lib"
	"wab/src/models"
	"wab/src/types"
	"wab/src/utils"

	"gorm.io/gorm"
)

// Sweeper reclaims slots from reservations whose deadlines have lapsed.
// Held rows get a short grace period past their hold deadline; Paying rows
// get an extended one on top of that, so a payment callback racing the
// sweep still wins. Each cycle also purges expired idempotency records.
type Sweeper struct {
	db      *gorm.DB
	cfg     types.SweeperConfig
	now     func() time.Time
	publish func(topic string, reservationId uint, status string)
}

type SweepStats struct {
	Expired       int
	PaymentFailed int
	Lagging       int
	RowErrors     int
	Purged        int64
}

type lifecycleEvent struct {
	topic  string
	id     uint
	status string
}

func NewSweeper(db *gorm.DB, cfg types.SweeperConfig) *Sweeper {
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	return &Sweeper{
		db:  db,
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
		publish: func(topic string, reservationId uint, status string) {
			go produceLifecycleEvent(topic, reservationId, status)
		},
	}
}

// WithClock Replace the sweeper's clock, used by tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// WithPublisher Replace the lifecycle event publisher, used by tests.
func (s *Sweeper) WithPublisher(publish func(topic string, reservationId uint, status string)) *Sweeper {
	s.publish = publish
	return s
}

// RunCycle executes one full sweep in a single transaction. A failing row
// is logged and skipped; only a commit failure fails the cycle. Lifecycle
// events for the swept rows go out after the transaction commits, so a
// rolled-back cycle never announces rows that are still live.
func (s *Sweeper) RunCycle() (SweepStats, error) {
	stats := SweepStats{}
	now := s.now()
	heldCutoff := now.Add(-s.cfg.HoldGracePeriod)
	payingCutoff := heldCutoff.Add(-s.cfg.PaymentCallbackGracePeriod)

	var events []lifecycleEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var held []models.Reservation
		err := tx.
			Where(&models.Reservation{Status: types.RESERVATION_HELD}).
			Where("expires_at < ?", heldCutoff).
			Order("expires_at asc").
			Limit(s.cfg.SweepBatchSize).
			Preload("Participants").
			Find(&held).
			Error
		if err != nil {
			return err
		}
		for i := range held {
			swept, err := s.expireHeld(tx, &held[i], now)
			if err != nil {
				log.Printf("Error expiring reservation %d: %s\n", held[i].ID, err.Error())
				stats.RowErrors++
				continue
			}
			if !swept {
				continue
			}
			stats.Expired++
			events = append(events, lifecycleEvent{"reservations-expired", held[i].ID, string(held[i].Status)})
		}

		var paying []models.Reservation
		err = tx.
			Where(&models.Reservation{Status: types.RESERVATION_PAYING}).
			Where("expires_at < ?", payingCutoff).
			Order("expires_at asc").
			Limit(s.cfg.SweepBatchSize).
			Preload("Participants").
			Find(&paying).
			Error
		if err != nil {
			return err
		}
		for i := range paying {
			swept, err := s.failPayment(tx, &paying[i], now)
			if err != nil {
				log.Printf("Error failing payment on reservation %d: %s\n", paying[i].ID, err.Error())
				stats.RowErrors++
				continue
			}
			if !swept {
				continue
			}
			stats.PaymentFailed++
			events = append(events, lifecycleEvent{"reservations-payment-failed", paying[i].ID, string(paying[i].Status)})
		}

		// Paying rows past the hold deadline but inside the callback
		// grace window are left alone, their gateway still has time.
		var lagging int64
		err = tx.
			Model(&models.Reservation{}).
			Where(&models.Reservation{Status: types.RESERVATION_PAYING}).
			Where("expires_at < ? AND expires_at >= ?", heldCutoff, payingCutoff).
			Count(&lagging).
			Error
		if err != nil {
			return err
		}
		stats.Lagging = int(lagging)
		if lagging > 0 {
			log.Printf("Sweep: %d paying reservations awaiting gateway callback\n", lagging)
		}

		purged, err := utils.PurgeExpiredIdempotency(tx, now)
		if err != nil {
			return err
		}
		stats.Purged = purged
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("%w: %s", types.ErrPersistenceFailure, err.Error())
	}
	for _, ev := range events {
		s.publish(ev.topic, ev.id, ev.status)
	}
	return stats, nil
}

func (s *Sweeper) expireHeld(tx *gorm.DB, r *models.Reservation, now time.Time) (bool, error) {
	priorStatus := r.Status
	if err := r.MarkAsExpired(now); err != nil {
		return false, err
	}
	res := tx.
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", r.ID, priorStatus).
		Updates(map[string]any{
			"status":        r.Status,
			"cancel_reason": r.CancelReason,
			"cancelled_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to a cancel or payment, nothing to release
		return false, nil
	}
	if r.CapacityID != nil {
		if err := utils.ReleaseCapacity(tx, *r.CapacityID, r.GetParticipantCount()); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Sweeper) failPayment(tx *gorm.DB, r *models.Reservation, now time.Time) (bool, error) {
	priorStatus := r.Status
	if err := r.MarkPaymentFailed("payment callback grace period elapsed", now); err != nil {
		return false, err
	}
	res := tx.
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", r.ID, priorStatus).
		Updates(map[string]any{
			"status":        r.Status,
			"cancel_reason": r.CancelReason,
			"cancelled_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if r.CapacityID != nil {
		if err := utils.ReleaseCapacity(tx, *r.CapacityID, r.GetParticipantCount()); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Start schedules sweep cycles on the shared scheduler. Each run schedules
// the next one itself, backing off to the error-retry interval after a
// failed commit.
func (s *Sweeper) Start() {
	s.scheduleNext(s.cfg.CleanupInterval)
}

func (s *Sweeper) scheduleNext(in time.Duration) {
	runsAt := time.Now().Add(in)
	_, err := lib.CreateOneTimeJob(runsAt, func() {
		stats, err := s.RunCycle()
		next := s.cfg.CleanupInterval
		if err != nil {
			log.Printf("Sweep cycle failed: %s\n", err.Error())
			next = s.cfg.ErrorRetryInterval
		} else if stats.Expired > 0 || stats.PaymentFailed > 0 || stats.Purged > 0 {
			log.Printf("Sweep cycle: expired=%d payment_failed=%d row_errors=%d purged=%d\n",
				stats.Expired, stats.PaymentFailed, stats.RowErrors, stats.Purged)
		}
		s.scheduleNext(next)
	})
	if err != nil {
		log.Printf("Error scheduling sweep cycle: %s\n", err.Error())
	}
}

func produceLifecycleEvent(topic string, reservationId uint, status string) {
	err := lib.KafkaProduceMessage("ReservationSweeperProducer", topic, map[string]any{
		"id":     reservationId,
		"status": status,
	})
	if err != nil {
		log.Printf("Error producing %s message: %s\n", topic, err.Error())
	}
}
