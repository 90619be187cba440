package utils

import (
	"log"
	"time"

	"wab/src/models"
	"wab/src/types"

	"gorm.io/gorm"
)

const maxReserveAttempts = 3

// TryReserveCapacity makes a single optimistic attempt to take count slots
// from a capacity window. The write is guarded by the window's version
// column; a lost race surfaces as ErrConcurrencyConflict so the caller can
// re-read and retry.
func TryReserveCapacity(tx *gorm.DB, capacityId uint, count uint) (*models.TourCapacity, error) {
	var entry models.TourCapacity
	err := tx.
		Where(&models.TourCapacity{ID: capacityId, Active: true}).
		First(&entry).
		Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.ErrCapacityNotFound
		}
		return nil, err
	}
	if count > entry.RemainingSlots {
		return nil, types.ErrInsufficientCapacity
	}
	res := tx.
		Model(&models.TourCapacity{}).
		Where("id = ? AND version = ?", entry.ID, entry.Version).
		Updates(map[string]any{
			"remaining_slots": entry.RemainingSlots - count,
			"version":         entry.Version + 1,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, types.ErrConcurrencyConflict
	}
	entry.RemainingSlots -= count
	entry.Version++
	return &entry, nil
}

// ReserveCapacity retries TryReserveCapacity on version conflicts. Capacity
// exhaustion and missing windows are returned as-is on the first attempt.
func ReserveCapacity(tx *gorm.DB, capacityId uint, count uint) (*models.TourCapacity, error) {
	var lastErr error
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		entry, err := TryReserveCapacity(tx, capacityId, count)
		if err == nil {
			return entry, nil
		}
		if err != types.ErrConcurrencyConflict {
			return nil, err
		}
		log.Printf("Version conflict reserving capacity %d (attempt %d/%d)\n", capacityId, attempt, maxReserveAttempts)
		lastErr = err
	}
	return nil, lastErr
}

// ReleaseCapacity returns count slots to a capacity window, clamped so
// remaining never exceeds max. Callers must ensure a reservation's slots
// are released at most once; the status-guarded update on the reservation
// row is what enforces that.
func ReleaseCapacity(tx *gorm.DB, capacityId uint, count uint) error {
	for attempt := 1; attempt <= maxReserveAttempts; attempt++ {
		var entry models.TourCapacity
		err := tx.
			Where(&models.TourCapacity{ID: capacityId}).
			First(&entry).
			Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return types.ErrCapacityNotFound
			}
			return err
		}
		restored := entry.RemainingSlots + count
		if restored > entry.MaxSlots {
			log.Printf("Clamping release on capacity %d: %d slots over max\n", capacityId, restored-entry.MaxSlots)
			restored = entry.MaxSlots
		}
		res := tx.
			Model(&models.TourCapacity{}).
			Where("id = ? AND version = ?", entry.ID, entry.Version).
			Updates(map[string]any{
				"remaining_slots": restored,
				"version":         entry.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		log.Printf("Version conflict releasing capacity %d (attempt %d/%d)\n", capacityId, attempt, maxReserveAttempts)
	}
	return types.ErrConcurrencyConflict
}

// IsWithinRegistrationWindow reports whether asOf falls inside the
// window's registration period. Opens is inclusive, closes is exclusive.
func IsWithinRegistrationWindow(entry *models.TourCapacity, asOf time.Time) bool {
	if asOf.Before(entry.RegistrationOpensAt) {
		return false
	}
	return asOf.Before(entry.RegistrationClosesAt)
}
