package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"wab/src/models"
	"wab/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HashPayload fingerprints a request payload for reuse detection.
func HashPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// BeginIdempotent claims an idempotency key for one mutating call. The
// returned bool is true when the caller should proceed with the operation.
// A processed record with a matching payload hash is returned for replay;
// a hash mismatch or an unexpired in-flight record is rejected.
func BeginIdempotent(tx *gorm.DB, tenantId *uuid.UUID, endpoint string, key string, payloadHash string, retention time.Duration) (*models.IdempotencyRecord, bool, error) {
	tid := uuid.Nil
	if tenantId != nil {
		tid = *tenantId
	}
	var record models.IdempotencyRecord
	err := tx.
		Where(&models.IdempotencyRecord{Endpoint: endpoint, Key: key}).
		Where("tenant_id = ?", tid).
		First(&record).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, false, err
		}
		record = models.IdempotencyRecord{
			TenantID:    tid,
			Endpoint:    endpoint,
			Key:         key,
			PayloadHash: payloadHash,
			ExpiresAt:   time.Now().UTC().Add(retention),
		}
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the insert race to an identical concurrent request
				return nil, false, types.ErrRequestInFlight
			}
			return nil, false, err
		}
		return &record, true, nil
	}
	if record.ExpiresAt.Before(time.Now().UTC()) {
		// Expired claim, reclaim it for this request
		record.PayloadHash = payloadHash
		record.Processed = false
		record.StatusCode = 0
		record.ResponseBody = nil
		record.ExpiresAt = time.Now().UTC().Add(retention)
		if err := tx.Save(&record).Error; err != nil {
			return nil, false, err
		}
		return &record, true, nil
	}
	if record.PayloadHash != payloadHash {
		return nil, false, types.ErrIdempotencyKeyReuseConflict
	}
	if !record.Processed {
		return nil, false, types.ErrRequestInFlight
	}
	return &record, false, nil
}

// CompleteIdempotent stores the outcome on a claimed record and marks it
// processed so later retries replay instead of re-executing.
func CompleteIdempotent(tx *gorm.DB, record *models.IdempotencyRecord, statusCode int, responseBody []byte) error {
	return tx.
		Model(&models.IdempotencyRecord{}).
		Where(&models.IdempotencyRecord{ID: record.ID}).
		Updates(map[string]any{
			"processed":     true,
			"status_code":   statusCode,
			"response_body": responseBody,
		}).
		Error
}

// PurgeExpiredIdempotency removes records whose retention window has
// passed. Returns the number of rows deleted.
func PurgeExpiredIdempotency(tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := tx.
		Unscoped().
		Where("expires_at < ?", cutoff).
		Delete(&models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
