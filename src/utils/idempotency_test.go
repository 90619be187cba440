package utils

import (
	"testing"
	"time"

	"wab/src/models"
	"wab/src/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestBeginIdempotentFirstRequestProceeds(t *testing.T) {
	d := newTestDB(t)

	record, proceed, err := BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-1", HashPayload("a"), time.Hour)
	require.NoError(t, err)
	assert.True(t, proceed)
	assert.False(t, record.Processed)
}

func TestBeginIdempotentReplaysProcessedRecord(t *testing.T) {
	d := newTestDB(t)

	record, proceed, err := BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-2", HashPayload("a"), time.Hour)
	require.NoError(t, err)
	require.True(t, proceed)
	require.NoError(t, CompleteIdempotent(d, record, 201, []byte(`{"data":{"id":1}}`)))

	replay, proceed, err := BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-2", HashPayload("a"), time.Hour)
	require.NoError(t, err)
	assert.False(t, proceed)
	assert.True(t, replay.Processed)
	assert.Equal(t, 201, replay.StatusCode)
	assert.Equal(t, `{"data":{"id":1}}`, string(replay.ResponseBody))
}

func TestBeginIdempotentRejectsDifferentPayload(t *testing.T) {
	d := newTestDB(t)

	record, proceed, err := BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-3", HashPayload("a"), time.Hour)
	require.NoError(t, err)
	require.True(t, proceed)
	require.NoError(t, CompleteIdempotent(d, record, 201, nil))

	_, _, err = BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-3", HashPayload("b"), time.Hour)
	assert.ErrorIs(t, err, types.ErrIdempotencyKeyReuseConflict)
}

func TestBeginIdempotentRejectsInFlightRetry(t *testing.T) {
	d := newTestDB(t)

	_, proceed, err := BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-4", HashPayload("a"), time.Hour)
	require.NoError(t, err)
	require.True(t, proceed)

	_, _, err = BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-4", HashPayload("a"), time.Hour)
	assert.ErrorIs(t, err, types.ErrRequestInFlight)
}

func TestBeginIdempotentLosesCreateRace(t *testing.T) {
	d := newTestDB(t)

	record, proceed, err := BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-6", HashPayload("a"), time.Hour)
	require.NoError(t, err)
	require.True(t, proceed)

	// A soft-deleted row is invisible to the read but still occupies the
	// unique index, exactly the view a caller gets when a concurrent first
	// request commits between its read and its insert
	require.NoError(t, d.Delete(&models.IdempotencyRecord{}, record.ID).Error)

	_, _, err = BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-6", HashPayload("a"), time.Hour)
	assert.ErrorIs(t, err, types.ErrRequestInFlight)
}

func TestIdempotencyUniqueWithoutTenant(t *testing.T) {
	d := newTestDB(t)

	_, proceed, err := BeginIdempotent(d, nil, "payment-callback", "evt_dup", HashPayload("a"), time.Hour)
	require.NoError(t, err)
	require.True(t, proceed)

	// Tenantless records share the zero-uuid scope, so the index rejects a
	// second insert instead of treating the rows as distinct
	dup := models.IdempotencyRecord{
		TenantID:    uuid.Nil,
		Endpoint:    "payment-callback",
		Key:         "evt_dup",
		PayloadHash: HashPayload("a"),
		ExpiresAt:   time.Now().UTC().Add(time.Hour),
	}
	assert.ErrorIs(t, d.Create(&dup).Error, gorm.ErrDuplicatedKey)
}

func TestBeginIdempotentReclaimsExpiredKey(t *testing.T) {
	d := newTestDB(t)

	record, proceed, err := BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-5", HashPayload("a"), time.Hour)
	require.NoError(t, err)
	require.True(t, proceed)
	require.NoError(t, CompleteIdempotent(d, record, 201, []byte("old")))
	require.NoError(t, d.
		Model(&models.IdempotencyRecord{}).
		Where("id = ?", record.ID).
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).
		Error)

	reclaimed, proceed, err := BeginIdempotent(d, nil, "POST /api/v1/reservations", "key-5", HashPayload("b"), time.Hour)
	require.NoError(t, err)
	assert.True(t, proceed)
	assert.False(t, reclaimed.Processed)
	assert.Empty(t, reclaimed.ResponseBody)
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	d := newTestDB(t)
	now := time.Now().UTC()

	expired := models.IdempotencyRecord{Endpoint: "e", Key: "old", PayloadHash: "h", Processed: true, ExpiresAt: now.Add(-time.Minute)}
	live := models.IdempotencyRecord{Endpoint: "e", Key: "new", PayloadHash: "h", Processed: true, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, d.Create(&expired).Error)
	require.NoError(t, d.Create(&live).Error)

	purged, err := PurgeExpiredIdempotency(d, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	var count int64
	require.NoError(t, d.Model(&models.IdempotencyRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
