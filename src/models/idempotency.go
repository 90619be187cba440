package models

import (
	"time"

	"wab/src/types"

	"github.com/google/uuid"
)

// IdempotencyRecord caches the outcome of one mutating call. The composite
// (tenant, endpoint, key) is unique and may not be reused with a different
// payload hash while unexpired. Tenant is never null; records without a
// tenant carry the zero uuid so the unique index always applies.
type IdempotencyRecord struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	TenantID     uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_idempotency_scope_key" json:"-"`
	Endpoint     string     `gorm:"size:255;not null;uniqueIndex:idx_idempotency_scope_key" json:"-"`
	Key          string     `gorm:"size:128;not null;uniqueIndex:idx_idempotency_scope_key" json:"-"`
	PayloadHash  string     `gorm:"size:64;not null" json:"-"`
	StatusCode   int        `json:"-"`
	ResponseBody []byte     `json:"-"`
	Processed    bool       `gorm:"default:false" json:"-"`
	RequestID    string     `gorm:"size:64" json:"-"`
	ExpiresAt    time.Time  `gorm:"index" json:"-"`

	types.Timestamps
}
