package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CacheEntry is written exactly once, after a fully successful pipeline run.
// It is removed only by explicit administrative invalidation, never by TTL.
type CacheEntry struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceKey  string         `gorm:"column:source_key;uniqueIndex;not null" json:"source_key"`
	RecordID   uuid.UUID      `gorm:"type:uuid;column:record_id;not null" json:"record_id"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	ComputedAt time.Time      `gorm:"column:computed_at;not null" json:"computed_at"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (CacheEntry) TableName() string { return "cache_entry" }
