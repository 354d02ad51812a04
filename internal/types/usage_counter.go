package types

import (
	"time"

	"github.com/google/uuid"
)

// UsageCounter holds one per-(user, feature, day) usage count. The day string
// is part of the key, so a new day starts at a fresh row and no reset job
// exists. Day is always the server-UTC calendar date (YYYY-MM-DD).
type UsageCounter struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_usage_counter_key,priority:1" json:"user_id"`
	Feature   string    `gorm:"column:feature;not null;uniqueIndex:idx_usage_counter_key,priority:2" json:"feature"`
	Day       string    `gorm:"column:day;not null;uniqueIndex:idx_usage_counter_key,priority:3" json:"day"`
	Count     int       `gorm:"column:count;not null;default:0" json:"count"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (UsageCounter) TableName() string { return "usage_counter" }
