package types

import (
	"time"

	"github.com/google/uuid"
)

// UnlimitedDailyLimit is the sentinel meaning "no daily cap" for a plan.
const UnlimitedDailyLimit = -1

type PlanLimit struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Feature    string    `gorm:"column:feature;not null;uniqueIndex:idx_plan_limit_key,priority:1" json:"feature"`
	PlanType   string    `gorm:"column:plan_type;not null;uniqueIndex:idx_plan_limit_key,priority:2" json:"plan_type"`
	DailyLimit int       `gorm:"column:daily_limit;not null" json:"daily_limit"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (PlanLimit) TableName() string { return "plan_limit" }
