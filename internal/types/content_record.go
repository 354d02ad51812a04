package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ContentRecord struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	SourceKey  string         `gorm:"column:source_key;not null;index" json:"source_key"`
	SourceKind string         `gorm:"column:source_kind;not null" json:"source_kind"`
	Feature    string         `gorm:"column:feature;not null" json:"feature"`
	Title      string         `gorm:"column:title" json:"title"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CoverURL   string         `gorm:"column:cover_url" json:"cover_url"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ContentRecord) TableName() string { return "content_record" }
