package capture

import (
	"time"

	"github.com/lib/pq"
)

type ConflictAction string

const (
	ConflictSkip   ConflictAction = "skip"
	ConflictUpdate ConflictAction = "update"
)

// IdempotencyPolicy decides how a duplicate capture is resolved. Seeded
// configuration; the write path only reads it.
type IdempotencyPolicy struct {
	PolicyID       int64          `gorm:"column:policy_id;primaryKey;->" json:"policy_id"`
	PolicyKey      string         `gorm:"column:policy_key;not null;uniqueIndex" json:"policy_key" yaml:"policy_key"`
	Source         string         `gorm:"column:source;not null" json:"source" yaml:"source"`
	ContentType    string         `gorm:"column:content_type" json:"content_type" yaml:"content_type"`
	ConflictAction ConflictAction `gorm:"column:conflict_action;not null" json:"conflict_action" yaml:"conflict_action"`
	// nil means every non-immutable incoming column may be written.
	UpdateFields pq.StringArray `gorm:"column:update_fields;type:text[]" json:"update_fields" yaml:"update_fields"`
	Enabled      bool           `gorm:"column:enabled;not null;default:true" json:"enabled" yaml:"enabled"`
	Notes        string         `gorm:"column:notes" json:"notes,omitempty" yaml:"notes"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at" yaml:"-"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at" yaml:"-"`
}

func (IdempotencyPolicy) TableName() string { return "idempotency_policies" }
