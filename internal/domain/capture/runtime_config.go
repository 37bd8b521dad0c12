package capture

import (
	"time"

	"gorm.io/datatypes"
)

// TestModeKey is the runtime_config row that selects the active schema.
const TestModeKey = "is_test_mode"

type RuntimeConfig struct {
	Key       string         `gorm:"column:key;primaryKey" json:"key"`
	Value     datatypes.JSON `gorm:"column:value;type:jsonb;not null" json:"value"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (RuntimeConfig) TableName() string { return "runtime_config" }
