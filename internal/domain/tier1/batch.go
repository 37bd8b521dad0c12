package tier1

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Result statuses for a single batch item.
const (
	ResultOK         = "ok"
	ResultParseError = "parse_error"
	ResultError      = "error"
)

// Remote batch statuses after which no further transitions are expected.
var terminalStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"expired":   true,
	"cancelled": true,
}

// TerminalStatuses returns the terminal set in a stable order.
func TerminalStatuses() []string {
	return []string{"completed", "failed", "expired", "cancelled"}
}

func IsTerminal(status string) bool {
	return terminalStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// Metadata keys used for retry bookkeeping.
const (
	MetaAutoRetrySpawnedBatchID = "auto_retry_spawned_batch_id"
	MetaAutoRetrySpawnedAt      = "auto_retry_spawned_at"
	MetaAutoRetryOf             = "auto_retry_of"
	MetaAutoRetryDepth          = "auto_retry_depth"
	MetaAutoRetryClaimedAt      = "auto_retry_claimed_at"
)

type Batch struct {
	BatchID      string         `gorm:"column:batch_id;primaryKey" json:"batch_id"`
	Status       string         `gorm:"column:status;index" json:"status"`
	Model        string         `gorm:"column:model" json:"model,omitempty"`
	InputFileID  *string        `gorm:"column:input_file_id" json:"input_file_id,omitempty"`
	OutputFileID *string        `gorm:"column:output_file_id" json:"output_file_id,omitempty"`
	ErrorFileID  *string        `gorm:"column:error_file_id" json:"error_file_id,omitempty"`
	RequestCount int            `gorm:"column:request_count;not null;default:0" json:"request_count"`
	Metadata     datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Batch) TableName() string { return "t1_batches" }

// BatchItem is the request exactly as submitted. Written once.
type BatchItem struct {
	BatchID     string    `gorm:"column:batch_id;primaryKey" json:"batch_id"`
	CustomID    string    `gorm:"column:custom_id;primaryKey" json:"custom_id"`
	Title       string    `gorm:"column:title" json:"title,omitempty"`
	Author      string    `gorm:"column:author" json:"author,omitempty"`
	ContentType string    `gorm:"column:content_type" json:"content_type,omitempty"`
	PromptMode  string    `gorm:"column:prompt_mode" json:"prompt_mode"`
	Prompt      string    `gorm:"column:prompt;type:text" json:"prompt"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (BatchItem) TableName() string { return "t1_batch_items" }

type BatchItemResult struct {
	BatchID      string         `gorm:"column:batch_id;primaryKey" json:"batch_id"`
	CustomID     string         `gorm:"column:custom_id;primaryKey" json:"custom_id"`
	Status       string         `gorm:"column:status;not null" json:"status"`
	ResponseText *string        `gorm:"column:response_text;type:text" json:"response_text,omitempty"`
	Parsed       datatypes.JSON `gorm:"column:parsed;type:jsonb" json:"parsed,omitempty"`
	Error        datatypes.JSON `gorm:"column:error;type:jsonb" json:"error,omitempty"`
	Raw          datatypes.JSON `gorm:"column:raw;type:jsonb" json:"raw,omitempty"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (BatchItemResult) TableName() string { return "t1_batch_item_results" }
