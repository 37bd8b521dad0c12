package capture

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Source systems with idempotent ingestion.
const (
	SystemTelegram   = "telegram"
	SystemEmail      = "email"
	SystemEmailBatch = "email-batch"
	SystemWebpage    = "webpage"
)

// Entry is one captured item. ID and EntryID are immutable once written.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EntryID   int64     `gorm:"column:entry_id;->" json:"entry_id"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`

	Source       string         `gorm:"column:source;not null" json:"source"`
	Intent       string         `gorm:"column:intent" json:"intent,omitempty"`
	ContentType  string         `gorm:"column:content_type" json:"content_type,omitempty"`
	Title        string         `gorm:"column:title" json:"title,omitempty"`
	Author       string         `gorm:"column:author" json:"author,omitempty"`
	CaptureText  string         `gorm:"column:capture_text;type:text" json:"capture_text,omitempty"`
	CleanText    string         `gorm:"column:clean_text;type:text" json:"clean_text,omitempty"`
	URL          *string        `gorm:"column:url" json:"url,omitempty"`
	URLCanonical *string        `gorm:"column:url_canonical" json:"url_canonical,omitempty"`
	ExternalRef  datatypes.JSON `gorm:"column:external_ref;type:jsonb" json:"external_ref,omitempty"`
	Metadata     datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	RetrievalExcerpt string   `gorm:"column:retrieval_excerpt;type:text" json:"retrieval_excerpt,omitempty"`
	QualityScore     *float64 `gorm:"column:quality_score" json:"quality_score,omitempty"`
	LowSignal        bool     `gorm:"column:low_signal;not null;default:false" json:"low_signal"`
	BoilerplateHeavy bool     `gorm:"column:boilerplate_heavy;not null;default:false" json:"boilerplate_heavy"`
	CleanWordCount   int      `gorm:"column:clean_word_count;not null;default:0" json:"clean_word_count"`

	TopicPrimary             string         `gorm:"column:topic_primary" json:"topic_primary,omitempty"`
	TopicPrimaryConfidence   *float64       `gorm:"column:topic_primary_confidence" json:"topic_primary_confidence,omitempty"`
	TopicSecondary           string         `gorm:"column:topic_secondary" json:"topic_secondary,omitempty"`
	TopicSecondaryConfidence *float64       `gorm:"column:topic_secondary_confidence" json:"topic_secondary_confidence,omitempty"`
	Keywords                 pq.StringArray `gorm:"column:keywords;type:text[]" json:"keywords,omitempty"`
	Gist                     string         `gorm:"column:gist;type:text" json:"gist,omitempty"`
	EnrichmentStatus         string         `gorm:"column:enrichment_status" json:"enrichment_status,omitempty"`
	EnrichmentModel          string         `gorm:"column:enrichment_model" json:"enrichment_model,omitempty"`

	IdempotencyPolicyKey    *string `gorm:"column:idempotency_policy_key" json:"idempotency_policy_key,omitempty"`
	IdempotencyKeyPrimary   *string `gorm:"column:idempotency_key_primary" json:"idempotency_key_primary,omitempty"`
	IdempotencyKeySecondary *string `gorm:"column:idempotency_key_secondary" json:"idempotency_key_secondary,omitempty"`
}

func (Entry) TableName() string { return "entries" }

// ImmutableColumns are never written by an update, whatever the policy says.
var ImmutableColumns = map[string]bool{
	"id":         true,
	"entry_id":   true,
	"created_at": true,
}
