package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/igasovic/PKM-sub000/internal/pkg/pointers"
)

// EntryPayload is an incoming write. Nil fields are absent, which matters on
// the update path: only present columns are candidates for writing.
type EntryPayload struct {
	ID        *uuid.UUID `json:"id,omitempty"`
	EntryID   *int64     `json:"entry_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`

	Source       *string  `json:"source,omitempty"`
	Intent       *string  `json:"intent,omitempty"`
	ContentType  *string  `json:"content_type,omitempty"`
	Title        *string  `json:"title,omitempty"`
	Author       *string  `json:"author,omitempty"`
	CaptureText  *string  `json:"capture_text,omitempty"`
	CleanText    *string  `json:"clean_text,omitempty"`
	URL          *string  `json:"url,omitempty"`
	URLCanonical *string  `json:"url_canonical,omitempty"`
	ExternalRef  Metadata `json:"external_ref,omitempty"`
	Metadata     Metadata `json:"metadata,omitempty"`

	RetrievalExcerpt *string  `json:"retrieval_excerpt,omitempty"`
	QualityScore     *float64 `json:"quality_score,omitempty"`
	LowSignal        *bool    `json:"low_signal,omitempty"`
	BoilerplateHeavy *bool    `json:"boilerplate_heavy,omitempty"`
	CleanWordCount   *int     `json:"clean_word_count,omitempty"`

	TopicPrimary             *string  `json:"topic_primary,omitempty"`
	TopicPrimaryConfidence   *float64 `json:"topic_primary_confidence,omitempty"`
	TopicSecondary           *string  `json:"topic_secondary,omitempty"`
	TopicSecondaryConfidence *float64 `json:"topic_secondary_confidence,omitempty"`
	Keywords                 []string `json:"keywords,omitempty"`
	Gist                     *string  `json:"gist,omitempty"`
	EnrichmentStatus         *string  `json:"enrichment_status,omitempty"`
	EnrichmentModel          *string  `json:"enrichment_model,omitempty"`

	IdempotencyPolicyKey    *string `json:"idempotency_policy_key,omitempty"`
	IdempotencyKeyPrimary   *string `json:"idempotency_key_primary,omitempty"`
	IdempotencyKeySecondary *string `json:"idempotency_key_secondary,omitempty"`
}

// SourceName is the lowercased source, "" when absent.
func (p *EntryPayload) SourceName() string {
	if p == nil || p.Source == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*p.Source))
}

// HasIdempotency reports whether the payload carries a policy key and at
// least one key.
func (p *EntryPayload) HasIdempotency() bool {
	if p == nil {
		return false
	}
	return pointers.NonBlank(p.IdempotencyPolicyKey) != nil &&
		(pointers.NonBlank(p.IdempotencyKeyPrimary) != nil || pointers.NonBlank(p.IdempotencyKeySecondary) != nil)
}

// Columns lists every present column keyed by its database name. Metadata is
// included as a Metadata value; callers decide how to merge it.
func (p *EntryPayload) Columns() map[string]any {
	cols := map[string]any{}
	if p == nil {
		return cols
	}
	if p.ID != nil {
		cols["id"] = *p.ID
	}
	if p.EntryID != nil {
		cols["entry_id"] = *p.EntryID
	}
	if p.CreatedAt != nil {
		cols["created_at"] = *p.CreatedAt
	}
	putString(cols, "source", p.Source)
	putString(cols, "intent", p.Intent)
	putString(cols, "content_type", p.ContentType)
	putString(cols, "title", p.Title)
	putString(cols, "author", p.Author)
	putString(cols, "capture_text", p.CaptureText)
	putString(cols, "clean_text", p.CleanText)
	if p.URL != nil {
		cols["url"] = *p.URL
	}
	if p.URLCanonical != nil {
		cols["url_canonical"] = *p.URLCanonical
	}
	if p.ExternalRef != nil {
		cols["external_ref"] = p.ExternalRef
	}
	if p.Metadata != nil {
		cols["metadata"] = p.Metadata
	}
	putString(cols, "retrieval_excerpt", p.RetrievalExcerpt)
	if p.QualityScore != nil {
		cols["quality_score"] = *p.QualityScore
	}
	if p.LowSignal != nil {
		cols["low_signal"] = *p.LowSignal
	}
	if p.BoilerplateHeavy != nil {
		cols["boilerplate_heavy"] = *p.BoilerplateHeavy
	}
	if p.CleanWordCount != nil {
		cols["clean_word_count"] = *p.CleanWordCount
	}
	putString(cols, "topic_primary", p.TopicPrimary)
	if p.TopicPrimaryConfidence != nil {
		cols["topic_primary_confidence"] = *p.TopicPrimaryConfidence
	}
	putString(cols, "topic_secondary", p.TopicSecondary)
	if p.TopicSecondaryConfidence != nil {
		cols["topic_secondary_confidence"] = *p.TopicSecondaryConfidence
	}
	if p.Keywords != nil {
		cols["keywords"] = pq.StringArray(p.Keywords)
	}
	putString(cols, "gist", p.Gist)
	putString(cols, "enrichment_status", p.EnrichmentStatus)
	putString(cols, "enrichment_model", p.EnrichmentModel)
	if p.IdempotencyPolicyKey != nil {
		cols["idempotency_policy_key"] = *p.IdempotencyPolicyKey
	}
	if p.IdempotencyKeyPrimary != nil {
		cols["idempotency_key_primary"] = *p.IdempotencyKeyPrimary
	}
	if p.IdempotencyKeySecondary != nil {
		cols["idempotency_key_secondary"] = *p.IdempotencyKeySecondary
	}
	return cols
}

// NewEntry builds the row for a first insert. A fresh id is assigned unless
// the payload brings one.
func (p *EntryPayload) NewEntry(now time.Time) (*Entry, error) {
	if p == nil {
		return nil, fmt.Errorf("nil payload")
	}
	e := &Entry{
		ID:                       uuid.New(),
		CreatedAt:                now,
		UpdatedAt:                now,
		Source:                   pointers.Value(p.Source),
		Intent:                   pointers.Value(p.Intent),
		ContentType:              pointers.Value(p.ContentType),
		Title:                    pointers.Value(p.Title),
		Author:                   pointers.Value(p.Author),
		CaptureText:              pointers.Value(p.CaptureText),
		CleanText:                pointers.Value(p.CleanText),
		URL:                      p.URL,
		URLCanonical:             p.URLCanonical,
		RetrievalExcerpt:         pointers.Value(p.RetrievalExcerpt),
		QualityScore:             p.QualityScore,
		TopicPrimary:             pointers.Value(p.TopicPrimary),
		TopicPrimaryConfidence:   p.TopicPrimaryConfidence,
		TopicSecondary:           pointers.Value(p.TopicSecondary),
		TopicSecondaryConfidence: p.TopicSecondaryConfidence,
		Gist:                     pointers.Value(p.Gist),
		EnrichmentStatus:         pointers.Value(p.EnrichmentStatus),
		EnrichmentModel:          pointers.Value(p.EnrichmentModel),
		IdempotencyPolicyKey:     pointers.NonBlank(p.IdempotencyPolicyKey),
		IdempotencyKeyPrimary:    pointers.NonBlank(p.IdempotencyKeyPrimary),
		IdempotencyKeySecondary:  pointers.NonBlank(p.IdempotencyKeySecondary),
	}
	if p.ID != nil && *p.ID != uuid.Nil {
		e.ID = *p.ID
	}
	if p.LowSignal != nil {
		e.LowSignal = *p.LowSignal
	}
	if p.BoilerplateHeavy != nil {
		e.BoilerplateHeavy = *p.BoilerplateHeavy
	}
	if p.CleanWordCount != nil {
		e.CleanWordCount = *p.CleanWordCount
	}
	if p.Keywords != nil {
		e.Keywords = pq.StringArray(p.Keywords)
	}
	meta, err := p.Metadata.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	e.Metadata = meta
	ref, err := p.ExternalRef.JSON()
	if err != nil {
		return nil, fmt.Errorf("encode external_ref: %w", err)
	}
	e.ExternalRef = ref
	return e, nil
}

func putString(cols map[string]any, name string, v *string) {
	if v != nil {
		cols[name] = *v
	}
}

// Str is a helper for building payloads.
func Str(v string) *string { return pointers.Ptr(v) }
