package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/modules/idempotency"
	"github.com/igasovic/PKM-sub000/internal/modules/quality"
	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

// SchemaResolver picks the schema new writes go to.
type SchemaResolver interface {
	ActiveSchema(ctx context.Context) (string, error)
}

// CaptureRequest is a normalized capture as delivered by the workflow host.
type CaptureRequest struct {
	Source      idempotency.Source     `json:"source"`
	Normalized  idempotency.Normalized `json:"normalized"`
	Intent      string                 `json:"intent,omitempty"`
	Author      string                 `json:"author,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Metadata    capture.Metadata       `json:"metadata,omitempty"`
	ExternalRef capture.Metadata       `json:"external_ref,omitempty"`
}

// Service is the write path: keys, quality, then policy-driven upsert into
// the active schema.
type Service struct {
	log      *logger.Logger
	router   SchemaResolver
	resolver *ConflictResolver
	scorer   quality.Scorer
}

func NewService(router SchemaResolver, resolver *ConflictResolver, scorer quality.Scorer, baseLog *logger.Logger) *Service {
	return &Service{
		log:      baseLog.With("service", "CaptureService"),
		router:   router,
		resolver: resolver,
		scorer:   scorer,
	}
}

// Capture derives keys for req, scores it, and upserts it. Derivation errors
// abort before anything is written.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	payload, err := s.BuildPayload(req)
	if err != nil {
		return nil, err
	}
	return s.Insert(ctx, payload)
}

// BuildPayload turns a capture request into an entry payload with keys and
// quality columns filled.
func (s *Service) BuildPayload(req CaptureRequest) (*capture.EntryPayload, error) {
	system := strings.ToLower(strings.TrimSpace(req.Source.System))
	norm := req.Normalized
	if norm.URLCanonical != "" {
		norm.URLCanonical = idempotency.CanonicalizeURL(norm.URLCanonical)
	}

	p := &capture.EntryPayload{
		Source:      capture.Str(system),
		ContentType: capture.Str(norm.ContentType),
		Title:       capture.Str(norm.Title),
		CaptureText: capture.Str(norm.CaptureText),
		CleanText:   capture.Str(norm.CleanText),
		Intent:      capture.Str(req.Intent),
		Author:      capture.Str(req.Author),
		Metadata:    req.Metadata,
		ExternalRef: req.ExternalRef,
	}
	if norm.URLCanonical != "" {
		p.URLCanonical = capture.Str(norm.URLCanonical)
	}
	if req.URL != "" {
		p.URL = capture.Str(req.URL)
	}

	if system != capture.SystemWebpage {
		keys, err := idempotency.Derive(req.Source, norm)
		if err != nil {
			return nil, err
		}
		p.IdempotencyPolicyKey = capture.Str(keys.PolicyKey)
		p.IdempotencyKeyPrimary = keys.KeyPrimary
		p.IdempotencyKeySecondary = keys.KeySecondary
	}

	text := norm.CleanText
	if strings.TrimSpace(text) == "" {
		text = norm.CaptureText
	}
	if s.scorer != nil {
		quality.Apply(p, s.scorer.Score(text))
	}
	return p, nil
}

// Insert upserts an already keyed payload into the active schema.
func (s *Service) Insert(ctx context.Context, p *capture.EntryPayload) (*Result, error) {
	schema, err := s.router.ActiveSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	res, err := s.resolver.Upsert(ctx, schema, p)
	if err != nil {
		s.log.Warn("capture rejected", "source", p.SourceName(), "schema", schema, "error", err)
		return nil, err
	}
	observability.Current().IncCapture(string(res.Action), schema)
	s.log.Info("capture stored", "action", res.Action, "schema", schema, "entry_id", res.Row.EntryID, "source", p.SourceName())
	return res, nil
}

// Update patches an existing entry in the active schema.
func (s *Service) Update(ctx context.Context, p *capture.EntryPayload) (*capture.Entry, error) {
	schema, err := s.router.ActiveSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	return s.resolver.Update(ctx, schema, p)
}
