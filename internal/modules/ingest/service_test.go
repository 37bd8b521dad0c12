package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/modules/idempotency"
	"github.com/igasovic/PKM-sub000/internal/modules/quality"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

type fixedSchema string

func (f fixedSchema) ActiveSchema(context.Context) (string, error) { return string(f), nil }

func newService(store *memStore) *Service {
	return NewService(fixedSchema("pkm_test"), NewConflictResolver(store, logger.Nop()), quality.NewScorer(quality.Config{}), logger.Nop())
}

func TestCaptureTelegramThought(t *testing.T) {
	store := newMemStore(capture.IdempotencyPolicy{PolicyKey: idempotency.PolicyTelegramThought, ConflictAction: capture.ConflictSkip, Enabled: true})
	svc := newService(store)
	req := CaptureRequest{
		Source:     idempotency.Source{System: "telegram", ChatID: "42", MessageID: "99"},
		Normalized: idempotency.Normalized{ContentType: "note", CleanText: "Buy milk"},
	}
	res, err := svc.Capture(context.Background(), req)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Action != ActionInserted || res.Schema != "pkm_test" {
		t.Fatalf("unexpected result %+v", res)
	}
	if *res.Row.IdempotencyKeyPrimary != "tg:42:99" || res.Row.CleanWordCount != 2 || !res.Row.LowSignal {
		t.Fatalf("keys or quality missing: %+v", res.Row)
	}
	again, err := svc.Capture(context.Background(), req)
	if err != nil || again.Action != ActionSkipped {
		t.Fatalf("redelivery = %+v, %v", again, err)
	}
}

func TestCaptureLinkCanonicalizes(t *testing.T) {
	store := newMemStore(capture.IdempotencyPolicy{PolicyKey: idempotency.PolicyTelegramLink, ConflictAction: capture.ConflictSkip, Enabled: true})
	svc := newService(store)
	mk := func(u string) CaptureRequest {
		return CaptureRequest{
			Source:     idempotency.Source{System: "telegram"},
			Normalized: idempotency.Normalized{ContentType: "link", URLCanonical: u},
		}
	}
	if _, err := svc.Capture(context.Background(), mk("https://Example.com/x?utm_source=a")); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := svc.Capture(context.Background(), mk("https://example.com/x?utm_source=b"))
	if err != nil || res.Action != ActionSkipped {
		t.Fatalf("second = %+v, %v", res, err)
	}
	if *res.Row.URLCanonical != "https://example.com/x" {
		t.Fatalf("url_canonical = %q", *res.Row.URLCanonical)
	}
}

func TestCaptureDerivationErrorWritesNothing(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	_, err := svc.Capture(context.Background(), CaptureRequest{
		Source:     idempotency.Source{System: "email", MessageID: "m1"},
		Normalized: idempotency.Normalized{ContentType: "newsletter"},
	})
	if !errors.Is(err, pkgerrors.ErrIdempotencyDerivation) || !strings.Contains(err.Error(), "subject is required") {
		t.Fatalf("expected derivation error, got %v", err)
	}
	if store.inserts != 0 {
		t.Fatalf("nothing may be written")
	}
}

func TestCaptureWebpageSkipsDerivation(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	res, err := svc.Capture(context.Background(), CaptureRequest{
		Source:     idempotency.Source{System: "webpage"},
		Normalized: idempotency.Normalized{ContentType: "article", CleanText: "Some page"},
		URL:        "https://example.com/a",
	})
	if err != nil || res.Action != ActionInserted || res.Row.IdempotencyPolicyKey != nil {
		t.Fatalf("webpage capture = %+v, %v", res, err)
	}
}
