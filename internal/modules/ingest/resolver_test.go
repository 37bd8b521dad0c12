package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/igasovic/PKM-sub000/internal/data/pgerr"
	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

// memStore enforces the two partial unique indexes in memory.
type memStore struct {
	mu       sync.Mutex
	rows     []*capture.Entry
	policies map[string]*capture.IdempotencyPolicy
	nextID   int64
	inserts  int
}

func newMemStore(policies ...capture.IdempotencyPolicy) *memStore {
	s := &memStore{policies: map[string]*capture.IdempotencyPolicy{}}
	for i := range policies {
		p := policies[i]
		s.policies[p.PolicyKey] = &p
	}
	return s
}

func same(a, b *string) bool { return a != nil && b != nil && *a == *b }

func (s *memStore) Insert(_ dbctx.Context, _ string, e *capture.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	for _, r := range s.rows {
		if !same(r.IdempotencyPolicyKey, e.IdempotencyPolicyKey) {
			continue
		}
		if same(r.IdempotencyKeyPrimary, e.IdempotencyKeyPrimary) || same(r.IdempotencyKeySecondary, e.IdempotencyKeySecondary) {
			return fmt.Errorf("%w: idem", pgerr.ErrUniqueViolation)
		}
	}
	s.nextID++
	e.EntryID = s.nextID
	cp := *e
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *memStore) FindByIdempotency(_ dbctx.Context, _ string, policyKey string, primary, secondary *string) (*capture.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.IdempotencyPolicyKey == nil || *r.IdempotencyPolicyKey != policyKey {
			continue
		}
		if same(r.IdempotencyKeyPrimary, primary) || same(r.IdempotencyKeySecondary, secondary) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetByEntryID(_ dbctx.Context, _ string, entryID int64) (*capture.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.EntryID == entryID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (s *memStore) UpdateColumns(_ dbctx.Context, _ string, id uuid.UUID, updates map[string]interface{}) (*capture.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ID != id {
			continue
		}
		for k, v := range updates {
			switch k {
			case "title":
				r.Title = v.(string)
			case "clean_text":
				r.CleanText = v.(string)
			case "capture_text":
				r.CaptureText = v.(string)
			case "metadata":
				r.Metadata = v.(datatypes.JSON)
			case "keywords":
				r.Keywords = v.(pq.StringArray)
			}
		}
		cp := *r
		return &cp, nil
	}
	return nil, pkgerrors.ErrNotFound
}

func (s *memStore) GetPolicy(_ dbctx.Context, _ string, key string) (*capture.IdempotencyPolicy, error) {
	return s.policies[key], nil
}

func thoughtPayload(text, title string, meta capture.Metadata) *capture.EntryPayload {
	return &capture.EntryPayload{
		Source:                capture.Str("telegram"),
		ContentType:           capture.Str("note"),
		Title:                 capture.Str(title),
		CleanText:             capture.Str(text),
		Metadata:              meta,
		IdempotencyPolicyKey:  capture.Str("telegram_thought_v1"),
		IdempotencyKeyPrimary: capture.Str("tg:42:99"),
	}
}

func TestUpsertRejectsMissingKeys(t *testing.T) {
	store := newMemStore()
	r := NewConflictResolver(store, logger.Nop())
	_, err := r.Upsert(context.Background(), "pkm", &capture.EntryPayload{Source: capture.Str("telegram")})
	if !errors.Is(err, pkgerrors.ErrIdempotencyMissing) {
		t.Fatalf("expected missing keys error, got %v", err)
	}
	var mk *MissingKeysError
	if !errors.As(err, &mk) || mk.Source != "telegram" {
		t.Fatalf("unexpected error detail %#v", err)
	}
	if store.inserts != 0 {
		t.Fatalf("no insert may be attempted")
	}
}

func TestUpsertWebpageWithoutKeys(t *testing.T) {
	r := NewConflictResolver(newMemStore(), logger.Nop())
	res, err := r.Upsert(context.Background(), "pkm", &capture.EntryPayload{Source: capture.Str("webpage"), Title: capture.Str("t")})
	if err != nil || res.Action != ActionInserted {
		t.Fatalf("webpage insert = %+v, %v", res, err)
	}
}

func TestUpsertSkipKeepsExistingRow(t *testing.T) {
	store := newMemStore(capture.IdempotencyPolicy{PolicyKey: "telegram_thought_v1", ConflictAction: capture.ConflictSkip, Enabled: true})
	r := NewConflictResolver(store, logger.Nop())
	ctx := context.Background()

	first, err := r.Upsert(ctx, "pkm", thoughtPayload("Buy milk", "a", nil))
	if err != nil || first.Action != ActionInserted {
		t.Fatalf("first = %+v, %v", first, err)
	}
	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := r.Upsert(ctx, "pkm", thoughtPayload("Buy bread", "b", nil))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Action != ActionSkipped {
		t.Fatalf("action = %s", second.Action)
	}
	if second.Row.ID != first.Row.ID || !second.Row.CreatedAt.Equal(first.Row.CreatedAt) || second.Row.CleanText != "Buy milk" {
		t.Fatalf("skip must return the untouched existing row: %+v", second.Row)
	}
}

func TestUpsertUpdateRespectsUpdateFields(t *testing.T) {
	store := newMemStore(capture.IdempotencyPolicy{
		PolicyKey:      "telegram_thought_v1",
		ConflictAction: capture.ConflictUpdate,
		UpdateFields:   pq.StringArray{"title"},
		Enabled:        true,
	})
	r := NewConflictResolver(store, logger.Nop())
	ctx := context.Background()

	if _, err := r.Upsert(ctx, "pkm", thoughtPayload("Buy milk", "old", nil)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, err := r.Upsert(ctx, "pkm", thoughtPayload("Different text", "new", nil))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Action != ActionUpdated || res.Row.Title != "new" || res.Row.CleanText != "Buy milk" {
		t.Fatalf("only title may change: %+v", res.Row)
	}
}

func TestUpsertUpdateMergesMetadata(t *testing.T) {
	store := newMemStore(capture.IdempotencyPolicy{PolicyKey: "telegram_thought_v1", ConflictAction: capture.ConflictUpdate, Enabled: true})
	r := NewConflictResolver(store, logger.Nop())
	ctx := context.Background()

	if _, err := r.Upsert(ctx, "pkm", thoughtPayload("x", "t", capture.Metadata{"a": 1, "n": map[string]any{"x": 1}})); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, err := r.Upsert(ctx, "pkm", thoughtPayload("x", "t", capture.Metadata{"b": 2, "n": map[string]any{"y": 2}}))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := capture.DecodeMetadata(res.Row.Metadata)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	nested, _ := got["n"].(map[string]any)
	if got["a"] != float64(1) || got["b"] != float64(2) || nested["x"] != float64(1) || nested["y"] != float64(2) {
		t.Fatalf("metadata not merged recursively: %v", got)
	}
}

func TestUpsertConcurrentDuplicates(t *testing.T) {
	store := newMemStore(capture.IdempotencyPolicy{PolicyKey: "telegram_thought_v1", ConflictAction: capture.ConflictSkip, Enabled: true})
	r := NewConflictResolver(store, logger.Nop())

	var wg sync.WaitGroup
	actions := make(chan Action, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Upsert(context.Background(), "pkm", thoughtPayload("Buy milk", "t", nil))
			if err != nil {
				t.Errorf("upsert: %v", err)
				return
			}
			actions <- res.Action
		}()
	}
	wg.Wait()
	close(actions)
	inserted := 0
	for a := range actions {
		if a == ActionInserted {
			inserted++
		}
	}
	if inserted != 1 || len(store.rows) != 1 {
		t.Fatalf("expected exactly one insert, got %d (rows=%d)", inserted, len(store.rows))
	}
}

func TestUpdateSetExcludesImmutable(t *testing.T) {
	id := uuid.New()
	entryID := int64(7)
	now := time.Now()
	p := &capture.EntryPayload{ID: &id, EntryID: &entryID, CreatedAt: &now, Title: capture.Str("t"), Gist: capture.Str("g")}
	set, err := UpdateSet(&capture.Entry{}, p, nil)
	if err != nil {
		t.Fatalf("UpdateSet: %v", err)
	}
	for _, col := range []string{"id", "entry_id", "created_at"} {
		if _, ok := set[col]; ok {
			t.Fatalf("%s must never be written", col)
		}
	}
	if set["title"] != "t" || set["gist"] != "g" {
		t.Fatalf("unexpected set: %v", set)
	}
	only, _ := UpdateSet(&capture.Entry{}, p, []string{"gist", "id"})
	if len(only) != 1 || only["gist"] != "g" {
		t.Fatalf("update_fields filter: %v", only)
	}
}

func TestUpdateByEntryID(t *testing.T) {
	store := newMemStore()
	r := NewConflictResolver(store, logger.Nop())
	ctx := context.Background()
	res, err := r.Upsert(ctx, "pkm", thoughtPayload("x", "before", nil))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id := res.Row.EntryID
	row, err := r.Update(ctx, "pkm", &capture.EntryPayload{EntryID: &id, Title: capture.Str("after")})
	if err != nil || row.Title != "after" {
		t.Fatalf("Update = %+v, %v", row, err)
	}
	missing := int64(999)
	if _, err := r.Update(ctx, "pkm", &capture.EntryPayload{EntryID: &missing}); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := r.Update(ctx, "pkm", &capture.EntryPayload{}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
