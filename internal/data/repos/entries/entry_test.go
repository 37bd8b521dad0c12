package entries

import (
	"context"
	"errors"
	"testing"

	"github.com/igasovic/PKM-sub000/internal/data/pgerr"
	"github.com/igasovic/PKM-sub000/internal/data/repos/testutil"
	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

func TestEntryRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	schema := testutil.ProdSchema

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewEntryRepo(db, testutil.Logger(t))

	policy := "telegram_thought_v1"
	primary := "tg:test:" + testutil.Suffix()
	payload := &capture.EntryPayload{
		Source:                capture.Str("telegram"),
		ContentType:           capture.Str("note"),
		CleanText:             capture.Str("Buy milk"),
		IdempotencyPolicyKey:  &policy,
		IdempotencyKeyPrimary: &primary,
	}
	e, err := payload.NewEntry(testutil.Now())
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if err := repo.Insert(dbc, schema, e); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if e.EntryID == 0 {
		t.Fatalf("Insert: expected entry_id to be assigned")
	}

	// GetPolicy
	pol, err := repo.GetPolicy(dbc, schema, policy)
	if err != nil || pol == nil || pol.ConflictAction != capture.ConflictUpdate {
		t.Fatalf("GetPolicy: pol=%+v err=%v", pol, err)
	}

	// FindByIdempotency
	found, err := repo.FindByIdempotency(dbc, schema, policy, &primary, nil)
	if err != nil || found == nil || found.ID != e.ID {
		t.Fatalf("FindByIdempotency: found=%v err=%v", found, err)
	}
	if miss, err := repo.FindByIdempotency(dbc, schema, policy, capture.Str("tg:none"), nil); err != nil || miss != nil {
		t.Fatalf("FindByIdempotency miss: %v %v", miss, err)
	}

	// UpdateColumns ignores immutable columns.
	updated, err := repo.UpdateColumns(dbc, schema, e.ID, map[string]interface{}{
		"title":    "New title",
		"entry_id": int64(-1),
	})
	if err != nil {
		t.Fatalf("UpdateColumns: %v", err)
	}
	if updated.Title != "New title" || updated.EntryID != e.EntryID {
		t.Fatalf("UpdateColumns: %+v", updated)
	}

	// UpdateByEntryID
	ok, err := repo.UpdateByEntryID(dbc, schema, e.EntryID, map[string]interface{}{"gist": "g"})
	if err != nil || !ok {
		t.Fatalf("UpdateByEntryID: ok=%v err=%v", ok, err)
	}
	if _, err := repo.GetByEntryID(dbc, schema, -42); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("GetByEntryID missing: %v", err)
	}
}

func TestEntryRepoUniqueViolation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	schema := testutil.ProdSchema

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewEntryRepo(db, testutil.Logger(t))

	policy := "telegram_link_v1"
	primary := "https://example.com/" + testutil.Suffix()
	mk := func() *capture.Entry {
		p := &capture.EntryPayload{
			Source:                capture.Str("telegram"),
			IdempotencyPolicyKey:  &policy,
			IdempotencyKeyPrimary: &primary,
		}
		e, err := p.NewEntry(testutil.Now())
		if err != nil {
			t.Fatalf("NewEntry: %v", err)
		}
		return e
	}
	if err := repo.Insert(dbc, schema, mk()); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	// Savepoint so the failed statement does not poison the test transaction.
	tx.SavePoint("dup")
	err := repo.Insert(dbc, schema, mk())
	if !errors.Is(err, pgerr.ErrUniqueViolation) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	tx.RollbackTo("dup")
}
