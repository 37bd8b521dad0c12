package tier1repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"

	"github.com/igasovic/PKM-sub000/internal/data/repos/testutil"
	"github.com/igasovic/PKM-sub000/internal/domain/tier1"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
)

func TestWrapMissingRelation(t *testing.T) {
	err := wrap("pkm", tableBatches, &pgconn.PgError{Code: "42P01"})
	if !errors.Is(err, pkgerrors.ErrBatchTableMissing) || !IsTableMissing(err) {
		t.Fatalf("expected table missing, got %v", err)
	}
	var tm *TableMissingError
	if !errors.As(err, &tm) || tm.Table != tableBatches || tm.Schema != "pkm" {
		t.Fatalf("unexpected error detail: %#v", err)
	}
	other := errors.New("boom")
	if wrap("pkm", tableBatches, other) != other {
		t.Fatalf("non-relation errors should pass through")
	}
}

func TestNewBatchStoreValidatesSchemas(t *testing.T) {
	if _, err := NewBatchStore(nil, []string{"pkm", "bad-name"}, testutil.Logger(t)); !errors.Is(err, pkgerrors.ErrSchemaIdentifier) {
		t.Fatalf("expected identifier error, got %v", err)
	}
	if _, err := NewBatchStore(nil, nil, testutil.Logger(t)); err == nil {
		t.Fatalf("expected error for empty schemas")
	}
}

func TestBatchStoreLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	store, err := NewBatchStore(db, testutil.Schemas(), testutil.Logger(t))
	if err != nil {
		t.Fatalf("NewBatchStore: %v", err)
	}

	prodID := "batch_prod_" + testutil.Suffix()
	testID := "batch_test_" + testutil.Suffix()
	doneID := "batch_done_" + testutil.Suffix()

	if err := store.UpsertBatchRow(dbc, testutil.ProdSchema, &tier1.Batch{BatchID: prodID, Status: "in_progress", Model: "m"}, 2, map[string]any{"origin": "test"}); err != nil {
		t.Fatalf("UpsertBatchRow prod: %v", err)
	}
	if err := store.UpsertBatchRow(dbc, testutil.TestSchema, &tier1.Batch{BatchID: testID, Status: "validating"}, 1, nil); err != nil {
		t.Fatalf("UpsertBatchRow test: %v", err)
	}
	if err := store.UpsertBatchRow(dbc, testutil.ProdSchema, &tier1.Batch{BatchID: doneID, Status: "Completed"}, 1, nil); err != nil {
		t.Fatalf("UpsertBatchRow done: %v", err)
	}

	items := []tier1.BatchItem{
		{CustomID: "entry_1", Title: "a", PromptMode: "whole", Prompt: "p1"},
		{CustomID: "entry_2", Title: "b", PromptMode: "sampled", Prompt: "p2"},
	}
	if err := store.UpsertBatchItems(dbc, testutil.ProdSchema, prodID, items); err != nil {
		t.Fatalf("UpsertBatchItems: %v", err)
	}
	// Write-once: a second write with a different prompt keeps the original.
	items[0].Prompt = "changed"
	if err := store.UpsertBatchItems(dbc, testutil.ProdSchema, prodID, items[:1]); err != nil {
		t.Fatalf("UpsertBatchItems again: %v", err)
	}
	got, err := store.ListBatchItems(dbc, testutil.ProdSchema, prodID)
	if err != nil || len(got) != 2 || got[0].Prompt != "p1" {
		t.Fatalf("ListBatchItems: %+v err=%v", got, err)
	}

	// FindBatchRecord finds the test-schema batch regardless of order.
	rec, err := store.FindBatchRecord(dbc, testID)
	if err != nil || rec == nil || rec.Schema != testutil.TestSchema {
		t.Fatalf("FindBatchRecord: %+v err=%v", rec, err)
	}
	if rec, err := store.FindBatchRecord(dbc, "nope_"+testutil.Suffix()); err != nil || rec != nil {
		t.Fatalf("FindBatchRecord missing: %+v err=%v", rec, err)
	}

	// Pending covers both schemas and excludes terminal statuses.
	pending, err := store.ListPendingBatchIDs(dbc, 200)
	if err != nil {
		t.Fatalf("ListPendingBatchIDs: %v", err)
	}
	seen := map[string]string{}
	for _, p := range pending {
		seen[p.BatchID] = p.Schema
	}
	if seen[prodID] != testutil.ProdSchema || seen[testID] != testutil.TestSchema {
		t.Fatalf("pending should include both schemas: %+v", pending)
	}
	if _, ok := seen[doneID]; ok {
		t.Fatalf("terminal batch listed as pending")
	}
	if capped, err := store.ListPendingBatchIDs(dbc, 1); err != nil || len(capped) != 1 {
		t.Fatalf("ListPendingBatchIDs limit: %+v err=%v", capped, err)
	}

	// Results are idempotent; the second write replaces the first.
	results := []tier1.BatchItemResult{
		{CustomID: "entry_1", Status: tier1.ResultParseError, Raw: datatypes.JSON([]byte(`{}`))},
	}
	if err := store.UpsertBatchResults(dbc, testutil.ProdSchema, prodID, results); err != nil {
		t.Fatalf("UpsertBatchResults: %v", err)
	}
	results[0].Status = tier1.ResultOK
	if err := store.UpsertBatchResults(dbc, testutil.ProdSchema, prodID, results); err != nil {
		t.Fatalf("UpsertBatchResults rerun: %v", err)
	}

	job, err := store.GetBatchStatus(dbc, prodID, "")
	if err != nil || job == nil {
		t.Fatalf("GetBatchStatus: %+v err=%v", job, err)
	}
	if job.TotalItems != 2 || job.OK != 1 || job.Processed != 1 || job.Pending != 1 || job.IsTerminal {
		t.Fatalf("GetBatchStatus counts: %+v", job)
	}
	if job.Metadata["origin"] != "test" {
		t.Fatalf("metadata lost: %+v", job.Metadata)
	}

	// Metadata merge keeps existing keys.
	if err := store.MergeBatchMetadata(dbc, testutil.ProdSchema, prodID, map[string]any{tier1.MetaAutoRetrySpawnedBatchID: "b2"}); err != nil {
		t.Fatalf("MergeBatchMetadata: %v", err)
	}
	job, _ = store.GetBatchStatus(dbc, prodID, testutil.ProdSchema)
	if job.Metadata["origin"] != "test" || job.Metadata[tier1.MetaAutoRetrySpawnedBatchID] != "b2" {
		t.Fatalf("merged metadata: %+v", job.Metadata)
	}

	// A claim is exclusive until released or stale, and never taken once a
	// retry was spawned.
	now := time.Now().UTC()
	if ok, err := store.ClaimAutoRetry(dbc, testutil.TestSchema, testID, now, now.Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	if ok, err := store.ClaimAutoRetry(dbc, testutil.TestSchema, testID, now, now.Add(-time.Minute)); err != nil || ok {
		t.Fatalf("second claim must fail: %v %v", ok, err)
	}
	if ok, err := store.ClaimAutoRetry(dbc, testutil.TestSchema, testID, now.Add(time.Hour), now.Add(time.Second)); err != nil || !ok {
		t.Fatalf("stale claim should be retaken: %v %v", ok, err)
	}
	if err := store.ReleaseAutoRetryClaim(dbc, testutil.TestSchema, testID); err != nil {
		t.Fatalf("ReleaseAutoRetryClaim: %v", err)
	}
	if ok, err := store.ClaimAutoRetry(dbc, testutil.TestSchema, testID, now, now.Add(-time.Minute)); err != nil || !ok {
		t.Fatalf("claim after release: %v %v", ok, err)
	}
	if ok, err := store.ClaimAutoRetry(dbc, testutil.ProdSchema, prodID, now, now.Add(-time.Minute)); err != nil || ok {
		t.Fatalf("spawned batch must not be claimed: %v %v", ok, err)
	}

	all, err := store.ListBatchStatuses(dbc, StatusQuery{IncludeTerminal: true, Limit: 500})
	if err != nil {
		t.Fatalf("ListBatchStatuses: %v", err)
	}
	found := map[string]bool{}
	for _, j := range all {
		found[j.BatchID] = true
	}
	if !found[prodID] || !found[testID] || !found[doneID] {
		t.Fatalf("ListBatchStatuses missing rows")
	}
	open, err := store.ListBatchStatuses(dbc, StatusQuery{Schema: testutil.ProdSchema, Limit: 500})
	if err != nil {
		t.Fatalf("ListBatchStatuses open: %v", err)
	}
	for _, j := range open {
		if j.BatchID == doneID || j.Schema != testutil.ProdSchema {
			t.Fatalf("unexpected row %+v", j)
		}
	}
}
