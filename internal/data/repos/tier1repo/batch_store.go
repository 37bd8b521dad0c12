package tier1repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/igasovic/PKM-sub000/internal/domain/tier1"
	"github.com/igasovic/PKM-sub000/internal/modules/schemarouter"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

const (
	tableBatches = "t1_batches"
	tableItems   = "t1_batch_items"
	tableResults = "t1_batch_item_results"
)

// BatchRecord is a batch row together with the schema that owns it.
type BatchRecord struct {
	Schema string      `json:"schema"`
	Batch  tier1.Batch `json:"batch"`
}

// PendingBatch identifies a non-terminal batch.
type PendingBatch struct {
	Schema    string    `json:"schema"`
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusQuery filters ListBatchStatuses. An empty Schema scans every
// configured schema.
type StatusQuery struct {
	Schema          string
	Limit           int
	IncludeTerminal bool
}

type BatchStore interface {
	Schemas() []string
	UpsertBatchRow(dbc dbctx.Context, schema string, b *tier1.Batch, requestCountHint int, metadataExtra map[string]any) error
	UpsertBatchItems(dbc dbctx.Context, schema, batchID string, items []tier1.BatchItem) error
	UpsertBatchResults(dbc dbctx.Context, schema, batchID string, rows []tier1.BatchItemResult) error
	ListBatchItems(dbc dbctx.Context, schema, batchID string) ([]tier1.BatchItem, error)
	MergeBatchMetadata(dbc dbctx.Context, schema, batchID string, patch map[string]any) error
	ClaimAutoRetry(dbc dbctx.Context, schema, batchID string, now, staleBefore time.Time) (bool, error)
	ReleaseAutoRetryClaim(dbc dbctx.Context, schema, batchID string) error
	FindBatchRecord(dbc dbctx.Context, batchID string) (*BatchRecord, error)
	ListPendingBatchIDs(dbc dbctx.Context, limit int) ([]PendingBatch, error)
	ListBatchStatuses(dbc dbctx.Context, q StatusQuery) ([]tier1.JobStatus, error)
	GetBatchStatus(dbc dbctx.Context, batchID, schema string) (*tier1.JobStatus, error)
}

type batchStore struct {
	db      *gorm.DB
	log     *logger.Logger
	schemas []string
}

// NewBatchStore scans schemas in the given order on cross-schema lookups.
func NewBatchStore(db *gorm.DB, schemas []string, baseLog *logger.Logger) (BatchStore, error) {
	if len(schemas) == 0 {
		return nil, fmt.Errorf("tier1 batch store: no schemas configured")
	}
	for _, s := range schemas {
		if err := schemarouter.ValidateIdentifier(s); err != nil {
			return nil, err
		}
	}
	return &batchStore{
		db:      db,
		log:     baseLog.With("repo", "Tier1BatchStore"),
		schemas: append([]string(nil), schemas...),
	}, nil
}

func (s *batchStore) Schemas() []string { return append([]string(nil), s.schemas...) }

func qualified(schema, table string) (string, error) {
	if err := schemarouter.ValidateIdentifier(schema); err != nil {
		return "", err
	}
	return schema + "." + table, nil
}

// UpsertBatchRow inserts or refreshes a batch. Remote fields overwrite, file
// ids only fill in, request_count never shrinks, and metadataExtra is merged
// into the stored metadata at the top level.
func (s *batchStore) UpsertBatchRow(dbc dbctx.Context, schema string, b *tier1.Batch, requestCountHint int, metadataExtra map[string]any) error {
	if b == nil || strings.TrimSpace(b.BatchID) == "" {
		return fmt.Errorf("upsert batch row: batch_id is required")
	}
	t, err := qualified(schema, tableBatches)
	if err != nil {
		return err
	}
	count := b.RequestCount
	if requestCountHint > count {
		count = requestCountHint
	}
	meta, err := mergedMetaJSON(b.Metadata, metadataExtra)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created := b.CreatedAt
	if created.IsZero() {
		created = now
	}
	stmt := `
		INSERT INTO ` + t + ` AS b
			(batch_id, status, model, input_file_id, output_file_id, error_file_id, request_count, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?::jsonb, ?, ?)
		ON CONFLICT (batch_id) DO UPDATE SET
			status         = COALESCE(NULLIF(EXCLUDED.status, ''), b.status),
			model          = COALESCE(NULLIF(EXCLUDED.model, ''), b.model),
			input_file_id  = COALESCE(EXCLUDED.input_file_id, b.input_file_id),
			output_file_id = COALESCE(EXCLUDED.output_file_id, b.output_file_id),
			error_file_id  = COALESCE(EXCLUDED.error_file_id, b.error_file_id),
			request_count  = GREATEST(b.request_count, EXCLUDED.request_count),
			metadata       = COALESCE(b.metadata, '{}'::jsonb) || EXCLUDED.metadata,
			updated_at     = EXCLUDED.updated_at`
	err = dbc.Conn(s.db).Exec(stmt,
		b.BatchID, b.Status, b.Model, b.InputFileID, b.OutputFileID, b.ErrorFileID,
		count, meta, created, now,
	).Error
	return wrap(schema, tableBatches, err)
}

func mergedMetaJSON(base []byte, extra map[string]any) (string, error) {
	out := map[string]any{}
	if len(base) > 0 && string(base) != "null" {
		if err := json.Unmarshal(base, &out); err != nil {
			return "", fmt.Errorf("decode batch metadata: %w", err)
		}
	}
	for k, v := range extra {
		out[k] = v
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode batch metadata: %w", err)
	}
	return string(raw), nil
}

// UpsertBatchItems writes the submitted requests. Existing rows are left as
// they are.
func (s *batchStore) UpsertBatchItems(dbc dbctx.Context, schema, batchID string, items []tier1.BatchItem) error {
	if len(items) == 0 {
		return nil
	}
	t, err := qualified(schema, tableItems)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rows := make([]tier1.BatchItem, len(items))
	for i, it := range items {
		it.BatchID = batchID
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		rows[i] = it
	}
	err = dbc.Conn(s.db).Table(t).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "custom_id"}},
			DoNothing: true,
		}).
		CreateInBatches(&rows, 500).Error
	return wrap(schema, tableItems, err)
}

// UpsertBatchResults writes per-item results keyed by (batch_id, custom_id).
// Re-running with the same rows is a no-op apart from updated_at.
func (s *batchStore) UpsertBatchResults(dbc dbctx.Context, schema, batchID string, rows []tier1.BatchItemResult) error {
	if len(rows) == 0 {
		return nil
	}
	t, err := qualified(schema, tableResults)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	out := make([]tier1.BatchItemResult, len(rows))
	for i, r := range rows {
		r.BatchID = batchID
		r.UpdatedAt = now
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		out[i] = r
	}
	err = dbc.Conn(s.db).Table(t).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "batch_id"}, {Name: "custom_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "response_text", "parsed", "error", "raw", "updated_at"}),
		}).
		CreateInBatches(&out, 500).Error
	return wrap(schema, tableResults, err)
}

func (s *batchStore) ListBatchItems(dbc dbctx.Context, schema, batchID string) ([]tier1.BatchItem, error) {
	t, err := qualified(schema, tableItems)
	if err != nil {
		return nil, err
	}
	var out []tier1.BatchItem
	err = dbc.Conn(s.db).Table(t).
		Where("batch_id = ?", batchID).
		Order("custom_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, wrap(schema, tableItems, err)
	}
	return out, nil
}

// MergeBatchMetadata merges patch into the stored metadata at the top level.
func (s *batchStore) MergeBatchMetadata(dbc dbctx.Context, schema, batchID string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	t, err := qualified(schema, tableBatches)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode metadata patch: %w", err)
	}
	res := dbc.Conn(s.db).Exec(
		`UPDATE `+t+` SET metadata = COALESCE(metadata, '{}'::jsonb) || ?::jsonb, updated_at = ? WHERE batch_id = ?`,
		string(raw), time.Now().UTC(), batchID,
	)
	if res.Error != nil {
		return wrap(schema, tableBatches, res.Error)
	}
	return nil
}

// ClaimAutoRetry marks batchID as having a retry in flight. It succeeds only
// when no retry was spawned yet and no claim newer than staleBefore exists.
func (s *batchStore) ClaimAutoRetry(dbc dbctx.Context, schema, batchID string, now, staleBefore time.Time) (bool, error) {
	t, err := qualified(schema, tableBatches)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(map[string]any{tier1.MetaAutoRetryClaimedAt: now.UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return false, fmt.Errorf("encode retry claim: %w", err)
	}
	stmt := `
		UPDATE ` + t + `
		SET metadata = COALESCE(metadata, '{}'::jsonb) || ?::jsonb, updated_at = ?
		WHERE batch_id = ?
			AND COALESCE(metadata, '{}'::jsonb) ->> '` + tier1.MetaAutoRetrySpawnedBatchID + `' IS NULL
			AND (
				COALESCE(metadata, '{}'::jsonb) ->> '` + tier1.MetaAutoRetryClaimedAt + `' IS NULL
				OR (metadata ->> '` + tier1.MetaAutoRetryClaimedAt + `')::timestamptz < ?
			)`
	res := dbc.Conn(s.db).Exec(stmt, string(raw), now.UTC(), batchID, staleBefore.UTC())
	if res.Error != nil {
		return false, wrap(schema, tableBatches, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseAutoRetryClaim drops the in-flight marker after a failed resubmit.
func (s *batchStore) ReleaseAutoRetryClaim(dbc dbctx.Context, schema, batchID string) error {
	t, err := qualified(schema, tableBatches)
	if err != nil {
		return err
	}
	res := dbc.Conn(s.db).Exec(
		`UPDATE `+t+` SET metadata = COALESCE(metadata, '{}'::jsonb) - ?::text, updated_at = ? WHERE batch_id = ?`,
		tier1.MetaAutoRetryClaimedAt, time.Now().UTC(), batchID,
	)
	return wrap(schema, tableBatches, res.Error)
}

// FindBatchRecord looks for batchID in each schema in order. Schemas whose
// tables are missing are skipped. Returns nil when no schema has the batch.
func (s *batchStore) FindBatchRecord(dbc dbctx.Context, batchID string) (*BatchRecord, error) {
	for _, schema := range s.schemas {
		t, _ := qualified(schema, tableBatches)
		var b tier1.Batch
		err := dbc.Conn(s.db).Table(t).Where("batch_id = ?", batchID).Take(&b).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err = wrap(schema, tableBatches, err); err != nil {
			if IsTableMissing(err) {
				s.log.Debug("skipping unprovisioned schema", "schema", schema, "batch_id", batchID)
				continue
			}
			return nil, err
		}
		return &BatchRecord{Schema: schema, Batch: b}, nil
	}
	return nil, nil
}

// ListPendingBatchIDs returns non-terminal batches from every configured
// schema, oldest first, capped at limit in total.
func (s *batchStore) ListPendingBatchIDs(dbc dbctx.Context, limit int) ([]PendingBatch, error) {
	if limit <= 0 {
		return []PendingBatch{}, nil
	}
	perSchema := make([][]PendingBatch, len(s.schemas))
	err := s.eachSchema(dbc, s.schemas, func(c dbctx.Context, i int, schema string) error {
		t, _ := qualified(schema, tableBatches)
		var rows []PendingBatch
		err := c.Conn(s.db).Table(t).
			Select("batch_id, created_at").
			Where("LOWER(COALESCE(status, '')) NOT IN ?", tier1.TerminalStatuses()).
			Order("created_at ASC").
			Limit(limit).
			Scan(&rows).Error
		if err = wrap(schema, tableBatches, err); err != nil {
			if IsTableMissing(err) {
				return nil
			}
			return err
		}
		for j := range rows {
			rows[j].Schema = schema
		}
		perSchema[i] = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := []PendingBatch{}
	for _, rows := range perSchema {
		out = append(out, rows...)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// eachSchema runs fn per schema concurrently. A bound transaction is a single
// connection, so with one the calls run one at a time.
func (s *batchStore) eachSchema(dbc dbctx.Context, schemas []string, fn func(c dbctx.Context, i int, schema string) error) error {
	g, gctx := errgroup.WithContext(dbc.Context())
	if dbc.Tx != nil {
		g.SetLimit(1)
	}
	for i, schema := range schemas {
		i, schema := i, schema
		g.Go(func() error {
			return fn(dbctx.Context{Ctx: gctx, Tx: dbc.Tx}, i, schema)
		})
	}
	return g.Wait()
}
