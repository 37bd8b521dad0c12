package tier1repo

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"

	"github.com/igasovic/PKM-sub000/internal/domain/tier1"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
)

const (
	defaultStatusLimit = 50
	maxStatusLimit     = 500
)

type statusRow struct {
	BatchID         string         `gorm:"column:batch_id"`
	Status          string         `gorm:"column:status"`
	Model           string         `gorm:"column:model"`
	RequestCount    int            `gorm:"column:request_count"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	Metadata        datatypes.JSON `gorm:"column:metadata"`
	TotalItems      int            `gorm:"column:total_items"`
	OKCount         int            `gorm:"column:ok_count"`
	ParseErrorCount int            `gorm:"column:parse_error_count"`
	ErrorCount      int            `gorm:"column:error_count"`
}

func statusSelect(schema string) string {
	b := schema + "." + tableBatches
	i := schema + "." + tableItems
	r := schema + "." + tableResults
	return `
		SELECT b.batch_id, COALESCE(b.status, '') AS status, COALESCE(b.model, '') AS model,
			b.request_count, b.created_at, b.metadata,
			COALESCE(NULLIF(it.total, 0), b.request_count) AS total_items,
			COALESCE(rs.ok_count, 0) AS ok_count,
			COALESCE(rs.parse_error_count, 0) AS parse_error_count,
			COALESCE(rs.error_count, 0) AS error_count
		FROM ` + b + ` b
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS total FROM ` + i + ` WHERE batch_id = b.batch_id
		) it ON TRUE
		LEFT JOIN LATERAL (
			SELECT
				COUNT(*) FILTER (WHERE status = 'ok')          AS ok_count,
				COUNT(*) FILTER (WHERE status = 'parse_error') AS parse_error_count,
				COUNT(*) FILTER (WHERE status = 'error')       AS error_count
			FROM ` + r + ` WHERE batch_id = b.batch_id
		) rs ON TRUE`
}

func (row statusRow) job(schema string) tier1.JobStatus {
	j := tier1.JobStatus{
		BatchID:      row.BatchID,
		Schema:       schema,
		Status:       row.Status,
		Model:        row.Model,
		RequestCount: row.RequestCount,
		CreatedAt:    row.CreatedAt,
		TotalItems:   row.TotalItems,
		OK:           row.OKCount,
		ParseError:   row.ParseErrorCount,
		Error:        row.ErrorCount,
	}
	if len(row.Metadata) > 0 {
		meta := map[string]any{}
		if err := json.Unmarshal(row.Metadata, &meta); err == nil {
			j.Metadata = meta
		}
	}
	j.Finalize()
	return j
}

func (s *batchStore) statusesIn(dbc dbctx.Context, schema string, q StatusQuery, limit int) ([]tier1.JobStatus, error) {
	if _, err := qualified(schema, tableBatches); err != nil {
		return nil, err
	}
	sql := statusSelect(schema)
	args := []interface{}{}
	if !q.IncludeTerminal {
		sql += ` WHERE LOWER(COALESCE(b.status, '')) NOT IN ?`
		args = append(args, tier1.TerminalStatuses())
	}
	sql += ` ORDER BY b.created_at DESC LIMIT ?`
	args = append(args, limit)

	var rows []statusRow
	if err := dbc.Conn(s.db).Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, wrap(schema, tableBatches, err)
	}
	out := make([]tier1.JobStatus, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.job(schema))
	}
	return out, nil
}

// ListBatchStatuses returns the newest batches with item/result counts.
func (s *batchStore) ListBatchStatuses(dbc dbctx.Context, q StatusQuery) ([]tier1.JobStatus, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultStatusLimit
	}
	if limit > maxStatusLimit {
		limit = maxStatusLimit
	}
	schemas := s.schemas
	if q.Schema != "" {
		schemas = []string{q.Schema}
	}

	perSchema := make([][]tier1.JobStatus, len(schemas))
	err := s.eachSchema(dbc, schemas, func(c dbctx.Context, i int, schema string) error {
		jobs, err := s.statusesIn(c, schema, q, limit)
		if err != nil {
			if IsTableMissing(err) && q.Schema == "" {
				return nil
			}
			return err
		}
		perSchema[i] = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := []tier1.JobStatus{}
	for _, jobs := range perSchema {
		out = append(out, jobs...)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetBatchStatus returns one batch's status, or nil. An empty schema scans
// every configured schema in order.
func (s *batchStore) GetBatchStatus(dbc dbctx.Context, batchID, schema string) (*tier1.JobStatus, error) {
	schemas := s.schemas
	if schema != "" {
		schemas = []string{schema}
	}
	for _, sc := range schemas {
		if _, err := qualified(sc, tableBatches); err != nil {
			return nil, err
		}
		var rows []statusRow
		err := dbc.Conn(s.db).Raw(statusSelect(sc)+` WHERE b.batch_id = ? LIMIT 1`, batchID).Scan(&rows).Error
		if err = wrap(sc, tableBatches, err); err != nil {
			if IsTableMissing(err) && schema == "" {
				continue
			}
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		j := rows[0].job(sc)
		return &j, nil
	}
	return nil, nil
}
