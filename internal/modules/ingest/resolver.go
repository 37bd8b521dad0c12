package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/igasovic/PKM-sub000/internal/data/pgerr"
	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
	ActionSkipped  Action = "skipped"
)

type Result struct {
	Action Action         `json:"action"`
	Schema string         `json:"schema"`
	Row    *capture.Entry `json:"row"`
}

// EntryStore is the persistence the resolver needs. Insert must report a hit
// on an idempotency index as pgerr.ErrUniqueViolation.
type EntryStore interface {
	Insert(dbc dbctx.Context, schema string, e *capture.Entry) error
	FindByIdempotency(dbc dbctx.Context, schema, policyKey string, primary, secondary *string) (*capture.Entry, error)
	GetByEntryID(dbc dbctx.Context, schema string, entryID int64) (*capture.Entry, error)
	UpdateColumns(dbc dbctx.Context, schema string, id uuid.UUID, updates map[string]interface{}) (*capture.Entry, error)
	GetPolicy(dbc dbctx.Context, schema, policyKey string) (*capture.IdempotencyPolicy, error)
}

// ConflictResolver inserts entries and resolves duplicates by policy.
// Uniqueness is enforced by the database; the resolver only reacts to it.
type ConflictResolver struct {
	log   *logger.Logger
	store EntryStore
	now   func() time.Time
}

func NewConflictResolver(store EntryStore, baseLog *logger.Logger) *ConflictResolver {
	return &ConflictResolver{
		log:   baseLog.With("service", "ConflictResolver"),
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Upsert writes p into schema. Sources other than webpage must carry a policy
// key and at least one idempotency key; otherwise nothing is written.
func (r *ConflictResolver) Upsert(ctx context.Context, schema string, p *capture.EntryPayload) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", pkgerrors.ErrInvalidArgument)
	}
	if p.SourceName() != capture.SystemWebpage && !p.HasIdempotency() {
		pk := ""
		if p.IdempotencyPolicyKey != nil {
			pk = *p.IdempotencyPolicyKey
		}
		return nil, &MissingKeysError{Source: p.SourceName(), PolicyKey: pk}
	}
	entry, err := p.NewEntry(r.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err)
	}

	dbc := dbctx.With(ctx)
	err = r.store.Insert(dbc, schema, entry)
	if err == nil {
		return &Result{Action: ActionInserted, Schema: schema, Row: entry}, nil
	}
	if !pgerr.IsUniqueViolation(err) || entry.IdempotencyPolicyKey == nil {
		return nil, err
	}

	policyKey := *entry.IdempotencyPolicyKey
	existing, ferr := r.store.FindByIdempotency(dbc, schema, policyKey, entry.IdempotencyKeyPrimary, entry.IdempotencyKeySecondary)
	if ferr != nil {
		return nil, ferr
	}
	if existing == nil {
		return nil, fmt.Errorf("unique violation without a matching idempotency row: %w", err)
	}

	policy, perr := r.store.GetPolicy(dbc, schema, policyKey)
	if perr != nil {
		return nil, perr
	}
	if policy == nil {
		r.log.Warn("no enabled policy for conflicting key, skipping", "policy_key", policyKey, "schema", schema, "entry_id", existing.EntryID)
		return &Result{Action: ActionSkipped, Schema: schema, Row: existing}, nil
	}

	switch policy.ConflictAction {
	case capture.ConflictUpdate:
		updates, uerr := UpdateSet(existing, p, policy.UpdateFields)
		if uerr != nil {
			return nil, uerr
		}
		row, uerr := r.store.UpdateColumns(dbc, schema, existing.ID, updates)
		if uerr != nil {
			return nil, uerr
		}
		r.log.Debug("duplicate capture merged", "policy_key", policyKey, "schema", schema, "entry_id", row.EntryID, "columns", len(updates))
		return &Result{Action: ActionUpdated, Schema: schema, Row: row}, nil
	default:
		r.log.Debug("duplicate capture skipped", "policy_key", policyKey, "schema", schema, "entry_id", existing.EntryID)
		return &Result{Action: ActionSkipped, Schema: schema, Row: existing}, nil
	}
}

// Update patches the entry addressed by p.EntryID. Every present column except
// the immutable ones is written; metadata merges into the stored value.
func (r *ConflictResolver) Update(ctx context.Context, schema string, p *capture.EntryPayload) (*capture.Entry, error) {
	if p == nil || p.EntryID == nil {
		return nil, fmt.Errorf("%w: entry_id is required", pkgerrors.ErrInvalidArgument)
	}
	dbc := dbctx.With(ctx)
	existing, err := r.store.GetByEntryID(dbc, schema, *p.EntryID)
	if err != nil {
		return nil, err
	}
	updates, err := UpdateSet(existing, p, nil)
	if err != nil {
		return nil, err
	}
	return r.store.UpdateColumns(dbc, schema, existing.ID, updates)
}

// UpdateSet picks the columns of p to write over existing. A nil fields list
// allows every present column; the immutable columns are always excluded.
// Metadata is merged recursively into the stored metadata.
func UpdateSet(existing *capture.Entry, p *capture.EntryPayload, fields []string) (map[string]interface{}, error) {
	var allowed map[string]bool
	if fields != nil {
		allowed = make(map[string]bool, len(fields))
		for _, f := range fields {
			allowed[f] = true
		}
	}
	out := map[string]interface{}{}
	for col, val := range p.Columns() {
		if capture.ImmutableColumns[col] {
			continue
		}
		if allowed != nil && !allowed[col] {
			continue
		}
		switch col {
		case "metadata":
			base, err := capture.DecodeMetadata(existing.Metadata)
			if err != nil {
				return nil, err
			}
			merged, err := capture.MergeMetadata(base, val.(capture.Metadata)).JSON()
			if err != nil {
				return nil, fmt.Errorf("encode metadata: %w", err)
			}
			out[col] = merged
		case "external_ref":
			raw, err := val.(capture.Metadata).JSON()
			if err != nil {
				return nil, fmt.Errorf("encode external_ref: %w", err)
			}
			out[col] = raw
		default:
			out[col] = val
		}
	}
	return out, nil
}
