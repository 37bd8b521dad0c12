package entries

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/igasovic/PKM-sub000/internal/data/pgerr"
	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/modules/schemarouter"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

type EntryRepo interface {
	Insert(dbc dbctx.Context, schema string, e *capture.Entry) error
	FindByIdempotency(dbc dbctx.Context, schema, policyKey string, primary, secondary *string) (*capture.Entry, error)
	GetByID(dbc dbctx.Context, schema string, id uuid.UUID) (*capture.Entry, error)
	GetByEntryID(dbc dbctx.Context, schema string, entryID int64) (*capture.Entry, error)
	UpdateColumns(dbc dbctx.Context, schema string, id uuid.UUID, updates map[string]interface{}) (*capture.Entry, error)
	UpdateByEntryID(dbc dbctx.Context, schema string, entryID int64, updates map[string]interface{}) (bool, error)
	GetPolicy(dbc dbctx.Context, schema, policyKey string) (*capture.IdempotencyPolicy, error)
}

type entryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntryRepo(db *gorm.DB, baseLog *logger.Logger) EntryRepo {
	return &entryRepo{
		db:  db,
		log: baseLog.With("repo", "EntryRepo"),
	}
}

func table(schema, name string) (string, error) {
	if err := schemarouter.ValidateIdentifier(schema); err != nil {
		return "", err
	}
	return schema + "." + name, nil
}

// Insert creates e and fills the database-assigned columns. A hit on either
// idempotency index is returned wrapping pgerr.ErrUniqueViolation.
func (r *entryRepo) Insert(dbc dbctx.Context, schema string, e *capture.Entry) error {
	t, err := table(schema, "entries")
	if err != nil {
		return err
	}
	err = dbc.Conn(r.db).Table(t).Clauses(clause.Returning{}).Create(e).Error
	if pgerr.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", pgerr.ErrUniqueViolation, pgerr.Constraint(err))
	}
	return err
}

// FindByIdempotency returns the row owning either key under policyKey,
// preferring a primary-key match. Returns nil when nothing matches.
func (r *entryRepo) FindByIdempotency(dbc dbctx.Context, schema, policyKey string, primary, secondary *string) (*capture.Entry, error) {
	t, err := table(schema, "entries")
	if err != nil {
		return nil, err
	}
	lookups := []struct {
		column string
		value  *string
	}{
		{"idempotency_key_primary", primary},
		{"idempotency_key_secondary", secondary},
	}
	for _, l := range lookups {
		if l.value == nil || *l.value == "" {
			continue
		}
		var out capture.Entry
		err := dbc.Conn(r.db).Table(t).
			Where("idempotency_policy_key = ? AND "+l.column+" = ?", policyKey, *l.value).
			Limit(1).
			Take(&out).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &out, nil
	}
	return nil, nil
}

func (r *entryRepo) GetByID(dbc dbctx.Context, schema string, id uuid.UUID) (*capture.Entry, error) {
	return r.getWhere(dbc, schema, "id = ?", id)
}

func (r *entryRepo) GetByEntryID(dbc dbctx.Context, schema string, entryID int64) (*capture.Entry, error) {
	return r.getWhere(dbc, schema, "entry_id = ?", entryID)
}

func (r *entryRepo) getWhere(dbc dbctx.Context, schema string, query string, arg interface{}) (*capture.Entry, error) {
	t, err := table(schema, "entries")
	if err != nil {
		return nil, err
	}
	var out capture.Entry
	err = dbc.Conn(r.db).Table(t).Where(query, arg).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateColumns writes updates to the row with id and returns the fresh row.
// Immutable columns are dropped before the statement is built.
func (r *entryRepo) UpdateColumns(dbc dbctx.Context, schema string, id uuid.UUID, updates map[string]interface{}) (*capture.Entry, error) {
	t, err := table(schema, "entries")
	if err != nil {
		return nil, err
	}
	clean := stripImmutable(updates)
	if len(clean) > 0 {
		clean["updated_at"] = time.Now().UTC()
		res := dbc.Conn(r.db).Table(t).Where("id = ?", id).Updates(clean)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, pkgerrors.ErrNotFound
		}
	}
	return r.GetByID(dbc, schema, id)
}

func (r *entryRepo) UpdateByEntryID(dbc dbctx.Context, schema string, entryID int64, updates map[string]interface{}) (bool, error) {
	t, err := table(schema, "entries")
	if err != nil {
		return false, err
	}
	clean := stripImmutable(updates)
	if len(clean) == 0 {
		return false, nil
	}
	clean["updated_at"] = time.Now().UTC()
	res := dbc.Conn(r.db).Table(t).Where("entry_id = ?", entryID).Updates(clean)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetPolicy returns the enabled policy for policyKey, or nil.
func (r *entryRepo) GetPolicy(dbc dbctx.Context, schema, policyKey string) (*capture.IdempotencyPolicy, error) {
	t, err := table(schema, "idempotency_policies")
	if err != nil {
		return nil, err
	}
	var out capture.IdempotencyPolicy
	err = dbc.Conn(r.db).Table(t).
		Where("policy_key = ? AND enabled = ?", policyKey, true).
		Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func stripImmutable(updates map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		if capture.ImmutableColumns[k] {
			continue
		}
		out[k] = v
	}
	return out
}
