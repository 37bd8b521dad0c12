package runtimecfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/modules/schemarouter"
	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

// RuntimeConfigRepo reads and writes runtime_config in a single fixed schema.
type RuntimeConfigRepo interface {
	GetTestMode(dbc dbctx.Context) (bool, error)
	SetTestMode(dbc dbctx.Context, value bool) error
}

type runtimeConfigRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	table string
}

func NewRuntimeConfigRepo(db *gorm.DB, schema string, baseLog *logger.Logger) (RuntimeConfigRepo, error) {
	if err := schemarouter.ValidateIdentifier(schema); err != nil {
		return nil, err
	}
	return &runtimeConfigRepo{
		db:    db,
		log:   baseLog.With("repo", "RuntimeConfigRepo"),
		table: schema + ".runtime_config",
	}, nil
}

// GetTestMode returns false when the row is absent.
func (r *runtimeConfigRepo) GetTestMode(dbc dbctx.Context) (bool, error) {
	var row capture.RuntimeConfig
	err := dbc.Conn(r.db).Table(r.table).Where("key = ?", capture.TestModeKey).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return parseBool(row.Value)
}

func (r *runtimeConfigRepo) SetTestMode(dbc dbctx.Context, value bool) error {
	raw, _ := json.Marshal(value)
	row := capture.RuntimeConfig{
		Key:       capture.TestModeKey,
		Value:     datatypes.JSON(raw),
		UpdatedAt: time.Now().UTC(),
	}
	return dbc.Conn(r.db).Table(r.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

// Accepts a JSON boolean or a JSON string such as "true".
func parseBool(raw datatypes.JSON) (bool, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, fmt.Errorf("decode %s: %w", capture.TestModeKey, err)
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true, nil
		}
		return false, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("decode %s: unexpected value %s", capture.TestModeKey, string(raw))
	}
}
