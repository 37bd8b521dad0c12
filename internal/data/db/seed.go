package db

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/igasovic/PKM-sub000/internal/domain/capture"
	"github.com/igasovic/PKM-sub000/internal/modules/schemarouter"
)

//go:embed policies.yaml
var policiesYAML []byte

type policyFile struct {
	Policies []capture.IdempotencyPolicy `yaml:"policies"`
}

// DefaultPolicies returns the built-in idempotency policies.
func DefaultPolicies() ([]capture.IdempotencyPolicy, error) {
	var f policyFile
	if err := yaml.Unmarshal(policiesYAML, &f); err != nil {
		return nil, fmt.Errorf("decode policies.yaml: %w", err)
	}
	return f.Policies, nil
}

// SeedPolicies upserts the built-in policies into schema. Rows edited in the
// database keep their values; only missing policies are inserted.
func SeedPolicies(db *gorm.DB, schema string) error {
	if err := schemarouter.ValidateIdentifier(schema); err != nil {
		return err
	}
	policies, err := DefaultPolicies()
	if err != nil {
		return err
	}
	if len(policies) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range policies {
		policies[i].CreatedAt = now
		policies[i].UpdatedAt = now
	}
	return db.Table(schema+".idempotency_policies").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "policy_key"}},
			DoNothing: true,
		}).
		Create(&policies).Error
}

// SeedRuntimeConfig inserts is_test_mode=false when the row is absent.
func SeedRuntimeConfig(db *gorm.DB, schema string) error {
	if err := schemarouter.ValidateIdentifier(schema); err != nil {
		return err
	}
	row := capture.RuntimeConfig{
		Key:       capture.TestModeKey,
		Value:     datatypes.JSON([]byte("false")),
		UpdatedAt: time.Now().UTC(),
	}
	return db.Table(schema+".runtime_config").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

// Bootstrap provisions every schema, then runtime_config in the prod schema.
func Bootstrap(db *gorm.DB, prodSchema string, schemas []string) error {
	for _, s := range schemas {
		if err := EnsureSchema(db, s); err != nil {
			return err
		}
		if err := SeedPolicies(db, s); err != nil {
			return fmt.Errorf("seed policies %s: %w", s, err)
		}
	}
	if err := EnsureRuntimeConfig(db, prodSchema); err != nil {
		return err
	}
	return SeedRuntimeConfig(db, prodSchema)
}
