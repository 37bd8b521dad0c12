package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/igasovic/PKM-sub000/internal/modules/schemarouter"
)

// EnsureSchema creates the schema and every table the write path and the
// Tier-1 lifecycle use. Safe to re-run.
func EnsureSchema(db *gorm.DB, schema string) error {
	if err := schemarouter.ValidateIdentifier(schema); err != nil {
		return err
	}
	for _, stmt := range schemaDDL(schema) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure schema %s: %w", schema, err)
		}
	}
	return nil
}

// EnsureRuntimeConfig creates runtime_config in schema.
func EnsureRuntimeConfig(db *gorm.DB, schema string) error {
	if err := schemarouter.ValidateIdentifier(schema); err != nil {
		return err
	}
	stmt := expand(schema, `
		CREATE TABLE IF NOT EXISTS {s}.runtime_config (
			key        text PRIMARY KEY,
			value      jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("ensure runtime_config: %w", err)
	}
	return nil
}

func expand(schema, stmt string) string {
	return strings.ReplaceAll(stmt, "{s}", schema)
}

func schemaDDL(schema string) []string {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS {s}`,

		// =========================
		// Entries
		// =========================
		`CREATE TABLE IF NOT EXISTS {s}.entries (
			id                          uuid PRIMARY KEY,
			entry_id                    bigserial UNIQUE,
			created_at                  timestamptz NOT NULL DEFAULT now(),
			updated_at                  timestamptz NOT NULL DEFAULT now(),
			source                      text NOT NULL,
			intent                      text,
			content_type                text,
			title                       text,
			author                      text,
			capture_text                text,
			clean_text                  text,
			url                         text,
			url_canonical               text,
			external_ref                jsonb,
			metadata                    jsonb,
			retrieval_excerpt           text,
			quality_score               double precision,
			low_signal                  boolean NOT NULL DEFAULT false,
			boilerplate_heavy           boolean NOT NULL DEFAULT false,
			clean_word_count            integer NOT NULL DEFAULT 0,
			topic_primary               text,
			topic_primary_confidence    double precision,
			topic_secondary             text,
			topic_secondary_confidence  double precision,
			keywords                    text[],
			gist                        text,
			enrichment_status           text,
			enrichment_model            text,
			idempotency_policy_key      text,
			idempotency_key_primary     text,
			idempotency_key_secondary   text
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS {s}_entries_idem_primary_uq
			ON {s}.entries (idempotency_policy_key, idempotency_key_primary)
			WHERE idempotency_policy_key IS NOT NULL AND idempotency_key_primary IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS {s}_entries_idem_secondary_uq
			ON {s}.entries (idempotency_policy_key, idempotency_key_secondary)
			WHERE idempotency_policy_key IS NOT NULL AND idempotency_key_secondary IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS {s}_entries_created_at_idx ON {s}.entries (created_at DESC)`,

		// =========================
		// Idempotency policies
		// =========================
		`CREATE TABLE IF NOT EXISTS {s}.idempotency_policies (
			policy_id       bigserial PRIMARY KEY,
			policy_key      text NOT NULL UNIQUE,
			source          text NOT NULL,
			content_type    text,
			conflict_action text NOT NULL CHECK (conflict_action IN ('skip', 'update')),
			update_fields   text[],
			enabled         boolean NOT NULL DEFAULT true,
			notes           text,
			created_at      timestamptz NOT NULL DEFAULT now(),
			updated_at      timestamptz NOT NULL DEFAULT now()
		)`,

		// =========================
		// Tier-1 batches
		// =========================
		`CREATE TABLE IF NOT EXISTS {s}.t1_batches (
			batch_id       text PRIMARY KEY,
			status         text,
			model          text,
			input_file_id  text,
			output_file_id text,
			error_file_id  text,
			request_count  integer NOT NULL DEFAULT 0,
			metadata       jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at     timestamptz NOT NULL DEFAULT now(),
			updated_at     timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS {s}_t1_batches_status_idx ON {s}.t1_batches (status)`,
		`CREATE TABLE IF NOT EXISTS {s}.t1_batch_items (
			batch_id     text NOT NULL,
			custom_id    text NOT NULL,
			title        text,
			author       text,
			content_type text,
			prompt_mode  text,
			prompt       text,
			created_at   timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (batch_id, custom_id)
		)`,
		`CREATE TABLE IF NOT EXISTS {s}.t1_batch_item_results (
			batch_id      text NOT NULL,
			custom_id     text NOT NULL,
			status        text NOT NULL,
			response_text text,
			parsed        jsonb,
			error         jsonb,
			raw           jsonb,
			updated_at    timestamptz NOT NULL DEFAULT now(),
			created_at    timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (batch_id, custom_id)
		)`,
	}
	for i, s := range stmts {
		stmts[i] = expand(schema, s)
	}
	return stmts
}
