package database

import (
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type columnMigration struct {
	version     string
	description string
	sql         string
}

// Additive column migrations. They run on every start; a column that
// already exists is not an error.
var columnMigrations = []columnMigration{
	{
		version:     "001",
		description: "Add last sync timestamp to providers",
		sql:         `ALTER TABLE providers ADD COLUMN last_sync_at TIMESTAMP`,
	},
	{
		version:     "002",
		description: "Add backup flag to workflows",
		sql:         `ALTER TABLE workflows ADD COLUMN backup_enabled BOOLEAN NOT NULL DEFAULT FALSE`,
	},
	{
		version:     "003",
		description: "Add last backup timestamp to workflows",
		sql:         `ALTER TABLE workflows ADD COLUMN last_backup_at TIMESTAMP`,
	},
	{
		version:     "004",
		description: "Add placeholder flag to workflows",
		sql:         `ALTER TABLE workflows ADD COLUMN is_placeholder BOOLEAN NOT NULL DEFAULT FALSE`,
	},
	{
		version:     "005",
		description: "Add AI token columns to executions",
		sql:         `ALTER TABLE executions ADD COLUMN ai_total_tokens INTEGER`,
	},
	{
		version:     "006",
		description: "Add AI input tokens to executions",
		sql:         `ALTER TABLE executions ADD COLUMN ai_input_tokens INTEGER`,
	},
	{
		version:     "007",
		description: "Add AI output tokens to executions",
		sql:         `ALTER TABLE executions ADD COLUMN ai_output_tokens INTEGER`,
	},
	{
		version:     "008",
		description: "Add AI cost to executions",
		sql:         `ALTER TABLE executions ADD COLUMN ai_cost DOUBLE PRECISION`,
	},
	{
		version:     "009",
		description: "Add AI provider to executions",
		sql:         `ALTER TABLE executions ADD COLUMN ai_provider VARCHAR(64)`,
	},
	{
		version:     "010",
		description: "Add AI model to executions",
		sql:         `ALTER TABLE executions ADD COLUMN ai_model VARCHAR(128)`,
	},
	{
		version:     "011",
		description: "Add resume cursor to sync logs",
		sql:         `ALTER TABLE sync_logs ADD COLUMN cursor TEXT`,
	},
	{
		version:     "012",
		description: "Add metadata to sync logs",
		sql:         `ALTER TABLE sync_logs ADD COLUMN metadata TEXT`,
	},
}

// ApplyColumnMigrations runs every additive migration and returns how many
// actually changed the schema. Failures are logged, never returned.
func ApplyColumnMigrations(db *gorm.DB) int {
	// expected duplicate-column failures stay out of the gorm log
	quiet := db.Session(&gorm.Session{Logger: db.Logger.LogMode(gormlogger.Silent)})

	applied := 0
	for _, m := range columnMigrations {
		err := quiet.Exec(m.sql).Error
		switch {
		case err == nil:
			applied++
			log.Info().
				Str("version", m.version).
				Str("description", m.description).
				Msg("Applied column migration")
		case isDuplicateColumn(err):
			log.Debug().Str("version", m.version).Msg("Column already exists")
		default:
			log.Warn().
				Err(err).
				Str("version", m.version).
				Str("description", m.description).
				Msg("Column migration failed")
		}
	}
	return applied
}

func isDuplicateColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column name") ||
		strings.Contains(msg, "already exists")
}
