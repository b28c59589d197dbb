package database_test

import (
	"bytes"
	stdlog "log"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/linkflow-ai/flowmirror/internal/pkg/database"
	"github.com/linkflow-ai/flowmirror/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

func TestDSN(t *testing.T) {
	t.Run("sqlite carries pragmas", func(t *testing.T) {
		cfg := config.DatabaseConfig{Driver: config.DriverSQLite, Path: "data/x.db"}
		dsn := cfg.DSN()
		assert.Contains(t, dsn, "data/x.db?")
		assert.Contains(t, dsn, "_pragma=foreign_keys(1)")
		assert.Contains(t, dsn, "_pragma=busy_timeout(5000)")
	})

	t.Run("postgres", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Driver: config.DriverPostgres, Host: "db", Port: 5432,
			User: "u", Password: "p", Name: "n", SSLMode: "disable",
		}
		assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.DSN())
	})
}

func TestAutoMigrateIsRepeatable(t *testing.T) {
	db, err := database.NewGormDB(&config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "nested", "m.db"),
	})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))
	require.NoError(t, database.AutoMigrate(db))

	// every additive column already exists after AutoMigrate
	assert.Equal(t, 0, database.ApplyColumnMigrations(db))

	for _, col := range []string{"ai_total_tokens", "ai_cost", "ai_model"} {
		assert.True(t, db.Migrator().HasColumn(&models.Execution{}, col), col)
	}
	assert.True(t, db.Migrator().HasColumn(&models.SyncLog{}, "cursor"))
	assert.True(t, db.Migrator().HasColumn(&models.Workflow{}, "last_seen_in_n8n"))
}

func TestColumnMigrationAddsMissingColumn(t *testing.T) {
	db := dbtest.Open(t)

	require.NoError(t, db.Migrator().DropColumn(&models.Workflow{}, "last_backup_at"))
	require.False(t, db.Migrator().HasColumn(&models.Workflow{}, "last_backup_at"))

	assert.Equal(t, 1, database.ApplyColumnMigrations(db))
	assert.True(t, db.Migrator().HasColumn(&models.Workflow{}, "last_backup_at"))
}

func TestColumnMigrationsDoNotLogExistingColumns(t *testing.T) {
	db := dbtest.Open(t)
	var buf bytes.Buffer
	db.Logger = gormlogger.New(stdlog.New(&buf, "", 0), gormlogger.Config{LogLevel: gormlogger.Error})

	assert.Equal(t, 0, database.ApplyColumnMigrations(db))
	assert.NotContains(t, buf.String(), "duplicate column")
	assert.Empty(t, buf.String())
}

func TestForeignKeysEnforced(t *testing.T) {
	db := dbtest.Open(t)

	wf := &models.Workflow{
		ProviderID:         uuid.New(),
		ProviderWorkflowID: "1",
		Name:               "orphan",
	}
	err := db.Create(wf).Error
	assert.Error(t, err)
}
