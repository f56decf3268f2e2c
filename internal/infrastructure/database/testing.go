package database

import (
	"os"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB returns a migrated in-memory SQLite database private to t.
// A single connection makes concurrent callers queue on the store, the way
// Postgres row locks would make them queue on a project row.
func OpenTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}

// PostgresTestDSNEnv names the DSN used by tests built with -tags postgres.
const PostgresTestDSNEnv = "DATABASE_URL_TEST"

// OpenPostgresTestDB returns a migrated Postgres database with a real
// connection pool, so SELECT ... FOR UPDATE is what serializes concurrent
// writers. Skips t when PostgresTestDSNEnv is unset.
func OpenPostgresTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(PostgresTestDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresTestDSNEnv)
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	db.Logger = logger.Default.LogMode(logger.Silent)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, AutoMigrate(db))
	return db
}
