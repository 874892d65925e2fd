package repositories_test

import (
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marinlafare/real-chessism/db"
	"github.com/marinlafare/real-chessism/pkg/database"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "postgres"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "postgres"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "chessism_test"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = conn.Close() })

	logger := getTestLogger()
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		Files:        db.Migrations,
		Dir:          db.Dir,
		DatabaseName: dbName,
	})
	require.NoError(t, migrations.Migrate(conn.DB), "Failed to migrate test database")

	return database.NewDatabaseInstance(conn, logger)
}

func getMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	return database.NewDatabaseInstance(sqlx.NewDb(mockDB, "postgres"), getTestLogger()), mock
}

// uniqueHandle returns a handle that will not collide with other test runs
func uniqueHandle(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func strPtr(s string) *string {
	return &s
}

// assertStatus asserts that err is an HTTP error with the given status
func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, status, httperror.GetStatusCode(err), "expected %d, got: %d", status, httperror.GetStatusCode(err))
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	assertStatus(t, err, http.StatusNotFound)
}

