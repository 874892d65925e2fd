package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/pkg/database"
)

func getMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return database.NewDatabaseInstance(sqlx.NewDb(conn, "postgres"), logger), mock
}

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, database.Chunk(items, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, database.Chunk(items, 10))
	assert.Nil(t, database.Chunk(items, 0))
	assert.Nil(t, database.Chunk([]int{}, 3))
}

func TestRowsPerStatement(t *testing.T) {
	assert.Equal(t, 3449, database.RowsPerStatement(19))
	assert.Equal(t, 0, database.RowsPerStatement(0))
}

func TestInsertBuilder_OnConflict(t *testing.T) {
	ib := database.NewInsertBuilder()
	ib.InsertInto("players").Cols("player_name", "name").Values("alice", nil)
	ub := ib.OnConflict("player_name")
	ub.Set(ub.Assign("name", database.ExcludedOrExisting("players", "name")))

	query, args := ib.Build()
	assert.Regexp(t, `^INSERT INTO players \(player_name, name\) VALUES \(\$1, \$2\) ON CONFLICT \(player_name\) DO UPDATE .*SET name = COALESCE\(EXCLUDED\.name, players\.name\)$`, query)
	assert.Equal(t, []any{"alice", nil}, args)
}

func TestWithTx_CommitsAndRollsBack(t *testing.T) {
	db, mock := getMockDB(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM moves").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err := db.WithTx(ctx, nil, func(ctx context.Context, tx database.Tx) error {
		assert.Same(t, tx, database.TxFromContext(ctx))
		_, err := tx.ExecContext(ctx, "DELETE FROM moves")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = db.WithTx(ctx, nil, func(context.Context, database.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}
