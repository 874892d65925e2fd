package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/marinlafare/real-chessism/pkg/database"
)

// NotFound returns a 404 HTTP error with a descriptive message
func NotFound(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// Conflict returns a 409 HTTP error with a descriptive message
func Conflict(format string, args ...any) error {
	return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf(format, args...))
}

// BadRequest returns a 400 HTTP error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// Internal returns a 500 HTTP error
func Internal(message string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

// Repository provides common database operations
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new base repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// DB returns the database instance
func (r *Repository) DB() database.DB {
	return r.db
}

// Queryer returns the transaction carried by ctx, or the pool when there is none.
func (r *Repository) Queryer(ctx context.Context) database.Queryer {
	if tx := database.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

// insertBatches splits rows so that no statement exceeds the bind parameter
// limit and returns the total number of affected rows.
func insertBatches[T any](ctx context.Context, q database.Queryer, rows []T, columns int, build func(batch []T) (string, []any)) (int64, error) {
	var total int64
	for _, batch := range database.Chunk(rows, database.RowsPerStatement(columns)) {
		query, args := build(batch)
		result, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return total, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
