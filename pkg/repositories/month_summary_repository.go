package repositories

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/marinlafare/real-chessism/pkg/database"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

const monthSummariesTable = "month_summaries"

var monthSummaryStruct = database.NewStruct(new(models.MonthSummary))

var monthSummaryInsertCols = []string{"player_name", "year", "month", "n_games"}

// MonthSummaryRepository handles database operations for month summaries
type MonthSummaryRepository struct {
	*Repository
}

// NewMonthSummaryRepository creates a new month summary repository
func NewMonthSummaryRepository(db database.DB, logger ectologger.Logger) *MonthSummaryRepository {
	return &MonthSummaryRepository{
		Repository: NewRepository(db, logger),
	}
}

// ListMonths returns the player's checkpointed months as YYYY-MM
func (r *MonthSummaryRepository) ListMonths(ctx context.Context, handle string) ([]string, error) {
	summaries, err := r.ListByPlayer(ctx, handle)
	if err != nil {
		return nil, err
	}
	months := make([]string, len(summaries))
	for i, s := range summaries {
		months[i] = s.Key()
	}
	return months, nil
}

// UpsertMany writes month summaries in batches; an existing month takes the new count
func (r *MonthSummaryRepository) UpsertMany(ctx context.Context, summaries []models.MonthSummary) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MonthSummaryRepository.UpsertMany")
	defer span.End()

	if len(summaries) == 0 {
		return 0, nil
	}

	n, err := insertBatches(ctx, r.Queryer(ctx), summaries, len(monthSummaryInsertCols), func(batch []models.MonthSummary) (string, []any) {
		ib := database.NewInsertBuilder()
		ib.InsertInto(monthSummariesTable).Cols(monthSummaryInsertCols...)
		for _, s := range batch {
			ib.Values(strings.ToLower(s.PlayerName), s.Year, s.Month, s.NGames)
		}
		ub := ib.OnConflict("player_name", "year", "month")
		ub.Set(
			ub.Assign("n_games", database.Excluded("n_games")),
			ub.Assign("updated_at", database.Now()),
		)
		return ib.Build()
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(summaries),
		}).Error("failed to upsert month summaries")
		return n, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert month summaries")
	}

	r.logger.WithContext(ctx).Debugf("Upserted %d %s", n, monthSummariesTable)
	return n, nil
}

// ListByPlayer returns the player's month summaries in chronological order
func (r *MonthSummaryRepository) ListByPlayer(ctx context.Context, handle string) ([]models.MonthSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "MonthSummaryRepository.ListByPlayer")
	defer span.End()

	handle = strings.ToLower(handle)
	sb := monthSummaryStruct.SelectFrom(monthSummariesTable)
	sb.Where(sb.Equal("player_name", handle)).OrderBy("year", "month").Asc()

	query, args := sb.Build()
	var summaries []models.MonthSummary
	if err := r.Queryer(ctx).SelectContext(ctx, &summaries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"player_name": handle,
		}).Error("failed to list month summaries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list month summaries")
	}
	return summaries, nil
}
