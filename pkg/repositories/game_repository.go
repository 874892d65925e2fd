package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/marinlafare/real-chessism/pkg/database"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

const gamesTable = "games"

var gameStruct = database.NewStruct(new(models.Game))

var gameInsertCols = []string{
	"link", "white", "black", "year", "month", "day", "hour", "minute", "second",
	"white_elo", "black_elo", "white_result", "black_result", "white_str_result", "black_str_result",
	"time_control", "eco", "time_elapsed", "n_moves",
}

// GameRepository handles database operations for games
type GameRepository struct {
	*Repository
}

// NewGameRepository creates a new game repository
func NewGameRepository(db database.DB, logger ectologger.Logger) *GameRepository {
	return &GameRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByLink retrieves a game by its external link id
func (r *GameRepository) GetByLink(ctx context.Context, link int64) (*models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "GameRepository.GetByLink")
	defer span.End()

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(sb.Equal("link", link))

	query, args := sb.Build()
	var game models.Game
	err := r.Queryer(ctx).GetContext(ctx, &game, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "game %d does not exist", link)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link": link,
		}).Error("failed to get game by link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get game")
	}

	return &game, nil
}

// InsertMany inserts games in batches, skipping links that already exist
func (r *GameRepository) InsertMany(ctx context.Context, games []models.Game) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "GameRepository.InsertMany")
	defer span.End()

	if len(games) == 0 {
		return 0, nil
	}

	n, err := insertBatches(ctx, r.Queryer(ctx), games, len(gameInsertCols), func(batch []models.Game) (string, []any) {
		ib := database.NewInsertBuilder()
		ib.InsertInto(gamesTable).Cols(gameInsertCols...)
		for _, g := range batch {
			ib.Values(g.Link, g.White, g.Black, g.Year, g.Month, g.Day, g.Hour, g.Minute, g.Second,
				g.WhiteElo, g.BlackElo, g.WhiteResult, g.BlackResult, g.WhiteStrResult, g.BlackStrResult,
				g.TimeControl, g.ECO, g.TimeElapsed, g.NMoves)
		}
		ib.OnConflictDoNothing()
		return ib.Build()
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(games),
		}).Error("failed to insert games")
		return n, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert games")
	}

	r.logger.WithContext(ctx).Debugf("Inserted %d %s", n, gamesTable)
	return n, nil
}

// ListByPlayer lists games the player took part in, newest first
func (r *GameRepository) ListByPlayer(ctx context.Context, handle string, page Page) ([]models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "GameRepository.ListByPlayer")
	defer span.End()

	handle = strings.ToLower(handle)
	page = page.Normalize()

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(sb.Or(sb.Equal("white", handle), sb.Equal("black", handle))).
		OrderBy("year DESC", "month DESC", "day DESC", "hour DESC", "minute DESC", "second DESC", "link DESC").
		Limit(page.Limit).
		Offset(page.Offset)

	query, args := sb.Build()
	var games []models.Game
	if err := r.Queryer(ctx).SelectContext(ctx, &games, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"player_name": handle,
		}).Error("failed to list games by player")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list games")
	}
	return games, nil
}
