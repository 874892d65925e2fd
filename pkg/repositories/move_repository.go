package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/marinlafare/real-chessism/pkg/database"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

const movesTable = "moves"

var moveStruct = database.NewStruct(new(models.Move))

var moveInsertCols = []string{
	"link", "n_move", "white_move", "black_move",
	"white_reaction_time", "black_reaction_time", "white_time_left", "black_time_left",
}

// MoveRepository handles database operations for moves
type MoveRepository struct {
	*Repository
}

// NewMoveRepository creates a new move repository
func NewMoveRepository(db database.DB, logger ectologger.Logger) *MoveRepository {
	return &MoveRepository{
		Repository: NewRepository(db, logger),
	}
}

// InsertMany inserts moves in batches. Rows whose (link, n_move) already exist are skipped.
func (r *MoveRepository) InsertMany(ctx context.Context, moves []models.Move) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MoveRepository.InsertMany")
	defer span.End()

	if len(moves) == 0 {
		return 0, nil
	}

	n, err := insertBatches(ctx, r.Queryer(ctx), moves, len(moveInsertCols), func(batch []models.Move) (string, []any) {
		ib := database.NewInsertBuilder()
		ib.InsertInto(movesTable).Cols(moveInsertCols...)
		for _, m := range batch {
			ib.Values(m.Link, m.NMove, m.WhiteMove, m.BlackMove,
				m.WhiteReactionTime, m.BlackReactionTime, m.WhiteTimeLeft, m.BlackTimeLeft)
		}
		ib.OnConflictDoNothing()
		return ib.Build()
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(moves),
		}).Error("failed to insert moves")
		return n, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert moves")
	}

	r.logger.WithContext(ctx).Debugf("Inserted %d %s", n, movesTable)
	return n, nil
}

// ListByGame returns a game's moves in order
func (r *MoveRepository) ListByGame(ctx context.Context, link int64) ([]models.Move, error) {
	ctx, span := tracing.StartSpan(ctx, "MoveRepository.ListByGame")
	defer span.End()

	sb := moveStruct.SelectFrom(movesTable)
	sb.Where(sb.Equal("link", link)).OrderBy("n_move").Asc()

	query, args := sb.Build()
	var moves []models.Move
	if err := r.Queryer(ctx).SelectContext(ctx, &moves, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"link": link,
		}).Error("failed to list moves")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list moves")
	}
	return moves, nil
}
