package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/marinlafare/real-chessism/pkg/database"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

const playersTable = "players"

var playerStruct = database.NewStruct(new(models.Player))

var playerInsertCols = []string{
	"player_name", "name", "url", "title", "avatar", "followers", "country", "location",
	"joined", "status", "is_streamer", "twitch_url", "verified", "league",
}

// PlayerRepository handles database operations for players
type PlayerRepository struct {
	*Repository
}

// NewPlayerRepository creates a new player repository
func NewPlayerRepository(db database.DB, logger ectologger.Logger) *PlayerRepository {
	return &PlayerRepository{
		Repository: NewRepository(db, logger),
	}
}

func playerValues(p *models.Player) []any {
	return []any{
		strings.ToLower(p.PlayerName), p.Name, p.URL, p.Title, p.Avatar, p.Followers, p.Country, p.Location,
		p.Joined, p.Status, p.IsStreamer, p.TwitchURL, p.Verified, p.League,
	}
}

// GetByHandle retrieves a player by handle
func (r *PlayerRepository) GetByHandle(ctx context.Context, handle string) (*models.Player, error) {
	ctx, span := tracing.StartSpan(ctx, "PlayerRepository.GetByHandle")
	defer span.End()

	handle = strings.ToLower(handle)
	sb := playerStruct.SelectFrom(playersTable)
	sb.Where(sb.Equal("player_name", handle))

	query, args := sb.Build()
	var player models.Player
	err := r.Queryer(ctx).GetContext(ctx, &player, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "player '%s' does not exist", handle)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"player_name": handle,
		}).Error("failed to get player by handle")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get player")
	}

	return &player, nil
}

// Create inserts a player. A player that already exists yields a 409.
func (r *PlayerRepository) Create(ctx context.Context, player *models.Player) error {
	ctx, span := tracing.StartSpan(ctx, "PlayerRepository.Create")
	defer span.End()

	player.PlayerName = strings.ToLower(player.PlayerName)

	ib := database.NewInsertBuilder()
	ib.InsertInto(playersTable).
		Cols(playerInsertCols...).
		Values(playerValues(player)...)
	ib.OnConflictDoNothing()
	ib.Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.Queryer(ctx).QueryRowContext(ctx, query, args...).Scan(&player.CreatedAt, &player.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conflict("player '%s' already exists", player.PlayerName)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"player_name": player.PlayerName,
		}).Error("failed to create player")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create player")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"player_name": player.PlayerName,
	}).Debugf("Created %s", playersTable)
	return nil
}

// UpsertMany inserts players in batches. Existing rows take the incoming
// profile columns, except where the incoming value is NULL.
func (r *PlayerRepository) UpsertMany(ctx context.Context, players []models.Player) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "PlayerRepository.UpsertMany")
	defer span.End()

	if len(players) == 0 {
		return 0, nil
	}

	n, err := insertBatches(ctx, r.Queryer(ctx), players, len(playerInsertCols), func(batch []models.Player) (string, []any) {
		ib := database.NewInsertBuilder()
		ib.InsertInto(playersTable).Cols(playerInsertCols...)
		for i := range batch {
			ib.Values(playerValues(&batch[i])...)
		}

		ub := ib.OnConflict("player_name")
		assignments := make([]string, 0, len(playerInsertCols))
		for _, col := range playerInsertCols[1:] {
			assignments = append(assignments, ub.Assign(col, database.ExcludedOrExisting(playersTable, col)))
		}
		assignments = append(assignments, ub.Assign("updated_at", database.Now()))
		ub.Set(assignments...)

		return ib.Build()
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"count": len(players),
		}).Error("failed to upsert players")
		return n, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert players")
	}

	r.logger.WithContext(ctx).Debugf("Upserted %d %s", n, playersTable)
	return n, nil
}

// MarkSynced records the completion time of a sync targeting the player
func (r *PlayerRepository) MarkSynced(ctx context.Context, handle string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "PlayerRepository.MarkSynced")
	defer span.End()

	handle = strings.ToLower(handle)
	ub := database.NewUpdateBuilder()
	ub.Update(playersTable).
		Set(ub.Assign("last_synced_at", at.UTC()), ub.Assign("updated_at", database.Now())).
		Where(ub.Equal("player_name", handle))

	query, args := ub.Build()
	result, err := r.Queryer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"player_name": handle,
		}).Error("failed to mark player synced")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark player synced")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return NotFound("player '%s' does not exist", handle)
	}
	return nil
}

// ListDueForResync lists previously synced players whose last sync is older than syncedBefore
func (r *PlayerRepository) ListDueForResync(ctx context.Context, syncedBefore time.Time, limit int) ([]models.Player, error) {
	ctx, span := tracing.StartSpan(ctx, "PlayerRepository.ListDueForResync")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}

	sb := playerStruct.SelectFrom(playersTable)
	sb.Where(sb.IsNotNull("last_synced_at"), sb.LessThan("last_synced_at", syncedBefore.UTC())).
		OrderBy("last_synced_at").Asc().
		Limit(limit)

	query, args := sb.Build()
	var players []models.Player
	if err := r.Queryer(ctx).SelectContext(ctx, &players, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list players due for resync")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list players due for resync")
	}
	return players, nil
}
