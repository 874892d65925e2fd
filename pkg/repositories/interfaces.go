package repositories

import (
	"context"
	"time"

	"github.com/marinlafare/real-chessism/pkg/models"
)

// PlayerRepo defines the interface for player repository operations
type PlayerRepo interface {
	GetByHandle(ctx context.Context, handle string) (*models.Player, error)
	Create(ctx context.Context, player *models.Player) error
	UpsertMany(ctx context.Context, players []models.Player) (int64, error)
	MarkSynced(ctx context.Context, handle string, at time.Time) error
	ListDueForResync(ctx context.Context, syncedBefore time.Time, limit int) ([]models.Player, error)
}

// GameRepo defines the interface for game repository operations
type GameRepo interface {
	GetByLink(ctx context.Context, link int64) (*models.Game, error)
	InsertMany(ctx context.Context, games []models.Game) (int64, error)
	ListByPlayer(ctx context.Context, handle string, page Page) ([]models.Game, error)
}

// MoveRepo defines the interface for move repository operations
type MoveRepo interface {
	InsertMany(ctx context.Context, moves []models.Move) (int64, error)
	ListByGame(ctx context.Context, link int64) ([]models.Move, error)
}

// MonthSummaryRepo defines the interface for month summary repository operations
type MonthSummaryRepo interface {
	ListMonths(ctx context.Context, handle string) ([]string, error)
	UpsertMany(ctx context.Context, summaries []models.MonthSummary) (int64, error)
	ListByPlayer(ctx context.Context, handle string) ([]models.MonthSummary, error)
}

var (
	_ PlayerRepo       = (*PlayerRepository)(nil)
	_ GameRepo         = (*GameRepository)(nil)
	_ MoveRepo         = (*MoveRepository)(nil)
	_ MonthSummaryRepo = (*MonthSummaryRepository)(nil)
)
