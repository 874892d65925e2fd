package handlers

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/marinlafare/real-chessism/pkg/ingestion"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/queue"
	"github.com/marinlafare/real-chessism/pkg/repositories"
)

// GameHandler serves syncs and game reads.
type GameHandler struct {
	syncer    ingestion.Syncer
	publisher queue.Publisher
	stream    string
	games     repositories.GameRepo
	moves     repositories.MoveRepo
	logger    ectologger.Logger
}

// NewGameHandler creates a game handler. A nil publisher disables the enqueue route.
func NewGameHandler(syncer ingestion.Syncer, publisher queue.Publisher, stream string, games repositories.GameRepo, moves repositories.MoveRepo, logger ectologger.Logger) *GameHandler {
	return &GameHandler{
		syncer:    syncer,
		publisher: publisher,
		stream:    stream,
		games:     games,
		moves:     moves,
		logger:    logger,
	}
}

// SyncResponse is the body of a finished sync request.
type SyncResponse struct {
	Outcome string            `json:"outcome"`
	Result  ingestion.Outcome `json:"result"`
}

// EnqueueResponse is the body of an accepted sync job.
type EnqueueResponse struct {
	JobID  string `json:"job_id"`
	Handle string `json:"handle"`
	Stream string `json:"stream"`
}

// RegisterRoutes registers the game routes
func (h *GameHandler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	games := e.Group("/games", mw...)
	games.POST("/:handle", h.Sync)
	games.POST("/:handle/enqueue", h.Enqueue)
	games.GET("/:link", h.Get)
	e.GET("/players/:handle/games", h.ListByPlayer, mw...)
}

// Sync handles POST /games/:handle
func (h *GameHandler) Sync(c echo.Context) error {
	handle, err := ParseHandle(c, "handle")
	if err != nil {
		return err
	}

	outcome, err := h.syncer.Sync(c.Request().Context(), handle)
	if err != nil {
		return syncError(handle, err)
	}

	return SuccessResponse(c, SyncResponse{Outcome: outcome.Kind(), Result: outcome})
}

// syncError maps a sync failure to its HTTP error.
func syncError(handle string, err error) error {
	if errors.Is(err, ingestion.ErrSyncInProgress) {
		return httperror.NewHTTPErrorf(http.StatusConflict, "a sync for %s is already running", handle)
	}
	var failed *ingestion.Failed
	if errors.As(err, &failed) {
		return httperror.NewHTTPError(failed.StatusCode(), failed.Error())
	}
	return err
}

// Enqueue handles POST /games/:handle/enqueue
func (h *GameHandler) Enqueue(c echo.Context) error {
	if h.publisher == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "the job queue is disabled")
	}

	handle, err := ParseHandle(c, "handle")
	if err != nil {
		return err
	}

	job, err := queue.EnqueueSync(c.Request().Context(), h.publisher, h.stream, handle)
	if err != nil {
		h.logger.WithContext(c.Request().Context()).WithError(err).Errorf("Failed to enqueue sync of %s", handle)
		return err
	}

	return AcceptedResponse(c, EnqueueResponse{JobID: job.ID, Handle: job.Handle, Stream: h.stream})
}

// Get handles GET /games/:link
func (h *GameHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	link, err := ParseLink(c, "link")
	if err != nil {
		return err
	}

	game, err := h.games.GetByLink(ctx, link)
	if err != nil {
		return err
	}

	moves, err := h.moves.ListByGame(ctx, link)
	if err != nil {
		return err
	}
	if moves == nil {
		moves = []models.Move{}
	}

	return SuccessResponse(c, models.GameWithMoves{Game: *game, Moves: moves})
}

// ListByPlayer handles GET /players/:handle/games
func (h *GameHandler) ListByPlayer(c echo.Context) error {
	handle, err := ParseHandle(c, "handle")
	if err != nil {
		return err
	}

	page, err := ParsePage(c)
	if err != nil {
		return err
	}

	games, err := h.games.ListByPlayer(c.Request().Context(), handle, page)
	if err != nil {
		return err
	}
	if games == nil {
		games = []models.Game{}
	}

	return SuccessResponse(c, games)
}
