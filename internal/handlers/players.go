package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/marinlafare/real-chessism/pkg/ingestion"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/repositories"
)

// PlayerEnsurer stores a player from the source profile when it is not stored yet.
type PlayerEnsurer interface {
	EnsurePlayer(ctx context.Context, handle string) (*models.Player, bool, error)
}

var _ PlayerEnsurer = (*ingestion.Coordinator)(nil)

// PlayerHandler serves stored players.
type PlayerHandler struct {
	players   repositories.PlayerRepo
	months    repositories.MonthSummaryRepo
	ensurer   PlayerEnsurer
	projector *Projector
}

// NewPlayerHandler creates a player handler
func NewPlayerHandler(players repositories.PlayerRepo, months repositories.MonthSummaryRepo, ensurer PlayerEnsurer) *PlayerHandler {
	return &PlayerHandler{
		players:   players,
		months:    months,
		ensurer:   ensurer,
		projector: NewProjector(),
	}
}

// CreatePlayerRequest is the request body for POST /player
type CreatePlayerRequest struct {
	PlayerName string `json:"player_name" validate:"required,max=64"`
}

// RegisterRoutes registers the player routes
func (h *PlayerHandler) RegisterRoutes(e *echo.Echo, mw ...echo.MiddlewareFunc) {
	player := e.Group("/player", mw...)
	player.POST("", h.Create)
	player.GET("/:handle", h.Get)
	player.GET("/:handle/months", h.ListMonths)
	player.GET("/:handle/:feature", h.GetFeature)
}

// Create handles POST /player
func (h *PlayerHandler) Create(c echo.Context) error {
	req, err := BindRequest[CreatePlayerRequest](c)
	if err != nil {
		return err
	}

	player, created, err := h.ensurer.EnsurePlayer(c.Request().Context(), req.PlayerName)
	if err != nil {
		return err
	}

	if created {
		return CreatedResponse(c, player)
	}
	return SuccessResponse(c, player)
}

// Get handles GET /player/:handle
func (h *PlayerHandler) Get(c echo.Context) error {
	handle, err := ParseHandle(c, "handle")
	if err != nil {
		return err
	}

	player, err := h.players.GetByHandle(c.Request().Context(), handle)
	if err != nil {
		return err
	}

	return SuccessResponse(c, player)
}

// GetFeature handles GET /player/:handle/:feature. The feature is a JMESPath
// expression over the profile, so a plain field name selects that field.
func (h *PlayerHandler) GetFeature(c echo.Context) error {
	handle, err := ParseHandle(c, "handle")
	if err != nil {
		return err
	}
	feature := c.Param("feature")

	player, err := h.players.GetByHandle(c.Request().Context(), handle)
	if err != nil {
		return err
	}

	value, err := h.projector.Project(feature, player)
	if err != nil {
		return BadRequest(err.Error())
	}
	if value == nil {
		return NotFound("player %s has no %s", handle, feature)
	}

	return c.JSON(http.StatusOK, map[string]any{feature: value})
}

// ListMonths handles GET /player/:handle/months
func (h *PlayerHandler) ListMonths(c echo.Context) error {
	handle, err := ParseHandle(c, "handle")
	if err != nil {
		return err
	}

	months, err := h.months.ListByPlayer(c.Request().Context(), handle)
	if err != nil {
		return err
	}
	if months == nil {
		months = []models.MonthSummary{}
	}

	return SuccessResponse(c, months)
}
