package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/marinlafare/real-chessism/pkg/archive"
	appcontext "github.com/marinlafare/real-chessism/pkg/context"
	"github.com/marinlafare/real-chessism/pkg/dedup"
	"github.com/marinlafare/real-chessism/pkg/events"
	"github.com/marinlafare/real-chessism/pkg/metrics"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/repositories"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

// Source is the archive the coordinator reads from. *archive.Client implements it.
type Source interface {
	FetchProfile(ctx context.Context, handle string) (*archive.RawProfile, error)
	FetchMonths(ctx context.Context, handle string, months []archive.MonthKey) archive.FetchResult
}

var _ Source = (*archive.Client)(nil)

// Dependencies are the collaborators injected into a Coordinator.
type Dependencies struct {
	Source       Source
	Players      repositories.PlayerRepo
	Games        repositories.GameRepo
	Moves        repositories.MoveRepo
	Months       repositories.MonthSummaryRepo
	GameFilter   dedup.Filter
	PlayerFilter dedup.Filter
	Publisher    events.Publisher
}

// Config tunes a Coordinator.
type Config struct {
	// DecodeWorkers sizes the decode pool. Zero means GOMAXPROCS.
	DecodeWorkers      int
	ProfileConcurrency int
}

// Coordinator runs syncs. It holds no per-sync state and is safe for concurrent use.
type Coordinator struct {
	source       Source
	players      repositories.PlayerRepo
	games        repositories.GameRepo
	moves        repositories.MoveRepo
	months       repositories.MonthSummaryRepo
	gameFilter   dedup.Filter
	playerFilter dedup.Filter
	publisher    events.Publisher
	logger       ectologger.Logger
	cfg          Config
	now          func() time.Time
}

// NewCoordinator creates a new coordinator
func NewCoordinator(deps Dependencies, cfg Config, logger ectologger.Logger) *Coordinator {
	if cfg.ProfileConcurrency <= 0 {
		cfg.ProfileConcurrency = DefaultProfileConcurrency
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Coordinator{
		source:       deps.Source,
		players:      deps.Players,
		games:        deps.Games,
		moves:        deps.Moves,
		months:       deps.Months,
		gameFilter:   deps.GameFilter,
		playerFilter: deps.PlayerFilter,
		publisher:    publisher,
		logger:       logger,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for the month horizon and last_synced_at.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Sync brings handle's games up to date. The returned error is non-nil exactly
// when the outcome is *Failed, and is that *Failed.
func (c *Coordinator) Sync(ctx context.Context, handle string) (Outcome, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	syncID := uuid.New().String()
	ctx = appcontext.SetHandle(ctx, handle)
	ctx = appcontext.SetSyncID(ctx, syncID)

	ctx, span := tracing.StartSpan(ctx, "ingestion.Sync")
	defer span.End()
	span.SetAttributes(attribute.String("handle", handle), attribute.String("sync_id", syncID))

	start := time.Now()
	outcome := c.sync(ctx, handle)
	elapsed := time.Since(start)
	metrics.RecordSync(outcome.Kind(), elapsed.Seconds())

	evt := event(syncID, outcome)
	evt.DurationMs = elapsed.Milliseconds()
	if err := c.publisher.PublishSyncEvent(context.WithoutCancel(ctx), evt); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to publish sync event")
	}

	if failed, ok := outcome.(*Failed); ok {
		span.RecordError(failed)
		span.SetStatus(codes.Error, string(failed.Stage))
		return outcome, failed
	}
	return outcome, nil
}

func (c *Coordinator) sync(ctx context.Context, handle string) Outcome {
	logger := c.logger.WithContext(ctx).WithField("handle", handle)
	fail := func(stage Stage, err error) Outcome {
		logger.WithError(err).WithField("stage", string(stage)).Error("Sync failed")
		return &Failed{Handle: handle, Stage: stage, Cause: err}
	}

	if handle == "" {
		return fail(StageResolvePlayer, httperror.NewHTTPError(http.StatusBadRequest, "handle is required"))
	}

	// 1. horizon
	target, created, err := c.EnsurePlayer(ctx, handle)
	if err != nil {
		return fail(StageResolvePlayer, err)
	}
	existing, err := c.months.ListMonths(ctx, handle)
	if err != nil {
		return fail(StageHorizon, err)
	}
	candidates := candidateMonths(target, existing, c.now())
	if len(candidates) == 0 {
		logger.Info("Every month is already synced")
		return &NothingToDo{Handle: handle}
	}
	logger.Infof("Fetching %d months from %s to %s", len(candidates), candidates[0], candidates[len(candidates)-1])

	// 2. fetch
	if err := ctx.Err(); err != nil {
		return fail(StageFetch, err)
	}
	fetched := c.source.FetchMonths(ctx, handle, candidates)
	if err := ctx.Err(); err != nil {
		return fail(StageFetch, err)
	}
	if len(fetched.Failed) == len(candidates) {
		return fail(StageFetch, fmt.Errorf("all %d months failed: %w", len(candidates), fetched.Failed[0].Err))
	}
	skipped := make([]string, 0, len(fetched.Failed))
	for _, f := range fetched.Failed {
		skipped = append(skipped, f.Month.String())
	}

	// 3. dedup game links
	records, linkIDs := flatten(fetched.Archive)
	present, err := c.gameFilter.AlreadyPresent(ctx, linkIDs)
	if err != nil {
		return fail(StageDedup, err)
	}
	survivors := records[:0]
	for _, r := range records {
		if !present.Has(r.key) {
			survivors = append(survivors, r)
		}
	}
	logger.Debugf("%d of %d fetched games are new", len(survivors), len(records))

	// 4. participants
	newPlayers, err := c.resolveParticipants(ctx, participantHandles(survivors, handle))
	if err != nil {
		return fail(StageDedup, err)
	}

	// 5. decode
	result, err := decodeAll(ctx, survivors, c.cfg.DecodeWorkers)
	if err != nil {
		return fail(StageDecode, err)
	}
	rejected := map[string]int{}
	for _, r := range result.rejected {
		rejected[string(r.Reason)]++
		metrics.RecordRejection(string(r.Reason))
		logger.WithField("link", r.LinkID).Debugf("Rejected game: %s", r.Error())
	}

	// 6. aggregate
	games := make([]models.Game, 0, len(result.games))
	var moves []models.Move
	counts := map[archive.MonthKey]int{}
	for _, d := range result.games {
		games = append(games, d.game.Game)
		moves = append(moves, d.game.Moves...)
		counts[d.month]++
	}
	summaries := make([]models.MonthSummary, 0, len(candidates))
	for _, key := range fetched.Archive.Months() {
		summaries = append(summaries, models.MonthSummary{
			PlayerName: handle,
			Year:       key.Year,
			Month:      key.Month,
			NGames:     counts[key],
		})
	}

	// 7. persist
	out := &Completed{Handle: handle, Rejected: rejected, SkippedMonths: skipped}
	if created {
		out.NewPlayers++
	}
	stages := []struct {
		stage  Stage
		entity string
		run    func() (int64, error)
		count  *int64
	}{
		{StagePersistPlayers, "players", func() (int64, error) { return c.players.UpsertMany(ctx, newPlayers) }, nil},
		{StagePersistGames, "games", func() (int64, error) { return c.games.InsertMany(ctx, games) }, &out.NewGames},
		{StagePersistMoves, "moves", func() (int64, error) { return c.moves.InsertMany(ctx, moves) }, &out.NewMoves},
		{StagePersistMonths, "month_summaries", func() (int64, error) { return c.months.UpsertMany(ctx, summaries) }, &out.Months},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return fail(s.stage, err)
		}
		n, err := s.run()
		if err != nil {
			return fail(s.stage, err)
		}
		metrics.RecordPersisted(s.entity, int(n))
		logger.Debugf("Persisted %d %s", n, s.entity)
		if s.count != nil {
			*s.count = n
		} else {
			out.NewPlayers += n
		}
	}

	// 8. watermark
	if err := c.players.MarkSynced(ctx, handle, c.now()); err != nil {
		return fail(StageMarkSynced, err)
	}

	logger.WithFields(map[string]any{
		"new_games":   out.NewGames,
		"new_players": out.NewPlayers,
		"new_moves":   out.NewMoves,
		"months":      out.Months,
		"rejected":    len(result.rejected),
		"skipped":     len(skipped),
	}).Info("Sync completed")
	return out
}

// EnsurePlayer returns the stored player, creating it from the source profile
// when absent. created reports whether this call inserted it.
func (c *Coordinator) EnsurePlayer(ctx context.Context, handle string) (player *models.Player, created bool, err error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.EnsurePlayer")
	defer span.End()

	handle = strings.ToLower(strings.TrimSpace(handle))
	player, err = c.players.GetByHandle(ctx, handle)
	if err == nil {
		return player, false, nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return nil, false, err
	}

	profile, err := c.source.FetchProfile(ctx, handle)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, false, httperror.NewHTTPErrorf(http.StatusNotFound, "player %s not found at the source", handle)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch profile of %s: %w", handle, err)
	}

	p := PlayerFromProfile(handle, profile)
	if err := c.players.Create(ctx, &p); err != nil {
		if isStatus(err, http.StatusConflict) {
			// created concurrently
			player, err = c.players.GetByHandle(ctx, handle)
			return player, false, err
		}
		return nil, false, err
	}
	return &p, true, nil
}

// flatten lists the fetched records in month order, keeping the first record
// per link, and returns the numeric link ids for dedup. Records whose link is
// not numeric are kept so the decoder can reject them.
func flatten(a archive.Archive) ([]sourced, []string) {
	var records []sourced
	var ids []string
	seen := map[string]struct{}{}
	for _, month := range a.Months() {
		for _, raw := range a.Games(month) {
			key := linkKey(raw)
			if key == "" {
				records = append(records, sourced{month: month, raw: raw})
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, sourced{month: month, raw: raw, key: key})
			ids = append(ids, key)
		}
	}
	return records, ids
}

// linkKey is the decimal form of the game link, so "0123" and "123" match.
func linkKey(raw archive.RawGame) string {
	link, err := raw.Link()
	if err != nil {
		return ""
	}
	return strconv.FormatInt(link, 10)
}

func isStatus(err error, status int) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == status
}
