package ingestion_test

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/marinlafare/real-chessism/pkg/archive"
	"github.com/marinlafare/real-chessism/pkg/dedup"
	"github.com/marinlafare/real-chessism/pkg/events"
	"github.com/marinlafare/real-chessism/pkg/ingestion"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/repositories"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// memStore is an in-memory stand-in for the four tables.
type memStore struct {
	mu      sync.Mutex
	players map[string]models.Player
	games   map[int64]models.Game
	moves   map[int64][]models.Move
	months  map[string]models.MonthSummary
	// fail maps an operation name such as "games.insert" to the error it returns
	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		players: map[string]models.Player{},
		games:   map[int64]models.Game{},
		moves:   map[int64][]models.Move{},
		months:  map[string]models.MonthSummary{},
		fail:    map[string]error{},
	}
}

func (s *memStore) failure(op string) error {
	return s.fail[op]
}

type playerRepo struct{ s *memStore }

func (r playerRepo) GetByHandle(_ context.Context, handle string) (*models.Player, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("players.get"); err != nil {
		return nil, err
	}
	p, ok := r.s.players[handle]
	if !ok {
		return nil, repositories.NotFound("player %s not found", handle)
	}
	return &p, nil
}

func (r playerRepo) Create(_ context.Context, player *models.Player) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.players[player.PlayerName]; ok {
		return repositories.Conflict("player %s already exists", player.PlayerName)
	}
	player.CreatedAt = time.Now()
	r.s.players[player.PlayerName] = *player
	return nil
}

func (r playerRepo) UpsertMany(_ context.Context, players []models.Player) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("players.upsert"); err != nil {
		return 0, err
	}
	for _, p := range players {
		r.s.players[p.PlayerName] = p
	}
	return int64(len(players)), nil
}

func (r playerRepo) MarkSynced(_ context.Context, handle string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.players[handle]
	if !ok {
		return repositories.NotFound("player %s not found", handle)
	}
	p.LastSyncedAt = &at
	r.s.players[handle] = p
	return nil
}

func (r playerRepo) ListDueForResync(_ context.Context, syncedBefore time.Time, limit int) ([]models.Player, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Player
	for _, p := range r.s.players {
		if p.LastSyncedAt != nil && p.LastSyncedAt.Before(syncedBefore) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

type gameRepo struct{ s *memStore }

func (r gameRepo) GetByLink(_ context.Context, link int64) (*models.Game, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.games[link]
	if !ok {
		return nil, repositories.NotFound("game %d not found", link)
	}
	return &g, nil
}

func (r gameRepo) InsertMany(_ context.Context, games []models.Game) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("games.insert"); err != nil {
		return 0, err
	}
	var n int64
	for _, g := range games {
		if _, ok := r.s.games[g.Link]; ok {
			continue
		}
		for _, side := range []string{g.White, g.Black} {
			if _, ok := r.s.players[side]; !ok {
				return n, repositories.Internal(fmt.Sprintf("foreign key violation: player %s", side))
			}
		}
		r.s.games[g.Link] = g
		n++
	}
	return n, nil
}

func (r gameRepo) ListByPlayer(_ context.Context, handle string, _ repositories.Page) ([]models.Game, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Game
	for _, g := range r.s.games {
		if g.White == handle || g.Black == handle {
			out = append(out, g)
		}
	}
	return out, nil
}

type moveRepo struct{ s *memStore }

func (r moveRepo) InsertMany(_ context.Context, moves []models.Move) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("moves.insert"); err != nil {
		return 0, err
	}
	for _, m := range moves {
		if _, ok := r.s.games[m.Link]; !ok {
			return 0, repositories.Internal(fmt.Sprintf("foreign key violation: game %d", m.Link))
		}
		r.s.moves[m.Link] = append(r.s.moves[m.Link], m)
	}
	return int64(len(moves)), nil
}

func (r moveRepo) ListByGame(_ context.Context, link int64) ([]models.Move, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.moves[link], nil
}

type monthRepo struct{ s *memStore }

func monthKey(handle string, year, month int) string {
	return fmt.Sprintf("%s|%04d-%02d", handle, year, month)
}

func (r monthRepo) ListMonths(_ context.Context, handle string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("months.list"); err != nil {
		return nil, err
	}
	var out []string
	for _, m := range r.s.months {
		if m.PlayerName == handle {
			out = append(out, m.Key())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r monthRepo) UpsertMany(_ context.Context, summaries []models.MonthSummary) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("months.upsert"); err != nil {
		return 0, err
	}
	for _, m := range summaries {
		r.s.months[monthKey(m.PlayerName, m.Year, m.Month)] = m
	}
	return int64(len(summaries)), nil
}

func (r monthRepo) ListByPlayer(_ context.Context, handle string) ([]models.MonthSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.MonthSummary
	for _, m := range r.s.months {
		if m.PlayerName == handle {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *memStore) summary(handle string, year, month int) (models.MonthSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.months[monthKey(handle, year, month)]
	return m, ok
}

type gameFilter struct{ s *memStore }

func (f gameFilter) AlreadyPresent(_ context.Context, candidates []string) (dedup.Set, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.failure("dedup.games"); err != nil {
		return nil, err
	}
	out := dedup.Set{}
	for _, c := range candidates {
		link, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := f.s.games[link]; ok {
			out[c] = struct{}{}
		}
	}
	return out, nil
}

type playerFilter struct{ s *memStore }

func (f playerFilter) AlreadyPresent(_ context.Context, candidates []string) (dedup.Set, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := dedup.Set{}
	for _, c := range candidates {
		if _, ok := f.s.players[c]; ok {
			out[c] = struct{}{}
		}
	}
	return out, nil
}

// fakeSource serves profiles and months from maps and counts calls.
type fakeSource struct {
	mu           sync.Mutex
	profiles     map[string]*archive.RawProfile
	months       map[string][]archive.RawGame
	monthErrors  map[string]error
	profileCalls []string
	monthCalls   []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		profiles:    map[string]*archive.RawProfile{},
		months:      map[string][]archive.RawGame{},
		monthErrors: map[string]error{},
	}
}

func (f *fakeSource) FetchProfile(_ context.Context, handle string) (*archive.RawProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileCalls = append(f.profileCalls, handle)
	p, ok := f.profiles[handle]
	if !ok {
		return nil, archive.ErrNotFound
	}
	return p, nil
}

func (f *fakeSource) FetchMonths(ctx context.Context, _ string, months []archive.MonthKey) archive.FetchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := archive.FetchResult{Archive: archive.Archive{}}
	for _, key := range months {
		f.monthCalls = append(f.monthCalls, key.String())
		if err := ctx.Err(); err != nil {
			out.Failed = append(out.Failed, archive.MonthError{Month: key, Err: err})
			continue
		}
		if err := f.monthErrors[key.String()]; err != nil {
			out.Failed = append(out.Failed, archive.MonthError{Month: key, Err: err})
			continue
		}
		out.Archive.Put(key, f.months[key.String()])
	}
	return out
}

func (f *fakeSource) monthCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.monthCalls)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.SyncEvent
}

func (p *recordingPublisher) PublishSyncEvent(_ context.Context, evt *events.SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

const movetext = `1. e4 {[%clk 0:03:01.9]} 1... e5 {[%clk 0:03:00.5]} 2. Nf3 {[%clk 0:02:58]} 2... Nc6 {[%clk 0:02:55.5]} 3. Bb5 {[%clk 0:02:50]} 1-0`

// liveGame builds a decodable raw record played on date ("2024.01.15").
func liveGame(link int64, white, black, date string) archive.RawGame {
	pgnText := strings.Join([]string{
		`[Event "Live Chess"]`,
		`[Site "Chess.com"]`,
		fmt.Sprintf(`[Date "%s"]`, date),
		fmt.Sprintf(`[White "%s"]`, white),
		fmt.Sprintf(`[Black "%s"]`, black),
		`[Result "1-0"]`,
		`[ECO "C20"]`,
		`[TimeControl "180+2"]`,
		`[StartTime "12:00:00"]`,
		fmt.Sprintf(`[EndDate "%s"]`, date),
		`[EndTime "12:05:30"]`,
		"",
		movetext,
	}, "\n")
	return archive.RawGame{
		URL:         fmt.Sprintf("https://www.chess.com/game/live/%d", link),
		PGN:         pgnText,
		TimeControl: "180+2",
		Rules:       "chess",
		White:       archive.RawSide{Username: white, Rating: 1500, Result: "win"},
		Black:       archive.RawSide{Username: black, Rating: 1450, Result: "resigned"},
	}
}

func profile(username string, joined time.Time) *archive.RawProfile {
	ts := joined.Unix()
	country := "https://api.chess.com/pub/country/US"
	return &archive.RawProfile{Username: username, Joined: &ts, Country: &country}
}

type fixture struct {
	store     *memStore
	source    *fakeSource
	publisher *recordingPublisher
	coord     *ingestion.Coordinator
}

func newFixture(now time.Time) *fixture {
	store := newMemStore()
	source := newFakeSource()
	publisher := &recordingPublisher{}
	coord := ingestion.NewCoordinator(ingestion.Dependencies{
		Source:       source,
		Players:      playerRepo{store},
		Games:        gameRepo{store},
		Moves:        moveRepo{store},
		Months:       monthRepo{store},
		GameFilter:   gameFilter{store},
		PlayerFilter: playerFilter{store},
		Publisher:    publisher,
	}, ingestion.Config{DecodeWorkers: 2}, silentLogger()).WithClock(func() time.Time { return now })
	return &fixture{store: store, source: source, publisher: publisher, coord: coord}
}
