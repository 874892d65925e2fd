// Package dedup finds which candidate keys already exist in a table without
// exceeding the backend's bind parameter limit.
package dedup

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/marinlafare/real-chessism/pkg/database"
)

const (
	StrategyChunked = "chunked"
	StrategyStaging = "staging"

	// DefaultChunkSize keeps one IN list well below the bind parameter limit.
	DefaultChunkSize = 10000
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Target names the (table, column) pair a filter checks. Type is the column's
// SQL type, used for the staging table.
type Target struct {
	Table  string
	Column string
	Type   string
}

var (
	// GameLinks checks games.link
	GameLinks = Target{Table: "games", Column: "link", Type: "BIGINT"}
	// PlayerNames checks players.player_name
	PlayerNames = Target{Table: "players", Column: "player_name", Type: "TEXT"}
)

func (t Target) validate() error {
	if !identPattern.MatchString(t.Table) || !identPattern.MatchString(t.Column) {
		return fmt.Errorf("invalid dedup target %s.%s", t.Table, t.Column)
	}
	switch t.Type {
	case "BIGINT", "TEXT":
		return nil
	default:
		return fmt.Errorf("unsupported dedup column type %q", t.Type)
	}
}

// Set is a set of keys.
type Set map[string]struct{}

// Has reports whether key is in the set.
func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the keys in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Filter returns the subset of candidates already stored.
type Filter interface {
	AlreadyPresent(ctx context.Context, candidates []string) (Set, error)
}

// Config selects and sizes a filter strategy.
type Config struct {
	Strategy  string
	ChunkSize int
}

// New builds the filter for cfg.Strategy.
func New(cfg Config, db database.DB, target Target, logger ectologger.Logger) (Filter, error) {
	if err := target.validate(); err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case "", StrategyChunked:
		return NewChunkedFilter(db, target, cfg.ChunkSize, logger), nil
	case StrategyStaging:
		return NewStagingFilter(db, target, cfg.ChunkSize, logger), nil
	default:
		return nil, fmt.Errorf("unknown dedup strategy %q", cfg.Strategy)
	}
}

// distinct drops empty and repeated candidates, keeping first-seen order.
func distinct(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func normalizeChunkSize(size int) int {
	if size <= 0 {
		return DefaultChunkSize
	}
	if size > database.MaxBindParams {
		return database.MaxBindParams
	}
	return size
}
