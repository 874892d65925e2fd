package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/marinlafare/real-chessism/pkg/database"
	"github.com/marinlafare/real-chessism/pkg/metrics"
)

// ChunkedFilter issues one IN (...) query per chunk of candidates.
type ChunkedFilter struct {
	db        database.Queryer
	target    Target
	chunkSize int
	logger    ectologger.Logger
}

// NewChunkedFilter creates a chunked filter; chunkSize <= 0 uses DefaultChunkSize.
func NewChunkedFilter(db database.Queryer, target Target, chunkSize int, logger ectologger.Logger) *ChunkedFilter {
	return &ChunkedFilter{
		db:        db,
		target:    target,
		chunkSize: normalizeChunkSize(chunkSize),
		logger:    logger,
	}
}

// AlreadyPresent implements Filter
func (f *ChunkedFilter) AlreadyPresent(ctx context.Context, candidates []string) (Set, error) {
	present := make(Set)
	unique := distinct(candidates)
	if len(unique) == 0 {
		return present, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDedup(StrategyChunked, f.target.Table, time.Since(start).Seconds()) }()

	for _, chunk := range database.Chunk(unique, f.chunkSize) {
		args := make([]any, len(chunk))
		for i, c := range chunk {
			args[i] = c
		}

		sb := database.NewSelectBuilder()
		sb.Select(f.target.Column + "::text").
			From(f.target.Table).
			Where(sb.In(f.target.Column, args...))
		query, queryArgs := sb.Build()

		var found []string
		if err := f.db.SelectContext(ctx, &found, query, queryArgs...); err != nil {
			f.logger.WithContext(ctx).WithError(err).Errorf("Dedup lookup on %s.%s failed", f.target.Table, f.target.Column)
			return nil, fmt.Errorf("dedup lookup on %s.%s: %w", f.target.Table, f.target.Column, err)
		}
		for _, id := range found {
			present[id] = struct{}{}
		}
	}

	f.logger.WithContext(ctx).Debugf("Dedup %s.%s: %d of %d candidates present", f.target.Table, f.target.Column, len(present), len(unique))
	return present, nil
}
