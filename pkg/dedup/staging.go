package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/marinlafare/real-chessism/pkg/database"
	"github.com/marinlafare/real-chessism/pkg/metrics"
)

// StagingFilter copies candidates into a transaction-scoped temp table and
// joins it against the target. The temp table is dropped on commit.
type StagingFilter struct {
	db        database.DB
	target    Target
	chunkSize int
	logger    ectologger.Logger
}

// NewStagingFilter creates a staging filter; chunkSize is the number of rows per COPY.
func NewStagingFilter(db database.DB, target Target, chunkSize int, logger ectologger.Logger) *StagingFilter {
	return &StagingFilter{
		db:        db,
		target:    target,
		chunkSize: normalizeChunkSize(chunkSize),
		logger:    logger,
	}
}

// AlreadyPresent implements Filter
func (f *StagingFilter) AlreadyPresent(ctx context.Context, candidates []string) (Set, error) {
	present := make(Set)
	unique := distinct(candidates)
	if len(unique) == 0 {
		return present, nil
	}

	start := time.Now()
	defer func() { metrics.RecordDedup(StrategyStaging, f.target.Table, time.Since(start).Seconds()) }()

	staging := "dedup_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	err := f.db.WithTx(ctx, nil, func(ctx context.Context, tx database.Tx) error {
		createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (id %s PRIMARY KEY) ON COMMIT DROP", staging, f.target.Type)
		if _, err := tx.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}

		for _, chunk := range database.Chunk(unique, f.chunkSize) {
			if err := copyChunk(ctx, tx, staging, chunk); err != nil {
				return err
			}
		}

		query := fmt.Sprintf("SELECT t.%[1]s::text FROM %[2]s t JOIN %[3]s s ON t.%[1]s = s.id",
			f.target.Column, f.target.Table, staging)

		var found []string
		if err := tx.SelectContext(ctx, &found, query); err != nil {
			return fmt.Errorf("staging join: %w", err)
		}
		for _, id := range found {
			present[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		f.logger.WithContext(ctx).WithError(err).Errorf("Dedup lookup on %s.%s failed", f.target.Table, f.target.Column)
		return nil, fmt.Errorf("dedup lookup on %s.%s: %w", f.target.Table, f.target.Column, err)
	}

	f.logger.WithContext(ctx).Debugf("Dedup %s.%s: %d of %d candidates present", f.target.Table, f.target.Column, len(present), len(unique))
	return present, nil
}

func copyChunk(ctx context.Context, tx database.Tx, table string, chunk []string) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, "id"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunk {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("copy candidate: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("finish copy: %w", err)
	}
	return nil
}
