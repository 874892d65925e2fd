package ingestion

import (
	"context"
	"runtime"
	"sync"

	"github.com/marinlafare/real-chessism/pkg/archive"
	"github.com/marinlafare/real-chessism/pkg/pgn"
)

// sourced is a raw record tagged with the archive month it came from.
type sourced struct {
	month archive.MonthKey
	raw   archive.RawGame
	// key is the canonical link id, empty when the link does not parse.
	key string
}

type decoded struct {
	month archive.MonthKey
	game  *pgn.DecodedGame
}

// decodeResult separates decoded games from rejections.
type decodeResult struct {
	games    []decoded
	rejected []*pgn.Rejected
}

// decodeAll runs pgn.Decode over records on a fixed pool of workers fed by a
// channel. Output order follows input order. A cancelled ctx stops feeding and
// returns ctx.Err().
func decodeAll(ctx context.Context, records []sourced, workers int) (decodeResult, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(records) {
		workers = len(records)
	}

	outcomes := make([]pgn.Outcome, len(records))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = pgn.Decode(records[idx].raw)
			}
		}()
	}

feed:
	for i := range records {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return decodeResult{}, err
	}

	var res decodeResult
	for i, outcome := range outcomes {
		switch o := outcome.(type) {
		case *pgn.DecodedGame:
			res.games = append(res.games, decoded{month: records[i].month, game: o})
		case *pgn.Rejected:
			res.rejected = append(res.rejected, o)
		}
	}
	return res, nil
}
