package archive

import (
	"context"
	"errors"
	"sync"
)

// MonthError records a month that could not be fetched in this run.
type MonthError struct {
	Month MonthKey
	Err   error
}

// FetchResult is the outcome of fetching many months.
type FetchResult struct {
	Archive Archive
	Failed  []MonthError
}

// FetchMonths fetches every month concurrently, bounded by the client's
// semaphore and pacer. Successful months (including empty ones) land in
// Archive; failed months are reported in Failed and never abort siblings.
func (c *Client) FetchMonths(ctx context.Context, handle string, months []MonthKey) FetchResult {
	type monthResult struct {
		key   MonthKey
		games []RawGame
		err   error
	}

	results := make(chan monthResult, len(months))
	var wg sync.WaitGroup
	for _, key := range months {
		wg.Add(1)
		go func(key MonthKey) {
			defer wg.Done()
			games, err := c.FetchMonth(ctx, handle, key.Year, key.Month)
			results <- monthResult{key: key, games: games, err: err}
		}(key)
	}
	wg.Wait()
	close(results)

	out := FetchResult{Archive: make(Archive)}
	for r := range results {
		if r.err != nil {
			if !errors.Is(r.err, context.Canceled) && !errors.Is(r.err, context.DeadlineExceeded) {
				c.logger.WithContext(ctx).WithError(r.err).Warnf("Skipping month %s for %s", r.key, handle)
			}
			out.Failed = append(out.Failed, MonthError{Month: r.key, Err: r.err})
			continue
		}
		out.Archive.Put(r.key, r.games)
	}
	return out
}
