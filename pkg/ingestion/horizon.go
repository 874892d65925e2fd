package ingestion

import (
	"time"

	"github.com/marinlafare/real-chessism/pkg/archive"
	"github.com/marinlafare/real-chessism/pkg/models"
)

// monthRange lists every month from first through last, inclusive.
func monthRange(first, last archive.MonthKey) []archive.MonthKey {
	var out []archive.MonthKey
	for k := first; !last.Before(k); k = k.Next() {
		out = append(out, k)
	}
	return out
}

// candidateMonths returns the months between the player's join month and now
// that have no summary yet. A player without a join date only gets the current month.
func candidateMonths(player *models.Player, existing []string, now time.Time) []archive.MonthKey {
	current := archive.MonthOf(now)
	first := current
	if joined, ok := player.JoinedAt(); ok {
		first = archive.MonthOf(joined)
	}

	done := make(map[string]struct{}, len(existing))
	for _, key := range existing {
		done[key] = struct{}{}
	}

	var out []archive.MonthKey
	for _, key := range monthRange(first, current) {
		if _, ok := done[key.String()]; ok {
			continue
		}
		out = append(out, key)
	}
	return out
}
