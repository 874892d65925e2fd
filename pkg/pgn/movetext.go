package pgn

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/marinlafare/real-chessism/pkg/models"
)

// SentinelMove fills the black column when white made the last half-move.
const SentinelMove = "--"

var (
	clockPattern      = regexp.MustCompile(`\[%clk\s+(\d+):(\d{1,2}):(\d{1,2}(?:\.\d+)?)\]`)
	commentPattern    = regexp.MustCompile(`\{[^}]*\}`)
	moveNumberPattern = regexp.MustCompile(`^\d+\.+`)
)

var resultTokens = map[string]struct{}{
	"1-0":     {},
	"0-1":     {},
	"1/2-1/2": {},
	"*":       {},
}

// parseClocks returns every %clk reading in seconds, in movetext order.
func parseClocks(movetext string) ([]float64, error) {
	matches := clockPattern.FindAllStringSubmatch(movetext, -1)
	clocks := make([]float64, 0, len(matches))
	for _, m := range matches {
		h, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, err
		}
		mi, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, err
		}
		s, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, err
		}
		clocks = append(clocks, float64(h*3600+mi*60)+s)
	}
	return clocks, nil
}

// parseHalfMoves strips comments, move numbers, annotations and result tokens.
func parseHalfMoves(movetext string) []string {
	stripped := commentPattern.ReplaceAllString(movetext, " ")
	fields := strings.Fields(stripped)
	moves := make([]string, 0, len(fields))
	for _, tok := range fields {
		if _, ok := resultTokens[tok]; ok {
			continue
		}
		tok = moveNumberPattern.ReplaceAllString(tok, "")
		if tok == "" || strings.HasPrefix(tok, "$") {
			continue
		}
		moves = append(moves, tok)
	}
	return moves
}

// buildMoves pairs half-moves into numbered full moves with clocks and reaction times.
func buildMoves(link int64, halfMoves []string, clocks []float64, bonus float64) ([]models.Move, error) {
	if len(halfMoves) == 0 {
		return nil, fmt.Errorf("no moves")
	}
	if len(clocks) != 0 && len(clocks) != len(halfMoves) {
		return nil, fmt.Errorf("%d clock readings for %d half-moves", len(clocks), len(halfMoves))
	}
	if len(clocks) == 0 {
		clocks = make([]float64, len(halfMoves))
	}

	var whiteMoves, blackMoves []string
	var whiteClocks, blackClocks []float64
	for i, mv := range halfMoves {
		if i%2 == 0 {
			whiteMoves = append(whiteMoves, mv)
			whiteClocks = append(whiteClocks, clocks[i])
		} else {
			blackMoves = append(blackMoves, mv)
			blackClocks = append(blackClocks, clocks[i])
		}
	}

	if len(whiteMoves) > len(blackMoves) {
		sentinelClock := whiteClocks[len(whiteClocks)-1]
		if len(blackClocks) > 0 {
			sentinelClock = blackClocks[len(blackClocks)-1]
		}
		blackMoves = append(blackMoves, SentinelMove)
		blackClocks = append(blackClocks, sentinelClock)
	}

	whiteReactions := reactionTimes(whiteClocks, bonus)
	blackReactions := reactionTimes(blackClocks, bonus)

	moves := make([]models.Move, len(whiteMoves))
	for i := range whiteMoves {
		moves[i] = models.Move{
			Link:              link,
			NMove:             i + 1,
			WhiteMove:         whiteMoves[i],
			BlackMove:         blackMoves[i],
			WhiteReactionTime: whiteReactions[i],
			BlackReactionTime: blackReactions[i],
			WhiteTimeLeft:     round3(whiteClocks[i]),
			BlackTimeLeft:     round3(blackClocks[i]),
		}
	}
	return moves, nil
}

// reactionTimes returns |clock[i] - clock[i+1]| + bonus, and bonus for the last index.
func reactionTimes(clocks []float64, bonus float64) []float64 {
	out := make([]float64, len(clocks))
	for i := range clocks {
		diff := 0.0
		if i+1 < len(clocks) {
			diff = math.Abs(clocks[i] - clocks[i+1])
		}
		out[i] = round3(diff + bonus)
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
