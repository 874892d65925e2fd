package pgn

import (
	"fmt"
	"strings"

	"github.com/marinlafare/real-chessism/pkg/archive"
	"github.com/marinlafare/real-chessism/pkg/models"
)

// NoECO is stored when a game carries no opening code.
const NoECO = "no_eco"

// supportedRules lists the variants whose movetext follows standard SAN pairing.
var supportedRules = map[string]struct{}{
	"":              {},
	"chess":         {},
	"chess960":      {},
	"threecheck":    {},
	"kingofthehill": {},
	"crazyhouse":    {},
	"bughouse":      {},
}

// Decode normalizes one raw record. It never panics; any unexpected failure
// becomes a Rejected with ReasonUnparsableMoves.
func Decode(raw archive.RawGame) (out Outcome) {
	linkID := raw.LinkID()
	defer func() {
		if r := recover(); r != nil {
			out = reject(linkID, ReasonUnparsableMoves, fmt.Sprintf("panic: %v", r))
		}
	}()

	if strings.TrimSpace(raw.PGN) == "" {
		return reject(linkID, ReasonUnparsableMoves, "no pgn")
	}
	link, err := raw.Link()
	if err != nil {
		return reject(linkID, ReasonUnparsableMoves, "non-numeric link")
	}
	if _, ok := supportedRules[strings.ToLower(raw.Rules)]; !ok {
		return reject(linkID, ReasonUnparsableMoves, "unsupported rules "+raw.Rules)
	}

	tags, movetext := splitPGN(raw.PGN)

	start, err := parseTimestamp(tags["Date"], tags["StartTime"])
	if err != nil {
		return reject(linkID, ReasonBadDate, "start: "+err.Error())
	}
	end, err := parseTimestamp(tags["EndDate"], tags["EndTime"])
	if err != nil {
		return reject(linkID, ReasonBadDate, "end: "+err.Error())
	}
	if end.Before(start) {
		return reject(linkID, ReasonBadDate, "game ends before it starts")
	}

	whiteResult := strings.ToLower(strings.TrimSpace(raw.White.Result))
	blackResult := strings.ToLower(strings.TrimSpace(raw.Black.Result))
	whiteScore, ok := ResultValue(whiteResult)
	if !ok {
		return reject(linkID, ReasonUnknownResult, "white: "+whiteResult)
	}
	blackScore, ok := ResultValue(blackResult)
	if !ok {
		return reject(linkID, ReasonUnknownResult, "black: "+blackResult)
	}

	timeControl := raw.TimeControl
	if timeControl == "" {
		timeControl = tags["TimeControl"]
	}
	bonus, err := incrementSeconds(timeControl)
	if err != nil {
		return reject(linkID, ReasonUnparsableMoves, err.Error())
	}

	clocks, err := parseClocks(movetext)
	if err != nil {
		return reject(linkID, ReasonUnparsableMoves, err.Error())
	}
	halfMoves := parseHalfMoves(clockPattern.ReplaceAllString(movetext, ""))
	moves, err := buildMoves(link, halfMoves, clocks, bonus)
	if err != nil {
		return reject(linkID, ReasonUnparsableMoves, err.Error())
	}

	white := strings.ToLower(strings.TrimSpace(raw.White.Username))
	black := strings.ToLower(strings.TrimSpace(raw.Black.Username))
	if white == "" || black == "" {
		return reject(linkID, ReasonUnparsableMoves, "missing participant")
	}

	return &DecodedGame{
		Game: models.Game{
			Link:           link,
			White:          white,
			Black:          black,
			Year:           start.Year(),
			Month:          int(start.Month()),
			Day:            start.Day(),
			Hour:           start.Hour(),
			Minute:         start.Minute(),
			Second:         start.Second(),
			WhiteElo:       raw.White.Rating,
			BlackElo:       raw.Black.Rating,
			WhiteResult:    whiteScore,
			BlackResult:    blackScore,
			WhiteStrResult: whiteResult,
			BlackStrResult: blackResult,
			TimeControl:    timeControl,
			ECO:            eco(tags, raw),
			TimeElapsed:    int(end.Sub(start).Seconds()),
			NMoves:         len(halfMoves),
		},
		Moves:       moves,
		Termination: tags["Termination"],
	}
}

func eco(tags map[string]string, raw archive.RawGame) string {
	if code := strings.TrimSpace(tags["ECO"]); code != "" && code != "?" {
		return code
	}
	if seg := lastSegment(raw.ECO); seg != "" {
		return seg
	}
	return NoECO
}

func reject(linkID string, reason Reason, detail string) *Rejected {
	return &Rejected{LinkID: linkID, Reason: reason, Detail: detail}
}
