// Package pgn turns raw archive records into normalized games and move timelines.
package pgn

import (
	"github.com/marinlafare/real-chessism/pkg/models"
)

// Reason explains why a record was rejected.
type Reason string

const (
	ReasonBadDate         Reason = "bad_date"
	ReasonUnknownResult   Reason = "unknown_result"
	ReasonUnparsableMoves Reason = "unparsable_moves"
)

// Outcome is either *DecodedGame or *Rejected.
type Outcome interface {
	outcome()
}

// DecodedGame is a game row plus its ordered move rows.
type DecodedGame struct {
	Game        models.Game
	Moves       []models.Move
	Termination string
}

// Rejected marks a record the decoder could not normalize.
type Rejected struct {
	LinkID string
	Reason Reason
	Detail string
}

func (*DecodedGame) outcome() {}
func (*Rejected) outcome()    {}

// Error lets a Rejected be logged or wrapped like an error.
func (r *Rejected) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return string(r.Reason) + ": " + r.Detail
}
