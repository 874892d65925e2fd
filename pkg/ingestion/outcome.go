// Package ingestion synchronizes one player's archive into storage.
package ingestion

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/marinlafare/real-chessism/pkg/events"
)

// Stage names a step of a sync. Failed outcomes report the stage that stopped it.
type Stage string

const (
	StageResolvePlayer  Stage = "resolve_player"
	StageHorizon        Stage = "horizon"
	StageFetch          Stage = "fetch"
	StageDedup          Stage = "dedup"
	StageDecode         Stage = "decode"
	StagePersistPlayers Stage = "persist_players"
	StagePersistGames   Stage = "persist_games"
	StagePersistMoves   Stage = "persist_moves"
	StagePersistMonths  Stage = "persist_months"
	StageMarkSynced     Stage = "mark_synced"
)

// Outcome is one of *Completed, *NothingToDo or *Failed.
type Outcome interface {
	Kind() string
}

// Completed reports what a sync persisted. Zero counts are still a completion
// when months were checkpointed.
type Completed struct {
	Handle        string         `json:"handle"`
	NewGames      int64          `json:"new_games"`
	NewPlayers    int64          `json:"new_players"`
	NewMoves      int64          `json:"new_moves"`
	Months        int64          `json:"months"`
	Rejected      map[string]int `json:"rejected"`
	SkippedMonths []string       `json:"skipped_months,omitempty"`
}

// NothingToDo means every month up to now is already checkpointed.
type NothingToDo struct {
	Handle string `json:"handle"`
}

// Failed stops a sync at Stage. Stages that already ran are not rolled back.
type Failed struct {
	Handle string `json:"handle"`
	Stage  Stage  `json:"stage"`
	Cause  error  `json:"-"`
}

func (*Completed) Kind() string   { return "completed" }
func (*NothingToDo) Kind() string { return "nothing_to_do" }
func (*Failed) Kind() string      { return "failed" }

func (f *Failed) Error() string {
	return fmt.Sprintf("sync of %s failed at %s: %v", f.Handle, f.Stage, f.Cause)
}

func (f *Failed) Unwrap() error {
	return f.Cause
}

// StatusCode maps the failure to an HTTP status: the cause's own status when it
// carries one, 404 for an unknown player and 502 for source failures.
func (f *Failed) StatusCode() int {
	if httperror.IsHTTPError(f.Cause) {
		return httperror.GetStatusCode(f.Cause)
	}
	switch f.Stage {
	case StageResolvePlayer, StageFetch:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// event converts an outcome to its lifecycle event.
func event(syncID string, outcome Outcome) *events.SyncEvent {
	switch o := outcome.(type) {
	case *Completed:
		return &events.SyncEvent{
			Type:       events.TypeSyncCompleted,
			Handle:     o.Handle,
			SyncID:     syncID,
			NewGames:   o.NewGames,
			NewPlayers: o.NewPlayers,
			NewMoves:   o.NewMoves,
			Months:     o.Months,
			Rejected:   o.Rejected,
		}
	case *NothingToDo:
		return &events.SyncEvent{Type: events.TypeSyncNothingToDo, Handle: o.Handle, SyncID: syncID}
	case *Failed:
		return &events.SyncEvent{
			Type:   events.TypeSyncFailed,
			Handle: o.Handle,
			SyncID: syncID,
			Stage:  string(o.Stage),
			Error:  fmt.Sprint(o.Cause),
		}
	}
	return nil
}
