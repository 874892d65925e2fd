// Package events publishes sync lifecycle events.
package events

import (
	"context"
	"time"
)

const (
	TypeSyncCompleted   = "sync.completed"
	TypeSyncNothingToDo = "sync.nothing_to_do"
	TypeSyncFailed      = "sync.failed"
)

// SyncEvent is emitted once per finished sync.
type SyncEvent struct {
	Type       string         `json:"type"`
	Handle     string         `json:"handle"`
	SyncID     string         `json:"sync_id"`
	NewGames   int64          `json:"new_games,omitempty"`
	NewPlayers int64          `json:"new_players,omitempty"`
	NewMoves   int64          `json:"new_moves,omitempty"`
	Months     int64          `json:"months,omitempty"`
	Rejected   map[string]int `json:"rejected,omitempty"`
	Stage      string         `json:"stage,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// Publisher delivers sync events.
type Publisher interface {
	PublishSyncEvent(ctx context.Context, evt *SyncEvent) error
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishSyncEvent(context.Context, *SyncEvent) error { return nil }
