package models

import "time"

// Player is a chess.com account, keyed by its lower-cased handle.
type Player struct {
	PlayerName   string     `db:"player_name" json:"player_name"`
	Name         *string    `db:"name" json:"name,omitempty"`
	URL          *string    `db:"url" json:"url,omitempty"`
	Title        *string    `db:"title" json:"title,omitempty"`
	Avatar       *string    `db:"avatar" json:"avatar,omitempty"`
	Followers    *int       `db:"followers" json:"followers,omitempty"`
	Country      *string    `db:"country" json:"country,omitempty"`
	Location     *string    `db:"location" json:"location,omitempty"`
	Joined       *int64     `db:"joined" json:"joined,omitempty"`
	Status       *string    `db:"status" json:"status,omitempty"`
	IsStreamer   *bool      `db:"is_streamer" json:"is_streamer,omitempty"`
	TwitchURL    *string    `db:"twitch_url" json:"twitch_url,omitempty"`
	Verified     *bool      `db:"verified" json:"verified,omitempty"`
	League       *string    `db:"league" json:"league,omitempty"`
	LastSyncedAt *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Player) TableName() string {
	return "players"
}

// JoinedAt returns the join timestamp in UTC, or false when the profile has none.
func (p Player) JoinedAt() (time.Time, bool) {
	if p.Joined == nil || *p.Joined <= 0 {
		return time.Time{}, false
	}
	return time.Unix(*p.Joined, 0).UTC(), true
}
