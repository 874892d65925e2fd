package models

import (
	"fmt"
	"time"
)

// MonthSummary marks a (player, month) pair as fetched. NGames counts decoded games only.
type MonthSummary struct {
	PlayerName string    `db:"player_name" json:"player_name"`
	Year       int       `db:"year" json:"year"`
	Month      int       `db:"month" json:"month"`
	NGames     int       `db:"n_games" json:"n_games"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (MonthSummary) TableName() string {
	return "month_summaries"
}

// Key renders the summary month as YYYY-MM.
func (m MonthSummary) Key() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}
