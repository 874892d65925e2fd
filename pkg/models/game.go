package models

import "time"

// Game is one finished game. Rows are written once and never updated.
type Game struct {
	Link           int64     `db:"link" json:"link"`
	White          string    `db:"white" json:"white"`
	Black          string    `db:"black" json:"black"`
	Year           int       `db:"year" json:"year"`
	Month          int       `db:"month" json:"month"`
	Day            int       `db:"day" json:"day"`
	Hour           int       `db:"hour" json:"hour"`
	Minute         int       `db:"minute" json:"minute"`
	Second         int       `db:"second" json:"second"`
	WhiteElo       int       `db:"white_elo" json:"white_elo"`
	BlackElo       int       `db:"black_elo" json:"black_elo"`
	WhiteResult    float64   `db:"white_result" json:"white_result"`
	BlackResult    float64   `db:"black_result" json:"black_result"`
	WhiteStrResult string    `db:"white_str_result" json:"white_str_result"`
	BlackStrResult string    `db:"black_str_result" json:"black_str_result"`
	TimeControl    string    `db:"time_control" json:"time_control"`
	ECO            string    `db:"eco" json:"eco"`
	TimeElapsed    int       `db:"time_elapsed" json:"time_elapsed"`
	NMoves         int       `db:"n_moves" json:"n_moves"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (Game) TableName() string {
	return "games"
}

// GameWithMoves is the read model served by GET /games/:link.
type GameWithMoves struct {
	Game
	Moves []Move `json:"moves"`
}
