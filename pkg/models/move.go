package models

// Move is one full move (a white half-move and its black reply) of a game.
type Move struct {
	Link              int64   `db:"link" json:"link"`
	NMove             int     `db:"n_move" json:"n_move"`
	WhiteMove         string  `db:"white_move" json:"white_move"`
	BlackMove         string  `db:"black_move" json:"black_move"`
	WhiteReactionTime float64 `db:"white_reaction_time" json:"white_reaction_time"`
	BlackReactionTime float64 `db:"black_reaction_time" json:"black_reaction_time"`
	WhiteTimeLeft     float64 `db:"white_time_left" json:"white_time_left"`
	BlackTimeLeft     float64 `db:"black_time_left" json:"black_time_left"`
}

// TableName returns the database table name
func (Move) TableName() string {
	return "moves"
}
