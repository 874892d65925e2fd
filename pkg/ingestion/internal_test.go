package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/pkg/archive"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/pgn"
)

func TestCandidateMonths(t *testing.T) {
	joined := time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC).Unix()
	player := &models.Player{PlayerName: "alice", Joined: &joined}
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	months := candidateMonths(player, []string{"2023-12"}, now)
	assert.Equal(t, []archive.MonthKey{{Year: 2023, Month: 11}, {Year: 2024, Month: 1}, {Year: 2024, Month: 2}}, months)

	all := []string{"2023-11", "2023-12", "2024-01", "2024-02"}
	assert.Empty(t, candidateMonths(player, all, now))

	// no join date: only the current month
	assert.Equal(t, []archive.MonthKey{{Year: 2024, Month: 2}}, candidateMonths(&models.Player{PlayerName: "bob"}, nil, now))
}

func TestDecodeAll_PreservesOrderAndSplitsRejections(t *testing.T) {
	month := archive.MonthKey{Year: 2024, Month: 1}
	records := []sourced{
		{month: month, raw: archive.RawGame{URL: "https://www.chess.com/game/live/1"}},
		{month: month, raw: archive.RawGame{URL: "https://www.chess.com/game/live/2"}},
		{month: month, raw: archive.RawGame{URL: "https://www.chess.com/game/live/3"}},
	}

	res, err := decodeAll(context.Background(), records, 2)
	require.NoError(t, err)
	assert.Empty(t, res.games)
	require.Len(t, res.rejected, 3)
	for i, r := range res.rejected {
		assert.Equal(t, pgn.ReasonUnparsableMoves, r.Reason)
		assert.Equal(t, []string{"1", "2", "3"}[i], r.LinkID)
	}
}

func TestDecodeAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := decodeAll(ctx, []sourced{{raw: archive.RawGame{}}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParticipantHandles(t *testing.T) {
	records := []sourced{
		{raw: archive.RawGame{White: archive.RawSide{Username: "Alice"}, Black: archive.RawSide{Username: "Bob"}}},
		{raw: archive.RawGame{White: archive.RawSide{Username: "carol"}, Black: archive.RawSide{Username: "ALICE"}}},
		{raw: archive.RawGame{White: archive.RawSide{Username: ""}, Black: archive.RawSide{Username: "bob"}}},
	}
	assert.Equal(t, []string{"bob", "carol"}, participantHandles(records, "alice"))
}
