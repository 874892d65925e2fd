package archive_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/pkg/archive"
)

func TestMonthKey(t *testing.T) {
	k, err := archive.ParseMonthKey("2023-12")
	require.NoError(t, err)
	assert.Equal(t, archive.MonthKey{Year: 2023, Month: 12}, k)
	assert.Equal(t, "2023-12", k.String())
	assert.Equal(t, archive.MonthKey{Year: 2024, Month: 1}, k.Next())
	assert.True(t, k.Before(k.Next()))
	assert.False(t, k.Next().Before(k))

	_, err = archive.ParseMonthKey("2023-13")
	assert.Error(t, err)

	assert.Equal(t, archive.MonthKey{Year: 2024, Month: 2}, archive.MonthOf(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)))
}

func TestRawGameLink(t *testing.T) {
	g := archive.RawGame{URL: "https://www.chess.com/game/live/98765/"}
	link, err := g.Link()
	require.NoError(t, err)
	assert.Equal(t, int64(98765), link)

	_, err = archive.RawGame{URL: "https://www.chess.com/game/live/abc"}.Link()
	assert.Error(t, err)
}

func TestRetryPolicyTimeouts(t *testing.T) {
	p := archive.DefaultRetryPolicy()
	assert.Equal(t, 2, p.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.TimeoutFor(0))
	assert.Equal(t, 10*time.Second, p.TimeoutFor(1))
	assert.Equal(t, 10*time.Second, p.TimeoutFor(5))
}
