package archive

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the source has no such player.
	ErrNotFound = errors.New("archive: not found")
	// ErrTransient wraps network failures, non-2xx statuses and open-breaker rejections.
	ErrTransient = errors.New("archive: transient failure")
	// ErrRateLimited is returned when the source answers 429. It also matches ErrTransient.
	ErrRateLimited = fmt.Errorf("%w: rate limited", ErrTransient)
)

// RawSide is one participant as reported in a month archive.
type RawSide struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Result   string `json:"result"`
	ID       string `json:"@id"`
}

// RawGame is one game exactly as the archive source returns it.
type RawGame struct {
	URL         string  `json:"url"`
	PGN         string  `json:"pgn"`
	TimeControl string  `json:"time_control"`
	EndTime     int64   `json:"end_time"`
	Rated       bool    `json:"rated"`
	TimeClass   string  `json:"time_class"`
	Rules       string  `json:"rules"`
	ECO         string  `json:"eco"`
	White       RawSide `json:"white"`
	Black       RawSide `json:"black"`
}

// LinkID returns the trailing URL segment, the game's external id.
func (g RawGame) LinkID() string {
	return lastSegment(g.URL)
}

// Link parses LinkID as an integer.
func (g RawGame) Link() (int64, error) {
	return strconv.ParseInt(g.LinkID(), 10, 64)
}

// RawProfile is a player profile as the archive source returns it.
type RawProfile struct {
	Username   string  `json:"username"`
	Name       *string `json:"name"`
	URL        *string `json:"url"`
	Title      *string `json:"title"`
	Avatar     *string `json:"avatar"`
	Followers  *int    `json:"followers"`
	Country    *string `json:"country"`
	Location   *string `json:"location"`
	Joined     *int64  `json:"joined"`
	Status     *string `json:"status"`
	IsStreamer *bool   `json:"is_streamer"`
	TwitchURL  *string `json:"twitch_url"`
	Verified   *bool   `json:"verified"`
	League     *string `json:"league"`
}

// CountryCode returns the last path segment of the country URL.
func (p RawProfile) CountryCode() *string {
	if p.Country == nil || *p.Country == "" {
		return nil
	}
	code := lastSegment(*p.Country)
	return &code
}

// MonthKey identifies one calendar month.
type MonthKey struct {
	Year  int
	Month int
}

// ParseMonthKey parses "YYYY-MM".
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return MonthKey{Year: t.Year(), Month: int(t.Month())}, nil
}

// String renders the key as "YYYY-MM".
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, k.Month)
}

// Next returns the following calendar month.
func (k MonthKey) Next() MonthKey {
	if k.Month == 12 {
		return MonthKey{Year: k.Year + 1, Month: 1}
	}
	return MonthKey{Year: k.Year, Month: k.Month + 1}
}

// Before reports whether k is strictly earlier than o.
func (k MonthKey) Before(o MonthKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

// MonthOf returns the month containing t, in UTC.
func MonthOf(t time.Time) MonthKey {
	t = t.UTC()
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// Archive holds fetched games keyed year -> month. A present key with an empty
// slice is a month that was fetched successfully and had no games.
type Archive map[int]map[int][]RawGame

// Put stores the games of one month, creating the year bucket if needed.
func (a Archive) Put(key MonthKey, games []RawGame) {
	months, ok := a[key.Year]
	if !ok {
		months = make(map[int][]RawGame)
		a[key.Year] = months
	}
	if games == nil {
		games = []RawGame{}
	}
	months[key.Month] = games
}

// Has reports whether the month was fetched successfully.
func (a Archive) Has(key MonthKey) bool {
	_, ok := a[key.Year][key.Month]
	return ok
}

// Months returns the fetched months in chronological order.
func (a Archive) Months() []MonthKey {
	keys := make([]MonthKey, 0)
	for y, months := range a {
		for m := range months {
			keys = append(keys, MonthKey{Year: y, Month: m})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// Games returns the games of one month.
func (a Archive) Games(key MonthKey) []RawGame {
	return a[key.Year][key.Month]
}

// Count returns the total number of games across all months.
func (a Archive) Count() int {
	n := 0
	for _, months := range a {
		for _, games := range months {
			n += len(games)
		}
	}
	return n
}

func lastSegment(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
