package pgn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var tagPattern = regexp.MustCompile(`^\[(\w+)\s+"(.*)"\]\s*$`)

// splitPGN separates tag pairs from the movetext.
func splitPGN(pgn string) (map[string]string, string) {
	tags := make(map[string]string)
	var movetext strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(pgn, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if m := tagPattern.FindStringSubmatch(trimmed); m != nil {
			tags[m[1]] = m[2]
			continue
		}
		movetext.WriteString(trimmed)
		movetext.WriteByte(' ')
	}
	return tags, movetext.String()
}

// parseTimestamp combines a "YYYY.MM.DD" date tag and an "HH:MM:SS" time tag in UTC.
func parseTimestamp(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("missing date or time")
	}
	return time.ParseInLocation("2006.01.02 15:04:05", date+" "+clock, time.UTC)
}

// incrementSeconds returns the per-move bonus of a time control such as "180+2".
// Daily controls ("1/86400") and plain base times carry no bonus.
func incrementSeconds(timeControl string) (float64, error) {
	timeControl = strings.TrimSpace(timeControl)
	i := strings.LastIndex(timeControl, "+")
	if i < 0 {
		return 0, nil
	}
	inc, err := strconv.ParseFloat(timeControl[i+1:], 64)
	if err != nil || inc < 0 {
		return 0, fmt.Errorf("invalid time control %q", timeControl)
	}
	return inc, nil
}

func lastSegment(u string) string {
	u = strings.TrimRight(strings.TrimSpace(u), "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
