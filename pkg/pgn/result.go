package pgn

import "strings"

// Result values stored per side.
const (
	ResultWin  = 1.0
	ResultDraw = 0.5
	ResultLoss = 0.0
)

var winResults = map[string]struct{}{
	"win":           {},
	"kingofthehill": {},
}

var drawResults = map[string]struct{}{
	"50move":             {},
	"agreed":             {},
	"insufficient":       {},
	"repetition":         {},
	"stalemate":          {},
	"timevsinsufficient": {},
}

var lossResults = map[string]struct{}{
	"checkmated":          {},
	"resigned":            {},
	"threecheck":          {},
	"timeout":             {},
	"abandoned":           {},
	"lose":                {},
	"bughousepartnerlose": {},
}

// ResultValue maps a per-side result string to its score.
func ResultValue(result string) (float64, bool) {
	result = strings.ToLower(strings.TrimSpace(result))
	if _, ok := winResults[result]; ok {
		return ResultWin, true
	}
	if _, ok := drawResults[result]; ok {
		return ResultDraw, true
	}
	if _, ok := lossResults[result]; ok {
		return ResultLoss, true
	}
	return 0, false
}
