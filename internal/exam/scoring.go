package exam

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// bandTable maps percent-correct deciles to bands. An exact lookup, not a
// formula: boundary percentages must never drift through float arithmetic.
var bandTable = map[int]string{
	100: "9.0",
	90:  "8.5",
	80:  "8.0",
	70:  "7.5",
	60:  "7.0",
	50:  "6.5",
	40:  "6.0",
	30:  "5.5",
	20:  "5.0",
	10:  "4.5",
	0:   "4.0",
}

// BandForScore converts correct/total to a band via the decile table.
// 100% takes the top row; anything else floors to its decile.
func BandForScore(correct, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.RequireFromString(bandTable[0])
	}
	percent := correct * 100 / total
	if percent >= 100 {
		return decimal.RequireFromString(bandTable[100])
	}
	if percent < 0 {
		percent = 0
	}
	return decimal.RequireFromString(bandTable[percent/10*10])
}

// AnswerMatches applies the type-aware equality rule: strings compare
// case-insensitively after trimming, arrays compare as sets of equal
// cardinality, booleans accept a native bool or its lowercase string form.
// Any other shape is incorrect, never an error.
func AnswerMatches(correct, submitted any) bool {
	switch key := correct.(type) {
	case string:
		s, ok := submitted.(string)
		return ok && normalize(s) == normalize(key)
	case bool:
		switch v := submitted.(type) {
		case bool:
			return v == key
		case string:
			if key {
				return strings.TrimSpace(v) == "true"
			}
			return strings.TrimSpace(v) == "false"
		}
		return false
	case []any:
		return setMatches(key, submitted)
	case []string:
		generic := make([]any, len(key))
		for i, v := range key {
			generic[i] = v
		}
		return setMatches(generic, submitted)
	}
	return false
}

func setMatches(correct []any, submitted any) bool {
	values, ok := submitted.([]any)
	if !ok {
		return false
	}
	if len(values) != len(correct) {
		return false
	}
	required := make(map[string]int, len(correct))
	for _, v := range correct {
		s, ok := v.(string)
		if !ok {
			return false
		}
		required[normalize(s)]++
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return false
		}
		key := normalize(s)
		if required[key] == 0 {
			return false
		}
		required[key]--
	}
	return true
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// FallbackWritingBand is the deterministic heuristic used when the grading
// collaborator is unavailable: word-count thresholds.
func FallbackWritingBand(response string) decimal.Decimal {
	words := len(strings.Fields(response))
	switch {
	case words < 50:
		return decimal.RequireFromString("4.0")
	case words < 150:
		return decimal.RequireFromString("5.0")
	case words < 250:
		return decimal.RequireFromString("5.5")
	default:
		return decimal.RequireFromString("6.0")
	}
}

// FallbackSpeakingBand scores from the mean response length in runes.
func FallbackSpeakingBand(responses map[string]string) decimal.Decimal {
	if len(responses) == 0 {
		return decimal.RequireFromString("4.0")
	}
	total := 0
	for _, response := range responses {
		total += utf8.RuneCountInString(strings.TrimSpace(response))
	}
	mean := total / len(responses)
	switch {
	case mean < 40:
		return decimal.RequireFromString("4.0")
	case mean < 120:
		return decimal.RequireFromString("5.0")
	case mean < 240:
		return decimal.RequireFromString("5.5")
	default:
		return decimal.RequireFromString("6.0")
	}
}
