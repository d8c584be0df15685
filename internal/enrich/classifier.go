package enrich

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

// expressThreshold is the number of skipped stops in a single leg that
// makes a service "Express" rather than "Ltd express"
const expressThreshold = 4

// Classify returns the subtitle describing a stopping pattern. A non-empty
// departure note is appended.
func Classify(stations []models.Stop, note string) string {
	var skipped []models.Stop
	legs := 0
	prev := false
	for _, s := range stations {
		if s.Skipped && !prev {
			legs++
		}
		prev = s.Skipped
		if s.Skipped {
			skipped = append(skipped, s)
		}
	}

	var subtitle string
	switch {
	case legs == 0:
		subtitle = "Stops all"
	case legs > 1:
		subtitle = "Ltd express"
	case len(skipped) == 1:
		if note == "" {
			subtitle = "Not stopping at " + ShortenName(skipped[0].Name)
		} else {
			subtitle = "Ltd express"
		}
	case len(skipped) >= expressThreshold:
		subtitle = "Express"
	default:
		subtitle = "Ltd express"
	}

	return capitalize(strings.TrimSpace(subtitle + " " + note))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
