package enrich

import (
	"strings"
	"unicode/utf8"
)

// maxDestLength is the longest destination shown without abbreviation
const maxDestLength = 14

var compassPrefixes = []struct{ long, short string }{
	{"North ", "N "},
	{"East ", "E "},
	{"West ", "W "},
	{"South ", "S "},
	{"Upper ", "U "},
}

// ShortenName abbreviates a leading compass direction, e.g. "North Melbourne" -> "N Melbourne"
func ShortenName(name string) string {
	for _, p := range compassPrefixes {
		if strings.HasPrefix(name, p.long) {
			return p.short + strings.TrimPrefix(name, p.long)
		}
	}
	return name
}

// shortenDest abbreviates destinations too long for the display
func shortenDest(dest string) string {
	if utf8.RuneCountInString(dest) > maxDestLength {
		return ShortenName(dest)
	}
	return dest
}

// servedName drops the locality suffix after a hyphen ("Jolimont-MCG" -> "Jolimont")
func servedName(name string) string {
	if i := strings.IndexByte(name, '-'); i >= 0 {
		return name[:i]
	}
	return name
}

// skippedName is servedName for skipped stop records, which carry a " Station" suffix
func skippedName(name string) string {
	return servedName(strings.ReplaceAll(name, " Station", ""))
}
