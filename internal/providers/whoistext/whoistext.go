// Package whoistext extracts the registration expiry date from free-form
// WHOIS output and parses the date formats registries and RDAP servers use.
package whoistext

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/validate"
)

// snippetLen caps the diagnostic returned by Snippet.
const snippetLen = 200

// expiryLine matches a line that labels the expiry date. Longer labels come
// first so "Registry Expiry Date" wins over "Expiry".
var expiryLine = regexp.MustCompile(
	`(?im)^\s*(?:registry expiry date|registrar registration expiration date|registry expiration date|` +
		`expiration date|expiry date|expiration time|expire date|expires on|expires|expiry|expire|paid-till|` +
		`renewal date|valid until)\s*(?:\.{2,})?\s*[:=]?\s*(\S.*?)\s*$`,
)

// layouts are tried in order; the first one that parses wins.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.0Z",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"2006.01.02 15:04:05",
	"2006.01.02",
	"02.01.2006",
	"02-Jan-2006",
	"02-Jan-2006 15:04:05 MST",
	"2-Jan-2006",
	"02 Jan 2006",
	"Jan 02, 2006",
	"January 2 2006",
	"January 02 2006",
	"January 2, 2006",
	"Mon Jan 2 15:04:05 MST 2006",
	"20060102",
}

// ParseDate parses s against the known layouts and returns it in UTC.
func ParseDate(s string) (time.Time, error) {
	cleaned := strings.Join(strings.Fields(strings.Trim(strings.TrimSpace(s), ":")), " ")
	cleaned = strings.TrimSuffix(cleaned, " (YYYY-MM-DD)")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", apperr.ErrNoExpiry, s)
}

// ExtractExpiry returns the first labelled expiry date in text that parses.
func ExtractExpiry(text string) (time.Time, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, m := range expiryLine.FindAllStringSubmatch(text, -1) {
		if t, err := ParseDate(m[1]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: no expiry date in WHOIS response: %s", apperr.ErrNoExpiry, Snippet(text))
}

// Snippet returns a short single-line excerpt of text for diagnostics,
// skipping comment lines and stripping terminal escape sequences.
func Snippet(text string) string {
	var parts []string
	for line := range strings.SplitSeq(validate.StripANSI(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "%") || strings.HasPrefix(line, "#") {
			continue
		}
		parts = append(parts, line)
	}
	s := strings.Join(parts, " | ")
	if s == "" {
		return "(empty response)"
	}
	if len(s) > snippetLen {
		s = s[:snippetLen] + "..."
	}
	return fmt.Sprintf("%q", s)
}
