// Package report turns detection, scan and portfolio data into results the
// output package can render as table, plain or JSON.
package report

import (
	"strconv"
	"time"

	"github.com/tbckr/lapse/internal/expiry"
)

const dateLayout = "2006-01-02"

// Expiry statuses shown in the STATUS column.
const (
	StatusOK       = "ok"
	StatusExpiring = "expiring"
	StatusExpired  = "expired"
	StatusUnknown  = "unknown"
)

// DaysLeft returns whole days from now until t, negative once t has passed.
func DaysLeft(t, now time.Time) int {
	d := t.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// Status classifies an expiry date relative to now.
func Status(expiresAt *time.Time, now time.Time) string {
	switch {
	case expiresAt == nil:
		return StatusUnknown
	case !expiresAt.After(now):
		return StatusExpired
	case expiresAt.Before(now.Add(expiry.IncidentCloseThreshold)):
		return StatusExpiring
	default:
		return StatusOK
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}

func formatDays(t *time.Time, now time.Time) string {
	if t == nil {
		return "-"
	}
	return strconv.Itoa(DaysLeft(*t, now))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
