package expiry

import "time"

// IncidentCloseThreshold is how far ahead a freshly stored expiry must be
// before open incidents for that check type are resolved. It is shared by
// domain and SSL checks.
const IncidentCloseThreshold = 30 * 24 * time.Hour

// Decision is the outcome of Decide.
type Decision struct {
	ShouldUpdate   bool
	CloseIncidents bool
}

// Decide reports whether result should overwrite the stored expiry.
//
// An invalid result never updates. Otherwise it updates when nothing is
// stored, when allowOverwrite is set and the date changed in either
// direction, or when allowOverwrite is unset and the date moved forward.
// CloseIncidents is set for updates landing more than
// IncidentCloseThreshold after now.
func Decide(existing *time.Time, result Result, allowOverwrite bool, now time.Time) Decision {
	if !result.IsValid() {
		return Decision{}
	}
	next := *result.ExpiryDate

	var update bool
	switch {
	case existing == nil:
		update = true
	case allowOverwrite:
		update = !next.Equal(*existing)
	default:
		update = next.After(*existing)
	}
	if !update {
		return Decision{}
	}
	return Decision{
		ShouldUpdate:   true,
		CloseIncidents: next.After(now.Add(IncidentCloseThreshold)),
	}
}
