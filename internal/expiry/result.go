package expiry

import "time"

// Result is the normalized answer of one provider call.
// Build it with Succeeded or Failed; the zero value is an invalid result.
type Result struct {
	Success    bool       `json:"success"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	Source     string     `json:"source"`
	Error      string     `json:"error,omitempty"`
	LatencyMs  *float64   `json:"latency_ms,omitempty"`
}

// Succeeded returns a successful Result. A zero date yields a failed Result,
// so Success is never set without an ExpiryDate.
func Succeeded(source string, date time.Time, latency time.Duration) Result {
	if date.IsZero() {
		return Failed(source, "provider returned an empty expiry date", latency)
	}
	utc := date.UTC()
	return Result{
		Success:    true,
		ExpiryDate: &utc,
		Source:     source,
		LatencyMs:  latencyMs(latency),
	}
}

// Failed returns an unsuccessful Result carrying a diagnostic.
func Failed(source, reason string, latency time.Duration) Result {
	return Result{
		Source:    source,
		Error:     reason,
		LatencyMs: latencyMs(latency),
	}
}

// IsValid reports whether the result carries a usable expiry date.
func (r Result) IsValid() bool {
	return r.Success && r.ExpiryDate != nil
}

// Latency returns the recorded latency, or zero when none was recorded.
func (r Result) Latency() time.Duration {
	if r.LatencyMs == nil {
		return 0
	}
	return time.Duration(*r.LatencyMs * float64(time.Millisecond))
}

func latencyMs(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	ms := float64(d) / float64(time.Millisecond)
	return &ms
}
