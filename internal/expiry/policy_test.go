package expiry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tbckr/lapse/internal/expiry"
)

var policyNow = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func valid(date time.Time) expiry.Result {
	return expiry.Succeeded("RegistryRDAP", date, time.Millisecond)
}

func TestDecide(t *testing.T) {
	existing := policyNow.AddDate(1, 0, 0)
	earlier := existing.AddDate(0, -1, 0)
	later := existing.AddDate(0, 1, 0)

	tests := []struct {
		name           string
		existing       *time.Time
		result         expiry.Result
		allowOverwrite bool
		wantUpdate     bool
	}{
		{"nothing stored", nil, valid(earlier), false, true},
		{"nothing stored with overwrite", nil, valid(earlier), true, true},
		{"forward move without overwrite", &existing, valid(later), false, true},
		{"backward move without overwrite", &existing, valid(earlier), false, false},
		{"same date without overwrite", &existing, valid(existing), false, false},
		{"backward move with overwrite", &existing, valid(earlier), true, true},
		{"forward move with overwrite", &existing, valid(later), true, true},
		{"same date with overwrite", &existing, valid(existing), true, false},
		{"invalid result", nil, expiry.Failed("WhoisTCP", "timeout", 0), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expiry.Decide(tt.existing, tt.result, tt.allowOverwrite, policyNow)
			assert.Equal(t, tt.wantUpdate, got.ShouldUpdate)
			if !tt.wantUpdate {
				assert.False(t, got.CloseIncidents)
			}
		})
	}
}

func TestDecide_CloseIncidentsThreshold(t *testing.T) {
	tests := []struct {
		name      string
		ahead     time.Duration
		wantClose bool
	}{
		{"45 days ahead", 45 * 24 * time.Hour, true},
		{"10 days ahead", 10 * 24 * time.Hour, false},
		{"exactly 30 days ahead", expiry.IncidentCloseThreshold, false},
		{"30 days and a minute", expiry.IncidentCloseThreshold + time.Minute, true},
		{"already expired", -24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expiry.Decide(nil, valid(policyNow.Add(tt.ahead)), false, policyNow)
			assert.True(t, got.ShouldUpdate)
			assert.Equal(t, tt.wantClose, got.CloseIncidents)
		})
	}
}
