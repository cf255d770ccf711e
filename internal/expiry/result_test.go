package expiry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/lapse/internal/expiry"
)

func TestSucceeded_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	date := time.Date(2027, 3, 1, 1, 0, 0, 0, loc)

	r := expiry.Succeeded("RegistryRDAP", date, 120*time.Millisecond)
	require.True(t, r.IsValid())
	assert.Equal(t, time.UTC, r.ExpiryDate.Location())
	assert.True(t, r.ExpiryDate.Equal(date))
	assert.Equal(t, "RegistryRDAP", r.Source)
	require.NotNil(t, r.LatencyMs)
	assert.InDelta(t, 120, *r.LatencyMs, 0.001)
	assert.Equal(t, 120*time.Millisecond, r.Latency())
}

func TestSucceeded_ZeroDateIsNeverValid(t *testing.T) {
	r := expiry.Succeeded("WhoisTCP", time.Time{}, 0)
	assert.False(t, r.Success)
	assert.Nil(t, r.ExpiryDate)
	assert.False(t, r.IsValid())
	assert.NotEmpty(t, r.Error)
}

func TestFailed(t *testing.T) {
	r := expiry.Failed("CTLog", "timeout", 0)
	assert.False(t, r.IsValid())
	assert.Equal(t, "timeout", r.Error)
	assert.Nil(t, r.LatencyMs)
	assert.Zero(t, r.Latency())
}

func TestIsValid_RequiresBothFlags(t *testing.T) {
	date := time.Now()
	assert.False(t, expiry.Result{Success: true}.IsValid())
	assert.False(t, expiry.Result{ExpiryDate: &date}.IsValid())
	assert.True(t, expiry.Result{Success: true, ExpiryDate: &date}.IsValid())
}
