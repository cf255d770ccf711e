package portfolio_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/cache"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/portfolio"
	"github.com/tbckr/lapse/internal/testutil"
)

var epoch = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) (*portfolio.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "portfolio.yaml")
	s, err := portfolio.Open(path, portfolio.WithClock(func() time.Time { return epoch }))
	require.NoError(t, err)
	return s, path
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s, path := openStore(t)
	assert.Empty(t, s.Domains(context.Background()))
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("domains: [unclosed"), 0o600))
	_, err := portfolio.Open(path)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestAddDomain_PersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)

	d, err := s.AddDomain(ctx, " Example.COM. ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", d.ID)
	assert.Equal(t, "example.com", d.Name)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := portfolio.Open(path)
	require.NoError(t, err)
	got, err := reloaded.Domain(ctx, "EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", got.Name)
}

func TestAddDomain_Rejects(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)
	_, err := s.AddDomain(ctx, "not a domain")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = s.AddDomain(ctx, "example.com")
	require.NoError(t, err)
	_, err = s.AddDomain(ctx, "example.com")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestSaveDomain(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)
	d, err := s.AddDomain(ctx, "example.com")
	require.NoError(t, err)

	exp := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	d.Registration = model.ExpiryState{ExpiresAt: &exp, Source: "WHOIS", DetectedAt: &epoch}
	require.NoError(t, s.SaveDomain(ctx, d))

	reloaded, err := portfolio.Open(path)
	require.NoError(t, err)
	got, err := reloaded.Domain(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, got.Registration.ExpiresAt)
	assert.True(t, exp.Equal(*got.Registration.ExpiresAt))
	assert.Equal(t, "WHOIS", got.Registration.Source)
	assert.Nil(t, got.Certificate.ExpiresAt)

	err = s.SaveDomain(ctx, &model.Domain{ID: "ghost.example"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDomain_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)
	_, err := s.AddDomain(ctx, "example.com")
	require.NoError(t, err)

	d, err := s.Domain(ctx, "example.com")
	require.NoError(t, err)
	d.Name = "mutated.example"

	again, err := s.Domain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", again.Name)

	_, err = s.Domain(ctx, "missing.example")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestIncidents_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)
	_, err := s.AddDomain(ctx, "example.com")
	require.NoError(t, err)

	first, err := s.OpenIncident(ctx, "example.com", model.CheckDomain, "expires soon")
	require.NoError(t, err)
	second, err := s.OpenIncident(ctx, "example.com", model.CheckSSL, "")
	require.NoError(t, err)
	assert.Equal(t, "inc-1", first.ID)
	assert.Equal(t, "inc-2", second.ID)
	assert.Equal(t, epoch, first.OpenedAt)

	open, err := s.OpenIncidents(ctx, "example.com", model.CheckDomain)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "inc-1", open[0].ID)

	resolvedAt := epoch.Add(time.Hour)
	require.NoError(t, s.ResolveIncident(ctx, "inc-1", resolvedAt))
	require.NoError(t, s.ResolveIncident(ctx, "inc-1", resolvedAt.Add(time.Hour)), "resolving twice is a no-op")

	open, err = s.OpenIncidents(ctx, "example.com", model.CheckDomain)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Len(t, s.Incidents(ctx, true), 1)
	assert.Len(t, s.Incidents(ctx, false), 2)

	reloaded, err := portfolio.Open(path)
	require.NoError(t, err)
	all := reloaded.Incidents(ctx, false)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].ResolvedAt)
	assert.Equal(t, resolvedAt, *all[0].ResolvedAt)

	assert.ErrorIs(t, s.ResolveIncident(ctx, "inc-99", epoch), apperr.ErrNotFound)
	_, err = s.OpenIncident(ctx, "missing.example", model.CheckSSL, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)
	names := []string{"a.example", "b.example", "c.example", "d.example"}
	for _, n := range names {
		_, err := s.AddDomain(ctx, n)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := s.Domain(ctx, n)
			if !assert.NoError(t, err) {
				return
			}
			exp := epoch.AddDate(1, 0, 0)
			d.Certificate.ExpiresAt = &exp
			assert.NoError(t, s.SaveDomain(ctx, d))
		}()
	}
	wg.Wait()

	reloaded, err := portfolio.Open(path)
	require.NoError(t, err)
	for _, d := range reloaded.Domains(ctx) {
		assert.NotNil(t, d.Certificate.ExpiresAt, d.Name)
	}
}

// TestCoordinatorUpdatesPortfolio runs UpdateDomain against the real store:
// a renewal far in the future is saved and closes the open domain incident.
func TestCoordinatorUpdatesPortfolio(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)
	d, err := s.AddDomain(ctx, "example.com")
	require.NoError(t, err)
	_, err = s.OpenIncident(ctx, d.ID, model.CheckDomain, "registration lapsing")
	require.NoError(t, err)

	clock := testutil.NewClock(epoch)
	coord := expiry.NewCoordinator(expiry.DefaultConfig(), expiry.Chains{
		Domain: []expiry.Provider{testutil.SucceedingProvider("WHOIS", epoch.AddDate(0, 0, 400))},
	}, expiry.NewBackoff(cache.NewMemory(), 0, testutil.NopLogger()), s, testutil.NopLogger(), expiry.WithClock(clock.Now))

	res := coord.DetectDomainExpiry(ctx, d, false)
	require.NotNil(t, res)
	require.NoError(t, coord.UpdateDomain(ctx, d, res, nil))

	stored, err := s.Domain(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.Registration.ExpiresAt)
	assert.Equal(t, "WHOIS", stored.Registration.Source)
	assert.Empty(t, s.Incidents(ctx, true))
}
