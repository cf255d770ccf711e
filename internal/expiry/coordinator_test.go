package expiry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbckr/lapse/internal/cache"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/metrics"
	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/testutil"
)

var coordNow = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	backoff *expiry.Backoff
	records *testutil.Records
	clock   *testutil.Clock
	metrics *metrics.Metrics
}

func newFixture() *fixture {
	clock := testutil.NewClock(coordNow)
	return &fixture{
		backoff: expiry.NewBackoff(cache.NewMemory(cache.WithClock(clock.Now)), expiry.DefaultBackoffTTL, testutil.NopLogger()),
		records: &testutil.Records{},
		clock:   clock,
		metrics: metrics.New(prometheus.NewRegistry()),
	}
}

func (f *fixture) coordinator(cfg expiry.Config, chains expiry.Chains) *expiry.Coordinator {
	return expiry.NewCoordinator(cfg, chains, f.backoff, f.records, testutil.NopLogger(),
		expiry.WithClock(f.clock.Now), expiry.WithMetrics(f.metrics))
}

func domainProviders(ps ...*testutil.Provider) expiry.Chains {
	chain := make([]expiry.Provider, len(ps))
	for i, p := range ps {
		chain[i] = p
	}
	return expiry.Chains{Domain: chain}
}

func TestDetect_FallsBackAndBacksOff(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	registry := testutil.FailingProvider("RegistryRDAP", "timeout")
	aggregator := testutil.SucceedingProvider("AggregatorRDAP", want)
	d := &model.Domain{ID: "7", Name: "example.com"}

	c := f.coordinator(expiry.DefaultConfig(), domainProviders(registry, aggregator))
	res := c.DetectDomainExpiry(ctx, d, false)

	require.NotNil(t, res)
	assert.Equal(t, "AggregatorRDAP", res.Source)
	assert.True(t, res.ExpiryDate.Equal(want))
	assert.True(t, f.backoff.IsBackedOff(ctx, "7", "RegistryRDAP", model.CheckDomain))
	assert.False(t, f.backoff.IsBackedOff(ctx, "7", "AggregatorRDAP", model.CheckDomain))

	assert.InDelta(t, 1, promtest.ToFloat64(f.metrics.ProviderBackoffs.WithLabelValues("domain", "RegistryRDAP")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(f.metrics.ProviderAttempts.WithLabelValues("domain", "AggregatorRDAP", metrics.OutcomeValid)), 0)
}

func TestDetect_FirstValidWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	date := coordNow.AddDate(1, 0, 0)
	p1 := testutil.FailingProvider("P1", "malformed")
	p2 := testutil.FailingProvider("P2", "refused")
	p3 := testutil.SucceedingProvider("P3", date)
	p4 := testutil.SucceedingProvider("P4", date)
	p5 := testutil.SucceedingProvider("P5", date)

	c := f.coordinator(expiry.DefaultConfig(), domainProviders(p1, p2, p3, p4, p5))
	res := c.DetectDomainExpiry(ctx, &model.Domain{ID: "1", Name: "example.com"}, false)

	require.NotNil(t, res)
	assert.Equal(t, "P3", res.Source)
	assert.Len(t, p1.Calls(), 1)
	assert.Len(t, p2.Calls(), 1)
	assert.Len(t, p3.Calls(), 1)
	assert.Empty(t, p4.Calls())
	assert.Empty(t, p5.Calls())
}

func TestDetect_PassesNormalizedName(t *testing.T) {
	f := newFixture()
	p := testutil.SucceedingProvider("P1", coordNow.AddDate(1, 0, 0))

	c := f.coordinator(expiry.DefaultConfig(), domainProviders(p))
	c.DetectDomainExpiry(context.Background(), &model.Domain{ID: "1", Name: " Example.COM. "}, false)

	assert.Equal(t, []string{"example.com"}, p.Calls())
}

func TestDetect_SkipsDisabledWithoutBackoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	disabled := testutil.FailingProvider("WhoisAPI", "no key")
	disabled.Disabled = true
	ok := testutil.SucceedingProvider("WhoisTCP", coordNow.AddDate(1, 0, 0))

	c := f.coordinator(expiry.DefaultConfig(), domainProviders(disabled, ok))
	res := c.DetectDomainExpiry(ctx, &model.Domain{ID: "1", Name: "example.com"}, false)

	require.NotNil(t, res)
	assert.Empty(t, disabled.Calls())
	assert.False(t, f.backoff.IsBackedOff(ctx, "1", "WhoisAPI", model.CheckDomain))
}

func TestDetect_SkipsBackedOffProvider(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	registry := testutil.FailingProvider("RegistryRDAP", "timeout")
	aggregator := testutil.SucceedingProvider("AggregatorRDAP", coordNow.AddDate(1, 0, 0))
	d := &model.Domain{ID: "1", Name: "example.com"}
	c := f.coordinator(expiry.DefaultConfig(), domainProviders(registry, aggregator))

	c.DetectDomainExpiry(ctx, d, false)
	c.DetectDomainExpiry(ctx, d, false)
	assert.Len(t, registry.Calls(), 1, "backed-off provider must be skipped")

	f.clock.Advance(expiry.DefaultBackoffTTL)
	c.DetectDomainExpiry(ctx, d, false)
	assert.Len(t, registry.Calls(), 2, "provider is retried once the window lapses")
}

func TestDetect_SuccessClearsExistingBackoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	d := &model.Domain{ID: "1", Name: "example.com"}
	p := &testutil.Provider{
		ProviderName: "CTLog",
		DetectFn: func(ctx context.Context, _ string) expiry.Result {
			// another worker failed this provider while our call was in flight
			f.backoff.Apply(ctx, "1", "CTLog", model.CheckSSL)
			return expiry.Succeeded("CTLog", coordNow.AddDate(0, 3, 0), time.Millisecond)
		},
	}

	c := f.coordinator(expiry.DefaultConfig(), expiry.Chains{SSL: []expiry.Provider{p}})
	res := c.DetectSSLExpiry(ctx, d, false)

	require.NotNil(t, res)
	assert.False(t, f.backoff.IsBackedOff(ctx, "1", "CTLog", model.CheckSSL))
}

func TestDetect_ExhaustedReturnsNil(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	p1 := testutil.FailingProvider("P1", "timeout")
	p2 := testutil.FailingProvider("P2", "timeout")

	c := f.coordinator(expiry.DefaultConfig(), domainProviders(p1, p2))
	assert.Nil(t, c.DetectDomainExpiry(ctx, &model.Domain{ID: "1", Name: "example.com"}, false))
	assert.True(t, f.backoff.IsBackedOff(ctx, "1", "P1", model.CheckDomain))
	assert.True(t, f.backoff.IsBackedOff(ctx, "1", "P2", model.CheckDomain))
}

func TestDetect_CancelledCallerLeavesNoBackoff(t *testing.T) {
	f := newFixture()
	var chain []*testutil.Provider
	for _, n := range []string{"P1", "P2", "P3", "P4", "P5"} {
		chain = append(chain, &testutil.Provider{
			ProviderName: n,
			DetectFn: func(ctx context.Context, _ string) expiry.Result {
				<-ctx.Done()
				return expiry.Failed(n, ctx.Err().Error(), 0)
			},
		})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := f.coordinator(expiry.DefaultConfig(), domainProviders(chain...))
	assert.Nil(t, c.DetectDomainExpiry(ctx, &model.Domain{ID: "1", Name: "example.com"}, false))

	for _, p := range chain {
		assert.Empty(t, p.Calls(), p.ProviderName)
		assert.False(t, f.backoff.IsBackedOff(context.Background(), "1", p.ProviderName, model.CheckDomain), p.ProviderName)
	}
}

func TestDetect_CancelledDuringAttemptStopsChain(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &testutil.Provider{
		ProviderName: "RegistryRDAP",
		DetectFn: func(context.Context, string) expiry.Result {
			cancel()
			return expiry.Failed("RegistryRDAP", "context canceled", time.Millisecond)
		},
	}
	second := testutil.SucceedingProvider("AggregatorRDAP", coordNow.AddDate(1, 0, 0))

	c := f.coordinator(expiry.DefaultConfig(), domainProviders(first, second))
	assert.Nil(t, c.DetectDomainExpiry(ctx, &model.Domain{ID: "1", Name: "example.com"}, false))

	assert.Len(t, first.Calls(), 1)
	assert.Empty(t, second.Calls())
	assert.False(t, f.backoff.IsBackedOff(context.Background(), "1", "RegistryRDAP", model.CheckDomain))
	assert.InDelta(t, 0, promtest.ToFloat64(f.metrics.ProviderBackoffs.WithLabelValues("domain", "RegistryRDAP")), 0)
}

func TestDetect_GloballyDisabled(t *testing.T) {
	f := newFixture()
	p := testutil.SucceedingProvider("P1", coordNow.AddDate(1, 0, 0))
	cfg := expiry.DefaultConfig()
	cfg.Enabled = false

	c := f.coordinator(cfg, domainProviders(p))
	assert.Nil(t, c.DetectDomainExpiry(context.Background(), &model.Domain{ID: "1", Name: "example.com"}, false))
	assert.Empty(t, p.Calls())
}

func TestDetect_FastPathLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	var domainChain []*testutil.Provider
	for _, n := range []string{"D1", "D2", "D3", "D4", "D5"} {
		domainChain = append(domainChain, testutil.FailingProvider(n, "down"))
	}
	tls := testutil.FailingProvider("TLSHandshake", "refused")
	ct := testutil.SucceedingProvider("CTLog", coordNow.AddDate(0, 2, 0))
	chains := domainProviders(domainChain...)
	chains.SSL = []expiry.Provider{tls, ct}
	c := f.coordinator(expiry.DefaultConfig(), chains)

	assert.Nil(t, c.DetectDomainExpiry(ctx, &model.Domain{ID: "1", Name: "example.com"}, true))
	contacted := 0
	for _, p := range domainChain {
		contacted += len(p.Calls())
	}
	assert.Equal(t, 4, contacted)
	assert.Empty(t, domainChain[4].Calls())

	assert.Nil(t, c.DetectSSLExpiry(ctx, &model.Domain{ID: "1", Name: "example.com"}, true))
	assert.Len(t, tls.Calls(), 1)
	assert.Empty(t, ct.Calls())

	// full chain reaches the CT log
	assert.NotNil(t, c.DetectSSLExpiry(ctx, &model.Domain{ID: "2", Name: "example.org"}, false))
}

func TestUpdateDomain_StoresAndClosesIncidents(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.records.Incidents = []model.Incident{
		{ID: "i-domain", DomainID: "1", Category: model.CheckDomain, OpenedAt: coordNow.Add(-time.Hour)},
		{ID: "i-ssl", DomainID: "1", Category: model.CheckSSL, OpenedAt: coordNow.Add(-time.Hour)},
		{ID: "i-other", DomainID: "2", Category: model.CheckDomain, OpenedAt: coordNow.Add(-time.Hour)},
	}
	d := &model.Domain{ID: "1", Name: "example.com"}
	domainRes := expiry.Succeeded("RegistryRDAP", coordNow.Add(45*24*time.Hour), time.Millisecond)
	sslRes := expiry.Succeeded("TLSHandshake", coordNow.Add(10*24*time.Hour), time.Millisecond)

	c := f.coordinator(expiry.DefaultConfig(), expiry.Chains{})
	require.NoError(t, c.UpdateDomain(ctx, d, &domainRes, &sslRes))

	require.NotNil(t, d.Registration.ExpiresAt)
	assert.True(t, d.Registration.ExpiresAt.Equal(*domainRes.ExpiryDate))
	assert.Equal(t, "RegistryRDAP", d.Registration.Source)
	assert.Equal(t, coordNow, *d.Registration.DetectedAt)
	assert.Equal(t, "TLSHandshake", d.Certificate.Source)
	require.Len(t, f.records.Saved, 1)

	inc, _ := f.records.Incident("i-domain")
	assert.False(t, inc.Open(), "domain incident must close at 45 days")
	inc, _ = f.records.Incident("i-ssl")
	assert.True(t, inc.Open(), "ssl incident must stay open at 10 days")
	inc, _ = f.records.Incident("i-other")
	assert.True(t, inc.Open(), "other subjects are untouched")
}

func TestUpdateDomain_RollbackRejectedWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := coordNow.AddDate(1, 0, 0)
	d := &model.Domain{ID: "1", Name: "example.com", Registration: model.ExpiryState{ExpiresAt: &stored, Source: "RegistryRDAP"}}
	older := expiry.Succeeded("WhoisCLI", coordNow.AddDate(0, 6, 0), time.Millisecond)

	c := f.coordinator(expiry.DefaultConfig(), expiry.Chains{})
	require.NoError(t, c.UpdateDomain(ctx, d, &older, nil))

	assert.Equal(t, stored, *d.Registration.ExpiresAt)
	assert.Equal(t, "RegistryRDAP", d.Registration.Source)
	assert.Empty(t, f.records.Saved, "nothing changed, nothing saved")
}

func TestUpdateDomain_OverwriteAcceptsRollback(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	stored := coordNow.AddDate(1, 0, 0)
	d := &model.Domain{ID: "1", Name: "example.com", Registration: model.ExpiryState{ExpiresAt: &stored}}
	older := expiry.Succeeded("WhoisCLI", coordNow.AddDate(0, 6, 0), time.Millisecond)
	cfg := expiry.DefaultConfig()
	cfg.AllowOverwrite = true

	c := f.coordinator(cfg, expiry.Chains{})
	require.NoError(t, c.UpdateDomain(ctx, d, &older, nil))

	assert.True(t, d.Registration.ExpiresAt.Equal(*older.ExpiryDate))
	assert.Len(t, f.records.Saved, 1)
}

func TestUpdateDomain_ClosesWithoutPriorIncident(t *testing.T) {
	f := newFixture()
	d := &model.Domain{ID: "1", Name: "example.com"}
	res := expiry.Succeeded("CTLog", coordNow.AddDate(0, 3, 0), time.Millisecond)

	c := f.coordinator(expiry.DefaultConfig(), expiry.Chains{})
	require.NoError(t, c.UpdateDomain(context.Background(), d, nil, &res))
	assert.Nil(t, d.Registration.ExpiresAt)
	assert.NotNil(t, d.Certificate.ExpiresAt)
}

func TestUpdateDomain_SaveErrorPropagates(t *testing.T) {
	f := newFixture()
	f.records.SaveErr = errors.New("disk full")
	f.records.Incidents = []model.Incident{{ID: "i1", DomainID: "1", Category: model.CheckDomain}}
	d := &model.Domain{ID: "1", Name: "example.com"}
	res := expiry.Succeeded("RegistryRDAP", coordNow.AddDate(1, 0, 0), time.Millisecond)

	c := f.coordinator(expiry.DefaultConfig(), expiry.Chains{})
	err := c.UpdateDomain(context.Background(), d, &res, nil)
	require.ErrorIs(t, err, f.records.SaveErr)

	inc, _ := f.records.Incident("i1")
	assert.True(t, inc.Open(), "incidents stay open when the save failed")
}

func TestUpdateDomain_InvalidResultIgnored(t *testing.T) {
	f := newFixture()
	d := &model.Domain{ID: "1", Name: "example.com"}
	res := expiry.Failed("WhoisTCP", "no match", 0)

	c := f.coordinator(expiry.DefaultConfig(), expiry.Chains{})
	require.NoError(t, c.UpdateDomain(context.Background(), d, &res, nil))
	assert.Nil(t, d.Registration.ExpiresAt)
	assert.Empty(t, f.records.Saved)
}
