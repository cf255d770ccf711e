package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/model"
)

// Provider is a scripted expiry.Provider that counts its calls.
type Provider struct {
	ProviderName string
	Disabled     bool
	// DetectFn answers Detect; a nil DetectFn fails every call.
	DetectFn func(ctx context.Context, domain string) expiry.Result

	mu    sync.Mutex
	calls []string
}

var _ expiry.Provider = (*Provider)(nil)

// SucceedingProvider returns a Provider that always reports date.
func SucceedingProvider(name string, date time.Time) *Provider {
	return &Provider{
		ProviderName: name,
		DetectFn: func(context.Context, string) expiry.Result {
			return expiry.Succeeded(name, date, 5*time.Millisecond)
		},
	}
}

// FailingProvider returns a Provider that always fails with reason.
func FailingProvider(name, reason string) *Provider {
	return &Provider{
		ProviderName: name,
		DetectFn: func(context.Context, string) expiry.Result {
			return expiry.Failed(name, reason, 5*time.Millisecond)
		},
	}
}

// Name implements expiry.Provider.
func (p *Provider) Name() string { return p.ProviderName }

// Enabled implements expiry.Provider.
func (p *Provider) Enabled() bool { return !p.Disabled }

// Detect implements expiry.Provider.
func (p *Provider) Detect(ctx context.Context, domain string) expiry.Result {
	p.mu.Lock()
	p.calls = append(p.calls, domain)
	p.mu.Unlock()
	if p.DetectFn == nil {
		return expiry.Failed(p.ProviderName, "not scripted", 0)
	}
	return p.DetectFn(ctx, domain)
}

// Calls returns the domains Detect was called with.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Records is an in-memory expiry.Records.
type Records struct {
	mu        sync.Mutex
	Saved     []model.Domain
	Incidents []model.Incident
	SaveErr   error
}

var _ expiry.Records = (*Records)(nil)

// SaveDomain implements expiry.DomainSaver.
func (r *Records) SaveDomain(_ context.Context, d *model.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.Saved = append(r.Saved, *d)
	return nil
}

// OpenIncidents implements expiry.IncidentStore.
func (r *Records) OpenIncidents(_ context.Context, domainID string, category model.CheckType) ([]model.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Incident
	for _, inc := range r.Incidents {
		if inc.DomainID == domainID && inc.Category == category && inc.Open() {
			out = append(out, inc)
		}
	}
	return out, nil
}

// ResolveIncident implements expiry.IncidentStore.
func (r *Records) ResolveIncident(_ context.Context, incidentID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.Incidents {
		if r.Incidents[i].ID == incidentID {
			resolved := at
			r.Incidents[i].ResolvedAt = &resolved
			return nil
		}
	}
	return fmt.Errorf("%w: incident %q", apperr.ErrNotFound, incidentID)
}

// Incident returns a copy of the incident with id.
func (r *Records) Incident(id string) (model.Incident, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inc := range r.Incidents {
		if inc.ID == id {
			return inc, true
		}
	}
	return model.Incident{}, false
}
