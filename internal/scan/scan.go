// Package scan checks a set of portfolio domains end to end: detection on
// both chains, the update policy, and the days-left gauges.
package scan

import (
	"context"
	"log/slog"
	"time"

	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/metrics"
	"github.com/tbckr/lapse/internal/model"
	"github.com/tbckr/lapse/internal/worker"
)

// Outcome is the result of checking one domain.
type Outcome struct {
	Domain       model.Domain
	Registration *expiry.Result
	Certificate  *expiry.Result
	// Err is set when the detected state could not be saved or incidents
	// could not be closed.
	Err error
}

// Scanner runs domains in parallel; each domain's chains run sequentially.
type Scanner struct {
	coord       *expiry.Coordinator
	metrics     *metrics.Metrics
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithMetrics updates days-left gauges on m after each domain.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scanner) { s.metrics = m }
}

// WithClock replaces time.Now for days-left computation.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New creates a Scanner checking at most concurrency domains at once.
func New(coord *expiry.Coordinator, concurrency int, logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{coord: coord, concurrency: concurrency, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan checks every domain and returns the outcomes in input order.
func (s *Scanner) Scan(ctx context.Context, domains []model.Domain, fastPath bool) []Outcome {
	start := time.Now()
	results := worker.Run(ctx, domains, s.concurrency, func(ctx context.Context, d model.Domain) (Outcome, error) {
		return s.check(ctx, d, fastPath), nil
	})

	out := make([]Outcome, len(results))
	var failed int
	for i, r := range results {
		out[i] = r.Output
		if r.Err != nil {
			out[i] = Outcome{Domain: r.Input, Err: r.Err}
		}
		if out[i].Err != nil {
			failed++
		}
	}
	s.logger.Info("scan finished", "domains", len(domains), "errors", failed, "fast_path", fastPath,
		"duration_ms", time.Since(start).Milliseconds())
	return out
}

func (s *Scanner) check(ctx context.Context, d model.Domain, fastPath bool) Outcome {
	o := Outcome{
		Registration: s.coord.DetectDomainExpiry(ctx, &d, fastPath),
		Certificate:  s.coord.DetectSSLExpiry(ctx, &d, fastPath),
	}
	if o.Registration != nil || o.Certificate != nil {
		if err := s.coord.UpdateDomain(ctx, &d, o.Registration, o.Certificate); err != nil {
			s.logger.Error("updating domain failed", "domain", d.Name, "error", err)
			o.Err = err
		}
	}
	o.Domain = d

	now := s.now()
	for _, checkType := range []model.CheckType{model.CheckDomain, model.CheckSSL} {
		if st := d.State(checkType); st.ExpiresAt != nil {
			s.metrics.SetDaysLeft(d.Name, checkType.String(), *st.ExpiresAt, now)
		}
	}
	return o
}
