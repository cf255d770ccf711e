package providers

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/imroc/req/v3"
	"golang.org/x/net/proxy"

	"github.com/tbckr/lapse/internal/apperr"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/httpclient"
	"github.com/tbckr/lapse/internal/providers/aggregatorrdap"
	"github.com/tbckr/lapse/internal/providers/ctlog"
	"github.com/tbckr/lapse/internal/providers/registryrdap"
	"github.com/tbckr/lapse/internal/providers/tlsprobe"
	"github.com/tbckr/lapse/internal/providers/whoisapi"
	"github.com/tbckr/lapse/internal/providers/whoiscli"
	"github.com/tbckr/lapse/internal/providers/whoistcp"
	"github.com/tbckr/lapse/internal/ratelimit"
)

// DefaultCTLogRPS keeps lapse well under crt.sh's anonymous quota.
const DefaultCTLogRPS = 1.0

// Config holds the per-provider settings.
type Config struct {
	RegistryRDAP   registryrdap.Options
	AggregatorRDAP aggregatorrdap.Options
	WhoisAPI       whoisapi.Options
	Whois          whoistcp.Options
	WhoisCLI       whoiscli.Options
	TLS            tlsprobe.Options
	CTLog          ctlog.Options
	CTLogRPS       float64
}

// DefaultConfig enables every provider. WHOIS API stays inert until an API
// key is set.
func DefaultConfig() Config {
	return Config{
		RegistryRDAP:   registryrdap.Options{Enabled: true, Timeout: expiry.DefaultTimeout},
		AggregatorRDAP: aggregatorrdap.Options{Enabled: true, Timeout: expiry.DefaultTimeout, BaseURL: aggregatorrdap.DefaultBaseURL},
		WhoisAPI:       whoisapi.Options{Enabled: true, Timeout: expiry.DefaultTimeout, URL: whoisapi.DefaultURL},
		Whois:          whoistcp.Options{Enabled: true, Timeout: expiry.DefaultTimeout},
		WhoisCLI:       whoiscli.Options{Enabled: true, Timeout: expiry.DefaultTimeout, Binary: whoiscli.DefaultBinary},
		TLS:            tlsprobe.Options{Enabled: true, Timeout: expiry.DefaultTimeout, Port: tlsprobe.DefaultPort},
		CTLog:          ctlog.Options{Enabled: true, Timeout: expiry.DefaultTimeout, URL: ctlog.DefaultURL},
		CTLogRPS:       DefaultCTLogRPS,
	}
}

// Deps are the shared resources providers are built on.
type Deps struct {
	HTTP   *req.Client
	Proxy  string
	Logger *slog.Logger
	// WhoisRunner replaces os/exec for the WHOIS CLI provider. Nil runs the binary.
	WhoisRunner whoiscli.Runner
}

// Build returns the domain and SSL chains in priority order.
func Build(cfg Config, deps Deps) (expiry.Chains, error) {
	dialer, err := socksDialer(deps.Proxy)
	if err != nil {
		return expiry.Chains{}, err
	}

	registry := cfg.RegistryRDAP
	if registry.UserAgent == "" {
		registry.UserAgent = deps.HTTP.Headers.Get("User-Agent")
	}
	rdapProvider, err := registryrdap.New(deps.HTTP.GetClient(), registry, deps.Logger)
	if err != nil {
		return expiry.Chains{}, err
	}

	whoisOpts := cfg.Whois
	tlsOpts := cfg.TLS
	if dialer != nil {
		whoisOpts.Dialer = dialer
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return expiry.Chains{}, fmt.Errorf("%w: SOCKS5 proxy %q does not support contexts", apperr.ErrInvalidInput, deps.Proxy)
		}
		tlsOpts.Dialer = cd
	}

	ctClient := deps.HTTP.Clone()
	httpclient.AttachRateLimit(ctClient, ratelimit.New(cfg.CTLogRPS, 1))

	chains := expiry.Chains{
		Domain: []expiry.Provider{
			rdapProvider,
			aggregatorrdap.New(deps.HTTP, cfg.AggregatorRDAP, deps.Logger),
			whoisapi.New(deps.HTTP, cfg.WhoisAPI, deps.Logger),
			whoistcp.New(whoisOpts, deps.Logger),
			whoiscli.New(deps.WhoisRunner, cfg.WhoisCLI, deps.Logger),
		},
		SSL: []expiry.Provider{
			tlsprobe.New(tlsOpts, deps.Logger),
			ctlog.New(ctClient, cfg.CTLog, deps.Logger),
		},
	}
	for _, p := range append(append([]expiry.Provider{}, chains.Domain...), chains.SSL...) {
		if !p.Enabled() {
			deps.Logger.Debug("provider disabled", "provider", p.Name())
		}
	}
	return chains, nil
}

// socksDialer returns a SOCKS5 dialer for raw TCP providers, or nil when
// proxyURL is empty or not SOCKS. HTTP proxies cannot carry WHOIS or TLS probes.
func socksDialer(proxyURL string) (proxy.Dialer, error) {
	if proxyURL == "" {
		return nil, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid proxy URL %q: %w", apperr.ErrInvalidInput, proxyURL, err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, nil
	}
	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: SOCKS5 proxy %q: %w", apperr.ErrInvalidInput, proxyURL, err)
	}
	return d, nil
}
