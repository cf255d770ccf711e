package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tbckr/lapse/internal/dnsrecord"
	"github.com/tbckr/lapse/internal/doh"
	"github.com/tbckr/lapse/internal/expiry"
	"github.com/tbckr/lapse/internal/providers"
	"github.com/tbckr/lapse/internal/providers/aggregatorrdap"
	"github.com/tbckr/lapse/internal/providers/ctlog"
	"github.com/tbckr/lapse/internal/providers/registryrdap"
	"github.com/tbckr/lapse/internal/providers/tlsprobe"
	"github.com/tbckr/lapse/internal/providers/whoisapi"
	"github.com/tbckr/lapse/internal/providers/whoiscli"
	"github.com/tbckr/lapse/internal/providers/whoistcp"
)

// ErrUnknownKey is returned for config keys lapse does not know.
var ErrUnknownKey = errors.New("unknown config key")

// Config is the fully resolved lapse configuration.
type Config struct {
	// ConfigFile is the path the configuration was read from.
	ConfigFile string `mapstructure:"-"`

	Verbose     bool   `mapstructure:"verbose"`
	Output      string `mapstructure:"output"`
	Proxy       string `mapstructure:"proxy"`
	UserAgent   string `mapstructure:"user_agent"`
	Concurrency int    `mapstructure:"concurrency"`
	StateFile   string `mapstructure:"state_file"`

	Cache     CacheConfig     `mapstructure:"cache"`
	DNS       DNSConfig       `mapstructure:"dns"`
	Expiry    ExpiryConfig    `mapstructure:"expiry"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Watch     WatchConfig     `mapstructure:"watch"`

	effective map[string]string
}

// CacheConfig selects the shared cache backend.
type CacheConfig struct {
	Driver   string `mapstructure:"driver"`
	RedisURL string `mapstructure:"redis_url"`
}

// DNSConfig configures the record resolver.
type DNSConfig struct {
	Backend    string        `mapstructure:"backend"`
	DoHURL     string        `mapstructure:"doh_url"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// ExpiryConfig holds the coordinator switches.
type ExpiryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	AllowOverwrite bool          `mapstructure:"allow_overwrite"`
	BackoffTTL     time.Duration `mapstructure:"backoff_ttl"`
	FastPathDomain int           `mapstructure:"fast_path_domain"`
	FastPathSSL    int           `mapstructure:"fast_path_ssl"`
}

// ProviderToggle is shared by every provider section.
type ProviderToggle struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProvidersConfig holds one section per expiry source.
type ProvidersConfig struct {
	RegistryRDAP struct {
		ProviderToggle `mapstructure:",squash"`
		Server         string `mapstructure:"server"`
	} `mapstructure:"registry_rdap"`
	AggregatorRDAP struct {
		ProviderToggle `mapstructure:",squash"`
		URL            string `mapstructure:"url"`
	} `mapstructure:"aggregator_rdap"`
	WhoisAPI struct {
		ProviderToggle `mapstructure:",squash"`
		URL            string `mapstructure:"url"`
		APIKey         string `mapstructure:"api_key"`
	} `mapstructure:"whois_api"`
	Whois struct {
		ProviderToggle `mapstructure:",squash"`
		Server         string `mapstructure:"server"`
	} `mapstructure:"whois"`
	WhoisCLI struct {
		ProviderToggle `mapstructure:",squash"`
		Binary         string `mapstructure:"binary"`
	} `mapstructure:"whois_cli"`
	TLS struct {
		ProviderToggle `mapstructure:",squash"`
		Port           int `mapstructure:"port"`
	} `mapstructure:"tls"`
	CTLog struct {
		ProviderToggle `mapstructure:",squash"`
		URL            string  `mapstructure:"url"`
		RPS            float64 `mapstructure:"rps"`
	} `mapstructure:"ct_log"`
}

// WatchConfig configures `lapse watch`.
type WatchConfig struct {
	Listen   string        `mapstructure:"listen"`
	Interval time.Duration `mapstructure:"interval"`
}

// ProviderSettings maps the provider sections onto providers.Config.
func (c *Config) ProviderSettings() providers.Config {
	p := c.Providers
	return providers.Config{
		RegistryRDAP: registryrdap.Options{
			Enabled: p.RegistryRDAP.Enabled, Timeout: p.RegistryRDAP.Timeout,
			Server: p.RegistryRDAP.Server,
		},
		AggregatorRDAP: aggregatorrdap.Options{
			Enabled: p.AggregatorRDAP.Enabled, Timeout: p.AggregatorRDAP.Timeout,
			BaseURL: p.AggregatorRDAP.URL,
		},
		WhoisAPI: whoisapi.Options{
			Enabled: p.WhoisAPI.Enabled, Timeout: p.WhoisAPI.Timeout,
			URL: p.WhoisAPI.URL, APIKey: p.WhoisAPI.APIKey,
		},
		Whois: whoistcp.Options{
			Enabled: p.Whois.Enabled, Timeout: p.Whois.Timeout,
			Server: p.Whois.Server,
		},
		WhoisCLI: whoiscli.Options{
			Enabled: p.WhoisCLI.Enabled, Timeout: p.WhoisCLI.Timeout,
			Binary: p.WhoisCLI.Binary,
		},
		TLS: tlsprobe.Options{
			Enabled: p.TLS.Enabled, Timeout: p.TLS.Timeout,
			Port: p.TLS.Port,
		},
		CTLog: ctlog.Options{
			Enabled: p.CTLog.Enabled, Timeout: p.CTLog.Timeout,
			URL: p.CTLog.URL,
		},
		CTLogRPS: p.CTLog.RPS,
	}
}

// ExpirySettings maps the expiry section onto expiry.Config.
func (c *Config) ExpirySettings() expiry.Config {
	return expiry.Config{
		Enabled:        c.Expiry.Enabled,
		AllowOverwrite: c.Expiry.AllowOverwrite,
		FastPathDomain: c.Expiry.FastPathDomain,
		FastPathSSL:    c.Expiry.FastPathSSL,
	}
}

// Value returns the effective value of key as a string.
func (c *Config) Value(key string) (string, error) {
	key = NormalizeKey(key)
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return c.effective[key], nil
}

// Validate checks the enum and range constraints that viper cannot express.
func (c *Config) Validate() error {
	checks := map[string]string{
		"output":       c.Output,
		"cache.driver": c.Cache.Driver,
		"dns.backend":  c.DNS.Backend,
	}
	for key, val := range checks {
		if _, err := ParseValue(key, val); err != nil {
			return err
		}
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.DNS.Retries < 0 {
		return fmt.Errorf("dns.retries must not be negative, got %d", c.DNS.Retries)
	}
	if c.Cache.Driver == "redis" && c.Cache.RedisURL == "" {
		return errors.New("cache.driver redis requires cache.redis_url")
	}
	return nil
}

type valueKind int

const (
	kindString valueKind = iota
	kindBool
	kindInt
	kindFloat
	kindDuration
)

type keySpec struct {
	kind   valueKind
	def    any
	enum   []string
	minInt int
	secret bool
}

// keySpecs lists every accepted key with its type and default.
var keySpecs = buildKeySpecs()

func buildKeySpecs() map[string]keySpec {
	pd := providers.DefaultConfig()
	ed := expiry.DefaultConfig()

	specs := map[string]keySpec{
		"verbose":     {kind: kindBool, def: false},
		"output":      {kind: kindString, def: "table", enum: []string{"table", "json", "plain"}},
		"proxy":       {kind: kindString, def: ""},
		"user_agent":  {kind: kindString, def: ""},
		"concurrency": {kind: kindInt, def: 10, minInt: 1},
		"state_file":  {kind: kindString, def: ""},

		"cache.driver":    {kind: kindString, def: "memory", enum: []string{"memory", "redis"}},
		"cache.redis_url": {kind: kindString, def: "", secret: true},

		"dns.backend":     {kind: kindString, def: "system", enum: []string{"system", "doh"}},
		"dns.doh_url":     {kind: kindString, def: doh.DefaultEndpoint},
		"dns.retries":     {kind: kindInt, def: dnsrecord.DefaultRetries},
		"dns.retry_delay": {kind: kindDuration, def: dnsrecord.DefaultRetryDelay},
		"dns.cache_ttl":   {kind: kindDuration, def: dnsrecord.DefaultCacheTTL, minInt: 1},

		"expiry.enabled":          {kind: kindBool, def: ed.Enabled},
		"expiry.allow_overwrite":  {kind: kindBool, def: ed.AllowOverwrite},
		"expiry.backoff_ttl":      {kind: kindDuration, def: expiry.DefaultBackoffTTL, minInt: 1},
		"expiry.fast_path_domain": {kind: kindInt, def: ed.FastPathDomain},
		"expiry.fast_path_ssl":    {kind: kindInt, def: ed.FastPathSSL},

		"providers.registry_rdap.server": {kind: kindString, def: pd.RegistryRDAP.Server},
		"providers.aggregator_rdap.url":  {kind: kindString, def: pd.AggregatorRDAP.BaseURL},
		"providers.whois_api.url":        {kind: kindString, def: pd.WhoisAPI.URL},
		"providers.whois_api.api_key":    {kind: kindString, def: "", secret: true},
		"providers.whois.server":         {kind: kindString, def: pd.Whois.Server},
		"providers.whois_cli.binary":     {kind: kindString, def: pd.WhoisCLI.Binary},
		"providers.tls.port":             {kind: kindInt, def: pd.TLS.Port, minInt: 1},
		"providers.ct_log.url":           {kind: kindString, def: pd.CTLog.URL},
		"providers.ct_log.rps":           {kind: kindFloat, def: pd.CTLogRPS},

		"watch.listen":   {kind: kindString, def: ":9325"},
		"watch.interval": {kind: kindDuration, def: time.Hour, minInt: 1},
	}

	sections := map[string]ProviderToggle{
		"registry_rdap":   {pd.RegistryRDAP.Enabled, pd.RegistryRDAP.Timeout},
		"aggregator_rdap": {pd.AggregatorRDAP.Enabled, pd.AggregatorRDAP.Timeout},
		"whois_api":       {pd.WhoisAPI.Enabled, pd.WhoisAPI.Timeout},
		"whois":           {pd.Whois.Enabled, pd.Whois.Timeout},
		"whois_cli":       {pd.WhoisCLI.Enabled, pd.WhoisCLI.Timeout},
		"tls":             {pd.TLS.Enabled, pd.TLS.Timeout},
		"ct_log":          {pd.CTLog.Enabled, pd.CTLog.Timeout},
	}
	for name, def := range sections {
		specs["providers."+name+".enabled"] = keySpec{kind: kindBool, def: def.Enabled}
		specs["providers."+name+".timeout"] = keySpec{kind: kindDuration, def: def.Timeout, minInt: 1}
	}
	return specs
}

// ValidKeys returns every accepted config key, sorted.
func ValidKeys() []string {
	keys := make([]string, 0, len(keySpecs))
	for k := range keySpecs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NormalizeKey maps flag-style names to config keys ("user-agent" → "user_agent").
func NormalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "-", "_"))
}

// ValidateKey reports whether key (in either flag or config spelling) is known.
func ValidateKey(key string) error {
	if _, ok := keySpecs[NormalizeKey(key)]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}

// IsSecret reports whether key holds a credential that display commands mask.
func IsSecret(key string) bool {
	return keySpecs[NormalizeKey(key)].secret
}

// ParseValue converts the string value to the type key stores. Durations are
// returned in their canonical string form so they round-trip through YAML.
func ParseValue(key, value string) (any, error) {
	key = NormalizeKey(key)
	spec, ok := keySpecs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	switch spec.kind {
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %s: must be true or false", value, key)
		}
		return b, nil
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %s: must be an integer", value, key)
		}
		if n < spec.minInt {
			return nil, fmt.Errorf("invalid value %d for %s: must be at least %d", n, key, spec.minInt)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid value %q for %s: must be a non-negative number", value, key)
		}
		return f, nil
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for %s: must be a duration such as 30s", value, key)
		}
		if d < 0 || (spec.minInt > 0 && d == 0) {
			return nil, fmt.Errorf("invalid value %q for %s: must be positive", value, key)
		}
		return d.String(), nil
	default:
		if len(spec.enum) > 0 {
			for _, e := range spec.enum {
				if value == e {
					return value, nil
				}
			}
			return nil, fmt.Errorf("invalid value %q for %s: must be one of %s", value, key, strings.Join(spec.enum, ", "))
		}
		return value, nil
	}
}

// KeyCompletions returns value candidates for key, or nil for free-form keys.
func KeyCompletions(key string) []string {
	spec, ok := keySpecs[NormalizeKey(key)]
	if !ok {
		return nil
	}
	if spec.kind == kindBool {
		return []string{"true", "false"}
	}
	return spec.enum
}
