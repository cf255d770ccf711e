package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tbckr/lapse/internal/appdir"
)

const envPrefix = "LAPSE"

// flagKeys maps persistent flag names to the config keys they override.
var flagKeys = map[string]string{
	"verbose":     "verbose",
	"output":      "output",
	"proxy":       "proxy",
	"user-agent":  "user_agent",
	"concurrency": "concurrency",
	"state-file":  "state_file",
}

// RegisterFlags adds the global flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default: "+defaultConfigHint()+")")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.StringP("output", "o", "table", "output format: table, json or plain")
	flags.String("proxy", "", "proxy URL (http, https or socks5)")
	flags.String("user-agent", "", "override the User-Agent header")
	flags.IntP("concurrency", "c", 10, "number of domains processed in parallel")
	flags.String("state-file", "", "portfolio state file (default: next to the config file)")
}

func defaultConfigHint() string {
	if p, err := DefaultConfigPath(); err == nil {
		return p
	}
	return "$XDG_CONFIG_HOME/lapse/config.yaml"
}

// DefaultConfigPath returns the OS-specific config file path.
func DefaultConfigPath() (string, error) {
	return appdir.DefaultConfigFile()
}

// Load resolves the configuration from flags, LAPSE_* environment variables,
// the config file and defaults, in that order of precedence. The config file
// is created with 0600 permissions if it does not exist.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, spec := range keySpecs {
		v.SetDefault(key, spec.def)
	}

	cfgFile, _ := flags.GetString("config")
	if cfgFile == "" {
		var err error
		if cfgFile, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	if err := appdir.EnsureFile(cfgFile); err != nil {
		return nil, fmt.Errorf("creating config file: %w", err)
	}
	v.SetConfigFile(cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.ConfigFile = cfgFile
	if cfg.StateFile == "" {
		path, err := appdir.DefaultStateFile()
		if err != nil {
			return nil, err
		}
		cfg.StateFile = path
		v.Set("state_file", path)
	}

	cfg.effective = make(map[string]string, len(keySpecs))
	for key := range keySpecs {
		cfg.effective[key] = fmt.Sprint(v.Get(key))
	}
	return &cfg, nil
}

// SetFileValue writes a single key to the YAML file at path, leaving every
// other key untouched. Dotted keys become nested mappings.
func SetFileValue(path, key, value string) error {
	key = NormalizeKey(key)
	typed, err := ParseValue(key, value)
	if err != nil {
		return err
	}

	raw := map[string]any{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
	}

	parts := strings.Split(key, ".")
	node := raw
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = typed

	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
