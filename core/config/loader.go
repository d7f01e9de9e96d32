package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. NORDCONNECT_CONNECT_PROTOCOL.
const EnvPrefix = "NORDCONNECT"

// envOverrides lists the settings that may be overridden from the environment.
// Pointer fields stay nil when the variable is unset.
type envOverrides struct {
	LogLevel       string         `envconfig:"LOG_LEVEL"`
	LogFormat      string         `envconfig:"LOG_FORMAT"`
	Protocol       string         `envconfig:"CONNECT_PROTOCOL"`
	MaxRetries     *int           `envconfig:"CONNECT_MAX_RETRIES"`
	AssumeYes      *bool          `envconfig:"CONNECT_ASSUME_YES"`
	ServersURL     string         `envconfig:"SERVERS_URL"`
	ServersCache   string         `envconfig:"SERVERS_CACHE"`
	GeoIPPath      string         `envconfig:"GEOIP_PATH"`
	PingTimeout    *time.Duration `envconfig:"PING_TIMEOUT"`
	PingWorkers    *int           `envconfig:"PING_WORKERS"`
	OpenVPNBinary  string         `envconfig:"OPENVPN_BINARY"`
	OpenVPNConfigs string         `envconfig:"OPENVPN_CONFIG_DIR"`
}

// Load builds the configuration: defaults, then the YAML file at path, then
// environment overrides (an optional .env file is honored), then validation.
// A missing file at DefaultPath is not an error; a missing explicit path is.
func Load(path string) (*FileConfig, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	if err := cfg.mergeFile(path); err != nil {
		if !(errors.Is(err, fs.ErrNotExist) && path == DefaultPath) {
			return nil, err
		}
	}

	// Silently ignore a missing .env, real environment variables still apply.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFileConfig parses a YAML file over the defaults without env overrides or validation.
func LoadFileConfig(path string) (*FileConfig, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *FileConfig) mergeFile(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return fmt.Errorf("failed to parse config '%s': %w", path, err)
	}
	return nil
}

func (c *FileConfig) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	setString(&c.Log.Level, env.LogLevel)
	setString(&c.Log.Format, env.LogFormat)
	setString(&c.Connect.Protocol, env.Protocol)
	setString(&c.Servers.URL, env.ServersURL)
	setString(&c.Servers.CachePath, env.ServersCache)
	setString(&c.Servers.GeoIPPath, env.GeoIPPath)
	setString(&c.OpenVPN.Binary, env.OpenVPNBinary)
	setString(&c.OpenVPN.ConfigDir, env.OpenVPNConfigs)
	if env.MaxRetries != nil {
		c.Connect.MaxRetries = *env.MaxRetries
	}
	if env.AssumeYes != nil {
		c.Connect.AssumeYes = *env.AssumeYes
	}
	if env.PingTimeout != nil {
		c.Ping.Timeout = *env.PingTimeout
	}
	if env.PingWorkers != nil {
		c.Ping.Workers = *env.PingWorkers
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
