package config

import "time"

// FileConfig is the complete runtime configuration. It is built once at program
// start and handed to the engine; nothing reads configuration from globals.
type FileConfig struct {
	Connect ConnectConfig `yaml:"connect"`
	Servers ServersConfig `yaml:"servers"`
	Ping    PingConfig    `yaml:"ping"`
	OpenVPN OpenVPNConfig `yaml:"openvpn"`
	Log     LogConfig     `yaml:"log"`
}

// ConnectConfig holds the defaults for the connect command.
type ConnectConfig struct {
	DefaultServer     string        `yaml:"default_server"` // "best" or a server domain
	Protocol          string        `yaml:"protocol"`       // "udp" or "tcp"
	DefaultCategories []string      `yaml:"default_categories"`
	Load              int           `yaml:"load"`  // 0 means no load filtering
	Match             string        `yaml:"match"` // "max", "min" or "equal"
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RiskCategories    []string      `yaml:"risk_categories"`
	AssumeYes         bool          `yaml:"assume_yes"`
	BestPoolSize      int           `yaml:"best_pool_size"`
}

// ServersConfig configures where the server list comes from.
type ServersConfig struct {
	URL          string        `yaml:"url"`
	CachePath    string        `yaml:"cache_path"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	ParentDomain string        `yaml:"parent_domain"`
	GeoIPPath    string        `yaml:"geoip_path"`
}

// PingConfig configures the latency measurement pass.
type PingConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Port    int           `yaml:"port"`
	Workers int           `yaml:"workers"`
	Rate    float64       `yaml:"rate"` // probes per second, 0 is unlimited
	Burst   int           `yaml:"burst"`
}

// OpenVPNConfig configures the tunnel process.
type OpenVPNConfig struct {
	Binary         string                 `yaml:"binary"`
	ConfigDir      string                 `yaml:"config_dir"`
	RuntimeDir     string                 `yaml:"runtime_dir"`
	StartupTimeout time.Duration          `yaml:"startup_timeout"`
	Options        map[string]interface{} `yaml:"options,omitempty"`

	// CredentialsFile replaces the value built-in of the auth-user-pass option.
	CredentialsFile string `yaml:"credentials_file"`
	// ScriptsDir holds the built-in scripts of the scripts option.
	ScriptsDir string `yaml:"scripts_dir"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
