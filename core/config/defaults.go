package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "/etc/nordconnect/config.yaml"

// Default returns the built-in configuration.
func Default() *FileConfig {
	return &FileConfig{
		Connect: ConnectConfig{
			DefaultServer:     "best",
			Protocol:          "udp",
			DefaultCategories: []string{"standard"},
			Match:             "max",
			MaxRetries:        3,
			RetryDelay:        time.Second,
			RiskCategories:    []string{"obfuscated"},
		},
		Servers: ServersConfig{
			URL:          "https://api.nordvpn.com/server",
			CachePath:    defaultCachePath(),
			FetchTimeout: 60 * time.Second,
			ParentDomain: "nordvpn.com",
		},
		Ping: PingConfig{
			Timeout: time.Second,
			Port:    443,
			Workers: 16,
		},
		OpenVPN: OpenVPNConfig{
			Binary:          "openvpn",
			ConfigDir:       "/var/lib/nordconnect/ovpn",
			RuntimeDir:      "/run/nordconnect",
			StartupTimeout:  60 * time.Second,
			CredentialsFile: "/etc/nordconnect/credentials",
			ScriptsDir:      "/usr/share/nordconnect/scripts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "servers.json"
	}
	return filepath.Join(dir, "nordconnect", "servers.json")
}
