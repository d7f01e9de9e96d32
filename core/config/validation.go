package config

import (
	"fmt"
	"strings"
)

// LoadMatches are the accepted values of connect.match.
var LoadMatches = []string{"max", "min", "equal"}

// Validate checks the configuration for values the engine cannot work with.
func (c *FileConfig) Validate() error {
	cc := c.Connect
	if cc.DefaultServer == "" {
		return fmt.Errorf("connect.default_server must be 'best' or a server domain")
	}
	if cc.Protocol != "udp" && cc.Protocol != "tcp" {
		return fmt.Errorf("connect.protocol must be udp or tcp, got '%s'", cc.Protocol)
	}
	if cc.Load < 0 || cc.Load > 100 {
		return fmt.Errorf("connect.load must be between 0 and 100, got %d", cc.Load)
	}
	if cc.Match != "" && !contains(LoadMatches, cc.Match) {
		return fmt.Errorf("connect.match must be one of %s, got '%s'", strings.Join(LoadMatches, ", "), cc.Match)
	}
	if cc.MaxRetries < 0 {
		return fmt.Errorf("connect.max_retries must not be negative")
	}
	if cc.RetryDelay < 0 {
		return fmt.Errorf("connect.retry_delay must not be negative")
	}
	if cc.BestPoolSize < 0 {
		return fmt.Errorf("connect.best_pool_size must not be negative")
	}

	if c.Servers.URL == "" && c.Servers.CachePath == "" {
		return fmt.Errorf("servers.url or servers.cache_path must be set")
	}
	if c.Servers.FetchTimeout <= 0 {
		return fmt.Errorf("servers.fetch_timeout must be positive")
	}

	if c.Ping.Timeout <= 0 {
		return fmt.Errorf("ping.timeout must be positive")
	}
	if c.Ping.Port <= 0 || c.Ping.Port > 65535 {
		return fmt.Errorf("ping.port must be a valid TCP port, got %d", c.Ping.Port)
	}
	if c.Ping.Workers < 1 {
		return fmt.Errorf("ping.workers must be at least 1")
	}
	if c.Ping.Rate < 0 || c.Ping.Burst < 0 {
		return fmt.Errorf("ping.rate and ping.burst must not be negative")
	}

	if c.OpenVPN.Binary == "" {
		return fmt.Errorf("openvpn.binary must be set")
	}
	if c.OpenVPN.RuntimeDir == "" {
		return fmt.Errorf("openvpn.runtime_dir must be set")
	}
	if c.OpenVPN.StartupTimeout <= 0 {
		return fmt.Errorf("openvpn.startup_timeout must be positive")
	}
	if c.OpenVPN.Options["auth-user-pass"] == "built-in" && c.OpenVPN.CredentialsFile == "" {
		return fmt.Errorf("openvpn.credentials_file must be set when auth-user-pass is built-in")
	}
	if usesBuiltinScript(c.OpenVPN.Options["scripts"]) && c.OpenVPN.ScriptsDir == "" {
		return fmt.Errorf("openvpn.scripts_dir must be set when a script path is built-in")
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got '%s'", c.Log.Format)
	}
	return nil
}

func usesBuiltinScript(scripts interface{}) bool {
	items, _ := scripts.([]interface{})
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok && m["path"] == "built-in" {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
