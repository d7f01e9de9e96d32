package core

import (
	"os"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/core/config"
	"github.com/gocircum/nordconnect/core/connect"
	"github.com/gocircum/nordconnect/core/display"
	"github.com/gocircum/nordconnect/core/probe"
	"github.com/gocircum/nordconnect/core/prompt"
	"github.com/gocircum/nordconnect/core/source"
	"github.com/gocircum/nordconnect/core/tunnel"
	"github.com/gocircum/nordconnect/pkg/logging"
	"golang.org/x/time/rate"
)

// Collaborators are the external pieces the engine drives. Nil fields are
// built from the configuration by NewEngine.
type Collaborators struct {
	Source    catalog.Source
	Prober    probe.Prober
	Launcher  tunnel.Launcher
	Confirmer connect.Confirmer
	Display   connect.Display
}

// NewSource builds the server-list source: the API with the cache file as
// fallback, optionally enriched with GeoIP areas.
func NewSource(cfg config.ServersConfig, logger logging.Logger) catalog.Source {
	var src catalog.Source = source.NewHTTP(cfg.URL, cfg.FetchTimeout, cfg.CachePath, logger)
	if cfg.CachePath != "" {
		src = &source.Fallback{Primary: src, Secondary: source.NewFile(cfg.CachePath)}
	}
	if cfg.GeoIPPath != "" {
		geo, err := source.OpenGeoEnricher(src, cfg.GeoIPPath, logger)
		if err != nil {
			logging.OrDefault(logger).Warn("GeoIP database unavailable, areas come from the API only", "path", cfg.GeoIPPath, "error", err)
		} else {
			src = geo
		}
	}
	return src
}

// NewProber builds the TCP prober with logging, throttling and a hard timeout.
func NewProber(cfg config.PingConfig, logger logging.Logger) probe.Prober {
	return proberChain(cfg, logger)(probe.NewTCP(cfg.Port, nil))
}

// proberChain puts the timeout inside the throttle so that a probe queued
// behind the rate limit still gets its full timeout once it runs.
func proberChain(cfg config.PingConfig, logger logging.Logger) probe.Middleware {
	middlewares := []probe.Middleware{probe.WithLogging(logger)}
	if cfg.Rate > 0 {
		middlewares = append(middlewares, probe.WithThrottle(rate.Limit(cfg.Rate), cfg.Burst))
	}
	middlewares = append(middlewares, probe.WithTimeout(cfg.Timeout))
	return probe.Chain(middlewares...)
}

func (c Collaborators) withDefaults(cfg *config.FileConfig, logger logging.Logger) Collaborators {
	if c.Source == nil {
		c.Source = NewSource(cfg.Servers, logger)
	}
	if c.Prober == nil {
		c.Prober = NewProber(cfg.Ping, logger)
	}
	if c.Launcher == nil {
		c.Launcher = tunnel.NewOpenVPN(tunnel.SettingsFromConfig(cfg.OpenVPN), logger)
	}
	if c.Confirmer == nil {
		c.Confirmer = prompt.NewTerminal(os.Stdin, os.Stderr, cfg.Connect.AssumeYes, logger)
	}
	if c.Display == nil {
		c.Display = display.NewStatus(os.Stdout)
	}
	return c
}
