package source

import (
	"context"
	"net"

	"github.com/gocircum/nordconnect/core/catalog"
	"github.com/gocircum/nordconnect/pkg/logging"
	"github.com/oschwald/geoip2-golang"
)

// CityLookup is the part of geoip2.Reader the enricher needs.
type CityLookup interface {
	City(ip net.IP) (*geoip2.City, error)
}

// GeoEnricher fills in the Area of records that have none, using a GeoLite2
// City database keyed by the server IP.
type GeoEnricher struct {
	Source catalog.Source
	lookup CityLookup
	closer func() error
	logger logging.Logger
}

// OpenGeoEnricher opens the database at dbPath and wraps src.
func OpenGeoEnricher(src catalog.Source, dbPath string, logger logging.Logger) (*GeoEnricher, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	e := NewGeoEnricher(src, reader, logger)
	e.closer = reader.Close
	return e, nil
}

// NewGeoEnricher wraps src with an existing lookup.
func NewGeoEnricher(src catalog.Source, lookup CityLookup, logger logging.Logger) *GeoEnricher {
	return &GeoEnricher{
		Source: src,
		lookup: lookup,
		logger: logging.ForComponent(logger, "source.geo"),
	}
}

// Fetch delegates to the wrapped source and fills missing areas.
func (g *GeoEnricher) Fetch(ctx context.Context) ([]catalog.RawServer, error) {
	servers, err := g.Source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	filled := 0
	for i := range servers {
		if servers[i].Area != "" {
			continue
		}
		if area := g.area(servers[i].IPAddress); area != "" {
			servers[i].Area = area
			filled++
		}
	}
	g.logger.Debug("Areas resolved from GeoIP", "filled", filled, "servers", len(servers))
	return servers, nil
}

func (g *GeoEnricher) area(ipStr string) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	record, err := g.lookup.City(ip)
	if err != nil || record == nil {
		return ""
	}
	return record.City.Names["en"]
}

// Close releases the database, if this enricher opened it.
func (g *GeoEnricher) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}
