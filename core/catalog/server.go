package catalog

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Unreachable is the ping sentinel for a server that did not answer or was never measured.
var Unreachable = math.Inf(1)

// Server describes one VPN endpoint. A Server is read-only once the catalog is
// loaded, except for Ping which the ranking pass fills in.
type Server struct {
	Domain     string // canonical name, e.g. "us1234"
	FQDN       string
	Name       string
	Country    string // lower-case ISO 3166 code
	Area       string // may be empty when unknown
	Categories []string
	Features   []string
	Load       int
	IPAddress  string
	Number     int
	Latitude   float64
	Longitude  float64

	Ping         float64 // milliseconds, or Unreachable
	PingMeasured bool
}

// HasCategory reports whether the server carries the category tag.
func (s *Server) HasCategory(category string) bool {
	return containsTag(s.Categories, category)
}

// HasFeature reports whether the server carries the feature tag.
func (s *Server) HasFeature(feature string) bool {
	return containsTag(s.Features, feature)
}

// HasTag reports whether tag is a category or a feature of the server.
func (s *Server) HasTag(tag string) bool {
	return s.HasCategory(tag) || s.HasFeature(tag)
}

// Reachable reports whether the server has a finite ping.
func (s *Server) Reachable() bool {
	return !math.IsInf(s.Ping, 0) && !math.IsNaN(s.Ping) && s.Ping >= 0
}

// SetPing records a measurement. Negative or NaN values are stored as Unreachable.
func (s *Server) SetPing(ms float64) {
	if math.IsNaN(ms) || ms < 0 {
		ms = Unreachable
	}
	s.Ping = ms
	s.PingMeasured = true
}

// Host is the tunnel target: the FQDN, or the IP address when no FQDN is known.
func (s *Server) Host() string {
	if s.FQDN != "" {
		return s.FQDN
	}
	return s.IPAddress
}

func (s *Server) String() string {
	return s.Domain
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

var numberRegex = regexp.MustCompile(`^[a-z-]*?([0-9]+)`)

// canonicalName splits "us1234.nordvpn.com" into "us1234" and its number 1234.
func canonicalName(fqdn string) (string, int, error) {
	name := strings.ToLower(strings.SplitN(strings.TrimSpace(fqdn), ".", 2)[0])
	if name == "" {
		return "", 0, fmt.Errorf("empty domain")
	}
	m := numberRegex.FindStringSubmatch(name)
	if m == nil {
		return "", 0, fmt.Errorf("no number found in '%s'", name)
	}
	var n int
	if _, err := fmt.Sscanf(m[1], "%d", &n); err != nil {
		return "", 0, fmt.Errorf("bad number in '%s': %w", name, err)
	}
	return name, n, nil
}
