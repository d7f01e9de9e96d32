package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

//go:generate mockgen -package=mocks -destination=../../mocks/mock_source.go github.com/gocircum/nordconnect/core/catalog Source

// Source provides the raw server list. Implementations live in core/source.
type Source interface {
	Fetch(ctx context.Context) ([]RawServer, error)
}

// RawServer is one record of the NordVPN server API.
type RawServer struct {
	ID             int64           `json:"id,omitempty"`
	Name           string          `json:"name"`
	Domain         string          `json:"domain"`
	IPAddress      string          `json:"ip_address"`
	Country        string          `json:"country"`
	Flag           string          `json:"flag"`
	Area           string          `json:"area,omitempty"`
	Load           int             `json:"load"`
	Categories     []RawCategory   `json:"categories"`
	Features       map[string]bool `json:"features"`
	Location       RawLocation     `json:"location"`
	SearchKeywords []string        `json:"search_keywords,omitempty"`
}

// RawCategory is a category entry of the API.
type RawCategory struct {
	Name string `json:"name"`
}

// RawLocation holds the coordinates of a server.
type RawLocation struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// categoryTags maps the API's category descriptions to short tags.
var categoryTags = map[string]string{
	"standard vpn servers": "standard",
	"obfuscated servers":   "obfuscated",
	"double vpn":           "double",
	"p2p":                  "p2p",
	"onion over vpn":       "onion",
	"dedicated ip":         "dedicated",
	"anti ddos":            "anti_ddos",
	"netflix usa":          "netflix",
}

// CategoryTag normalises a category description to its tag.
// Unknown descriptions are lower-cased with spaces replaced by underscores.
func CategoryTag(description string) string {
	key := strings.ToLower(strings.TrimSpace(description))
	if tag, ok := categoryTags[key]; ok {
		return tag
	}
	return strings.ReplaceAll(key, " ", "_")
}

// ToServer validates a raw record and converts it.
func (r RawServer) ToServer() (*Server, error) {
	domain, number, err := canonicalName(r.Domain)
	if err != nil {
		return nil, fmt.Errorf("invalid domain %q: %w", r.Domain, err)
	}
	if r.Load < 0 || r.Load > 100 {
		return nil, fmt.Errorf("server %s: load %d outside 0..100", domain, r.Load)
	}

	categories := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		if c.Name == "" {
			continue
		}
		categories = append(categories, CategoryTag(c.Name))
	}

	features := make([]string, 0, len(r.Features))
	for name, enabled := range r.Features {
		if enabled {
			features = append(features, name)
		}
	}
	sort.Strings(features)

	return &Server{
		Domain:     domain,
		FQDN:       strings.ToLower(strings.TrimSpace(r.Domain)),
		Name:       r.Name,
		Country:    strings.ToLower(r.Flag),
		Area:       r.Area,
		Categories: categories,
		Features:   features,
		Load:       r.Load,
		IPAddress:  r.IPAddress,
		Number:     number,
		Latitude:   r.Location.Lat,
		Longitude:  r.Location.Long,
		Ping:       Unreachable,
	}, nil
}
