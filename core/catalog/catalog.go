// Package catalog holds the server snapshot a command works on.
package catalog

import (
	"context"
	"iter"
	"sort"
	"strings"

	"github.com/gocircum/nordconnect/core/connerr"
	"github.com/gocircum/nordconnect/pkg/logging"
)

// DefaultParentDomain is appended to bare server names.
const DefaultParentDomain = "nordvpn.com"

// Catalog is the immutable server list of one invocation. It is safe for
// concurrent readers.
type Catalog struct {
	servers      []*Server
	byDomain     map[string]*Server
	parentDomain string
}

// New builds a catalog from already converted servers. Later duplicates of a
// domain are dropped.
func New(servers []*Server, parentDomain string) *Catalog {
	if parentDomain == "" {
		parentDomain = DefaultParentDomain
	}
	c := &Catalog{
		servers:      make([]*Server, 0, len(servers)),
		byDomain:     make(map[string]*Server, len(servers)),
		parentDomain: strings.ToLower(parentDomain),
	}
	for _, s := range servers {
		if s == nil {
			continue
		}
		if _, dup := c.byDomain[s.Domain]; dup {
			continue
		}
		c.byDomain[s.Domain] = s
		c.servers = append(c.servers, s)
	}
	return c
}

// Load fetches the raw list from src and builds the catalog. Invalid records are
// skipped with a warning. A source failure is reported as CatalogUnavailable.
func Load(ctx context.Context, src Source, parentDomain string, logger logging.Logger) (*Catalog, error) {
	logger = logging.ForComponent(logger, "catalog")

	raw, err := src.Fetch(ctx)
	if err != nil {
		return nil, connerr.CatalogUnavailable(err)
	}

	servers := make([]*Server, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		s, err := r.ToServer()
		if err != nil {
			logger.Warn("Skipping invalid server record", "domain", r.Domain, "error", err)
			continue
		}
		if _, dup := seen[s.Domain]; dup {
			logger.Warn("Skipping duplicate server record", "domain", s.Domain)
			continue
		}
		seen[s.Domain] = struct{}{}
		servers = append(servers, s)
	}

	logger.Debug("Server catalog loaded", "records", len(raw), "servers", len(servers))
	return New(servers, parentDomain), nil
}

// FindByDomain looks a server up by "us1234", "us1234.nordvpn.com" or its FQDN.
func (c *Catalog) FindByDomain(domain string) (*Server, error) {
	name := strings.ToLower(strings.TrimSpace(domain))
	name = strings.TrimSuffix(name, ".")
	if strings.HasSuffix(name, "."+c.parentDomain) {
		name = strings.TrimSuffix(name, "."+c.parentDomain)
	}
	if s, ok := c.byDomain[name]; ok {
		return s, nil
	}
	if strings.Contains(name, ".") {
		for _, s := range c.servers {
			if s.FQDN == name {
				return s, nil
			}
		}
	}
	return nil, connerr.ServerNotFound(domain)
}

// All yields every server in catalog order. Each call starts a new iteration.
func (c *Catalog) All() iter.Seq[*Server] {
	return func(yield func(*Server) bool) {
		for _, s := range c.servers {
			if !yield(s) {
				return
			}
		}
	}
}

// Len returns the number of servers.
func (c *Catalog) Len() int {
	return len(c.servers)
}

// ParentDomain returns the domain appended to bare server names.
func (c *Catalog) ParentDomain() string {
	return c.parentDomain
}

// Countries returns the distinct country codes, sorted.
func (c *Catalog) Countries() []string {
	return c.distinct(func(s *Server) []string { return []string{s.Country} })
}

// Areas returns the distinct known areas, sorted.
func (c *Catalog) Areas() []string {
	return c.distinct(func(s *Server) []string { return []string{s.Area} })
}

// Categories returns the distinct category tags, sorted.
func (c *Catalog) Categories() []string {
	return c.distinct(func(s *Server) []string { return s.Categories })
}

// Features returns the distinct feature tags, sorted.
func (c *Catalog) Features() []string {
	return c.distinct(func(s *Server) []string { return s.Features })
}

func (c *Catalog) distinct(values func(*Server) []string) []string {
	set := make(map[string]struct{})
	for _, s := range c.servers {
		for _, v := range values(s) {
			if v != "" {
				set[v] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
