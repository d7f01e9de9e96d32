package filter

import (
	"iter"
	"path"
	"strings"

	"github.com/gocircum/nordconnect/core/catalog"
)

// Predicate reports whether a server passes.
type Predicate func(*catalog.Server) bool

func pass(*catalog.Server) bool { return true }

// And passes when every predicate passes. Nil predicates are skipped.
func And(preds ...Predicate) Predicate {
	active := compact(preds)
	if len(active) == 0 {
		return pass
	}
	return func(s *catalog.Server) bool {
		for _, p := range active {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// Any passes when at least one predicate passes. Nil predicates are skipped;
// Any of nothing passes nothing.
func Any(preds ...Predicate) Predicate {
	active := compact(preds)
	return func(s *catalog.Server) bool {
		for _, p := range active {
			if p(s) {
				return true
			}
		}
		return false
	}
}

func compact(preds []Predicate) []Predicate {
	active := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			active = append(active, p)
		}
	}
	return active
}

// InCountries keeps servers located in one of the country codes.
func InCountries(codes ...string) Predicate {
	set := lowerSet(codes)
	if len(set) == 0 {
		return pass
	}
	return func(s *catalog.Server) bool {
		_, ok := set[strings.ToLower(s.Country)]
		return ok
	}
}

// InAreas keeps servers in one of the areas (case-insensitive).
func InAreas(areas ...string) Predicate {
	set := lowerSet(areas)
	if len(set) == 0 {
		return pass
	}
	return func(s *catalog.Server) bool {
		_, ok := set[strings.ToLower(s.Area)]
		return ok
	}
}

// WithCategories keeps servers carrying at least one of the categories.
// Both tags ("p2p") and API descriptions ("Obfuscated Servers") are accepted.
func WithCategories(categories ...string) Predicate {
	tags := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			tags = append(tags, catalog.CategoryTag(c))
		}
	}
	if len(tags) == 0 {
		return pass
	}
	return func(s *catalog.Server) bool {
		for _, tag := range tags {
			if s.HasCategory(tag) {
				return true
			}
		}
		return false
	}
}

// WithFeatures keeps servers supporting at least one of the features.
func WithFeatures(features ...string) Predicate {
	set := lowerSet(features)
	if len(set) == 0 {
		return pass
	}
	return func(s *catalog.Server) bool {
		for _, f := range s.Features {
			if _, ok := set[strings.ToLower(f)]; ok {
				return true
			}
		}
		return false
	}
}

// MatchingNames keeps servers whose domain matches one of the glob patterns.
// Malformed patterns match nothing; Criteria.Validate reports them.
func MatchingNames(patterns ...string) Predicate {
	if len(patterns) == 0 {
		return pass
	}
	return func(s *catalog.Server) bool {
		for _, p := range patterns {
			if ok, err := path.Match(strings.ToLower(p), s.Domain); err == nil && ok {
				return true
			}
		}
		return false
	}
}

// Netflix keeps servers tagged "netflix" as a category or a feature.
func Netflix(s *catalog.Server) bool {
	return s.HasTag(NetflixTag)
}

// LoadWithin compares the server load with threshold. An empty match means max.
func LoadWithin(threshold int, match LoadMatch) Predicate {
	switch match {
	case MatchMin:
		return func(s *catalog.Server) bool { return s.Load >= threshold }
	case MatchEqual:
		return func(s *catalog.Server) bool { return s.Load == threshold }
	default:
		return func(s *catalog.Server) bool { return s.Load <= threshold }
	}
}

// Reachability drops servers whose ping was measured as unreachable.
// Servers not measured yet pass; the ranker excludes them after measuring.
func Reachability(s *catalog.Server) bool {
	return !s.PingMeasured || s.Reachable()
}

// Build composes the criteria into one predicate: OR within a field,
// AND across fields.
func Build(c Criteria) (Predicate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	preds := []Predicate{
		InCountries(c.Countries...),
		InAreas(c.Areas...),
		WithCategories(c.Categories...),
		WithFeatures(c.Features...),
		MatchingNames(c.Names...),
		Reachability,
	}
	if c.NetflixOnly {
		preds = append(preds, Netflix)
	}
	if c.LoadThreshold != nil {
		preds = append(preds, LoadWithin(*c.LoadThreshold, c.LoadMatch))
	}
	return And(preds...), nil
}

// Apply collects the servers of seq that pass pred, in sequence order.
func Apply(seq iter.Seq[*catalog.Server], pred Predicate) []*catalog.Server {
	var out []*catalog.Server
	for s := range seq {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// Filter builds the predicate for c and applies it to the catalog.
// An empty result is not an error.
func Filter(cat *catalog.Catalog, c Criteria) ([]*catalog.Server, error) {
	pred, err := Build(c)
	if err != nil {
		return nil, err
	}
	return Apply(cat.All(), pred), nil
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}
