// Package filter turns user criteria into a predicate over catalog servers.
package filter

import (
	"fmt"
	"path"
)

// LoadMatch selects how LoadThreshold is compared with a server's load.
type LoadMatch string

const (
	MatchMax   LoadMatch = "max"
	MatchMin   LoadMatch = "min"
	MatchEqual LoadMatch = "equal"
)

// NetflixTag is the tag a server must carry when NetflixOnly is set.
const NetflixTag = "netflix"

// Criteria is the user intent for one selection pass.
// Empty sets mean no constraint on that field.
type Criteria struct {
	Countries  []string
	Areas      []string
	Categories []string
	Features   []string
	Names      []string // glob patterns on the domain, e.g. "us*"

	NetflixOnly bool

	LoadThreshold *int
	LoadMatch     LoadMatch // ignored when LoadThreshold is nil

	TopN int
	Best bool
}

// Validate checks the load settings and name patterns.
func (c Criteria) Validate() error {
	if c.LoadThreshold != nil {
		if *c.LoadThreshold < 0 || *c.LoadThreshold > 100 {
			return fmt.Errorf("load threshold %d must be between 0 and 100", *c.LoadThreshold)
		}
		switch c.LoadMatch {
		case "", MatchMax, MatchMin, MatchEqual:
		default:
			return fmt.Errorf("unknown load match %q: must be one of max, min, equal", c.LoadMatch)
		}
	}
	if c.TopN < 0 {
		return fmt.Errorf("top n must not be negative, got %d", c.TopN)
	}
	for _, pattern := range c.Names {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid name pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Limit is the number of candidates the ranking keeps: 1 in best mode,
// otherwise TopN (defaulting to 1).
func (c Criteria) Limit() int {
	if c.Best || c.TopN <= 0 {
		return 1
	}
	return c.TopN
}

// Threshold returns a Criteria load threshold pointer for v.
func Threshold(v int) *int {
	return &v
}
