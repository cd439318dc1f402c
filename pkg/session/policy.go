package session

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// URLPolicy restricts which URLs a session may navigate to.
// A nil or empty policy allows everything.
type URLPolicy struct {
	patterns []string
	globs    []glob.Glob
}

// NewURLPolicy compiles glob patterns such as "https://github.com/*".
// Wildcards match across path separators.
func NewURLPolicy(patterns ...string) (*URLPolicy, error) {
	p := &URLPolicy{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
		}
		p.patterns = append(p.patterns, pattern)
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// Patterns returns the compiled patterns.
func (p *URLPolicy) Patterns() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.patterns...)
}

// Allow returns nil when url matches a pattern, or the policy has none.
func (p *URLPolicy) Allow(url string) error {
	if p == nil || len(p.globs) == 0 {
		return nil
	}
	for _, g := range p.globs {
		if g.Match(url) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrURLNotAllowed, url)
}
