// Package ratelimit implements sliding-window request limiting keyed by
// (identity, endpoint), with abuse-state severity multipliers shrinking the
// effective ceiling.
package ratelimit

import (
	"sort"
	"strings"
	"time"
)

// Rule configures the window for one endpoint prefix.
type Rule struct {
	Prefix      string
	Window      time.Duration
	MaxRequests int
}

// Rules is a static endpoint-to-limit table matched by longest-prefix-wins.
// Endpoints with no matching rule are never rate limited.
type Rules struct {
	rules []Rule
}

// NewRules builds a rule table. Rules are sorted by descending prefix length
// once at construction so Match is a deterministic longest-prefix scan.
func NewRules(rules []Rule) *Rules {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Rules{rules: sorted}
}

// DefaultRules is the production endpoint limit table.
func DefaultRules() *Rules {
	return NewRules([]Rule{
		{Prefix: "/v1/takedowns", Window: time.Minute, MaxRequests: 10},
		{Prefix: "/v1/brand-profiles", Window: time.Minute, MaxRequests: 30},
		{Prefix: "/v1/monitoring-sessions", Window: time.Minute, MaxRequests: 30},
		{Prefix: "/v1/billing", Window: time.Minute, MaxRequests: 20},
		{Prefix: "/v1", Window: time.Minute, MaxRequests: 120},
	})
}

// Match returns the rule with the longest prefix matching the path, or
// false when no rule applies. Ties on equal-length prefixes resolve to the
// earliest rule in the original table (stable sort), which keeps matching
// deterministic.
func (r *Rules) Match(path string) (Rule, bool) {
	for _, rule := range r.rules {
		if strings.HasPrefix(path, rule.Prefix) {
			return rule, true
		}
	}
	return Rule{}, false
}
