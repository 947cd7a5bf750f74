// Package rules evaluates placement blocking rules against a targeting
// context.
package rules

import (
	"sort"
	"strings"

	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/targeting"
)

// All is the sentinel key produced by a triggered rule with no placement
// keys. Callers treat it as "every placement is blocked".
const All = "ALL"

// Set is a set of blocked placement keys.
type Set map[string]struct{}

// Has reports whether key itself is in the set.
func (s Set) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// All reports whether the set contains the ALL sentinel.
func (s Set) All() bool { return s.Has(All) }

// Blocks reports whether a placement with this key must be suppressed.
func (s Set) Blocks(key string) bool { return s.All() || s.Has(key) }

// Keys returns the members in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BlockedKeys returns the union of the placement keys of every enabled rule
// that triggers for c. A triggered rule without placement keys contributes
// the ALL sentinel.
func BlockedKeys(rules []placement.AdRule, c targeting.Context) Set {
	blocked := Set{}
	for _, r := range rules {
		if !r.Enabled || !Triggers(r, c) {
			continue
		}
		if len(r.PlacementKeys) == 0 {
			blocked[All] = struct{}{}
			continue
		}
		for _, k := range r.PlacementKeys {
			blocked[k] = struct{}{}
		}
	}
	return blocked
}

// Triggers reports whether any component of c selected by r satisfies the
// rule's comparator. The Enabled flag is not consulted.
func Triggers(r placement.AdRule, c targeting.Context) bool {
	for _, component := range Components(r.Component, c) {
		if Compare(r.Comparator, component, r.Value) {
			return true
		}
	}
	return false
}

// Components returns the values of c a rule of the given component tests.
// Unknown components yield nothing, so the rule never triggers.
func Components(component placement.Component, c targeting.Context) []string {
	switch component {
	case placement.ComponentPath:
		return []string{c.Path()}
	case placement.ComponentURL:
		return []string{c.URL}
	case placement.ComponentTag:
		return c.Keywords
	case placement.ComponentCategory:
		return c.Sections
	}
	return nil
}

// Compare applies comparator to value against pattern. Unknown comparators
// never match.
func Compare(comparator placement.Comparator, value, pattern string) bool {
	switch comparator {
	case placement.Contains:
		return strings.Contains(value, pattern)
	case placement.StartsWith:
		return strings.HasPrefix(value, pattern)
	case placement.ExactlyMatches:
		return value == pattern
	}
	return false
}
