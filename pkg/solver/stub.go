package solver

import (
	"path"
	"sort"

	"github.com/talusfx/hab/pkg/forest"
	"github.com/talusfx/hab/pkg/pep440"
)

// MergeStubRules overlays a config's stub_distros adjustments onto the
// site rules. Set entries add or replace patterns; Unset patterns are
// disabled. A nil rule never creates a stub.
func MergeStubRules(site map[string]*forest.StubRule, overrides *forest.StubOverrides) map[string]*forest.StubRule {
	out := make(map[string]*forest.StubRule, len(site))
	for pattern, rule := range site {
		out[pattern] = rule
	}
	if overrides == nil {
		return out
	}
	for pattern, rule := range overrides.Set {
		out[pattern] = rule
	}
	for _, pattern := range overrides.Unset {
		out[pattern] = nil
	}
	return out
}

// stubFor returns the stub version for req when a rule's pattern
// matches its name and the rule's limit, if any, admits the
// requirement. Patterns are checked in sorted order and the first
// applicable rule wins.
func (s *Solver) stubFor(req *pep440.Requirement) *forest.DistroVersion {
	if len(s.StubRules) == 0 {
		return nil
	}
	for _, pattern := range sortedPatterns(s.StubRules) {
		matched, err := path.Match(pattern, req.Name)
		if err != nil || !matched {
			continue
		}
		rule := s.StubRules[pattern]
		if rule == nil {
			// Explicitly disabled.
			continue
		}
		if rule.Limit != "" {
			limit, err := pep440.ParseSpecifiers(rule.Limit)
			if err != nil || !req.Specs.Within(limit) {
				continue
			}
		}
		s.logger().Info("Creating stub distro", "distro", req.Name, "pattern", pattern)
		return s.distros.Ensure(req.Name).StubVersion()
	}
	return nil
}

func sortedPatterns(rules map[string]*forest.StubRule) []string {
	patterns := make([]string, 0, len(rules))
	for pattern := range rules {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}
