package forest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/pep440"
)

// Separator joins URI segments.
const Separator = "/"

// Doc is one JSON document located by a scan. Data carries the parsed
// payload when a habcache or finder already has it; nil means the
// loader reads Path itself.
type Doc struct {
	Dir  string         // glob root that produced the file
	Path string         // path to the JSON file
	Data map[string]any // pre-parsed payload, may be nil
}

// Node holds the fields shared by config and distro-version entries.
// Inheritable fields distinguish "absent" (nil) from "present but
// empty" so the reducer knows when to keep walking.
type Node struct {
	Name     string
	Filename string
	Dirname  string

	Distros      *pep440.RequirementSet // nil when the file has no distros key
	Environment  *env.Block
	AliasMods    map[string]*env.Block
	MinVerbosity map[string]int
	Variables    map[string]string
	Optional     []OptionalDistro
	Stubs        *StubOverrides

	// Err records a load defect (such as an unparseable requirement)
	// that should only surface when this node is actually used.
	Err error

	// Raw preserves the whole document for plugin keys the engine does
	// not model.
	Raw map[string]any

	rootDirs map[string]bool
}

// OptionalDistro is one entry of `optional_distros`: a requirement the
// user may force on with -r, plus its description.
type OptionalDistro struct {
	Requirement string
	Description string
	Default     bool
}

// StubOverrides is a config's `stub_distros` adjustment. Set entries
// add or replace site stub rules (a nil rule means explicitly
// disabled); Unset names patterns to disable.
type StubOverrides struct {
	Set   map[string]*StubRule
	Unset []string
}

// StubRule allows a distro name pattern to resolve to a stub. An empty
// Limit allows any requirement; otherwise the requirement's pins must
// fall inside the limit specifier set.
type StubRule struct {
	Limit string
}

// ParseStubRules converts a raw `stub_distros` mapping (pattern to rule
// or null) into typed rules.
func ParseStubRules(raw any) (map[string]*StubRule, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "stub_distros must be an object")
	}
	rules := make(map[string]*StubRule, len(m))
	for pattern, value := range m {
		rule, err := parseStubRule(pattern, value)
		if err != nil {
			return nil, err
		}
		rules[pattern] = rule
	}
	return rules, nil
}

func parseStubRule(pattern string, value any) (*StubRule, error) {
	if value == nil {
		// Explicitly disabled.
		return nil, nil
	}
	m, ok := value.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "stub_distros entry %q must be an object or null", pattern)
	}
	rule := &StubRule{}
	if limit, ok := m["limit"]; ok {
		s, ok := limit.(string)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "stub_distros entry %q has a non-string limit", pattern)
		}
		if _, err := pep440.ParseSpecifiers(s); err != nil {
			return nil, err
		}
		rule.Limit = s
	}
	return rule, nil
}

// hasRoot reports whether dir already contributed this node.
func (n *Node) hasRoot(dir string) bool {
	return n.rootDirs[dir]
}

// sharesRoot reports whether any of dirs already contributed this node.
// A shared root means the same glob dir defined the entry twice, which
// is an error rather than a layering of config dirs.
func (n *Node) sharesRoot(dirs map[string]bool) bool {
	for dir := range dirs {
		if n.rootDirs[dir] {
			return true
		}
	}
	return false
}

func (n *Node) addRoots(dirs map[string]bool) {
	if n.rootDirs == nil {
		n.rootDirs = map[string]bool{}
	}
	for dir := range dirs {
		n.rootDirs[dir] = true
	}
}

// parseNode fills the shared fields from a raw document.
func (n *Node) parseNode(data map[string]any, path string) error {
	name, ok := data["name"].(string)
	if !ok || name == "" {
		return errors.New(errors.ErrCodeInvalidInput, "missing required key %q in %q", "name", path)
	}
	n.Name = name
	n.Raw = data

	if raw, ok := data["distros"]; ok {
		reqs, err := parseDistroList(raw, path)
		if err != nil {
			// Keep the node, surface the defect on use.
			n.Err = err
			reqs = pep440.NewRequirementSet()
		}
		n.Distros = reqs
	}

	if raw, ok := data["environment"]; ok {
		block, err := blockFromAny(raw)
		if err != nil {
			return errors.Wrap(errors.GetCode(err), err, "invalid environment in %q", path)
		}
		n.Environment = block
	}

	if raw, ok := data["alias_mods"]; ok {
		mods, err := parseAliasMods(raw, path)
		if err != nil {
			return err
		}
		n.AliasMods = mods
	}

	if raw, ok := data["min_verbosity"]; ok {
		mv, err := parseMinVerbosity(raw, path)
		if err != nil {
			return err
		}
		n.MinVerbosity = mv
	}

	if raw, ok := data["variables"]; ok {
		vars, err := parseVariables(raw, path)
		if err != nil {
			return err
		}
		n.Variables = vars
	}

	if raw, ok := data["optional_distros"]; ok {
		opt, err := parseOptionalDistros(raw, path)
		if err != nil {
			return err
		}
		n.Optional = opt
	}

	if raw, ok := data["stub_distros"]; ok {
		stubs, err := parseStubOverrides(raw, path)
		if err != nil {
			return err
		}
		n.Stubs = stubs
	}

	return nil
}

func parseDistroList(raw any, path string) (*pep440.RequirementSet, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidRequirement, "distros must be a list in %q", path)
	}
	set := pep440.NewRequirementSet()
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidRequirement, "distros entries must be strings in %q", path)
		}
		req, err := pep440.ParseRequirement(s)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid distro requirement in %q", path)
		}
		if err := set.Append(req); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// blockFromAny round-trips an already-decoded JSON value through
// env.ParseBlock, which wants raw bytes.
func blockFromAny(raw any) (*env.Block, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "re-encoding environment value")
	}
	return env.ParseBlock(data)
}

func parseAliasMods(raw any, path string) (map[string]*env.Block, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "alias_mods must be an object in %q", path)
	}
	mods := make(map[string]*env.Block, len(m))
	for alias, value := range m {
		spec, ok := value.(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "alias_mods entry %q must be an object in %q", alias, path)
		}
		rawEnv, ok := spec["environment"]
		if !ok {
			// Only environment adjustments are meaningful; an empty mod
			// is kept so it still counts as "present".
			mods[alias] = &env.Block{}
			continue
		}
		block, err := blockFromAny(rawEnv)
		if err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "invalid alias_mods environment for %q in %q", alias, path)
		}
		mods[alias] = block
	}
	return mods, nil
}

func parseMinVerbosity(raw any, path string) (map[string]int, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "min_verbosity must be an object in %q", path)
	}
	mv := make(map[string]int, len(m))
	for target, value := range m {
		f, ok := value.(float64)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "min_verbosity entry %q must be a number in %q", target, path)
		}
		mv[target] = int(f)
	}
	return mv, nil
}

func parseVariables(raw any, path string) (map[string]string, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "variables must be an object in %q", path)
	}
	vars := make(map[string]string, len(m))
	for name, value := range m {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		vars[name] = s
	}
	if err := env.CheckVariables(vars); err != nil {
		return nil, err
	}
	return vars, nil
}

func parseOptionalDistros(raw any, path string) ([]OptionalDistro, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "optional_distros must be an object in %q", path)
	}
	reqs := make([]string, 0, len(m))
	for req := range m {
		reqs = append(reqs, req)
	}
	sort.Strings(reqs)

	out := make([]OptionalDistro, 0, len(m))
	for _, req := range reqs {
		if _, err := pep440.ParseRequirement(req); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "invalid optional_distros entry in %q", path)
		}
		entry := OptionalDistro{Requirement: req}
		spec, ok := m[req].([]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "optional_distros entry %q must be a list in %q", req, path)
		}
		if len(spec) > 0 {
			if desc, ok := spec[0].(string); ok {
				entry.Description = desc
			}
		}
		if len(spec) > 1 {
			if def, ok := spec[1].(bool); ok {
				entry.Default = def
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func parseStubOverrides(raw any, path string) (*StubOverrides, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidInput, "stub_distros must be an object in %q", path)
	}
	out := &StubOverrides{}
	if rawSet, ok := m["set"]; ok {
		rules, err := ParseStubRules(rawSet)
		if err != nil {
			return nil, err
		}
		out.Set = rules
	}
	if rawUnset, ok := m["unset"]; ok {
		list, ok := rawUnset.([]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "stub_distros unset must be a list in %q", path)
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidInput, "stub_distros unset entries must be strings in %q", path)
			}
			out.Unset = append(out.Unset, s)
		}
	}
	return out, nil
}

// JoinURI builds a URI from segments.
func JoinURI(segments ...string) string {
	return strings.Join(segments, Separator)
}

// SplitURI splits a URI into its segments. Empty segments from leading,
// trailing or doubled separators are dropped.
func SplitURI(uri string) []string {
	parts := strings.Split(uri, Separator)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParentURI returns the URI with its last segment removed, or "" for a
// root.
func ParentURI(uri string) string {
	i := strings.LastIndex(uri, Separator)
	if i < 0 {
		return ""
	}
	return uri[:i]
}
