// Package site loads and merges hab site configuration files.
//
// A site is an ordered list of JSON files naming where configs and
// distros live plus free-form settings. Files are merged left-most
// wins: the first file in HAB_PATHS (or --site order) overrides any
// later file, letting a user file refine a studio file which refines a
// shared default.
package site

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/env"
	"github.com/talusfx/hab/pkg/errors"
	habio "github.com/talusfx/hab/pkg/io"
	"github.com/talusfx/hab/pkg/platform"
)

// PathsVar is the environment variable listing site files when --site
// is not given.
const PathsVar = "HAB_PATHS"

// Site is the merged settings from all loaded site files.
type Site struct {
	// Paths are the loaded site files in priority order. Files added by
	// the add_paths hook are inserted at the front.
	Paths []string

	// Logger receives load diagnostics. Defaults to log.Default().
	Logger *log.Logger

	p    platform.Platform
	data map[string]any
}

// Settings every site starts from. Site files override them.
func defaultData() map[string]any {
	return map[string]any{
		"config_paths":             []any{},
		"distro_paths":             []any{},
		"ignored_distros":          []any{"release", "pre"},
		"platforms":                []any{"windows", "osx", "linux"},
		"site_cache_file_template": []any{"{stem}.habcache"},
	}
}

// Load reads and merges the given site files. When paths is empty the
// HAB_PATHS environment variable supplies the list.
func Load(paths []string, p platform.Platform, logger *log.Logger) (*Site, error) {
	if p == nil {
		p = platform.Current()
	}
	if logger == nil {
		logger = log.Default()
	}
	if len(paths) == 0 {
		paths = SplitPaths(p, os.Getenv(PathsVar))
	}

	s := &Site{Logger: logger, p: p, data: defaultData()}
	for _, path := range paths {
		expanded, err := expandUser(os.ExpandEnv(path))
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSiteLoad, err, "unable to expand site path %q", path)
		}
		s.Paths = append(s.Paths, expanded)
	}

	// Load right to left so files earlier in the list override later
	// ones.
	for i := len(s.Paths) - 1; i >= 0; i-- {
		if err := s.loadFile(s.Paths[i]); err != nil {
			return nil, err
		}
	}

	// Hook: registered add_paths extensions may contribute site files
	// that cannot be hard coded, such as files shipped inside a
	// deployed tool. They merge as left-most and do not re-trigger the
	// hook themselves.
	for _, ep := range s.EntryPointsForGroup(GroupAddPaths, nil) {
		impl, ok := ep.Load()
		if !ok {
			s.Logger.Warn("unknown entry point, skipping", "group", ep.Group, "name", ep.Name, "value", ep.Value)
			continue
		}
		fn, ok := impl.(AddPathsFunc)
		if !ok {
			s.Logger.Warn("entry point has wrong type", "group", ep.Group, "value", ep.Value)
			continue
		}
		added := fn(s)
		for i := len(added) - 1; i >= 0; i-- {
			path := added[i]
			if containsString(s.Paths, path) {
				s.Logger.Debug("path already added, skipping", "path", path)
				continue
			}
			s.Logger.Debug("path added by entry point", "group", ep.Group, "path", path)
			s.Paths = append([]string{path}, s.Paths...)
			if err := s.loadFile(path); err != nil {
				return nil, err
			}
		}
	}

	s.normalizePathSettings()
	if err := s.checkPathMaps(); err != nil {
		return nil, err
	}

	// Hook: last chance to adjust the merged settings.
	for _, ep := range s.EntryPointsForGroup(GroupFinalize, nil) {
		impl, ok := ep.Load()
		if !ok {
			s.Logger.Warn("unknown entry point, skipping", "group", ep.Group, "name", ep.Name, "value", ep.Value)
			continue
		}
		if fn, ok := impl.(FinalizeFunc); ok {
			fn(s)
		}
	}
	return s, nil
}

// loadFile merges one site file on top of the current settings.
func (s *Site) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSiteLoad, err, "unable to read site file %s", path)
	}
	std, err := habio.Standardize(data)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSiteLoad, err, "invalid json in site file %s", path)
	}
	var doc map[string]any
	if err := json.Unmarshal(std, &doc); err != nil {
		return errors.Wrap(errors.ErrCodeSiteLoad, err, "invalid json in site file %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	formatter := &env.Formatter{
		Language: env.Preserve,
		Vars:     map[string]string{"relative_root": platform.ForwardSlash(filepath.Dir(abs))},
	}

	for _, section := range s.platformSections(doc) {
		if err := s.applyOps(section, formatter, path); err != nil {
			return err
		}
	}
	return nil
}

// platformSections returns the operation dicts applying to the current
// platform, wildcard first.
func (s *Site) platformSections(doc map[string]any) []map[string]any {
	osSpecific, _ := doc["os_specific"].(bool)
	if !osSpecific {
		trimmed := make(map[string]any, len(doc))
		for key, value := range doc {
			if key == "os_specific" {
				continue
			}
			trimmed[key] = value
		}
		return []map[string]any{trimmed}
	}

	var sections []map[string]any
	if wild, ok := doc[platform.Wildcard].(map[string]any); ok {
		sections = append(sections, wild)
	}
	if plat, ok := doc[s.p.Name()].(map[string]any); ok {
		sections = append(sections, plat)
	}
	return sections
}

func (s *Site) applyOps(ops map[string]any, formatter *env.Formatter, path string) error {
	// Fixed application order so a file's set can override its own
	// unset and its prepend/append extend its own set.
	names := []string{"unset", "set", "prepend", "append"}
	for name := range ops {
		if !containsString(names, name) {
			s.Logger.Warn("unknown site operation, skipping", "operation", name, "file", path)
		}
	}

	for _, name := range names {
		if _, ok := ops[name]; !ok {
			continue
		}
		switch name {
		case "unset":
			keys, ok := ops[name].([]any)
			if !ok {
				return errors.New(errors.ErrCodeSiteLoad, "unset must be a list in site file %s", path)
			}
			for _, key := range keys {
				if k, ok := key.(string); ok {
					delete(s.data, k)
				}
			}
		case "set":
			entries, ok := ops[name].(map[string]any)
			if !ok {
				return errors.New(errors.ErrCodeSiteLoad, "set must be an object in site file %s", path)
			}
			if err := s.applyEntries(entries, formatter, path, s.mergeSet); err != nil {
				return err
			}
		case "prepend":
			entries, ok := ops[name].(map[string]any)
			if !ok {
				return errors.New(errors.ErrCodeSiteLoad, "prepend must be an object in site file %s", path)
			}
			if err := s.applyEntries(entries, formatter, path, s.mergePrepend); err != nil {
				return err
			}
		case "append":
			entries, ok := ops[name].(map[string]any)
			if !ok {
				return errors.New(errors.ErrCodeSiteLoad, "append must be an object in site file %s", path)
			}
			if err := s.applyEntries(entries, formatter, path, s.mergeAppend); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Site) applyEntries(entries map[string]any, formatter *env.Formatter, path string, merge func(key string, value any)) error {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, err := formatAny(entries[key], formatter)
		if err != nil {
			return errors.Wrap(errors.ErrCodeSiteLoad, err, "invalid value for %q in site file %s", key, path)
		}
		merge(key, value)
	}
	return nil
}

// mergeSet stores value under key. Object values merge per entry so a
// later (lefter) file can override one platform_path_maps mapping or
// disable one entry point without discarding the rest.
func (s *Site) mergeSet(key string, value any) {
	newMap, newOK := value.(map[string]any)
	oldMap, oldOK := s.data[key].(map[string]any)
	if newOK && oldOK {
		s.data[key] = mergeMaps(oldMap, newMap)
		return
	}
	s.data[key] = value
}

func (s *Site) mergePrepend(key string, value any) {
	existing := s.data[key]
	if isEmptyValue(existing) {
		s.data[key] = s.toList(value)
		return
	}
	s.data[key] = s.join(value, existing)
}

func (s *Site) mergeAppend(key string, value any) {
	existing := s.data[key]
	if isEmptyValue(existing) {
		s.data[key] = s.toList(value)
		return
	}
	s.data[key] = s.join(existing, value)
}

// join flattens a then b into one list. Object values union instead,
// with b winning duplicate keys.
func (s *Site) join(a, b any) any {
	if am, ok := a.(map[string]any); ok {
		if bm, ok := b.(map[string]any); ok {
			return mergeMaps(am, bm)
		}
		return am
	}
	return append(s.toList(a), s.toList(b)...)
}

// toList coerces a merged value to a flat list. Strings split on the
// platform list separator so "a:b" contributes two entries.
func (s *Site) toList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return append([]any{}, t...)
	case string:
		parts := platform.ExpandPaths(s.p, t)
		out := make([]any, len(parts))
		for i, part := range parts {
			out[i] = part
		}
		return out
	default:
		return []any{v}
	}
}

// normalizePathSettings expands env vars in config_paths and
// distro_paths after all files merged.
func (s *Site) normalizePathSettings() {
	for _, key := range []string{"config_paths", "distro_paths"} {
		paths := s.StringList(key)
		out := make([]any, 0, len(paths))
		for _, p := range paths {
			expanded, err := expandUser(os.ExpandEnv(p))
			if err != nil {
				expanded = os.ExpandEnv(p)
			}
			out = append(out, expanded)
		}
		s.data[key] = out
	}
}

// Get returns the raw setting stored under key.
func (s *Site) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Has reports whether key is set.
func (s *Site) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}

// Keys returns all setting names in sorted order.
func (s *Site) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Bool returns a boolean setting, or def when unset or mistyped.
func (s *Site) Bool(key string, def bool) bool {
	if v, ok := s.data[key].(bool); ok {
		return v
	}
	return def
}

// Int returns an integer setting, or def when unset or mistyped.
func (s *Site) Int(key string, def int) int {
	switch v := s.data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// String returns a string setting, or def when unset or mistyped.
func (s *Site) String(key, def string) string {
	if v, ok := s.data[key].(string); ok {
		return v
	}
	return def
}

// StringList returns a list setting coerced to strings. Scalars wrap
// into a one-element list.
func (s *Site) StringList(key string) []string {
	switch v := s.data[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// Platform returns the platform this site was loaded for.
func (s *Site) Platform() platform.Platform {
	return s.p
}

// Platforms returns the platform names the site supports. Freezes
// compose an environment for each.
func (s *Site) Platforms() []string {
	return s.StringList("platforms")
}

// ConfigPaths returns the directories scanned for config files.
func (s *Site) ConfigPaths() []string {
	return s.StringList("config_paths")
}

// DistroPaths returns the directories scanned for distro files.
func (s *Site) DistroPaths() []string {
	return s.StringList("distro_paths")
}

// IgnoredDistros returns directory names skipped while scanning
// distros, typically versioning scheme leftovers.
func (s *Site) IgnoredDistros() []string {
	return s.StringList("ignored_distros")
}

// CacheFileTemplate returns the habcache sidecar filename template.
// The {stem} token stands for the site file's name without extension.
func (s *Site) CacheFileTemplate() string {
	if list := s.StringList("site_cache_file_template"); len(list) > 0 {
		return list[0]
	}
	return "{stem}.habcache"
}

// FreezeVersion returns the configured freeze encoding version, or 0
// when the site leaves the default in effect.
func (s *Site) FreezeVersion() int {
	return s.Int("freeze_version", 0)
}

// Colorize reports whether dump output should use color.
func (s *Site) Colorize() bool {
	return s.Bool("colorize", true)
}

// SplitPaths splits a HAB_PATHS style string into site file paths.
func SplitPaths(p platform.Platform, value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range platform.ExpandPaths(p, value) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// JoinPaths is the inverse of SplitPaths.
func JoinPaths(p platform.Platform, paths []string) string {
	return strings.Join(paths, p.ListSep())
}

func formatAny(v any, formatter *env.Formatter) (any, error) {
	switch t := v.(type) {
	case string:
		return formatter.Format(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			formatted, err := formatAny(item, formatter)
			if err != nil {
				return nil, err
			}
			out[i] = formatted
		}
		return out, nil
	default:
		// Objects, booleans and numbers pass through unformatted.
		return v, nil
	}
}

func mergeMaps(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range override {
		baseChild, baseOK := out[key].(map[string]any)
		overChild, overOK := value.(map[string]any)
		if baseOK && overOK {
			out[key] = mergeMaps(baseChild, overChild)
			continue
		}
		out[key] = value
	}
	return out
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func expandUser(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return path, err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
