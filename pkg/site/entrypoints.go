package site

import (
	"sort"
	"sync"
)

// Entry point groups the engine itself understands. Site files may
// define additional groups for plugins; they flow through untouched.
const (
	// GroupAddPaths hooks contribute extra site files during Load.
	GroupAddPaths = "hab.site.add_paths"
	// GroupFinalize hooks run after all site files merged.
	GroupFinalize = "hab.site.finalize"
	// GroupLaunchCls names the launcher implementation.
	GroupLaunchCls = "hab.launch_cls"
	// GroupCLI hooks contribute extra CLI commands.
	GroupCLI = "hab.cli"
	// GroupURIValidate hooks check and possibly rewrite a URI before it
	// is resolved. The implementation type lives with the resolver.
	GroupURIValidate = "hab.uri.validate"
)

// AddPathsFunc is the implementation type for GroupAddPaths hooks. The
// returned paths merge as left-most site files.
type AddPathsFunc func(s *Site) []string

// FinalizeFunc is the implementation type for GroupFinalize hooks.
type FinalizeFunc func(s *Site)

// EntryPoint is one named extension hook selected by site
// configuration.
type EntryPoint struct {
	Group string
	Name  string
	Value string
}

// Load resolves the entry point's value to its registered
// implementation.
func (ep EntryPoint) Load() (any, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	impl, ok := registry[ep.Value]
	return impl, ok
}

var (
	registryMu sync.RWMutex
	registry   = map[string]any{}
)

// Register makes a hook implementation available under the given value
// spec, e.g. "hab_gui.cli:gui". Site files select implementations by
// that spec; plugins typically call Register from an init function.
func Register(value string, impl any) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[value] = impl
}

// Unregister removes a previously registered implementation.
func Unregister(value string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, value)
}

// EntryPointsForGroup returns the entry points enabled for group. A
// JSON null value disables a name, letting one site file turn off a
// hook another file enabled. When the site does not define the group at
// all, def supplies fallback definitions.
func (s *Site) EntryPointsForGroup(group string, def map[string]string) []EntryPoint {
	defs := map[string]any{}
	for name, value := range def {
		defs[name] = value
	}

	if eps, ok := s.data["entry_points"].(map[string]any); ok {
		if groupDefs, ok := eps[group].(map[string]any); ok {
			defs = groupDefs
		}
	}

	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []EntryPoint
	for _, name := range names {
		value := defs[name]
		if value == nil {
			// Explicitly disabled.
			continue
		}
		if spec, ok := value.(string); ok {
			out = append(out, EntryPoint{Group: group, Name: name, Value: spec})
		}
	}
	return out
}
