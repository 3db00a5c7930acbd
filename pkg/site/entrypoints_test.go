package site

import (
	"testing"

	"github.com/talusfx/hab/pkg/platform"
)

func TestEntryPointsForGroup(t *testing.T) {
	dir := t.TempDir()
	left := writeSiteFile(t, dir, "left.json", `{"set": {"entry_points": {
		"hab.cli": {"gui": null, "extra": "hab_extra.cli:extra"}
	}}}`)
	right := writeSiteFile(t, dir, "right.json", `{"set": {"entry_points": {
		"hab.cli": {"gui": "hab_gui.cli:gui"},
		"hab.launch_cls": {"default": "hab_gui.launcher:Launcher"}
	}}}`)

	s, err := Load([]string{left, right}, platform.Linux, quietLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Left file disables gui with null while its extra hook survives.
	eps := s.EntryPointsForGroup(GroupCLI, nil)
	if len(eps) != 1 || eps[0].Name != "extra" || eps[0].Value != "hab_extra.cli:extra" {
		t.Errorf("EntryPointsForGroup(cli) = %v", eps)
	}

	eps = s.EntryPointsForGroup(GroupLaunchCls, nil)
	if len(eps) != 1 || eps[0].Value != "hab_gui.launcher:Launcher" {
		t.Errorf("EntryPointsForGroup(launch_cls) = %v", eps)
	}
}

func TestEntryPointsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeSiteFile(t, dir, "site.json", `{}`)
	s, err := Load([]string{path}, platform.Linux, quietLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	def := map[string]string{"default": "hab.launch:Subprocess"}
	eps := s.EntryPointsForGroup(GroupLaunchCls, def)
	if len(eps) != 1 || eps[0].Value != "hab.launch:Subprocess" {
		t.Errorf("EntryPointsForGroup() = %v, want fallback default", eps)
	}
}

func TestEntryPointsGroupOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeSiteFile(t, dir, "site.json", `{"set": {"entry_points": {
		"hab.launch_cls": {"custom": "plugin.launch:Custom"}
	}}}`)
	s, err := Load([]string{path}, platform.Linux, quietLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// A defined group replaces the defaults entirely, it does not merge.
	def := map[string]string{"default": "hab.launch:Subprocess"}
	eps := s.EntryPointsForGroup(GroupLaunchCls, def)
	if len(eps) != 1 || eps[0].Name != "custom" {
		t.Errorf("EntryPointsForGroup() = %v, want only custom", eps)
	}
}

func TestRegisterLoad(t *testing.T) {
	called := false
	Register("test.hooks:mark", FinalizeFunc(func(s *Site) { called = true }))
	defer Unregister("test.hooks:mark")

	ep := EntryPoint{Group: GroupFinalize, Name: "mark", Value: "test.hooks:mark"}
	impl, ok := ep.Load()
	if !ok {
		t.Fatal("Load() did not find registered implementation")
	}
	fn, ok := impl.(FinalizeFunc)
	if !ok {
		t.Fatalf("Load() = %T, want FinalizeFunc", impl)
	}
	fn(nil)
	if !called {
		t.Error("registered hook was not invoked")
	}

	if _, ok := (EntryPoint{Value: "missing:impl"}).Load(); ok {
		t.Error("Load() found unregistered implementation")
	}
}

func TestAddPathsHook(t *testing.T) {
	dir := t.TempDir()
	extra := writeSiteFile(t, dir, "extra.json", `{"set": {"from_hook": true}}`)
	main := writeSiteFile(t, dir, "main.json", `{"set": {
		"from_hook": false,
		"entry_points": {"hab.site.add_paths": {"extra": "test.hooks:add"}}
	}}`)

	Register("test.hooks:add", AddPathsFunc(func(s *Site) []string {
		return []string{extra}
	}))
	defer Unregister("test.hooks:add")

	s, err := Load([]string{main}, platform.Linux, quietLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Hook paths merge as left-most files so they win over main.json.
	if !s.Bool("from_hook", false) {
		t.Error("hook site file did not take precedence")
	}
	if len(s.Paths) != 2 || s.Paths[0] != extra {
		t.Errorf("Paths = %v, want hook path first", s.Paths)
	}
}
