package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/freeze"
	"github.com/talusfx/hab/pkg/pep440"
	"github.com/talusfx/hab/pkg/platform"
	"github.com/talusfx/hab/pkg/site"
)

func quietLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
}

// fixture lays out a site with one config dir and one distro dir under
// a temp root.
type fixture struct {
	t       *testing.T
	dir     string
	configs string
	distros string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	fx := &fixture{
		t:       t,
		dir:     dir,
		configs: filepath.Join(dir, "configs"),
		distros: filepath.Join(dir, "distros"),
	}
	for _, sub := range []string{fx.configs, fx.distros} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return fx
}

// config writes a config file into the scanned config dir.
func (fx *fixture) config(stem, content string) {
	fx.t.Helper()
	path := filepath.Join(fx.configs, stem+".json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fx.t.Fatal(err)
	}
}

// distro writes a .hab.json under its own version folder.
func (fx *fixture) distro(folder, content string) {
	fx.t.Helper()
	dir := filepath.Join(fx.distros, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fx.t.Fatal(err)
	}
	path := filepath.Join(dir, ".hab.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fx.t.Fatal(err)
	}
}

// newResolver builds a resolver over the fixture paths. extra is
// spliced into the site's set block as additional `"key": value` pairs.
func (fx *fixture) newResolver(extra string) *Resolver {
	fx.t.Helper()
	set := fmt.Sprintf(`"config_paths": [%q], "distro_paths": [%q]`, fx.configs, fx.distros)
	if extra != "" {
		set += ", " + extra
	}
	path := filepath.Join(fx.dir, "site.json")
	if err := os.WriteFile(path, []byte(`{"set": {`+set+`}}`), 0o644); err != nil {
		fx.t.Fatal(err)
	}
	s, err := site.Load([]string{path}, platform.Linux, quietLogger())
	if err != nil {
		fx.t.Fatal(err)
	}
	return New(s, quietLogger())
}

// defaultTreeFixture mirrors a studio layout with a default tree, a
// real project and a placeholder level.
func defaultTreeFixture(t *testing.T) *fixture {
	t.Helper()
	fx := newFixture(t)
	fx.config("default", `{"name": "default"}`)
	fx.config("default_sc1", `{"name": "Sc1", "context": ["default"]}`)
	fx.config("default_sc11", `{"name": "Sc11", "context": ["default"]}`)
	fx.config("project_a", `{"name": "project_a"}`)
	fx.config("project_a_sc001_animation",
		`{"name": "Animation", "context": ["project_a", "Sc001"]}`)
	return fx
}

func TestClosestConfig(t *testing.T) {
	r := defaultTreeFixture(t).newResolver("")

	tests := []struct {
		uri  string
		want string
	}{
		{"project_a", "project_a"},
		// "project_a/Sc001" only exists as a placeholder, the walk
		// continues past it.
		{"project_a/Sc001", "project_a"},
		{"project_a/Sc001/Animation", "project_a/Sc001/Animation"},
		{"project_a/Sc001/Animation/Layout", "project_a/Sc001/Animation"},
		{"default/Sc1", "default/Sc1"},
		// Unknown projects land on the default tree, descending by the
		// longest child name prefix per segment.
		{"project_z", "default"},
		{"project_z/Sc101", "default/Sc1"},
		{"project_z/Sc110", "default/Sc11"},
		{"project_z/Sc110/Animation", "default/Sc11"},
	}
	for _, tt := range tests {
		cfg, err := r.ClosestConfig(tt.uri)
		if err != nil {
			t.Errorf("ClosestConfig(%q) error = %v", tt.uri, err)
			continue
		}
		if got := cfg.URI(); got != tt.want {
			t.Errorf("ClosestConfig(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestClosestConfigUnresolved(t *testing.T) {
	fx := newFixture(t)
	fx.config("project_a", `{"name": "project_a"}`)
	r := fx.newResolver("")

	_, err := r.ClosestConfig("project_z")
	if err == nil {
		t.Fatal("ClosestConfig() should fail without a default tree")
	}
	if !errors.Is(err, errors.ErrCodeURIUnresolved) {
		t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.ErrCodeURIUnresolved)
	}
}

func TestResolveNearestFieldWins(t *testing.T) {
	fx := newFixture(t)
	fx.config("project_b", `{
		"name": "project_b",
		"inherits": false,
		"distros": ["dcc"],
		"variables": {"team": "fx"},
		"environment": {"set": {"STUDIO": "hq"}}
	}`)
	fx.config("project_b_sc001", `{
		"name": "Sc001",
		"context": ["project_b"],
		"inherits": true,
		"environment": {"set": {"SHOT": "Sc001"}}
	}`)
	fx.distro("dcc-1.0", `{"name": "dcc", "version": "1.0"}`)
	r := fx.newResolver("")
	ctx := context.Background()

	flat, err := r.Resolve(ctx, "project_b/Sc001")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := flat.MatchedURI(); got != "project_b/Sc001" {
		t.Errorf("MatchedURI() = %q", got)
	}
	if got := flat.Distros().Strings(); len(got) != 1 || got[0] != "dcc" {
		t.Errorf("Distros() = %v, want [dcc] from the parent", got)
	}
	if got := flat.Variables()["team"]; got != "fx" {
		t.Errorf("Variables()[team] = %q, want fx", got)
	}
	if !flat.Inherits() {
		t.Error("Inherits() should report the nearest declared value")
	}

	composed, err := flat.EnvironmentFor(ctx, "linux")
	if err != nil {
		t.Fatalf("EnvironmentFor() error = %v", err)
	}
	if got := composed["HAB_URI"]; len(got) != 1 || got[0] != "project_b/Sc001" {
		t.Errorf("HAB_URI = %v", got)
	}
	if got := composed["SHOT"]; len(got) != 1 || got[0] != "Sc001" {
		t.Errorf("SHOT = %v", got)
	}
	// The child's environment block replaced the parent's entirely; the
	// reduction does not merge blocks key by key.
	if _, ok := composed["STUDIO"]; ok {
		t.Errorf("STUDIO leaked from the parent block: %v", composed)
	}
}

func TestResolveInheritsGate(t *testing.T) {
	fx := newFixture(t)
	fx.config("island", `{"name": "island", "distros": ["dcc"]}`)
	fx.config("island_sc001", `{"name": "Sc001", "context": ["island"]}`)
	fx.distro("dcc-1.0", `{"name": "dcc", "version": "1.0"}`)
	r := fx.newResolver("")
	ctx := context.Background()

	parent, err := r.Resolve(ctx, "island")
	if err != nil {
		t.Fatalf("Resolve(island) error = %v", err)
	}
	if got := parent.Distros().Strings(); len(got) != 1 || got[0] != "dcc" {
		t.Errorf("island Distros() = %v", got)
	}

	// The child never declared inherits, so the walk stops at it and
	// the parent's distros are not adopted.
	child, err := r.Resolve(ctx, "island/Sc001")
	if err != nil {
		t.Fatalf("Resolve(island/Sc001) error = %v", err)
	}
	if child.Distros() != nil {
		t.Errorf("child Distros() = %v, want none without inherits", child.Distros().Strings())
	}
	versions, err := child.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 0 {
		t.Errorf("Versions() = %v, want empty", versions)
	}
}

func TestResolveDefaultSupplementUsesRequestedURI(t *testing.T) {
	fx := newFixture(t)
	fx.config("default", `{"name": "default", "distros": ["houdini"]}`)
	fx.config("default_sc1", `{"name": "Sc1", "context": ["default"], "distros": ["dcc"]}`)
	fx.config("wide", `{"name": "wide", "inherits": true, "environment": {"set": {"X": "1"}}}`)
	fx.distro("houdini-19.0", `{"name": "houdini", "version": "19.0"}`)
	fx.distro("dcc-1.0", `{"name": "dcc", "version": "1.0"}`)
	r := fx.newResolver("")
	ctx := context.Background()

	top, err := r.Resolve(ctx, "wide")
	if err != nil {
		t.Fatalf("Resolve(wide) error = %v", err)
	}
	if got := top.Distros().Strings(); len(got) != 1 || got[0] != "houdini" {
		t.Errorf("wide Distros() = %v, want the default root's", got)
	}

	// The default hop descends with the URI that was requested, not the
	// matched config's, so deeper requests pick deeper default nodes.
	deep, err := r.Resolve(ctx, "wide/Sc1")
	if err != nil {
		t.Fatalf("Resolve(wide/Sc1) error = %v", err)
	}
	if got := deep.MatchedURI(); got != "wide" {
		t.Errorf("MatchedURI() = %q", got)
	}
	if got := deep.Distros().Strings(); len(got) != 1 || got[0] != "dcc" {
		t.Errorf("wide/Sc1 Distros() = %v, want default/Sc1's", got)
	}
	versions, err := deep.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 1 || versions[0].FullName() != "dcc==1.0" {
		t.Errorf("Versions() = %v", versions)
	}
}

func TestResolveSurfacesNodeError(t *testing.T) {
	fx := newFixture(t)
	fx.config("broken", `{"name": "broken", "distros": ["dcc==!!!"]}`)
	r := fx.newResolver("")

	_, err := r.Resolve(context.Background(), "broken")
	if err == nil {
		t.Fatal("Resolve() should surface the node's requirement defect")
	}
	if !errors.Is(err, errors.ErrCodeInvalidRequirement) {
		t.Errorf("error code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidRequirement)
	}
}

func TestURIValidateRewrites(t *testing.T) {
	site.Register("habtest.uri:rewrite", URIValidator(
		func(ctx context.Context, r *Resolver, uri string) (string, error) {
			if uri == "forbidden" {
				return "", errors.New(errors.ErrCodeURIUnresolved, "URI %q is retired", uri)
			}
			if strings.HasPrefix(uri, "old/") {
				return "new/" + strings.TrimPrefix(uri, "old/"), nil
			}
			return "", nil
		}))
	defer site.Unregister("habtest.uri:rewrite")

	fx := newFixture(t)
	fx.config("new_project", `{"name": "project", "context": ["new"]}`)
	r := fx.newResolver(
		`"entry_points": {"hab.uri.validate": {"rewrite": "habtest.uri:rewrite", "zz_gone": "habtest.uri:not_registered"}}`)
	ctx := context.Background()

	got, err := r.URIValidate(ctx, "old/project")
	if err != nil {
		t.Fatalf("URIValidate() error = %v", err)
	}
	if got != "new/project" {
		t.Errorf("URIValidate() = %q, want new/project", got)
	}

	flat, err := r.Resolve(ctx, "old/project")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if flat.URI() != "new/project" {
		t.Errorf("URI() = %q, the rewrite should stick", flat.URI())
	}

	if _, err := r.Resolve(ctx, "forbidden"); err == nil {
		t.Error("Resolve() should propagate a validator rejection")
	}
}

func TestResolveForced(t *testing.T) {
	fx := newFixture(t)
	fx.config("proj", `{"name": "proj", "distros": ["dcc==1.0"]}`)
	fx.distro("dcc-1.0", `{"name": "dcc", "version": "1.0"}`)
	fx.distro("dcc-2.0", `{"name": "dcc", "version": "2.0"}`)
	r := fx.newResolver("")
	ctx := context.Background()

	reqs, err := pep440.ParseRequirements([]string{"dcc==2.0"})
	if err != nil {
		t.Fatal(err)
	}
	flat, err := r.ResolveForced(ctx, "proj", reqs)
	if err != nil {
		t.Fatalf("ResolveForced() error = %v", err)
	}
	if r.Forced != nil {
		t.Error("Forced should be restored after the call")
	}

	// The solve is lazy; the snapshot keeps the override in effect.
	versions, err := flat.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 1 || versions[0].FullName() != "dcc==2.0" {
		t.Errorf("forced Versions() = %v, want [dcc==2.0]", versions)
	}

	plain, err := r.Resolve(ctx, "proj")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	versions, err = plain.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(versions) != 1 || versions[0].FullName() != "dcc==1.0" {
		t.Errorf("plain Versions() = %v, want [dcc==1.0]", versions)
	}
}

func TestFreezeConfigs(t *testing.T) {
	fx := newFixture(t)
	fx.config("ok", `{"name": "ok", "distros": ["dcc"]}`)
	fx.config("bad", `{"name": "bad", "distros": ["ghost"]}`)
	fx.distro("dcc-1.0", `{"name": "dcc", "version": "1.0"}`)
	r := fx.newResolver("")

	out, err := r.FreezeConfigs(context.Background())
	if err != nil {
		t.Fatalf("FreezeConfigs() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("FreezeConfigs() returned %d entries: %v", len(out), out)
	}

	frozen, ok := out["ok"].(*freeze.Frozen)
	if !ok {
		t.Fatalf("ok entry = %T, want *freeze.Frozen", out["ok"])
	}
	if frozen.URI != "ok" || len(frozen.Versions) != 1 || frozen.Versions[0] != "dcc==1.0" {
		t.Errorf("frozen = %+v", frozen)
	}

	msg, ok := out["bad"].(string)
	if !ok || !strings.HasPrefix(msg, "Error resolving bad: ") {
		t.Errorf("bad entry = %v, want an error string", out["bad"])
	}
}

func TestWithVerbosityTargetSharesForests(t *testing.T) {
	fx := defaultTreeFixture(t)
	r := fx.newResolver("")

	base, err := r.Configs()
	if err != nil {
		t.Fatalf("Configs() error = %v", err)
	}
	view := r.WithVerbosityTarget("hab", 1)
	shared, err := view.Configs()
	if err != nil {
		t.Fatalf("view Configs() error = %v", err)
	}
	if base != shared {
		t.Error("verbosity views must share the loaded forests")
	}
}

func TestCacheDisabledByEnvVar(t *testing.T) {
	t.Setenv("HAB_TEST_UNCACHED_ONLY", "1")
	fx := newFixture(t)
	r := fx.newResolver("")
	if r.Cache().Enabled {
		t.Error("cache should be disabled while HAB_TEST_UNCACHED_ONLY is set")
	}
}
