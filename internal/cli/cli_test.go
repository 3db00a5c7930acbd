package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/talusfx/hab/pkg/errors"
)

// =============================================================================
// Test Fixture
// =============================================================================

// testSite lays out a small site under a temp root and returns the
// site file path. One config tree (proj, proj/Sc001) plus a broken
// config, and one versioned distro carrying an alias on every
// platform so the tests run anywhere.
func testSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	configs := filepath.Join(dir, "configs")
	distros := filepath.Join(dir, "distros")
	for _, sub := range []string{configs, distros} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	writeFile(t, filepath.Join(configs, "proj.json"), `{
		"name": "proj",
		"distros": ["tools"],
		"environment": {"set": {"STUDIO": "hq"}}
	}`)
	writeFile(t, filepath.Join(configs, "proj_sc001.json"), `{
		"name": "Sc001",
		"context": ["proj"],
		"environment": {"set": {"SHOT": "Sc001"}}
	}`)
	writeFile(t, filepath.Join(configs, "broken.json"), `{
		"name": "broken",
		"distros": ["ghost"]
	}`)

	tools := filepath.Join(distros, "tools", "1.2.0")
	if err := os.MkdirAll(tools, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(tools, ".hab.json"), `{
		"name": "tools",
		"environment": {"set": {"TOOLS_ROOT": "{relative_root}"}},
		"aliases": {
			"linux":   [["tool", "tool.sh"], ["fail", ["sh", "-c", "exit 3"]]],
			"osx":     [["tool", "tool.sh"], ["fail", ["sh", "-c", "exit 3"]]],
			"windows": [["tool", "tool.bat"], ["fail", ["cmd", "/c", "exit 3"]]]
		}
	}`)

	sitePath := filepath.Join(dir, "site.json")
	writeFile(t, sitePath, fmt.Sprintf(`{"set": {
		"config_paths": [%q],
		"distro_paths": [%q],
		"prefs_default": ["--no-prefs"]
	}}`, filepath.Join(configs, "*.json"), filepath.Join(distros, "*", "*", ".hab.json")))
	return sitePath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newTestCLI builds a quiet CLI and points user prefs at the temp dir
// so tests never touch the real prefs file.
func newTestCLI(t *testing.T) *CLI {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("LOCALAPPDATA", dir)
	t.Setenv("HOME", dir)
	return New(io.Discard, log.FatalLevel)
}

// runCLI executes the root command with args and returns what the
// command wrote to its cobra output stream.
func runCLI(t *testing.T, c *CLI, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := c.RootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// =============================================================================
// Lazy State
// =============================================================================

func TestSiteLazy(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{testSite(t)}

	s, err := c.Site()
	if err != nil {
		t.Fatalf("Site() error = %v", err)
	}
	again, err := c.Site()
	if err != nil {
		t.Fatalf("second Site() error = %v", err)
	}
	if s != again {
		t.Error("Site() should cache the loaded site")
	}
}

func TestSiteLoadError(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{filepath.Join(t.TempDir(), "missing.json")}

	_, err := c.Site()
	if err == nil {
		t.Fatal("expected error for missing site file")
	}
	if errors.GetCode(err) != errors.ErrCodeSiteLoad {
		t.Errorf("code = %v, want ErrCodeSiteLoad", errors.GetCode(err))
	}
}

func TestResolverAppliesFlags(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{testSite(t)}
	c.requirements = []string{"tools==1.2.0"}
	c.pre = true
	c.noCached = true

	r, err := c.Resolver()
	if err != nil {
		t.Fatalf("Resolver() error = %v", err)
	}
	if r.Forced == nil || r.Forced.Len() != 1 {
		t.Fatalf("Forced = %v, want the one -r requirement", r.Forced)
	}
	if !r.Prereleases {
		t.Error("--pre should enable prereleases")
	}
	if r.Cache().Enabled {
		t.Error("--no-cached should disable habcache reads")
	}
}

func TestResolverBadRequirement(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{testSite(t)}
	c.requirements = []string{"not a requirement ==="}

	if _, err := c.Resolver(); err == nil {
		t.Fatal("expected error for malformed -r value")
	}
}

func TestPrefsFlagPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		prefsOn   bool
		noPrefs   bool
		savePrefs bool
		want      bool
	}{
		{"default follows site", false, false, false, false},
		{"prefs enables", true, false, false, true},
		{"no-prefs wins over prefs", true, true, false, false},
		{"save-prefs implies prefs", false, false, true, true},
	}

	sitePath := testSite(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCLI(t)
			c.sitePaths = []string{sitePath}
			c.prefsOn = tt.prefsOn
			c.noPrefs = tt.noPrefs
			c.savePrefs = tt.savePrefs

			p, err := c.Prefs()
			if err != nil {
				t.Fatalf("Prefs() error = %v", err)
			}
			if got := p.Enabled(); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

// =============================================================================
// URI Resolution
// =============================================================================

func TestResolveURI(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{testSite(t)}

	cfg, err := c.resolveURI(context.Background(), "proj/Sc001")
	if err != nil {
		t.Fatalf("resolveURI() error = %v", err)
	}
	if cfg.URI() != "proj/Sc001" {
		t.Errorf("URI() = %q, want proj/Sc001", cfg.URI())
	}
}

func TestResolveURIWrapsError(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{testSite(t)}

	_, err := c.resolveURI(context.Background(), "broken")
	if err == nil {
		t.Fatal("expected error for unsatisfiable config")
	}
	msg := errors.UserMessage(err)
	if want := "Error resolving broken:"; len(msg) < len(want) || msg[:len(want)] != want {
		t.Errorf("UserMessage() = %q, want %q prefix", msg, want)
	}
}

func TestResolveURISavesPrefs(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{testSite(t)}
	c.savePrefs = true

	if _, err := c.resolveURI(context.Background(), "proj"); err != nil {
		t.Fatalf("resolveURI() error = %v", err)
	}

	p, err := c.Prefs()
	if err != nil {
		t.Fatal(err)
	}
	if saved := p.Check(); saved.URI != "proj" {
		t.Errorf("saved URI = %q, want proj", saved.URI)
	}
}

func TestResolveURIDashUsesSaved(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{testSite(t)}
	c.prefsOn = true

	p, err := c.Prefs()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SaveURI("proj/Sc001"); err != nil {
		t.Fatal(err)
	}

	cfg, err := c.resolveURI(context.Background(), "-")
	if err != nil {
		t.Fatalf("resolveURI(-) error = %v", err)
	}
	if cfg.URI() != "proj/Sc001" {
		t.Errorf("URI() = %q, want the saved proj/Sc001", cfg.URI())
	}
}

// =============================================================================
// Root Command
// =============================================================================

func TestRootCommandSubcommands(t *testing.T) {
	c := newTestCLI(t)
	root := c.RootCommand()

	want := []string{"env", "activate", "launch", "dump", "cache", "set-uri", "completion"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command missing subcommand %q", name)
		}
	}
}

func TestVerboseFlagSetsLevel(t *testing.T) {
	c := newTestCLI(t)
	sitePath := testSite(t)

	if _, err := runCLI(t, c, "--site", sitePath, "-v", "dump", "-t", "site"); err != nil {
		t.Fatalf("dump -t site error = %v", err)
	}
	if got := c.Logger.GetLevel(); got != log.DebugLevel {
		t.Errorf("level after -v = %v, want debug", got)
	}
}

func TestColorizeOffWithoutTerminal(t *testing.T) {
	c := newTestCLI(t)
	c.sitePaths = []string{testSite(t)}

	// Test binaries never run with stdout on a pty.
	if c.colorize() {
		t.Error("colorize() = true without a terminal")
	}
}
