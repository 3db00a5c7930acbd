package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCacheWrite(t *testing.T) {
	c := newTestCLI(t)
	sitePath := testSite(t)

	if _, err := runCLI(t, c, "cache", sitePath); err != nil {
		t.Fatalf("cache error = %v", err)
	}

	sidecar := filepath.Join(filepath.Dir(sitePath), "site.habcache")
	data, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("reading sidecar: %v", err)
	}
	if len(data) == 0 {
		t.Error("sidecar is empty")
	}
}

func TestCacheServesDeletedFiles(t *testing.T) {
	c := newTestCLI(t)
	sitePath := testSite(t)

	if _, err := runCLI(t, c, "cache", sitePath); err != nil {
		t.Fatal(err)
	}

	// With the sidecar in place the live files are never read.
	if err := os.RemoveAll(filepath.Join(filepath.Dir(sitePath), "configs")); err != nil {
		t.Fatal(err)
	}

	c2 := newTestCLI(t)
	out, err := runCLI(t, c2, "--site", sitePath, "dump", "proj")
	if err != nil {
		t.Fatalf("dump from cache error = %v", err)
	}
	if !strings.Contains(out, "Dump of FlatConfig('proj')") {
		t.Errorf("cached dump missing config:\n%s", out)
	}

	// --no-cached goes back to scanning and finds nothing.
	c3 := newTestCLI(t)
	if _, err := runCLI(t, c3, "--site", sitePath, "--no-cached", "dump", "proj"); err == nil {
		t.Error("expected --no-cached to miss the deleted configs")
	}
}

func TestCacheRemove(t *testing.T) {
	c := newTestCLI(t)
	sitePath := testSite(t)

	if _, err := runCLI(t, c, "cache", sitePath); err != nil {
		t.Fatal(err)
	}
	sidecar := filepath.Join(filepath.Dir(sitePath), "site.habcache")
	if _, err := os.Stat(sidecar); err != nil {
		t.Fatalf("sidecar missing after write: %v", err)
	}

	c2 := newTestCLI(t)
	if _, err := runCLI(t, c2, "cache", "--no-cache", sitePath); err != nil {
		t.Fatalf("cache --no-cache error = %v", err)
	}
	if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
		t.Errorf("sidecar still present after removal: %v", err)
	}
}

func TestCacheRemoveMissing(t *testing.T) {
	c := newTestCLI(t)
	sitePath := testSite(t)

	// Removing a cache that does not exist is not an error.
	if _, err := runCLI(t, c, "cache", "--no-cache", sitePath); err != nil {
		t.Fatalf("cache --no-cache error = %v", err)
	}
}
