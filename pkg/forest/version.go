package forest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/pep440"
)

// VersionSidecar is read next to a distro's .hab.json when the document
// has no version key. Deploy tooling writes it instead of editing the
// version-controlled json.
const VersionSidecar = ".hab_version.txt"

// scmFallbackVersion stands in for working copies inside a checkout,
// where no release version exists yet.
const scmFallbackVersion = "0.0.0.dev1"

// ResolveVersion determines the version of the distro document at path.
// The sources checked, in order: the document's version key, a sidecar
// file, the parent directory name, and finally a checkout marker. When
// all fail, skip reports whether the directory is on the ignored list
// and the miss should be silent.
func ResolveVersion(path string, data map[string]any, ignored []string) (v pep440.Version, skip bool, err error) {
	if raw, ok := data["version"]; ok {
		s, ok := raw.(string)
		if !ok {
			return pep440.Version{}, false, errors.New(errors.ErrCodeInvalidVersion, "version must be a string in %q", path)
		}
		v, err := pep440.ParseVersion(s)
		return v, false, err
	}

	dir := filepath.Dir(path)
	if text, readErr := os.ReadFile(filepath.Join(dir, VersionSidecar)); readErr == nil {
		line := string(text)
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		v, err := pep440.ParseVersion(strings.TrimSpace(line))
		if err != nil {
			return pep440.Version{}, false, errors.Wrap(errors.ErrCodeInvalidVersion, err, "invalid %s next to %q", VersionSidecar, path)
		}
		return v, false, nil
	}

	dirname := filepath.Base(dir)
	if v, err := pep440.ParseVersion(dirname); err == nil {
		return v, false, nil
	}

	// A working copy has no versioned dirname. Treat a checkout as an
	// early dev release so developers can resolve against it.
	if inCheckout(dir) {
		v := pep440.MustVersion(scmFallbackVersion)
		return v, false, nil
	}

	for _, name := range ignored {
		if name == dirname {
			return pep440.Version{}, true, nil
		}
	}
	return pep440.Version{}, false, errors.New(errors.ErrCodeInvalidVersion,
		"unable to determine the version for %q", path)
}

// inCheckout reports whether dir sits inside a source checkout, found
// by walking up looking for a .git entry.
func inCheckout(dir string) bool {
	for {
		if _, err := os.Lstat(filepath.Join(dir, ".git")); err == nil {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}
