// Package finder discovers distro documents under the roots named by a
// site's distro_paths.
//
// The Local finder covers normal resolution: versioned folders holding
// a .hab.json each. The zip and cloud finders serve download tooling,
// where distros travel as {name}_v{version}.zip archives and the
// .hab.json is read from a sidecar file, from inside the archive, or
// from a bucket object.
package finder

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/forest"
	habio "github.com/talusfx/hab/pkg/io"
)

// HabFilename is the document name that marks a distro root.
const HabFilename = ".hab.json"

// Finder lists the distro documents available under one root.
type Finder interface {
	// Root identifies the scanned location, as written in distro_paths.
	Root() string

	// Docs returns one Doc per distro found. Docs carrying pre-parsed
	// Data skip the loader's disk read.
	Docs(ctx context.Context) ([]forest.Doc, error)
}

// Installer is implemented by finders that can materialize a distro's
// contents into a local directory tree.
type Installer interface {
	Install(ctx context.Context, doc forest.Doc, dest string) error
}

// Lister provides pre-scanned distro documents for a root, letting a
// sidecar cache stand in for the glob.
type Lister interface {
	// DistroDocs returns the cached documents for root. ok is false
	// when the root has no usable cache and the caller should scan.
	DistroDocs(root string) ([]forest.Doc, bool)
}

// ForEntry picks a finder for one distro_paths entry. URL-style
// prefixes select the archive finders, anything else scans locally.
//
//	/studio/distros          Local
//	zip:/studio/archives     Zip
//	sidecar:/studio/archives ZipSidecar
//	gs://bucket/prefix       GCS
func ForEntry(ctx context.Context, entry string, lister Lister) (Finder, error) {
	switch {
	case strings.HasPrefix(entry, "gs://"):
		return NewGCS(ctx, entry)
	case strings.HasPrefix(entry, "zip:"):
		return NewZip(strings.TrimPrefix(entry, "zip:")), nil
	case strings.HasPrefix(entry, "sidecar:"):
		return NewZipSidecar(strings.TrimPrefix(entry, "sidecar:")), nil
	default:
		return NewLocal(entry, lister), nil
	}
}

// versionFileRE picks the distro name and version out of an archive
// style filename such as "maya2020_v2020.1.zip". The version grammar
// follows the release, pre, post, dev and local segments of PEP 440.
var versionFileRE = regexp.MustCompile(`(?i)^(.+)_v(\d+(?:\.\d+)*` +
	`(?:[-_.]?(?:a|b|c|rc|alpha|beta|pre|preview)[-_.]?\d*)?` +
	`(?:-\d+|[-_.]?(?:post|rev|r)[-_.]?\d*)?` +
	`(?:[-_.]?dev[-_.]?\d*)?` +
	`(?:\+[a-z0-9]+(?:[-_.][a-z0-9]+)*)?)`)

// splitVersionedName parses "{name}_v{version}" from the start of an
// archive filename, ignoring anything after the version.
func splitVersionedName(filename string) (name, version string, err error) {
	m := versionFileRE.FindStringSubmatch(filename)
	if m == nil {
		return "", "", errors.New(errors.ErrCodeInvalidInput,
			"no name_v{version} pattern in %q", filename)
	}
	return m[1], m[2], nil
}

// decodeDocBytes parses document bytes the same way files on disk are
// read, comments and trailing commas included.
func decodeDocBytes(data []byte) (map[string]any, error) {
	std, err := habio.Standardize(data)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(std, &out); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decoding distro document")
	}
	return out, nil
}
