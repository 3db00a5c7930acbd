package finder

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/forest"
)

// Local finds distros laid out as <root>/<anything>/.hab.json, the
// structure normal resolution uses.
type Local struct {
	root   string
	lister Lister
}

// NewLocal returns a finder scanning root. A non-nil lister is
// consulted first so a site cache can replace the glob.
func NewLocal(root string, lister Lister) *Local {
	return &Local{root: root, lister: lister}
}

var _ Finder = (*Local)(nil)
var _ Installer = (*Local)(nil)

// Root implements Finder.
func (f *Local) Root() string { return f.root }

// Docs implements Finder.
func (f *Local) Docs(ctx context.Context) ([]forest.Doc, error) {
	if f.lister != nil {
		if docs, ok := f.lister.DistroDocs(f.root); ok {
			return docs, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(f.root, "*", HabFilename))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "scanning %q", f.root)
	}
	docs := make([]forest.Doc, 0, len(matches))
	for _, path := range matches {
		docs = append(docs, forest.Doc{Dir: f.root, Path: path})
	}
	return docs, nil
}

// Install copies the distro's directory tree into dest.
func (f *Local) Install(ctx context.Context, doc forest.Doc, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return errors.New(errors.ErrCodeInvalidInput, "install destination %q already exists", dest)
	}
	src := filepath.Dir(doc.Path)
	return filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
