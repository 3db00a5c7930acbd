package finder

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/forest"
	habio "github.com/talusfx/hab/pkg/io"
)

// ZipSidecar finds distros stored as {name}_v{version}.zip archives
// with a {name}_v{version}.hab.json copy of the document next to them.
// The sidecar avoids opening the archive during a scan.
type ZipSidecar struct {
	root string
}

// NewZipSidecar returns a finder scanning root for sidecar documents.
func NewZipSidecar(root string) *ZipSidecar {
	return &ZipSidecar{root: root}
}

var _ Finder = (*ZipSidecar)(nil)
var _ Installer = (*ZipSidecar)(nil)

// Root implements Finder.
func (f *ZipSidecar) Root() string { return f.root }

// Docs implements Finder. Files not named {name}_v{version}.hab.json
// are not distro sidecars and are skipped.
func (f *ZipSidecar) Docs(ctx context.Context) ([]forest.Doc, error) {
	matches, err := filepath.Glob(filepath.Join(f.root, "*"+HabFilename))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "scanning %q", f.root)
	}
	docs := make([]forest.Doc, 0, len(matches))
	for _, path := range matches {
		_, version, err := splitVersionedName(filepath.Base(path))
		if err != nil {
			continue
		}
		var data map[string]any
		if err := habio.DecodeJSON(path, &data); err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "reading sidecar %q", path)
		}
		if _, ok := data["version"]; !ok {
			data["version"] = version
		}
		docs = append(docs, forest.Doc{Dir: f.root, Path: path, Data: data})
	}
	return docs, nil
}

// Install extracts the archive next to the sidecar into dest.
func (f *ZipSidecar) Install(ctx context.Context, doc forest.Doc, dest string) error {
	archive := strings.TrimSuffix(doc.Path, HabFilename) + "zip"
	return extractZipFile(archive, dest)
}

// Zip finds distros stored as {name}_v{version}.zip archives and reads
// the .hab.json document out of each archive.
type Zip struct {
	root string
}

// NewZip returns a finder scanning root for distro archives.
func NewZip(root string) *Zip {
	return &Zip{root: root}
}

var _ Finder = (*Zip)(nil)
var _ Installer = (*Zip)(nil)

// Root implements Finder.
func (f *Zip) Root() string { return f.root }

// Docs implements Finder. The returned paths are member paths, the
// archive path joined with the document name inside it.
func (f *Zip) Docs(ctx context.Context) ([]forest.Doc, error) {
	matches, err := filepath.Glob(filepath.Join(f.root, "*.zip"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "scanning %q", f.root)
	}
	docs := make([]forest.Doc, 0, len(matches))
	for _, path := range matches {
		_, version, err := splitVersionedName(filepath.Base(path))
		if err != nil {
			continue
		}
		reader, err := zip.OpenReader(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "opening archive %q", path)
		}
		data, err := readArchiveDoc(&reader.Reader, path)
		reader.Close()
		if err != nil {
			return nil, err
		}
		if data == nil {
			// No document at the archive root, not a distro.
			continue
		}
		if _, ok := data["version"]; !ok {
			data["version"] = version
		}
		docs = append(docs, forest.Doc{
			Dir:  f.root,
			Path: filepath.Join(path, HabFilename),
			Data: data,
		})
	}
	return docs, nil
}

// Install extracts the archive into dest.
func (f *Zip) Install(ctx context.Context, doc forest.Doc, dest string) error {
	archive := strings.TrimSuffix(doc.Path, string(filepath.Separator)+HabFilename)
	return extractZipFile(archive, dest)
}

// readArchiveDoc parses the .hab.json member of an archive, or nil
// when the archive has none.
func readArchiveDoc(r *zip.Reader, archivePath string) (map[string]any, error) {
	for _, member := range r.File {
		if member.Name != HabFilename {
			continue
		}
		rc, err := member.Open()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "reading %s from %q", HabFilename, archivePath)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "reading %s from %q", HabFilename, archivePath)
		}
		data, err := decodeDocBytes(raw)
		if err != nil {
			return nil, errors.Wrap(errors.GetCode(err), err, "parsing %s from %q", HabFilename, archivePath)
		}
		return data, nil
	}
	return nil, nil
}

func extractZipFile(archive, dest string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "opening archive %q", archive)
	}
	defer reader.Close()
	return extractArchive(&reader.Reader, dest)
}

func extractArchive(r *zip.Reader, dest string) error {
	for _, member := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(member.Name))
		// Reject members that escape dest.
		if rel, err := filepath.Rel(dest, target); err != nil || strings.HasPrefix(rel, "..") {
			return errors.New(errors.ErrCodeInvalidInput, "archive member %q escapes the install directory", member.Name)
		}
		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := member.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, member.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		if err := out.Close(); copyErr == nil {
			copyErr = err
		}
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}
