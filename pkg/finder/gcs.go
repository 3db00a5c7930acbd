package finder

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/talusfx/hab/pkg/errors"
	"github.com/talusfx/hab/pkg/forest"
)

// GCS finds distro archives stored as objects under a gs://bucket/prefix
// location. Documents are read straight out of the remote archives with
// ranged reads, only Install downloads a whole object.
type GCS struct {
	url    string
	bucket string
	prefix string
	client *storage.Client
}

// NewGCS returns a finder for a gs://bucket/prefix URL. Credentials
// come from the environment, the same way gsutil finds them.
func NewGCS(ctx context.Context, url string) (*GCS, error) {
	bucket, prefix, err := splitGSURL(url)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "creating storage client for %q", url)
	}
	return &GCS{url: url, bucket: bucket, prefix: prefix, client: client}, nil
}

var _ Finder = (*GCS)(nil)
var _ Installer = (*GCS)(nil)

func splitGSURL(url string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(url, "gs://")
	if !ok || rest == "" {
		return "", "", errors.New(errors.ErrCodeInvalidInput, "not a gs://bucket/prefix URL: %q", url)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.New(errors.ErrCodeInvalidInput, "not a gs://bucket/prefix URL: %q", url)
	}
	return bucket, strings.TrimSuffix(prefix, "/"), nil
}

// Root implements Finder.
func (f *GCS) Root() string { return f.url }

// Close releases the storage client.
func (f *GCS) Close() error { return f.client.Close() }

// Docs implements Finder. Objects not named {name}_v{version}.zip are
// skipped.
func (f *GCS) Docs(ctx context.Context) ([]forest.Doc, error) {
	docs := []forest.Doc{}
	it := f.client.Bucket(f.bucket).Objects(ctx, &storage.Query{Prefix: f.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "listing %q", f.url)
		}
		if !strings.HasSuffix(attrs.Name, ".zip") {
			continue
		}
		_, version, err := splitVersionedName(path.Base(attrs.Name))
		if err != nil {
			continue
		}
		obj := f.client.Bucket(f.bucket).Object(attrs.Name)
		reader, err := zip.NewReader(&objectReaderAt{ctx: ctx, obj: obj}, attrs.Size)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "opening archive %q", f.objectURL(attrs.Name))
		}
		data, err := readArchiveDoc(reader, f.objectURL(attrs.Name))
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		if _, ok := data["version"]; !ok {
			data["version"] = version
		}
		docs = append(docs, forest.Doc{
			Dir:  f.url,
			Path: f.objectURL(attrs.Name) + "/" + HabFilename,
			Data: data,
		})
	}
	return docs, nil
}

// Install downloads the archive behind doc and extracts it into dest.
func (f *GCS) Install(ctx context.Context, doc forest.Doc, dest string) error {
	name := strings.TrimSuffix(strings.TrimPrefix(doc.Path, "gs://"+f.bucket+"/"), "/"+HabFilename)
	reader, err := f.client.Bucket(f.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "downloading %q", doc.Path)
	}
	defer reader.Close()

	tmp, err := os.CreateTemp("", "hab-download-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return extractZipFile(tmp.Name(), dest)
}

func (f *GCS) objectURL(name string) string {
	return "gs://" + f.bucket + "/" + name
}

// objectReaderAt adapts ranged bucket reads to io.ReaderAt so the zip
// reader only pulls the archive directory and the members it opens.
type objectReaderAt struct {
	ctx context.Context
	obj *storage.ObjectHandle
}

func (r *objectReaderAt) ReadAt(p []byte, off int64) (int, error) {
	reader, err := r.obj.NewRangeReader(r.ctx, off, int64(len(p)))
	if err != nil {
		return 0, err
	}
	defer reader.Close()
	n, err := io.ReadFull(reader, p)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}
