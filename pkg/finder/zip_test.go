package finder

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeArchive(t *testing.T, path string, members map[string]string) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	w := zip.NewWriter(file)
	for name, content := range members {
		member, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := member.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestZipDocs(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, filepath.Join(root, "dist_a_v0.1.zip"), map[string]string{
		HabFilename: `{"name": "dist_a"}`,
		"bin/tool":  "#!/bin/sh",
	})
	writeArchive(t, filepath.Join(root, "dist_b_v1.2.zip"), map[string]string{
		HabFilename: `{"name": "dist_b", "version": "1.2+packed"}`,
	})
	// Bad filename and missing document are both skipped, not errors.
	writeArchive(t, filepath.Join(root, "unversioned.zip"), map[string]string{
		HabFilename: `{"name": "unversioned"}`,
	})
	writeArchive(t, filepath.Join(root, "dist_c_v2.0.zip"), map[string]string{
		"payload.txt": "no document",
	})

	f := NewZip(root)
	docs, err := f.Docs(context.Background())
	if err != nil {
		t.Fatalf("Docs() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Docs() = %d docs: %+v", len(docs), docs)
	}
	byName := map[string]map[string]any{}
	for _, doc := range docs {
		if doc.Dir != root {
			t.Errorf("doc dir = %q, want %q", doc.Dir, root)
		}
		byName[doc.Data["name"].(string)] = doc.Data
	}
	// The filename version fills in when the document has none.
	if v := byName["dist_a"]["version"]; v != "0.1" {
		t.Errorf("dist_a version = %v", v)
	}
	if v := byName["dist_b"]["version"]; v != "1.2+packed" {
		t.Errorf("dist_b version = %v, want the document's own value", v)
	}

	for _, doc := range docs {
		if filepath.Base(doc.Path) != HabFilename {
			t.Errorf("doc path = %q", doc.Path)
		}
	}
}

func TestZipInstall(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "dist_a_v0.1.zip")
	writeArchive(t, archive, map[string]string{
		HabFilename: `{"name": "dist_a"}`,
		"bin/tool":  "#!/bin/sh",
	})

	f := NewZip(root)
	docs, err := f.Docs(context.Background())
	if err != nil || len(docs) != 1 {
		t.Fatalf("Docs() = %v, %v", docs, err)
	}

	dest := filepath.Join(t.TempDir(), "dist_a", "0.1")
	if err := f.Install(context.Background(), docs[0], dest); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	for _, name := range []string{HabFilename, filepath.Join("bin", "tool")} {
		if _, err := os.Stat(filepath.Join(dest, name)); err != nil {
			t.Errorf("missing %q after install: %v", name, err)
		}
	}
}

func TestZipInstallRejectsEscape(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "evil_v1.0.zip")
	writeArchive(t, archive, map[string]string{
		HabFilename:    `{"name": "evil"}`,
		"../break.txt": "outside",
	})

	dest := filepath.Join(t.TempDir(), "evil")
	err := extractZipFile(archive, dest)
	if err == nil {
		t.Fatal("extractZipFile() accepted a member escaping dest")
	}
	if _, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "break.txt")); statErr == nil {
		t.Error("escaping member was written to disk")
	}
}

func TestZipSidecarDocs(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, filepath.Join(root, "dist_a_v0.1.zip"), map[string]string{
		HabFilename: `{"name": "dist_a"}`,
	})
	writeFile(t, root, "dist_a_v0.1.hab.json", `{"name": "dist_a"}`)
	// Matches the glob but not the naming convention, so it is skipped.
	writeFile(t, root, "README.hab.json", `{"name": "readme"}`)

	f := NewZipSidecar(root)
	docs, err := f.Docs(context.Background())
	if err != nil {
		t.Fatalf("Docs() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("Docs() = %d docs: %+v", len(docs), docs)
	}
	doc := docs[0]
	if doc.Data["name"] != "dist_a" || doc.Data["version"] != "0.1" {
		t.Errorf("doc data = %v", doc.Data)
	}
	if filepath.Base(doc.Path) != "dist_a_v0.1.hab.json" {
		t.Errorf("doc path = %q", doc.Path)
	}
}

func TestZipSidecarInstall(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, filepath.Join(root, "dist_a_v0.1.zip"), map[string]string{
		HabFilename: `{"name": "dist_a"}`,
		"bin/tool":  "#!/bin/sh",
	})
	writeFile(t, root, "dist_a_v0.1.hab.json", `{"name": "dist_a"}`)

	f := NewZipSidecar(root)
	docs, err := f.Docs(context.Background())
	if err != nil || len(docs) != 1 {
		t.Fatalf("Docs() = %v, %v", docs, err)
	}

	dest := filepath.Join(t.TempDir(), "dist_a")
	if err := f.Install(context.Background(), docs[0], dest); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "bin", "tool")); err != nil {
		t.Errorf("missing payload after install: %v", err)
	}
}
