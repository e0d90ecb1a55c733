package artifact

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type tarEntry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func writeTarGz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     e.mode,
			Size:     int64(len(e.body)),
			Typeflag: e.typeflag,
			Linkname: e.linkname,
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(e.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtract_TarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "server.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "server/", mode: 0o755, typeflag: tar.TypeDir},
		{name: "server/bin/launcher", body: "#!/bin/sh\n", mode: 0o755},
		{name: "server/README", body: "docs", mode: 0o644},
	})

	dest := filepath.Join(dir, "out")
	if err := Extract(archive, dest); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	launcher := filepath.Join(dest, "server", "bin", "launcher")
	info, err := os.Stat(launcher)
	if err != nil {
		t.Fatalf("launcher missing: %v", err)
	}
	// Executable bit must survive extraction.
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("launcher mode = %v, want executable", info.Mode())
	}

	data, err := os.ReadFile(filepath.Join(dest, "server", "README"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "docs" {
		t.Errorf("README content = %q", data)
	}
}

func TestExtract_TarGzTraversalRejected(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "../evil", body: "nope", mode: 0o644},
	})

	err := Extract(archive, filepath.Join(dir, "out"))
	if err == nil {
		t.Fatal("Extract() accepted a path traversal entry")
	}
	if !strings.Contains(err.Error(), "unsafe archive") {
		t.Errorf("error = %v", err)
	}
}

func TestExtract_TarGzSymlinkEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "link", typeflag: tar.TypeSymlink, linkname: "../../etc/passwd", mode: 0o777},
	})

	if err := Extract(archive, filepath.Join(dir, "out")); err == nil {
		t.Fatal("Extract() accepted an escaping symlink")
	}
}

func TestExtract_NoExtension(t *testing.T) {
	// Cache entries are stored under content-addressed names with no
	// extension, so the format has to come from the file header.
	dir := t.TempDir()
	archive := filepath.Join(dir, "9f2c54d1e8b7a6c5")
	writeTarGz(t, archive, []tarEntry{
		{name: "server/bin/launcher", body: "#!/bin/sh\n", mode: 0o755},
	})

	dest := filepath.Join(dir, "out")
	if err := Extract(archive, dest); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "server", "bin", "launcher")); err != nil {
		t.Errorf("launcher missing: %v", err)
	}
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "server.zip")

	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("server/config.ini")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("port=8080"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	dest := filepath.Join(dir, "out")
	if err := Extract(archive, dest); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "server", "config.ini"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "port=8080" {
		t.Errorf("content = %q", data)
	}
}

func TestExtract_ZipNoExtension(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "a1b2c3d4")

	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("hi"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	dest := filepath.Join(dir, "out")
	if err := Extract(archive, dest); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "notes.txt")); err != nil {
		t.Errorf("notes.txt missing: %v", err)
	}
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "blob.xz")
	if err := os.WriteFile(archive, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Extract(archive, filepath.Join(dir, "out"))
	if err == nil {
		t.Fatal("Extract() accepted unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported archive format") {
		t.Errorf("error = %v", err)
	}
}

func TestSecurePath(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{"plain file", "a/b.txt", false},
		{"dot slash", "./a", false},
		{"parent escape", "../a", true},
		{"nested escape", "a/../../b", true},
		{"absolute", "/etc/passwd", false}, // leading slash is stripped
	}

	dest := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := securePath(dest, tt.entry)
			if (err != nil) != tt.wantErr {
				t.Errorf("securePath(%q) error = %v, wantErr %v", tt.entry, err, tt.wantErr)
			}
		})
	}
}
