package artifact

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tracekit/ci-harness/pkg/errors"
)

// Archive formats Extract understands.
const (
	formatUnknown = iota
	formatTarGz
	formatZip
)

// Extract unpacks an archive into dest, creating it if needed.
// Supported formats: tar.gz and zip. Cached artifacts live under
// content-addressed names with no extension, so the format comes from
// the file's magic bytes, with the filename suffix as a fallback.
// File modes are preserved so server launcher scripts stay executable.
func Extract(archivePath, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errors.ArtifactError("create extraction dir", err)
	}

	format, err := detectFormat(archivePath)
	if err != nil {
		return err
	}
	switch format {
	case formatTarGz:
		return extractTarGz(archivePath, dest)
	case formatZip:
		return extractZip(archivePath, dest)
	default:
		return errors.ArtifactError(fmt.Sprintf("unsupported archive format: %s", filepath.Base(archivePath)), nil)
	}
}

// detectFormat sniffs the archive type from its header.
func detectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return formatUnknown, errors.ArtifactError("open archive", err)
	}
	defer f.Close()

	header := make([]byte, 4)
	n, _ := io.ReadFull(f, header)

	switch {
	case n >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		return formatTarGz, nil
	case n >= 4 && bytes.Equal(header[:4], []byte("PK\x03\x04")):
		return formatZip, nil
	}

	switch {
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return formatTarGz, nil
	case strings.HasSuffix(path, ".zip"):
		return formatZip, nil
	}
	return formatUnknown, nil
}

// securePath joins name under dest, rejecting entries that escape it.
func securePath(dest, name string) (string, error) {
	path := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return path, nil
}

func extractTarGz(archivePath, dest string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.ArtifactError("open archive", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.ArtifactError("read gzip header", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.ArtifactError("read tar entry", err)
		}

		path, err := securePath(dest, hdr.Name)
		if err != nil {
			return errors.ArtifactError("unsafe archive", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, os.FileMode(hdr.Mode)|0o700); err != nil {
				return errors.ArtifactError("create dir", err)
			}
		case tar.TypeReg:
			if err := writeFile(path, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			// Symlinks inside the archive are allowed only when they
			// stay under dest once resolved.
			if _, err := securePath(dest, filepath.Join(filepath.Dir(hdr.Name), hdr.Linkname)); err != nil {
				return errors.ArtifactError("unsafe archive", err)
			}
			if err := os.Symlink(hdr.Linkname, path); err != nil && !os.IsExist(err) {
				return errors.ArtifactError("create symlink", err)
			}
		}
	}
}

func extractZip(archivePath, dest string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.ArtifactError("open archive", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		path, err := securePath(dest, entry.Name)
		if err != nil {
			return errors.ArtifactError("unsafe archive", err)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(path, entry.Mode()|0o700); err != nil {
				return errors.ArtifactError("create dir", err)
			}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return errors.ArtifactError("read zip entry", err)
		}
		err = writeFile(path, rc, entry.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.ArtifactError("create dir", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return errors.ArtifactError("create file", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return errors.ArtifactError("write file", err)
	}
	return nil
}
