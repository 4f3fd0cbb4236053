package dataset

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/trainset/pkg/errors"
)

// archiveExts are the archive formats loaders extract transparently.
var archiveExts = []string{".zip", ".tar.gz", ".tar"}

// stripArchiveExt removes a known archive extension, returning the path
// unchanged when none matches.
func stripArchiveExt(path string) string {
	for _, ext := range archiveExts {
		if strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext)
		}
	}
	return path
}

// isArchive reports whether the path names a supported archive format.
func isArchive(path string) bool {
	return stripArchiveExt(path) != path
}

// extractArchive unpacks an archive next to itself and returns the
// directory path. When the target directory already exists extraction is
// skipped.
func extractArchive(path string) (string, error) {
	target := stripArchiveExt(path)
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}

	parent := filepath.Dir(path)
	if strings.HasSuffix(path, ".zip") {
		if err := extractZip(path, parent); err != nil {
			return "", err
		}
		return target, nil
	}
	if err := extractTar(path, parent, strings.HasSuffix(path, ".tar.gz")); err != nil {
		return "", err
	}
	return target, nil
}

func extractZip(path, dest string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "opening archive %s", path)
	}
	defer r.Close()

	for _, f := range r.File {
		out, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(out, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(out, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTar(path, dest string, gzipped bool) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "opening archive %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "reading archive %s", path)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "reading archive %s", path)
		}
		out, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(out, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return err
			}
			if err := writeFile(out, tr); err != nil {
				return err
			}
		}
	}
}

// safeJoin joins an archive member name onto dest, rejecting names that
// escape it.
func safeJoin(dest, name string) (string, error) {
	out := filepath.Join(dest, filepath.Clean(name))
	if !strings.HasPrefix(out, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", errors.New(errors.ErrCodeInvalidInput, "archive member %q escapes destination", name)
	}
	return out, nil
}

func writeFile(path string, r io.Reader) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
