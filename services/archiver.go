package services

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

const emptyMirrorNote = "Website download completed but no files were found.\n"

// Archiver packs a mirrored directory tree into a single archive file
type Archiver interface {
	Build(sourceDir, archivePath string) error
}

// zipArchiver writes zip archives at maximum compression
type zipArchiver struct{}

// NewZipArchiver creates the zip archive builder
func NewZipArchiver() Archiver {
	return &zipArchiver{}
}

// Build packs all regular files under sourceDir into archivePath, preserving
// relative paths. A missing or empty sourceDir produces a placeholder archive
// with a single README.txt so an empty mirror stays distinguishable from a
// failed one.
func (z *zipArchiver) Build(sourceDir, archivePath string) (err error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	added, err := addTree(zw, sourceDir)
	if err != nil {
		zw.Close()
		return err
	}
	if added == 0 {
		readme, err := zw.Create("README.txt")
		if err != nil {
			zw.Close()
			return err
		}
		if _, err := io.WriteString(readme, emptyMirrorNote); err != nil {
			zw.Close()
			return err
		}
	}

	return zw.Close()
}

// addTree adds every regular file under root to the writer and returns how
// many entries it wrote. A missing root is treated as an empty tree.
func addTree(zw *zip.Writer, root string) (int, error) {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return 0, nil
	}

	added := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, file)
		file.Close()
		if err != nil {
			return err
		}

		added++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pack %s: %w", root, err)
	}
	return added, nil
}
