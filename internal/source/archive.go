package source

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoCSVInArchive is returned when a zip archive holds no usable CSV.
var ErrNoCSVInArchive = errors.New("source: no csv entry in archive")

// FetchArchiveCSV downloads a zip archive and extracts its first CSV entry
// to dest.
func (f *Fetcher) FetchArchiveCSV(ctx context.Context, location, dest string) error {
	archive := dest + ".zip"
	if !IsRemote(location) {
		archive = location
	} else {
		if err := f.Download(ctx, location, archive); err != nil {
			return err
		}
		defer os.Remove(archive)
	}
	return ExtractCSV(archive, dest)
}

// ExtractCSV copies the first .csv entry of the archive at zipPath to dest.
// macOS resource fork entries are ignored.
func ExtractCSV(zipPath, dest string) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("source: open archive: %w", err)
	}
	defer zr.Close()

	var entry *zip.File
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.Contains(zf.Name, "__MACOSX") {
			continue
		}
		if strings.HasSuffix(strings.ToLower(zf.Name), ".csv") {
			entry = zf
			break
		}
	}
	if entry == nil {
		return ErrNoCSVInArchive
	}

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("source: open %s: %w", entry.Name, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return fmt.Errorf("source: extract %s: %w", entry.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
