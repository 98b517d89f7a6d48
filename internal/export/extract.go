package export

import (
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Extract unpacks an Export API archive into outDir. The archive is a zip
// whose entries are gzipped NDJSON (*.json.gz); plain *.json and bare *.gz
// entries are tolerated. Other entries are skipped. Returns the number of
// JSON files written.
//
// outDir is removed first if it exists, so a rerun never mixes two exports.
func Extract(archivePath, outDir string, logger zerolog.Logger) (int, error) {
	if _, err := os.Stat(outDir); err == nil {
		logger.Info().Str("dir", outDir).Msg("cleaning existing output directory")
		if err := os.RemoveAll(outDir); err != nil {
			return 0, fmt.Errorf("clean output dir: %w", err)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	count := 0
	for _, entry := range zr.File {
		name := entry.Name
		if entry.FileInfo().IsDir() {
			continue
		}

		switch {
		case strings.HasSuffix(name, ".gz"):
			// .json.gz or bare .gz: strip the .gz suffix after gunzip.
			out := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(name), ".gz"))
			if err := extractGzip(entry, out); err != nil {
				return count, fmt.Errorf("extract %s: %w", name, err)
			}
		case strings.HasSuffix(name, ".json"):
			out := filepath.Join(outDir, filepath.Base(name))
			if err := extractPlain(entry, out); err != nil {
				return count, fmt.Errorf("extract %s: %w", name, err)
			}
		default:
			logger.Warn().Str("entry", name).Msg("skipping unrecognized archive entry")
			continue
		}

		count++
		logger.Debug().Str("entry", name).Msg("extracted")
	}

	return count, nil
}

func extractGzip(entry *zip.File, out string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return err
	}
	defer gz.Close()

	return writeFile(out, gz)
}

func extractPlain(entry *zip.File, out string) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	return writeFile(out, rc)
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
