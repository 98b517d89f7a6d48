package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher keeps a conversion current while an export is still landing: after
// the initial pass it converts *.json files as they appear or change in the
// input directory.
type Watcher struct {
	conv     *Converter
	logger   zerolog.Logger
	debounce time.Duration
}

// NewWatcher wraps a Converter in watch mode. Debounce collapses the bursts
// of write events an extracting archive produces per file.
func NewWatcher(conv *Converter, logger zerolog.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{conv: conv, logger: logger, debounce: debounce}
}

// Run performs the initial conversion of inputDir and then blocks, watching
// for new or rewritten *.json files, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, inputDir, outputDir string) error {
	if _, err := w.conv.Run(inputDir, outputDir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(inputDir); err != nil {
		return fmt.Errorf("watch %s: %w", inputDir, err)
	}
	w.logger.Info().Str("dir", inputDir).Msg("watching for new export files")

	pending := map[string]bool{}
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") {
				continue
			}
			pending[ev.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watch error")

		case <-timer.C:
			for path := range pending {
				out := filepath.Join(outputDir, "converted_"+filepath.Base(path))
				stats, err := w.conv.ConvertFile(path, out)
				if err != nil {
					w.logger.Error().Err(err).Str("file", path).Msg("convert failed")
					continue
				}
				w.logger.Info().
					Str("file", filepath.Base(path)).
					Int("accepted", stats.Accepted).
					Int("skipped", stats.Skipped()).
					Msg("converted")
			}
			pending = map[string]bool{}
		}
	}
}
