// Copyright 2024-2026 Aiku AI

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay coalesces the burst of events editors produce on save.
const reloadDelay = 250 * time.Millisecond

// Watch reloads the config at path whenever it changes on disk and passes
// every successfully validated result to onChange. Invalid configs are
// logged and ignored. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself so that
// editors which replace the file by renaming are handled.
func Watch(ctx context.Context, path string, log zerolog.Logger, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()
	if err = watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	log.Debug().Str("path", absPath).Msg("Watching config for changes")

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != absPath {
				continue
			}
			if evt.Has(fsnotify.Write) || evt.Has(fsnotify.Create) || evt.Has(fsnotify.Rename) {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config watcher error")
		case <-timer.C:
			cfg, err := Load(absPath)
			if err != nil {
				log.Error().Err(err).Msg("Ignoring invalid config change")
				continue
			}
			log.Info().Str("path", absPath).Msg("Config reloaded")
			onChange(cfg)
		}
	}
}
