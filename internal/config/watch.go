package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/etsangsplk/metadata-agent/internal/logging"
)

// Watch re-reads the config file when it changes and applies the verbose
// flag to the live config. Only verbosity is hot-reloadable; every other
// field requires a restart.
//
// Watch blocks until ctx is cancelled. A watcher setup failure is returned;
// read failures after a change are logged and skipped so a half-written
// file cannot take the flag down.
func (c *Config) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	logger = logging.Default(logger).With("component", "config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and config-map mounts
	// replace the file by rename, which drops a file-level watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			c.reloadVerbose(path, logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}

// reloadVerbose re-reads only the verbose flag from the file.
func (c *Config) reloadVerbose(path string, logger *slog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("config reload failed", "error", err)
		return
	}

	var onDisk struct {
		VerboseLogging bool `json:"verboseLogging"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		logger.Warn("config reload failed", "error", err)
		return
	}

	if c.Verbose() != onDisk.VerboseLogging {
		logger.Info("verbose logging changed", "verbose", onDisk.VerboseLogging)
		c.SetVerbose(onDisk.VerboseLogging)
	}
}
