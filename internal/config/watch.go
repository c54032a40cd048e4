package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads path whenever it is written or replaced and hands each
// valid configuration to fn. Invalid edits are logged and skipped, so fn
// only ever sees configurations that passed Validate. Watch returns once
// the watcher is running; it stops when ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	logger := slog.Default().With("component", "config", "path", absPath)
	reload := func() {
		cfg, err := Load(absPath)
		if err != nil {
			logger.Warn("config reload failed", "error", err)
			return
		}
		logger.Info("config reloaded")
		fn(cfg)
	}

	go func() {
		defer watcher.Close()
		var mu sync.Mutex
		var timer *time.Timer
		defer func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, reload)
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "error", err)
			}
		}
	}()
	return nil
}
