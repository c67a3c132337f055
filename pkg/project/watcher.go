package project

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/thomyg/TeamsFx/pkg/engine"
	"github.com/thomyg/TeamsFx/pkg/environment"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 500 * time.Millisecond

// SettingsWatcher reports changes of the project settings file.
type SettingsWatcher struct {
	projectPath string
	debounce    time.Duration
	logger      zerolog.Logger
}

// NewSettingsWatcher creates a watcher for the project at projectPath.
func NewSettingsWatcher(projectPath string, debounce time.Duration, logger zerolog.Logger) *SettingsWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &SettingsWatcher{
		projectPath: projectPath,
		debounce:    debounce,
		logger:      logger.With().Str("component", "settings-watcher").Logger(),
	}
}

// Watch blocks until ctx is done, calling onChange with the reloaded
// settings after each burst of changes. Settings that fail to load are
// logged and skipped. Calls to onChange never overlap.
func (w *SettingsWatcher) Watch(ctx context.Context, onChange func(context.Context, *engine.ProjectSettings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched.
	dir := environment.ConfigsDir(w.projectPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(SettingsFile(w.projectPath))

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		settings, err := LoadSettings(w.projectPath)
		if err != nil {
			w.logger.Warn().Err(err).Msg("Failed to reload project settings")
			return
		}
		w.logger.Debug().Msg("Project settings changed")
		onChange(ctx, settings)
	}

	w.logger.Info().Str("path", target).Msg("Watching project settings")
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
