package tools

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the modules directory for manifest changes and triggers
// a registry reload after the burst settles. Any number of change events
// inside the debounce window coalesce into a single reload. The watcher
// runs until the context is canceled.
func Watch(ctx context.Context, reg *Registry, dir string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	slog.Info("Watching modules directory", "dir", dir, "debounce", debounce)

	go func() {
		defer watcher.Close()

		var timer *time.Timer

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if strings.ToLower(filepath.Ext(event.Name)) != ".json" {
					continue
				}
				// Restart the timer so rapid bursts trigger one reload
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					slog.Info("Module manifest change detected", "file", event.Name)
					reg.Reload()
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Module watcher encountered an error", "error", err)
			}
		}
	}()

	return nil
}
