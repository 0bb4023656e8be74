// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// Config file watching: reloads the TOML file into a ConfigStore on change.

package control

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig watches path and pushes every successfully parsed version into
// store until ctx is done. The directory is watched rather than the file so
// that editors replacing the file by rename are still observed.
//
// Parse failures are logged and the previous configuration stays active.
func WatchConfig(ctx context.Context, path string, store *ConfigStore) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("control: watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("control: watch %s: %w", abs, err)
	}

	log := Component("hotreload").WithField("path", abs)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				cfg, err := LoadConfig(abs)
				if err != nil {
					log.WithError(err).Warn("config reload rejected")
					continue
				}
				if err := store.SetConfig(cfg); err != nil {
					log.WithError(err).Warn("config reload rejected")
					continue
				}
				log.Info("config reloaded")
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("watcher error")
			}
		}
	}()
	return nil
}
