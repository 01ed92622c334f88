package templates

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tikzflow/internal/logging"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever its backing file changes, until ctx is
// cancelled. The parent directory is watched so editors that replace the file
// by rename are picked up.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(filepath.Dir(c.path)); err != nil {
		return err
	}

	target := filepath.Clean(c.path)
	var timer *time.Timer
	reload := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := c.Reload(); err != nil {
				logging.WarnWithContext(c.logger, "template reload failed; keeping previous catalog", "template_reload_failed",
					logging.String("template_file", c.path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "fix the JSON file; it must match the template schema"),
				)
				continue
			}
			c.logger.Info("template catalog reloaded", logging.Int("template_count", len(c.List())))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("template watcher error", logging.Error(err))
		}
	}
}
