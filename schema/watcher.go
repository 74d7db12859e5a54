package schema

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates the compiler's caches when template files change on
// disk, so edits made in the studio take effect without a restart.
type Watcher struct {
	compiler *Compiler
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher over the compiler's schema directory.
func NewWatcher(compiler *Compiler, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(compiler.schemaDir); err != nil {
		fsw.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		compiler: compiler,
		watcher:  fsw,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}, nil
}

// Run processes file events until the context is done. Changes are
// debounced so a burst of writes triggers one reload.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isTemplateFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Template file changed", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Template watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.compiler.Reload()
			w.logger.Info("Templates reloaded after file change")
		}
	}
}

func isTemplateFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
