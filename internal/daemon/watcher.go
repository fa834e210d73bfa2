//go:build unix

package daemon

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/appyard/appyard/internal/orchestrator"
)

// watcher notices app directories being deleted out from under the daemon
// and releases their processes and port assignments, the same cleanup a
// restart's reconcile pass would do, just without the wait.
type watcher struct {
	fw      *fsnotify.Watcher
	appsDir string
	orc     *orchestrator.Orchestrator
	log     *zap.Logger
}

func newWatcher(appsDir string, orc *orchestrator.Orchestrator, log *zap.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(appsDir); err != nil {
		fw.Close()
		return nil, err
	}
	return &watcher{
		fw:      fw,
		appsDir: filepath.Clean(appsDir),
		orc:     orc,
		log:     log.Named("watcher"),
	}, nil
}

func (w *watcher) run(ctx context.Context) {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// Only direct children of the apps dir are app directories.
			if filepath.Dir(filepath.Clean(ev.Name)) != w.appsDir {
				continue
			}
			name := filepath.Base(ev.Name)
			if err := w.orc.RemoveApp(name); err == nil {
				w.log.Info("app directory removed, released its assignment",
					zap.String("app", name))
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}
