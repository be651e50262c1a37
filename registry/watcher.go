package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"downtime/ml"
)

// Watcher reloads the artifact when another process (the offline trainer)
// replaces the file on disk.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	onReload func(*ml.Artifact)
}

// NewWatcher watches the directory holding the artifact, creating it if no
// model has been trained yet. The file itself is replaced by rename, which
// drops a watch placed on it directly.
func (r *Registry) NewWatcher(onReload func(*ml.Artifact)) (*Watcher, error) {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{registry: r, watcher: fw, onReload: onReload}, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	target := filepath.Clean(w.registry.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.registry.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	w.registry.publishMu.Lock()
	defer w.registry.publishMu.Unlock()

	artifact, err := ml.LoadArtifact(w.registry.path)
	if err != nil {
		// partial writes from foreign tools show up here; the next event retries
		w.registry.logger.Debug("artifact reload skipped", zap.Error(err))
		return
	}
	if current := w.registry.current.Load(); current != nil && current.ID == artifact.ID {
		return
	}
	w.registry.current.Store(artifact)
	w.registry.logger.Info("artifact reloaded", zap.String("artifact_id", artifact.ID))
	if w.onReload != nil {
		w.onReload(artifact)
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
