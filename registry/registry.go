// Package registry holds the published model artifact.
package registry

import (
	"errors"
	"io/fs"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"downtime/ml"
)

// Registry publishes immutable artifacts. Readers take whatever artifact is
// current when they call Current and keep using it, so a prediction never
// mixes the encoder of one training run with the model of another.
type Registry struct {
	current atomic.Pointer[ml.Artifact]
	trainMu sync.Mutex
	// publishMu orders writes of the artifact file with watcher reloads.
	publishMu sync.Mutex
	path    string
	logger  *zap.Logger
}

func New(path string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{path: path, logger: logger}
}

func (r *Registry) Path() string {
	return r.path
}

// Current returns the published artifact or a NotReady error.
func (r *Registry) Current() (*ml.Artifact, error) {
	artifact := r.current.Load()
	if artifact == nil {
		return nil, &ml.Error{Kind: ml.KindNotReady, Message: "model is not trained yet; train the model using the /train endpoint first"}
	}
	return artifact, nil
}

// Publish persists the artifact and then makes it current. Nothing is
// published when the write fails.
func (r *Registry) Publish(artifact *ml.Artifact) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	if err := artifact.Save(r.path); err != nil {
		return ml.WrapError(ml.KindIO, err, "persist artifact")
	}
	r.current.Store(artifact)
	r.logger.Info("artifact published",
		zap.String("artifact_id", artifact.ID),
		zap.Int("features", artifact.Schema().Width()),
		zap.Float64("accuracy", artifact.Evaluation.Accuracy))
	return nil
}

// Load reads the persisted artifact, if any, and makes it current. It reports
// false without error when no artifact has been written yet.
func (r *Registry) Load() (bool, error) {
	artifact, err := ml.LoadArtifact(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.current.Store(artifact)
	r.logger.Info("artifact loaded", zap.String("artifact_id", artifact.ID), zap.String("path", r.path))
	return true, nil
}

// WithTrainingLock runs fn while holding the exclusive training lock.
func (r *Registry) WithTrainingLock(fn func() error) error {
	r.trainMu.Lock()
	defer r.trainMu.Unlock()
	return fn()
}
