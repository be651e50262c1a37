// Package service implements the upload, train and predict operations on
// top of the dataset snapshot, the model registry and the audit store.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"downtime/db"
	"downtime/ml"
	"downtime/monitoring"
	"downtime/pipeline"
	"downtime/registry"
)

const modelName = "random_forest"

// AuditStore records service activity. db.Store implements it.
type AuditStore interface {
	SaveDataset(ctx context.Context, record db.DatasetRecord) error
	SaveTrainingLog(ctx context.Context, log db.TrainingLog) error
	LoadTrainingLog(ctx context.Context, limit int) ([]db.TrainingLog, error)
	SavePrediction(ctx context.Context, record db.PredictionRecord) error
}

// EventPublisher pushes service events to live subscribers.
// monitoring.Hub implements it.
type EventPublisher interface {
	Publish(eventType monitoring.EventType, data interface{})
}

type Config struct {
	Forest    ml.ForestConfig
	CacheSize int
}

func DefaultConfig() Config {
	return Config{Forest: ml.DefaultForestConfig(), CacheSize: 1024}
}

// Deps are the collaborators of a Service. Store, Events and Metrics are
// optional.
type Deps struct {
	Snapshots *pipeline.SnapshotStore
	Registry  *registry.Registry
	Store     AuditStore
	Events    EventPublisher
	Metrics   *monitoring.MetricsCollector
	Logger    *zap.Logger
}

type Service struct {
	config    Config
	snapshots *pipeline.SnapshotStore
	registry  *registry.Registry
	store     AuditStore
	events    EventPublisher
	metrics   *monitoring.MetricsCollector
	cache     *lru.Cache[string, ml.Prediction]
	logger    *zap.Logger
}

func New(config Config, deps Deps) (*Service, error) {
	if deps.Snapshots == nil || deps.Registry == nil {
		return nil, errors.New("snapshot store and registry are required")
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultConfig().CacheSize
	}
	cache, err := lru.New[string, ml.Prediction](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create prediction cache: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}
	return &Service{
		config:    config,
		snapshots: deps.Snapshots,
		registry:  deps.Registry,
		store:     deps.Store,
		events:    deps.Events,
		metrics:   metrics,
		cache:     cache,
		logger:    logger.Named("service"),
	}, nil
}

type UploadResult struct {
	Message string   `json:"message"`
	Columns []string `json:"columns"`
}

// Upload parses a CSV dataset and makes it the snapshot the next training
// run reads. A body that fails to parse leaves the previous snapshot in place.
func (s *Service) Upload(ctx context.Context, r io.Reader) (*UploadResult, error) {
	table, err := s.snapshots.Save(r)
	if err != nil {
		s.metrics.IncrCounter(monitoring.MetricUploads, 1, outcome(err))
		s.logger.Warn("upload rejected", zap.Error(err))
		return nil, err
	}
	s.metrics.IncrCounter(monitoring.MetricUploads, 1, outcome(nil))
	s.logger.Info("dataset uploaded", zap.Int("rows", table.Len()), zap.Int("columns", len(table.Columns)))

	if s.store != nil {
		record := db.DatasetRecord{
			Path:       s.snapshots.Path(),
			Columns:    table.Columns,
			Rows:       table.Len(),
			UploadedAt: time.Now().UTC(),
		}
		if err := s.store.SaveDataset(ctx, record); err != nil {
			s.logger.Warn("record dataset failed", zap.Error(err))
		}
	}
	s.publish(monitoring.DatasetUploaded, map[string]interface{}{
		"columns": table.Columns,
		"rows":    table.Len(),
	})

	return &UploadResult{Message: "File uploaded successfully", Columns: table.Columns}, nil
}

// ModelInfo describes the published artifact.
type ModelInfo struct {
	ID         string        `json:"id"`
	Model      string        `json:"model"`
	TrainedAt  time.Time     `json:"trained_at"`
	Rows       int           `json:"rows"`
	Schema     ml.Schema     `json:"schema"`
	Categories []string      `json:"categories"`
	MinDate    string        `json:"min_date"`
	Evaluation ml.Evaluation `json:"evaluation"`
}

func (s *Service) ModelInfo() (*ModelInfo, error) {
	artifact, err := s.registry.Current()
	if err != nil {
		return nil, err
	}
	return describe(artifact), nil
}

func describe(artifact *ml.Artifact) *ModelInfo {
	return &ModelInfo{
		ID:         artifact.ID,
		Model:      modelName,
		TrainedAt:  artifact.TrainedAt,
		Rows:       artifact.Rows,
		Schema:     artifact.Schema(),
		Categories: artifact.Encoder.Categories,
		MinDate:    artifact.Encoder.MinDate.Format("02-01-2006"),
		Evaluation: artifact.Evaluation,
	}
}

// TrainingHistory returns recorded training runs, newest first.
func (s *Service) TrainingHistory(ctx context.Context, limit int) ([]db.TrainingLog, error) {
	if s.store == nil {
		return []db.TrainingLog{}, nil
	}
	return s.store.LoadTrainingLog(ctx, limit)
}

// ModelReloaded is called when the registry picks up an artifact written by
// another process.
func (s *Service) ModelReloaded(artifact *ml.Artifact) {
	s.cache.Purge()
	s.metrics.SetGauge(monitoring.MetricModelAccuracy, artifact.Evaluation.Accuracy, nil)
	s.publish(monitoring.ModelReloaded, describe(artifact))
}

func (s *Service) Metrics() *monitoring.MetricsCollector {
	return s.metrics
}

func (s *Service) publish(eventType monitoring.EventType, data interface{}) {
	if s.events != nil {
		s.events.Publish(eventType, data)
	}
}

func outcome(err error) map[string]string {
	if err == nil {
		return map[string]string{"outcome": "ok"}
	}
	kind := string(ml.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	return map[string]string{"outcome": kind}
}
