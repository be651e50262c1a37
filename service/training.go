package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"downtime/db"
	"downtime/ml"
	"downtime/monitoring"
)

type TrainResult struct {
	Message         string  `json:"message"`
	Accuracy        float64 `json:"accuracy"`
	ConfusionMatrix [][]int `json:"confusion_matrix"`
}

// Train fits a new artifact on the current snapshot and publishes it once it
// has been persisted. Training runs one at a time; predictions keep using the
// previous artifact until the new one is published.
func (s *Service) Train(ctx context.Context) (*TrainResult, error) {
	var artifact *ml.Artifact
	start := time.Now()
	err := s.registry.WithTrainingLock(func() error {
		table, err := s.snapshots.Load()
		if err != nil {
			return err
		}
		trained, err := ml.TrainArtifact(table, s.config.Forest)
		if err != nil {
			return err
		}
		if err := s.registry.Publish(trained); err != nil {
			return err
		}
		artifact = trained
		return nil
	})
	s.metrics.IncrCounter(monitoring.MetricTrainings, 1, outcome(err))
	if err != nil {
		s.logger.Warn("training failed", zap.Error(err))
		return nil, err
	}
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(monitoring.MetricTrainingSeconds, elapsed, nil)
	s.metrics.SetGauge(monitoring.MetricModelAccuracy, artifact.Evaluation.Accuracy, nil)
	s.cache.Purge()

	eval := artifact.Evaluation
	s.logger.Info("model trained",
		zap.String("artifact_id", artifact.ID),
		zap.Int("rows", artifact.Rows),
		zap.Int("test_rows", eval.TestRows),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Duration("elapsed", elapsed))

	if s.store != nil {
		log := db.TrainingLog{
			ArtifactID:      artifact.ID,
			ModelName:       modelName,
			Accuracy:        eval.Accuracy,
			ConfusionMatrix: eval.ConfusionMatrix,
			DataPoints:      artifact.Rows,
			TestPoints:      eval.TestRows,
			Machines:        len(artifact.Encoder.Categories),
			TrainedAt:       artifact.TrainedAt,
		}
		if err := s.store.SaveTrainingLog(ctx, log); err != nil {
			s.logger.Warn("record training run failed", zap.Error(err))
		}
	}
	s.publish(monitoring.ModelTrained, describe(artifact))

	return &TrainResult{
		Message:         "Model trained successfully",
		Accuracy:        eval.Accuracy,
		ConfusionMatrix: eval.ConfusionMatrix,
	}, nil
}
