package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"downtime/db"
	"downtime/ml"
	"downtime/monitoring"
)

// Predict classifies one reading with the artifact that is current when the
// call starts.
func (s *Service) Predict(ctx context.Context, payload map[string]interface{}) (*ml.Prediction, error) {
	start := time.Now()
	prediction, artifactID, cached, err := s.predict(payload)
	s.metrics.IncrCounter(monitoring.MetricPredictions, 1, outcome(err))
	if err != nil {
		s.logger.Debug("prediction rejected", zap.Error(err))
		return nil, err
	}
	s.metrics.ObserveDuration(monitoring.MetricPredictionSeconds, time.Since(start), nil)
	if cached {
		s.metrics.IncrCounter(monitoring.MetricPredictionCacheHit, 1, nil)
	}

	if s.store != nil {
		record := db.PredictionRecord{
			ArtifactID: artifactID,
			MachineID:  prediction.machineID,
			Label:      prediction.Label,
			Downtime:   prediction.Downtime,
			Confidence: prediction.Confidence,
			Timestamp:  time.Now().UTC(),
		}
		if err := s.store.SavePrediction(ctx, record); err != nil {
			s.logger.Warn("record prediction failed", zap.Error(err))
		}
	}
	s.publish(monitoring.PredictionMade, map[string]interface{}{
		"artifact_id": artifactID,
		"Machine_ID":  prediction.machineID,
		"Downtime":    prediction.Downtime,
		"Confidence":  prediction.Confidence,
	})

	return &prediction.Prediction, nil
}

type servedPrediction struct {
	ml.Prediction
	machineID string
}

func (s *Service) predict(payload map[string]interface{}) (servedPrediction, string, bool, error) {
	artifact, err := s.registry.Current()
	if err != nil {
		return servedPrediction{}, "", false, err
	}
	record, err := ml.ParseRecord(payload)
	if err != nil {
		return servedPrediction{}, artifact.ID, false, err
	}
	if record.Date == "" {
		record.Date = ml.DefaultPredictDate
	}

	key := artifact.ID + "|" + record.Key()
	if prediction, ok := s.cache.Get(key); ok {
		return servedPrediction{Prediction: prediction, machineID: record.MachineID}, artifact.ID, true, nil
	}
	prediction, err := artifact.Predict(record)
	if err != nil {
		return servedPrediction{}, artifact.ID, false, err
	}
	s.cache.Add(key, prediction)
	return servedPrediction{Prediction: prediction, machineID: record.MachineID}, artifact.ID, false, nil
}
