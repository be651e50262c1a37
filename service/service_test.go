package service

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"downtime/db"
	"downtime/internal/fixtures"
	"downtime/ml"
	"downtime/monitoring"
	"downtime/pipeline"
	"downtime/registry"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []monitoring.EventType
}

func (r *recordingEvents) Publish(eventType monitoring.EventType, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingEvents) has(eventType monitoring.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == eventType {
			return true
		}
	}
	return false
}

type testEnv struct {
	svc    *Service
	store  *db.Store
	events *recordingEvents
	reg    *registry.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := db.Open(filepath.Join(dir, "downtime.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	config := DefaultConfig()
	config.Forest.Trees = 10
	events := &recordingEvents{}
	reg := registry.New(filepath.Join(dir, "models", "model.json"), nil)
	svc, err := New(config, Deps{
		Snapshots: pipeline.NewSnapshotStore(filepath.Join(dir, "data", "uploaded_data.csv")),
		Registry:  reg,
		Store:     store,
		Events:    events,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &testEnv{svc: svc, store: store, events: events, reg: reg}
}

func (e *testEnv) uploadAndTrain(t *testing.T) *TrainResult {
	t.Helper()
	ctx := context.Background()
	if _, err := e.svc.Upload(ctx, bytes.NewReader(fixtures.CSV(20))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := e.svc.Train(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Fatal("expected error without snapshot store and registry")
	}
}

func TestPredictBeforeTraining(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Predict(context.Background(), fixtures.Payload(fixtures.MachineA, true))
	if !errors.Is(err, ml.ErrNotReady) {
		t.Fatalf("expected NotReady, got %v", err)
	}
	if _, err := env.svc.ModelInfo(); !errors.Is(err, ml.ErrNotReady) {
		t.Fatalf("expected NotReady, got %v", err)
	}
}

func TestTrainWithoutDataset(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Train(context.Background())
	if !errors.Is(err, ml.ErrIO) {
		t.Fatalf("expected IOError, got %v", err)
	}
}

func TestUploadTrainPredict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	upload, err := env.svc.Upload(ctx, bytes.NewReader(fixtures.CSV(20)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upload.Message != "File uploaded successfully" {
		t.Fatalf("unexpected message: %q", upload.Message)
	}
	if len(upload.Columns) != 16 || upload.Columns[0] != ml.ColumnDate {
		t.Fatalf("unexpected columns: %v", upload.Columns)
	}

	result, err := env.svc.Train(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accuracy < 0.75 {
		t.Fatalf("expected separable data to score well, got %v", result.Accuracy)
	}
	if len(result.ConfusionMatrix) != 2 || len(result.ConfusionMatrix[0]) != 2 {
		t.Fatalf("unexpected confusion matrix: %v", result.ConfusionMatrix)
	}

	prediction, err := env.svc.Predict(ctx, fixtures.Payload(fixtures.MachineA, true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prediction.Downtime != ml.LabelFailure {
		t.Fatalf("expected %s, got %s", ml.LabelFailure, prediction.Downtime)
	}
	if prediction.Confidence < 0.5 || prediction.Confidence > 1 {
		t.Fatalf("unexpected confidence %v", prediction.Confidence)
	}

	history, err := env.svc.TrainingHistory(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].Machines != 2 || history[0].TestPoints != 4 {
		t.Fatalf("unexpected history: %+v", history)
	}

	info, err := env.svc.ModelInfo()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.ID != history[0].ArtifactID {
		t.Fatalf("model info %s does not match training log %s", info.ID, history[0].ArtifactID)
	}
	if info.MinDate != "01-12-2021" {
		t.Fatalf("expected min date 01-12-2021, got %s", info.MinDate)
	}
	count, err := env.store.CountPredictions(ctx, info.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 recorded prediction, got %d", count)
	}

	for _, e := range []monitoring.EventType{monitoring.DatasetUploaded, monitoring.ModelTrained, monitoring.PredictionMade} {
		if !env.events.has(e) {
			t.Fatalf("expected %s event", e)
		}
	}
}

func TestPredictCachesByArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.uploadAndTrain(t)
	ctx := context.Background()

	first, err := env.svc.Predict(ctx, fixtures.Payload(fixtures.MachineB, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := env.svc.Predict(ctx, fixtures.Payload(fixtures.MachineB, false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *first != *second {
		t.Fatalf("cached prediction differs: %+v vs %+v", first, second)
	}
	hits, err := env.svc.Metrics().GetMetric(monitoring.MetricPredictionCacheHit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits[0].Value != 1 {
		t.Fatalf("expected 1 cache hit, got %v", hits[0].Value)
	}

	env.uploadAndTrain(t)
	if env.svc.cache.Len() != 0 {
		t.Fatal("expected retraining to clear the cache")
	}
}

func TestPredictMissingFields(t *testing.T) {
	env := newTestEnv(t)
	env.uploadAndTrain(t)

	payload := fixtures.Payload(fixtures.MachineA, true)
	delete(payload, ml.ColumnMachineID)
	delete(payload, "Torque(Nm)")

	_, err := env.svc.Predict(context.Background(), payload)
	var mlErr *ml.Error
	if !errors.As(err, &mlErr) || mlErr.Kind != ml.KindSchema {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if strings.Join(mlErr.Fields, ",") != "Machine_ID,Torque(Nm)" {
		t.Fatalf("unexpected missing fields: %v", mlErr.Fields)
	}
}

func TestPredictUnknownMachine(t *testing.T) {
	env := newTestEnv(t)
	env.uploadAndTrain(t)

	_, err := env.svc.Predict(context.Background(), fixtures.Payload("Okuma-L9-Unit9-2020", true))
	if !errors.Is(err, ml.ErrUnknownCategory) {
		t.Fatalf("expected UnknownCategory, got %v", err)
	}
}

func TestFailedUploadKeepsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Upload(ctx, bytes.NewReader(fixtures.CSV(20))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.svc.Upload(ctx, strings.NewReader("")); !errors.Is(err, ml.ErrIO) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if _, err := env.svc.Train(ctx); err != nil {
		t.Fatalf("expected previous snapshot to train, got %v", err)
	}
}

func TestFailedTrainingKeepsModel(t *testing.T) {
	env := newTestEnv(t)
	env.uploadAndTrain(t)
	before, _ := env.reg.Current()

	ctx := context.Background()
	if _, err := env.svc.Upload(ctx, strings.NewReader("Date,Machine_ID\n01-12-2021,"+fixtures.MachineA+"\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := env.svc.Train(ctx)
	if !errors.Is(err, ml.ErrSchema) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	after, err := env.reg.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.ID != before.ID {
		t.Fatal("failed training replaced the published model")
	}
}
