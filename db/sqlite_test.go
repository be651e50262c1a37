package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "downtime.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTrainingLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	older := TrainingLog{
		ArtifactID:      "a1",
		ModelName:       "random_forest",
		Accuracy:        0.75,
		ConfusionMatrix: [][]int{{1, 1}, {0, 2}},
		DataPoints:      20,
		TestPoints:      4,
		Machines:        2,
		TrainedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	newer := older
	newer.ArtifactID = "a2"
	newer.Accuracy = 1
	newer.TrainedAt = older.TrainedAt.Add(time.Hour)

	for _, log := range []TrainingLog{older, newer} {
		if err := store.SaveTrainingLog(ctx, log); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	logs, err := store.LoadTrainingLog(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].ArtifactID != "a2" {
		t.Fatalf("expected newest first, got %s", logs[0].ArtifactID)
	}
	if logs[1].ConfusionMatrix[1][1] != 2 {
		t.Fatalf("confusion matrix not restored: %v", logs[1].ConfusionMatrix)
	}

	limited, err := store.LoadTrainingLog(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 log, got %d", len(limited))
	}
}

func TestDatasets(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestDataset(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected no dataset, got %+v", latest)
	}

	record := DatasetRecord{Path: "data/uploaded_data.csv", Columns: []string{"Date", "Machine_ID"}, Rows: 3, UploadedAt: time.Now().UTC()}
	if err := store.SaveDataset(ctx, record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	latest, err = store.LatestDataset(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || latest.Rows != 3 || len(latest.Columns) != 2 {
		t.Fatalf("unexpected dataset: %+v", latest)
	}
}

func TestPredictions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SavePrediction(ctx, PredictionRecord{}); err == nil {
		t.Fatal("expected error without artifact id")
	}
	for i := 0; i < 3; i++ {
		err := store.SavePrediction(ctx, PredictionRecord{
			ArtifactID: "a1",
			MachineID:  "Makino-L1-Unit1-2013",
			Label:      1,
			Downtime:   "Machine_Failure",
			Confidence: 0.9,
			Timestamp:  time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	count, err := store.CountPredictions(ctx, "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 predictions, got %d", count)
	}
}
