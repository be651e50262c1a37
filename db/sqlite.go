package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL,
    columns TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    uploaded_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    artifact_id TEXT NOT NULL UNIQUE,
    model_name VARCHAR(50),
    accuracy REAL,
    confusion_matrix TEXT,
    data_points INTEGER,
    test_points INTEGER,
    machines INTEGER,
    trained_at DATETIME
);
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    artifact_id TEXT NOT NULL,
    machine_id TEXT NOT NULL,
    predicted_label INTEGER,
    downtime TEXT,
    confidence REAL,
    timestamp DATETIME
);
CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);
CREATE INDEX IF NOT EXISTS idx_predictions_artifact ON predictions(artifact_id);
`

// Store records uploads, training runs and predictions in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(1)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type DatasetRecord struct {
	Path       string    `json:"path"`
	Columns    []string  `json:"columns"`
	Rows       int       `json:"rows"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SaveDataset logs an accepted upload.
func (s *Store) SaveDataset(ctx context.Context, record DatasetRecord) error {
	columns, err := json.Marshal(record.Columns)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO datasets (path, columns, row_count, uploaded_at)
        VALUES (?, ?, ?, ?)`,
		record.Path, string(columns), record.Rows, record.UploadedAt)
	return err
}

// LatestDataset returns the most recent upload, or nil if there is none.
func (s *Store) LatestDataset(ctx context.Context) (*DatasetRecord, error) {
	var record DatasetRecord
	var columns string
	err := s.db.QueryRowContext(ctx, `
        SELECT path, columns, row_count, uploaded_at
        FROM datasets
        ORDER BY id DESC
        LIMIT 1`).Scan(&record.Path, &columns, &record.Rows, &record.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(columns), &record.Columns); err != nil {
		return nil, err
	}
	return &record, nil
}

type TrainingLog struct {
	ArtifactID      string    `json:"artifact_id"`
	ModelName       string    `json:"model_name"`
	Accuracy        float64   `json:"accuracy"`
	ConfusionMatrix [][]int   `json:"confusion_matrix"`
	DataPoints      int       `json:"data_points"`
	TestPoints      int       `json:"test_points"`
	Machines        int       `json:"machines"`
	TrainedAt       time.Time `json:"trained_at"`
}

func (s *Store) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	matrix, err := json.Marshal(log.ConfusionMatrix)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO training_log (
            artifact_id, model_name, accuracy, confusion_matrix,
            data_points, test_points, machines, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ArtifactID, log.ModelName, log.Accuracy, string(matrix),
		log.DataPoints, log.TestPoints, log.Machines, log.TrainedAt)
	return err
}

// LoadTrainingLog returns training runs, newest first. A limit <= 0 returns
// every run.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT artifact_id, model_name, accuracy, confusion_matrix,
               data_points, test_points, machines, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var matrix string
		if err := rows.Scan(&log.ArtifactID, &log.ModelName, &log.Accuracy, &matrix,
			&log.DataPoints, &log.TestPoints, &log.Machines, &log.TrainedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(matrix), &log.ConfusionMatrix); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type PredictionRecord struct {
	ArtifactID string    `json:"artifact_id"`
	MachineID  string    `json:"machine_id"`
	Label      int       `json:"label"`
	Downtime   string    `json:"downtime"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *Store) SavePrediction(ctx context.Context, record PredictionRecord) error {
	if record.ArtifactID == "" {
		return errors.New("artifact id required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (
            artifact_id, machine_id, predicted_label, downtime, confidence, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		record.ArtifactID, record.MachineID, record.Label, record.Downtime, record.Confidence, record.Timestamp)
	return err
}

// CountPredictions returns how many predictions were served by an artifact.
func (s *Store) CountPredictions(ctx context.Context, artifactID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions WHERE artifact_id = ?`, artifactID).Scan(&count)
	return count, err
}
