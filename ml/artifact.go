package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Artifact bundles everything a prediction needs. The encoder and the model
// are only valid together, so they are persisted and published as one value.
type Artifact struct {
	ID         string     `json:"id"`
	TrainedAt  time.Time  `json:"trained_at"`
	Rows       int        `json:"rows"`
	Encoder    *Encoder   `json:"encoder"`
	Model      *Pipeline  `json:"model"`
	Evaluation Evaluation `json:"evaluation"`
}

type Prediction struct {
	Label      int     `json:"-"`
	Downtime   string  `json:"Downtime"`
	Confidence float64 `json:"Confidence"`
}

func NewArtifact(encoder *Encoder, model *Pipeline, evaluation Evaluation, rows int) *Artifact {
	return &Artifact{
		ID:         uuid.NewString(),
		TrainedAt:  time.Now().UTC(),
		Rows:       rows,
		Encoder:    encoder,
		Model:      model,
		Evaluation: evaluation,
	}
}

func (a *Artifact) Schema() Schema {
	if a == nil || a.Encoder == nil {
		return nil
	}
	return a.Encoder.Schema
}

// Validate checks that the model was fitted on the encoder's schema width.
func (a *Artifact) Validate() error {
	if a.Encoder == nil || a.Model == nil {
		return newError(KindNotReady, "artifact is missing its encoder or model")
	}
	if a.Model.Width() != a.Encoder.Schema.Width() {
		return newError(KindSchemaMismatch, "model was fitted on %d features but the encoder schema has %d", a.Model.Width(), a.Encoder.Schema.Width())
	}
	return nil
}

func (a *Artifact) Predict(record Record) (Prediction, error) {
	vector, err := a.Encoder.Transform(record)
	if err != nil {
		return Prediction{}, err
	}
	if len(vector) != a.Model.Width() {
		return Prediction{}, newError(KindSchemaMismatch, "encoded %d features, model expects %d", len(vector), a.Model.Width())
	}
	proba, err := a.Model.PredictProba(vector)
	if err != nil {
		return Prediction{}, err
	}
	label, confidence := argmax(proba)
	return Prediction{
		Label:      label,
		Downtime:   DecodeLabel(label),
		Confidence: RoundConfidence(confidence),
	}, nil
}

// RoundConfidence rounds half away from zero to two decimal places.
func RoundConfidence(value float64) float64 {
	rounded, _ := decimal.NewFromFloat(value).Round(2).Float64()
	return rounded
}

// Save writes the artifact next to path and renames it into place so readers
// never observe a partial file.
func (a *Artifact) Save(path string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}
