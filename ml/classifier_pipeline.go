package ml

import "errors"

// Pipeline standardizes features before handing them to a random forest.
type Pipeline struct {
	Scaler *StandardScaler `json:"scaler"`
	Forest *RandomForest   `json:"forest"`
}

func NewPipeline(config ForestConfig) *Pipeline {
	return &Pipeline{
		Scaler: &StandardScaler{},
		Forest: NewRandomForest(config),
	}
}

func (p *Pipeline) Train(features [][]float64, labels []int) error {
	if err := p.Scaler.Fit(features); err != nil {
		return err
	}
	scaled, err := p.Scaler.TransformAll(features)
	if err != nil {
		return err
	}
	return p.Forest.Train(scaled, labels)
}

func (p *Pipeline) PredictProba(features []float64) ([]float64, error) {
	if p == nil || p.Scaler == nil || p.Forest == nil {
		return nil, errors.New("model not trained")
	}
	if len(features) != p.Width() {
		return nil, newError(KindSchemaMismatch, "model expects %d features, got %d", p.Width(), len(features))
	}
	scaled, err := p.Scaler.Transform(features)
	if err != nil {
		return nil, err
	}
	return p.Forest.PredictProba(scaled)
}

func (p *Pipeline) Predict(features []float64) (int, float64, error) {
	proba, err := p.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label, confidence := argmax(proba)
	return label, confidence, nil
}

// Width is the feature count the pipeline was fitted on.
func (p *Pipeline) Width() int {
	if p == nil || p.Forest == nil {
		return 0
	}
	return p.Forest.NumFeatures
}
