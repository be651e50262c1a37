package ml

// Classifier is implemented by DecisionTree, RandomForest and Pipeline.
type Classifier interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	PredictProba(features []float64) ([]float64, error)
}
