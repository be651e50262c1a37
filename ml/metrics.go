package ml

import "errors"

type Evaluation struct {
	Accuracy        float64 `json:"accuracy"`
	ConfusionMatrix [][]int `json:"confusion_matrix"`
	TestRows        int     `json:"test_rows"`
}

func Accuracy(actual, predicted []int) float64 {
	if len(actual) == 0 {
		return 0
	}
	correct := 0
	for i := range actual {
		if actual[i] == predicted[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(actual))
}

// ConfusionMatrix counts actual classes by row and predicted classes by column.
func ConfusionMatrix(actual, predicted []int, numClasses int) [][]int {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	for i := range actual {
		if actual[i] < numClasses && predicted[i] < numClasses {
			matrix[actual[i]][predicted[i]]++
		}
	}
	return matrix
}

func Evaluate(model Classifier, features [][]float64, labels []int) (Evaluation, error) {
	if len(features) == 0 {
		return Evaluation{}, errors.New("no rows to evaluate")
	}
	predicted := make([]int, len(features))
	for i, row := range features {
		label, _, err := model.Predict(row)
		if err != nil {
			return Evaluation{}, err
		}
		predicted[i] = label
	}
	return Evaluation{
		Accuracy:        Accuracy(labels, predicted),
		ConfusionMatrix: ConfusionMatrix(labels, predicted, 2),
		TestRows:        len(labels),
	}, nil
}
