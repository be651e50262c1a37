package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centres each feature on its training mean and divides by the
// population standard deviation. Constant features keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Fit(features [][]float64) error {
	if len(features) == 0 {
		return errors.New("features is empty")
	}
	width := len(features[0])
	columns := make([][]float64, width)
	for j := range columns {
		columns[j] = make([]float64, len(features))
	}
	for i, row := range features {
		if len(row) != width {
			return errors.New("features have inconsistent widths")
		}
		for j, v := range row {
			columns[j][i] = v
		}
	}

	mean := make([]float64, width)
	scale := make([]float64, width)
	for j, column := range columns {
		m, std := stat.PopMeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		mean[j] = m
		scale[j] = std
	}

	s.Mean = mean
	s.Scale = scale
	return nil
}

func (s *StandardScaler) Transform(vector []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, errors.New("scaler stats not computed")
	}
	if len(vector) != len(s.Mean) {
		return nil, errors.New("vector/mean length mismatch")
	}
	result := make([]float64, len(vector))
	for i, v := range vector {
		result[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return result, nil
}

func (s *StandardScaler) TransformAll(features [][]float64) ([][]float64, error) {
	result := make([][]float64, len(features))
	for i, row := range features {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		result[i] = scaled
	}
	return result, nil
}
