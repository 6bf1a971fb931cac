// Package preprocessing turns transactions into a scaled feature matrix.
package preprocessing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Alias1177/txanomaly/models"
)

var (
	ErrNotFitted       = errors.New("scaler is not fitted")
	ErrEmptyInput      = errors.New("empty input")
	ErrFeatureMismatch = errors.New("feature count mismatch")
)

// FeatureNames lists the model columns in matrix order
var FeatureNames = []string{"amount", "time", "frequency"}

// Features builds the n x 3 matrix (amount, time, frequency)
func Features(txns []models.Transaction) (*mat.Dense, error) {
	if len(txns) == 0 {
		return nil, ErrEmptyInput
	}
	data := make([]float64, 0, len(txns)*len(FeatureNames))
	for _, tx := range txns {
		data = append(data, tx.Amount, float64(tx.Time), float64(tx.Frequency))
	}
	return mat.NewDense(len(txns), len(FeatureNames), data), nil
}

// StandardScaler removes the column mean and scales to unit variance.
// Population statistics are used; constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes per-column mean and standard deviation
func (s *StandardScaler) Fit(x mat.Matrix) error {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return ErrEmptyInput
	}

	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return nil
}

// Transform returns a new scaled matrix
func (s *StandardScaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	r, c := x.Dims()
	if r == 0 {
		return nil, ErrEmptyInput
	}
	if c != len(s.Mean) {
		return nil, fmt.Errorf("%w: fitted on %d, got %d", ErrFeatureMismatch, len(s.Mean), c)
	}

	var out mat.Dense
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return &out, nil
}

// FitTransform fits on x and returns x scaled
func (s *StandardScaler) FitTransform(x mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}
