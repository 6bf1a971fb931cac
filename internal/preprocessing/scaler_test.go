package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/Alias1177/txanomaly/models"
)

func TestFeatures(t *testing.T) {
	txns := []models.Transaction{
		{TransactionID: 1, Amount: 12.5, Time: 3, Frequency: 4},
		{TransactionID: 2, Amount: 900, Time: 23, Frequency: 1},
	}
	x, err := Features(txns)
	require.NoError(t, err)

	r, c := x.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, []float64{12.5, 3, 4}, x.RawRowView(0))
	assert.Equal(t, []float64{900, 23, 1}, x.RawRowView(1))

	_, err = Features(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestStandardScalerFitTransform(t *testing.T) {
	x := mat.NewDense(4, 3, []float64{
		1, 10, 5,
		2, 20, 5,
		3, 30, 5,
		4, 40, 5,
	})

	var s StandardScaler
	out, err := s.FitTransform(x)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{2.5, 25, 5}, s.Mean, 1e-12)
	assert.InDelta(t, 1.118033988749895, s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[2], "constant column keeps unit scale")

	col := make([]float64, 4)
	for j := 0; j < 2; j++ {
		mat.Col(col, j, out)
		mean, std := stat.PopMeanStdDev(col, nil)
		assert.InDelta(t, 0, mean, 1e-12)
		assert.InDelta(t, 1, std, 1e-12)
	}
	mat.Col(col, 2, out)
	assert.Equal(t, []float64{0, 0, 0, 0}, col)

	// input is left untouched
	assert.Equal(t, 1.0, x.At(0, 0))
}

func TestStandardScalerErrors(t *testing.T) {
	var s StandardScaler
	_, err := s.Transform(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrNotFitted)

	require.NoError(t, s.Fit(mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})))
	_, err = s.Transform(mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, ErrFeatureMismatch)

	assert.ErrorIs(t, s.Fit(&mat.Dense{}), ErrEmptyInput)
}
