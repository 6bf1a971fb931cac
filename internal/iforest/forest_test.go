package iforest

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// clusterWithOutliers returns n points around the origin followed by the given outliers
func clusterWithOutliers(n int, outliers [][]float64) *mat.Dense {
	rng := rand.New(rand.NewPCG(7, 11))
	data := make([]float64, 0, (n+len(outliers))*2)
	for i := 0; i < n; i++ {
		data = append(data, rng.NormFloat64(), rng.NormFloat64())
	}
	for _, o := range outliers {
		data = append(data, o...)
	}
	return mat.NewDense(n+len(outliers), 2, data)
}

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 2*(math.Log(2)+eulerGamma) - 4.0/3.0},
		{256, 2*(math.Log(255)+eulerGamma) - 2*255.0/256.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, averagePathLength(tt.n), 1e-12, "c(%d)", tt.n)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}
	assert.Equal(t, 1.0, percentile(values, 0))
	assert.Equal(t, 5.0, percentile(values, 100))
	assert.Equal(t, 3.0, percentile(values, 50))
	assert.InDelta(t, 1.2, percentile(values, 5), 1e-12)
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values, "input must not be reordered")
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Estimators: 0})
	assert.ErrorIs(t, err, ErrInvalidEstimators)

	_, err = New(Options{Estimators: 10, Contamination: 0.7})
	assert.ErrorIs(t, err, ErrInvalidContamination)

	_, err = New(Options{Estimators: 10, Contamination: 0})
	assert.NoError(t, err)
}

func TestFitPredictFindsOutliers(t *testing.T) {
	x := clusterWithOutliers(200, [][]float64{{8, 8}, {-9, 7}, {10, -10}})

	opts := DefaultOptions()
	opts.Contamination = 0.02
	f, err := New(opts)
	require.NoError(t, err)

	labels, err := f.FitPredict(context.Background(), x)
	require.NoError(t, err)
	require.Len(t, labels, 203)

	flagged := 0
	for _, l := range labels {
		assert.Contains(t, []int{-1, 1}, l)
		if l == -1 {
			flagged++
		}
	}
	assert.LessOrEqual(t, flagged, 5)
	assert.Equal(t, -1, labels[200])
	assert.Equal(t, -1, labels[201])
	assert.Equal(t, -1, labels[202])
	assert.Equal(t, 203, f.MaxSamples(), "auto max samples is min(256, n)")
}

func TestScoreSamplesOrdering(t *testing.T) {
	x := clusterWithOutliers(100, [][]float64{{12, 12}})

	f, err := New(Options{Estimators: 50, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, f.Fit(context.Background(), x))
	assert.Equal(t, autoOffset, f.Offset())

	scores, err := f.ScoreSamples(x)
	require.NoError(t, err)

	for i, s := range scores {
		assert.Less(t, s, 0.0)
		assert.GreaterOrEqual(t, s, -1.0)
		if i < 100 {
			assert.Less(t, scores[100], s, "outlier must score lower than row %d", i)
		}
	}

	decision, err := f.DecisionFunction(x)
	require.NoError(t, err)
	assert.InDelta(t, scores[0]+0.5, decision[0], 1e-12)
	assert.Less(t, decision[100], 0.0)
}

func TestContaminationOffset(t *testing.T) {
	x := clusterWithOutliers(100, nil)

	f, err := New(Options{Estimators: 100, Contamination: 0.05, Seed: 42, Workers: 2})
	require.NoError(t, err)
	labels, err := f.FitPredict(context.Background(), x)
	require.NoError(t, err)

	scores, err := f.ScoreSamples(x)
	require.NoError(t, err)
	assert.InDelta(t, percentile(scores, 5), f.Offset(), 1e-12)

	flagged := 0
	for _, l := range labels {
		if l == -1 {
			flagged++
		}
	}
	assert.LessOrEqual(t, flagged, 5)
	assert.GreaterOrEqual(t, flagged, 3)
}

func TestFitDeterministic(t *testing.T) {
	x := clusterWithOutliers(150, [][]float64{{6, -6}})

	score := func(workers int) []float64 {
		f, err := New(Options{Estimators: 40, Contamination: 0.05, Seed: 99, Workers: workers})
		require.NoError(t, err)
		require.NoError(t, f.Fit(context.Background(), x))
		s, err := f.ScoreSamples(x)
		require.NoError(t, err)
		return s
	}

	assert.Equal(t, score(1), score(8))
}

func TestMaxSamplesClamped(t *testing.T) {
	x := clusterWithOutliers(20, nil)

	f, err := New(Options{Estimators: 5, MaxSamples: 500})
	require.NoError(t, err)
	require.NoError(t, f.Fit(context.Background(), x))
	assert.Equal(t, 20, f.MaxSamples())
}

func TestConstantInput(t *testing.T) {
	x := mat.NewDense(10, 2, make([]float64, 20))

	f, err := New(Options{Estimators: 10, Contamination: 0.1})
	require.NoError(t, err)
	labels, err := f.FitPredict(context.Background(), x)
	require.NoError(t, err)

	// identical rows cannot be isolated, so none fall below the offset
	for _, l := range labels {
		assert.Equal(t, 1, l)
	}
}

func TestTreeSplitsOnlyVaryingFeatures(t *testing.T) {
	data := make([]float64, 0, 64*2)
	for i := 0; i < 64; i++ {
		data = append(data, 3, float64(i))
	}
	x := mat.NewDense(64, 2, data)
	rows := make([]int, 64)
	for i := range rows {
		rows[i] = i
	}

	tree := buildTree(x, rows, 6, rand.New(rand.NewPCG(1, 2)))
	require.Greater(t, len(tree.nodes), 1, "a varying column must be split")
	for _, n := range tree.nodes {
		if n.left != leaf {
			assert.Equal(t, 1, n.feature, "column 0 is constant")
		}
	}
}

func TestForestErrors(t *testing.T) {
	f, err := New(DefaultOptions())
	require.NoError(t, err)

	_, err = f.Predict(mat.NewDense(1, 2, nil))
	assert.ErrorIs(t, err, ErrNotFitted)

	assert.ErrorIs(t, f.Fit(context.Background(), &mat.Dense{}), ErrEmptyInput)

	require.NoError(t, f.Fit(context.Background(), clusterWithOutliers(30, nil)))
	_, err = f.Predict(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestFitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, err := New(DefaultOptions())
	require.NoError(t, err)
	err = f.Fit(ctx, clusterWithOutliers(50, nil))
	assert.ErrorIs(t, err, context.Canceled)
}
