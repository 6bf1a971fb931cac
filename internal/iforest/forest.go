// Package iforest implements the isolation forest outlier detector.
//
// Scores follow the usual convention: ScoreSamples returns the negated
// anomaly score, so lower means more abnormal, and Predict returns -1 for
// outliers and +1 for inliers.
package iforest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

var (
	ErrNotFitted            = errors.New("forest is not fitted")
	ErrEmptyInput           = errors.New("empty input")
	ErrFeatureMismatch      = errors.New("feature count mismatch")
	ErrInvalidEstimators    = errors.New("estimators must be at least 1")
	ErrInvalidContamination = errors.New("contamination must be auto (0) or in (0, 0.5]")
)

const (
	autoMaxSamples = 256
	autoOffset     = -0.5
)

// Options configures a Forest
type Options struct {
	Estimators    int
	MaxSamples    int     // 0 means min(256, n)
	Contamination float64 // 0 means auto
	Seed          int64
	Workers       int // concurrent tree builders, 0 means 1
}

// DefaultOptions mirrors the usual library defaults with a 5% contamination
func DefaultOptions() Options {
	return Options{
		Estimators:    100,
		Contamination: 0.05,
		Seed:          42,
		Workers:       4,
	}
}

// Forest is an ensemble of isolation trees
type Forest struct {
	opts       Options
	trees      []*itree
	features   int
	maxSamples int
	offset     float64
	logger     zerolog.Logger
}

// New validates opts and returns an unfitted forest
func New(opts Options) (*Forest, error) {
	if opts.Estimators < 1 {
		return nil, ErrInvalidEstimators
	}
	if opts.Contamination < 0 || opts.Contamination > 0.5 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidContamination, opts.Contamination)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Forest{
		opts:   opts,
		logger: log.With().Str("component", "iforest").Logger(),
	}, nil
}

// Fit grows the trees on x and sets the decision offset
func (f *Forest) Fit(ctx context.Context, x *mat.Dense) error {
	n, c := x.Dims()
	if n == 0 || c == 0 {
		return ErrEmptyInput
	}

	maxSamples := f.opts.MaxSamples
	if maxSamples == 0 {
		maxSamples = min(autoMaxSamples, n)
	}
	if maxSamples > n {
		f.logger.Warn().Int("max_samples", maxSamples).Int("rows", n).Msg("max_samples exceeds row count, using all rows")
		maxSamples = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(max(maxSamples, 2)))))

	// Seeds are drawn up front so the result does not depend on scheduling
	master := rand.New(rand.NewPCG(uint64(f.opts.Seed), uint64(f.opts.Seed)>>1|1))
	seeds := make([]uint64, f.opts.Estimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	trees := make([]*itree, f.opts.Estimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Workers)
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seeds[i], uint64(i)))
			rows := make([]int, maxSamples)
			sampleuv.WithoutReplacement(rows, n, rng)
			trees[i] = buildTree(x, rows, maxDepth, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("building trees: %w", err)
	}

	f.trees = trees
	f.features = c
	f.maxSamples = maxSamples

	if f.opts.Contamination == 0 {
		f.offset = autoOffset
	} else {
		scores, err := f.ScoreSamples(x)
		if err != nil {
			return err
		}
		f.offset = percentile(scores, 100*f.opts.Contamination)
	}

	f.logger.Debug().
		Int("trees", len(trees)).
		Int("max_samples", maxSamples).
		Int("max_depth", maxDepth).
		Float64("offset", f.offset).
		Msg("Forest fitted")
	return nil
}

// ScoreSamples returns -2^(-E[h(x)]/c(maxSamples)) for every row of x
func (f *Forest) ScoreSamples(x *mat.Dense) ([]float64, error) {
	if f.trees == nil {
		return nil, ErrNotFitted
	}
	n, c := x.Dims()
	if n == 0 {
		return nil, ErrEmptyInput
	}
	if c != f.features {
		return nil, fmt.Errorf("%w: fitted on %d, got %d", ErrFeatureMismatch, f.features, c)
	}

	norm := averagePathLength(f.maxSamples)
	if norm == 0 {
		norm = 1
	}
	scores := make([]float64, n)
	for i := range scores {
		row := x.RawRowView(i)
		var total float64
		for _, t := range f.trees {
			total += t.pathLength(row)
		}
		mean := total / float64(len(f.trees))
		scores[i] = -math.Exp2(-mean / norm)
	}
	return scores, nil
}

// DecisionFunction is ScoreSamples shifted by the offset; negative means outlier
func (f *Forest) DecisionFunction(x *mat.Dense) ([]float64, error) {
	scores, err := f.ScoreSamples(x)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] -= f.offset
	}
	return scores, nil
}

// Predict labels each row -1 (outlier) or +1 (inlier)
func (f *Forest) Predict(x *mat.Dense) ([]int, error) {
	decision, err := f.DecisionFunction(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(decision))
	for i, d := range decision {
		if d < 0 {
			labels[i] = -1
		} else {
			labels[i] = 1
		}
	}
	return labels, nil
}

// FitPredict fits on x and labels the same rows
func (f *Forest) FitPredict(ctx context.Context, x *mat.Dense) ([]int, error) {
	if err := f.Fit(ctx, x); err != nil {
		return nil, err
	}
	return f.Predict(x)
}

// Offset is the threshold subtracted in DecisionFunction
func (f *Forest) Offset() float64 {
	return f.offset
}

// MaxSamples is the per-tree sample size chosen during Fit
func (f *Forest) MaxSamples() int {
	return f.maxSamples
}

// percentile uses linear interpolation between closest ranks, p in [0, 100]
func percentile(values []float64, p float64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
