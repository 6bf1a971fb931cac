// Package generate builds synthetic transaction data sets.
package generate

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/Alias1177/txanomaly/models"
)

// ErrTooManyOutliers is returned when more outliers are requested than rows exist
var ErrTooManyOutliers = errors.New("outlier count exceeds transaction count")

// Options controls the shape of the generated data
type Options struct {
	Count        int
	AmountMean   float64
	AmountStdDev float64
	HourMax      int // exclusive
	FrequencyMin int // inclusive
	FrequencyMax int // exclusive
}

// NewSource returns the deterministic random source used for a seed
func NewSource(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// Generate creates Count transactions with sequential ids starting at 1
func Generate(opts Options, rng *rand.Rand) []models.Transaction {
	amount := distuv.Normal{Mu: opts.AmountMean, Sigma: opts.AmountStdDev, Src: rng}

	txns := make([]models.Transaction, opts.Count)
	for i := range txns {
		txns[i] = models.Transaction{
			TransactionID: i + 1,
			Amount:        amount.Rand(),
		}
	}
	// one column at a time
	for i := range txns {
		txns[i].Time = rng.IntN(opts.HourMax)
	}
	span := opts.FrequencyMax - opts.FrequencyMin
	for i := range txns {
		txns[i].Frequency = opts.FrequencyMin + rng.IntN(span)
	}

	return txns
}

// InjectOutliers overwrites the amount of count distinct rows with draws
// from N(mean, stddev) and returns the chosen indices in ascending order
func InjectOutliers(txns []models.Transaction, count int, mean, stddev float64, rng *rand.Rand) ([]int, error) {
	if count > len(txns) {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyOutliers, count, len(txns))
	}
	if count <= 0 {
		return []int{}, nil
	}

	idx := make([]int, count)
	sampleuv.WithoutReplacement(idx, len(txns), rng)

	amount := distuv.Normal{Mu: mean, Sigma: stddev, Src: rng}
	for _, i := range idx {
		txns[i].Amount = amount.Rand()
		txns[i].Injected = true
	}

	slices.Sort(idx)
	return idx, nil
}
