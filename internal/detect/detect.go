// Package detect runs the generate, scale, fit and label pipeline.
package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/txanomaly/internal/config"
	"github.com/Alias1177/txanomaly/internal/generate"
	"github.com/Alias1177/txanomaly/internal/iforest"
	"github.com/Alias1177/txanomaly/internal/preprocessing"
	"github.com/Alias1177/txanomaly/models"
)

// Label maps a model prediction to the is_anomaly column
func Label(prediction int) string {
	if prediction == models.PredictionOutlier {
		return models.LabelYes
	}
	return models.LabelNo
}

// Anomalies returns the flagged rows in transaction id order
func Anomalies(txns []models.Transaction) []models.Transaction {
	out := []models.Transaction{}
	for _, tx := range txns {
		if tx.Flagged() {
			out = append(out, tx)
		}
	}
	return out
}

// Run generates a data set, injects outliers and flags anomalies with an
// isolation forest fitted on the standardized features
func Run(ctx context.Context, cfg *config.Config) (*models.Run, error) {
	logger := log.With().Str("component", "detect").Logger()

	run := &models.Run{
		RunID:             uuid.New(),
		CreatedAt:         time.Now().UTC(),
		Seed:              cfg.Seed,
		Estimators:        cfg.Estimators,
		Contamination:     cfg.Contamination,
		AutoContamination: cfg.Contamination == 0,
	}

	// 1. Generate transactions
	rng := generate.NewSource(cfg.Seed)
	txns := generate.Generate(generate.Options{
		Count:        cfg.TransactionCount,
		AmountMean:   cfg.AmountMean,
		AmountStdDev: cfg.AmountStdDev,
		HourMax:      cfg.HourMax,
		FrequencyMin: cfg.FrequencyMin,
		FrequencyMax: cfg.FrequencyMax,
	}, rng)
	logger.Debug().Int("count", len(txns)).Msg("Generated transactions")

	// 2. Introduce outliers
	injected, err := generate.InjectOutliers(txns, cfg.OutlierCount, cfg.OutlierMean, cfg.OutlierStdDev, rng)
	if err != nil {
		return nil, fmt.Errorf("injecting outliers: %w", err)
	}
	run.InjectedIndices = injected
	logger.Debug().Ints("indices", injected).Msg("Injected outliers")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Scale features
	x, err := preprocessing.Features(txns)
	if err != nil {
		return nil, fmt.Errorf("building features: %w", err)
	}
	var scaler preprocessing.StandardScaler
	scaled, err := scaler.FitTransform(x)
	if err != nil {
		return nil, fmt.Errorf("scaling features: %w", err)
	}

	// 4. Fit and predict
	forest, err := iforest.New(iforest.Options{
		Estimators:    cfg.Estimators,
		MaxSamples:    cfg.MaxSamples,
		Contamination: cfg.Contamination,
		Seed:          cfg.ForestSeed,
		Workers:       cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating forest: %w", err)
	}
	predictions, err := forest.FitPredict(ctx, scaled)
	if err != nil {
		return nil, fmt.Errorf("fitting forest: %w", err)
	}
	run.Offset = forest.Offset()

	// 5. Label
	for i, p := range predictions {
		txns[i].AnomalyScore = p
		txns[i].IsAnomaly = Label(p)
	}

	run.Transactions = txns
	run.Anomalies = Anomalies(txns)

	logger.Info().
		Str("run_id", run.RunID.String()).
		Int("transactions", len(txns)).
		Int("flagged", len(run.Anomalies)).
		Int("injected_flagged", run.InjectedFlagged()).
		Msg("Detection complete")

	return run, nil
}
