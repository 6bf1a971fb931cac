package models

import (
	"time"

	"github.com/google/uuid"
)

// Prediction values produced by the outlier model
const (
	PredictionOutlier = -1
	PredictionInlier  = 1
)

// Label values for Transaction.IsAnomaly
const (
	LabelYes = "Yes"
	LabelNo  = "No"
)

// Transaction is a single synthetic financial transaction
type Transaction struct {
	TransactionID int     `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Time          int     `json:"time"`      // hour of day, 0-23
	Frequency     int     `json:"frequency"` // transactions in the period
	AnomalyScore  int     `json:"anomaly_score"`
	IsAnomaly     string  `json:"is_anomaly"`         // Yes, No
	Injected      bool    `json:"injected,omitempty"` // amount replaced by an outlier draw
}

// Flagged reports whether the model labelled the row as an anomaly
func (t Transaction) Flagged() bool {
	return t.IsAnomaly == LabelYes
}

// Run holds the outcome of one detection pass
type Run struct {
	RunID             uuid.UUID     `json:"run_id"`
	CreatedAt         time.Time     `json:"created_at"`
	Seed              int64         `json:"seed"`
	Estimators        int           `json:"estimators"`
	Contamination     float64       `json:"contamination"`      // 0 when AutoContamination is set
	AutoContamination bool          `json:"auto_contamination"` // offset fixed at -0.5
	Offset            float64       `json:"offset"`
	InjectedIndices   []int         `json:"injected_indices"`
	Transactions      []Transaction `json:"transactions"`
	Anomalies         []Transaction `json:"anomalies"`
}

// InjectedFlagged counts injected outliers the model caught
func (r *Run) InjectedFlagged() int {
	n := 0
	for _, t := range r.Anomalies {
		if t.Injected {
			n++
		}
	}
	return n
}
