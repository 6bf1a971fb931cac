package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/txanomaly/models"
)

func sampleRun() *models.Run {
	txns := []models.Transaction{
		{TransactionID: 1, Amount: 101.5, Time: 4, Frequency: 3, AnomalyScore: 1, IsAnomaly: "No"},
		{TransactionID: 2, Amount: 1043.25, Time: 13, Frequency: 7, AnomalyScore: -1, IsAnomaly: "Yes", Injected: true},
		{TransactionID: 3, Amount: -20.75, Time: 2, Frequency: 9, AnomalyScore: -1, IsAnomaly: "Yes"},
	}
	return &models.Run{
		RunID:           uuid.MustParse("6f1c1f04-2c1e-4d4b-9f55-9d1f7b1c2a10"),
		CreatedAt:       time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		Seed:            42,
		Contamination:   0.05,
		InjectedIndices: []int{1},
		Transactions:    txns,
		Anomalies:       []models.Transaction{txns[1], txns[2]},
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, sampleRun()))

	out := buf.String()
	lines := strings.Split(out, "\n")
	assert.Equal(t, "Detected Anomalies:", lines[0])
	assert.Contains(t, lines[1], "transaction_id")
	assert.Contains(t, lines[1], "is_anomaly")
	assert.Contains(t, lines[2], "1043.250000")
	assert.Contains(t, lines[3], "-20.750000")
	assert.NotContains(t, out, "101.500000")
	assert.Contains(t, out, "2 of 3 transactions flagged (1 of 1 injected outliers caught)")
	assert.Contains(t, out, "6f1c1f04-2c1e-4d4b-9f55-9d1f7b1c2a10")
}

func TestPrintTableNoAnomalies(t *testing.T) {
	run := sampleRun()
	run.Anomalies = nil

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, run))
	assert.Contains(t, buf.String(), "no transactions flagged")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, sampleRun()))

	var decoded struct {
		RunID             string  `json:"run_id"`
		Contamination     float64 `json:"contamination"`
		AutoContamination bool    `json:"auto_contamination"`
		Anomalies         []struct {
			TransactionID int    `json:"transaction_id"`
			IsAnomaly     string `json:"is_anomaly"`
		} `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "6f1c1f04-2c1e-4d4b-9f55-9d1f7b1c2a10", decoded.RunID)
	assert.Equal(t, 0.05, decoded.Contamination)
	assert.False(t, decoded.AutoContamination)
	require.Len(t, decoded.Anomalies, 2)
	assert.Equal(t, 2, decoded.Anomalies[0].TransactionID)
	assert.Equal(t, "Yes", decoded.Anomalies[1].IsAnomaly)
}
