package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Alias1177/txanomaly/models"
)

// PrintTable writes the flagged rows as an aligned table followed by a summary
func PrintTable(w io.Writer, run *models.Run) error {
	fmt.Fprintln(w, "Detected Anomalies:")

	if len(run.Anomalies) == 0 {
		fmt.Fprintln(w, "Empty result: no transactions flagged")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "transaction_id\tamount\ttime\tfrequency\tanomaly_score\tis_anomaly\t")
		for _, tx := range run.Anomalies {
			fmt.Fprintf(tw, "%d\t%.6f\t%d\t%d\t%d\t%s\t\n",
				tx.TransactionID, tx.Amount, tx.Time, tx.Frequency, tx.AnomalyScore, tx.IsAnomaly)
		}
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("writing table: %w", err)
		}
	}

	_, err := fmt.Fprintf(w, "\n%d of %d transactions flagged (%d of %d injected outliers caught) | run %s\n",
		len(run.Anomalies), len(run.Transactions),
		run.InjectedFlagged(), len(run.InjectedIndices),
		run.RunID)
	return err
}

// PrintJSON writes the whole run as indented JSON
func PrintJSON(w io.Writer, run *models.Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	return nil
}
