package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Alias1177/txanomaly/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the params as a lib/pq connection string
func (p ConnectionParams) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

// New creates a new database connection
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	return Open(ctx, params.DSN())
}

// Open connects with a ready-made connection string and creates the tables
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Check connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	// Create tables if they don't exist
	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &DB{db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS detection_runs (
			run_id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			seed BIGINT NOT NULL,
			estimators INT NOT NULL,
			contamination DOUBLE PRECISION NOT NULL,
			offset_value DOUBLE PRECISION NOT NULL,
			transaction_count INT NOT NULL,
			flagged_count INT NOT NULL,
			injected_indices BIGINT[] NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS flagged_transactions (
			run_id UUID NOT NULL REFERENCES detection_runs(run_id) ON DELETE CASCADE,
			transaction_id INT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			hour INT NOT NULL,
			frequency INT NOT NULL,
			anomaly_score INT NOT NULL,
			injected BOOLEAN NOT NULL,
			PRIMARY KEY (run_id, transaction_id)
		)
	`)
	return err
}

// SaveRun stores the run summary and its flagged rows in one transaction
func (db *DB) SaveRun(ctx context.Context, run *models.Run) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	injected := make([]int64, len(run.InjectedIndices))
	for i, v := range run.InjectedIndices {
		injected[i] = int64(v)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO detection_runs (
			run_id, created_at, seed, estimators, contamination, offset_value,
			transaction_count, flagged_count, injected_indices
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		run.RunID, run.CreatedAt, run.Seed, run.Estimators, run.Contamination, run.Offset,
		len(run.Transactions), len(run.Anomalies), pq.Array(injected))
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flagged_transactions (
			run_id, transaction_id, amount, hour, frequency, anomaly_score, injected
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range run.Anomalies {
		if _, err := stmt.ExecContext(ctx,
			run.RunID, a.TransactionID, a.Amount, a.Time, a.Frequency, a.AnomalyScore, a.Injected); err != nil {
			return fmt.Errorf("inserting transaction %d: %w", a.TransactionID, err)
		}
	}

	return tx.Commit()
}

// GetFlagged retrieves the flagged rows stored for a run, ordered by id
func (db *DB) GetFlagged(ctx context.Context, runID uuid.UUID) ([]models.Transaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT transaction_id, amount, hour, frequency, anomaly_score, injected
		FROM flagged_transactions
		WHERE run_id = $1
		ORDER BY transaction_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.TransactionID, &t.Amount, &t.Time, &t.Frequency, &t.AnomalyScore, &t.Injected); err != nil {
			return nil, err
		}
		t.IsAnomaly = models.LabelYes
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountRuns returns how many runs have been archived
func (db *DB) CountRuns(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detection_runs`).Scan(&n)
	return n, err
}
