package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/muletrace-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time.
// This ensures schema init works inside the Docker runtime image which
// does not copy internal/db/schema.sql into the final stage.
//
//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Mule Trace Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}

	log.Println("Mule trace schema initialized")
	return nil
}

// SaveRun persists a completed analysis run: the run summary row plus all
// detected rings and suspicious accounts, in a single transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, result *models.Result) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	summary := result.AnalysisPayload.Summary
	insertRunSQL := `
		INSERT INTO analysis_runs
			(run_id, total_accounts, total_transactions, fraud_rings, suspicious_accounts, analysis_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			total_accounts = EXCLUDED.total_accounts,
			total_transactions = EXCLUDED.total_transactions,
			fraud_rings = EXCLUDED.fraud_rings,
			suspicious_accounts = EXCLUDED.suspicious_accounts,
			analysis_ms = EXCLUDED.analysis_ms,
			created_at = NOW();
	`
	_, err = tx.Exec(ctx, insertRunSQL, result.RunID,
		summary.TotalAccountsAnalyzed, len(result.Edges),
		summary.FraudRingsDetected, summary.SuspiciousAccountsFlagged,
		result.AnalysisMS)
	if err != nil {
		return fmt.Errorf("failed to insert analysis_runs: %v", err)
	}

	if len(result.AnalysisPayload.FraudRings) > 0 {
		insertRingSQL := `
			INSERT INTO fraud_rings (run_id, ring_id, pattern_type, risk_score, member_accounts)
			VALUES ($1, $2, $3, $4, $5);
		`
		for _, ring := range result.AnalysisPayload.FraudRings {
			membersJSON, _ := json.Marshal(ring.MemberAccounts)
			_, err = tx.Exec(ctx, insertRingSQL,
				result.RunID, ring.RingID, ring.PatternType, ring.RiskScore, membersJSON)
			if err != nil {
				return fmt.Errorf("failed to insert fraud ring: %v", err)
			}
		}
	}

	if len(result.AnalysisPayload.SuspiciousAccounts) > 0 {
		insertAccountSQL := `
			INSERT INTO suspicious_accounts
				(run_id, account_id, suspicion_score, detected_patterns, ring_id, explanation)
			VALUES ($1, $2, $3, $4, $5, $6);
		`
		for _, acct := range result.AnalysisPayload.SuspiciousAccounts {
			patternsJSON, _ := json.Marshal(acct.DetectedPatterns)
			explanation := result.AnalysisPayload.SuspicionExplanations[acct.AccountID]
			_, err = tx.Exec(ctx, insertAccountSQL,
				result.RunID, acct.AccountID, acct.SuspicionScore,
				patternsJSON, acct.RingID, explanation)
			if err != nil {
				return fmt.Errorf("failed to insert suspicious account: %v", err)
			}
		}
	}

	return tx.Commit(ctx)
}

// RunInfo summarizes a persisted analysis run for the history endpoint.
type RunInfo struct {
	RunID              string    `json:"runId"`
	TotalAccounts      int       `json:"totalAccounts"`
	TotalTransactions  int       `json:"totalTransactions"`
	FraudRings         int       `json:"fraudRings"`
	SuspiciousAccounts int       `json:"suspiciousAccounts"`
	AnalysisMS         float64   `json:"analysisMs"`
	CreatedAt          time.Time `json:"createdAt"`
}

// GetRecentRuns returns persisted runs, most recent first.
func (s *PostgresStore) GetRecentRuns(ctx context.Context, page int, limit int) ([]RunInfo, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var totalCount int
	countSQL := `SELECT COUNT(*) FROM analysis_runs`
	err := s.pool.QueryRow(ctx, countSQL).Scan(&totalCount)
	if err != nil {
		return nil, 0, err
	}

	dataSQL := `
		SELECT run_id, total_accounts, total_transactions, fraud_rings,
		       suspicious_accounts, analysis_ms, created_at
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, dataSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := make([]RunInfo, 0)
	for rows.Next() {
		var r RunInfo
		if err := rows.Scan(&r.RunID, &r.TotalAccounts, &r.TotalTransactions,
			&r.FraudRings, &r.SuspiciousAccounts, &r.AnalysisMS, &r.CreatedAt); err != nil {
			return nil, 0, err
		}
		runs = append(runs, r)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return runs, totalCount, nil
}

// GetRunRings loads the rings persisted for a single run.
func (s *PostgresStore) GetRunRings(ctx context.Context, runID string) ([]models.Ring, error) {
	sql := `
		SELECT ring_id, pattern_type, risk_score, member_accounts
		FROM fraud_rings
		WHERE run_id = $1
		ORDER BY ring_id;
	`
	rows, err := s.pool.Query(ctx, sql, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rings := make([]models.Ring, 0)
	for rows.Next() {
		var ring models.Ring
		var membersJSON []byte
		if err := rows.Scan(&ring.RingID, &ring.PatternType, &ring.RiskScore, &membersJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(membersJSON, &ring.MemberAccounts); err != nil {
			return nil, fmt.Errorf("corrupt member_accounts for ring %s: %v", ring.RingID, err)
		}
		rings = append(rings, ring)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rings, nil
}

// GetPool exposes the connection pool for other subsystems
func (s *PostgresStore) GetPool() *pgxpool.Pool {
	return s.pool
}
