package record

import (
	"context"
	"fmt"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/worqly/orchestrator/internal/engine"
	"github.com/worqly/orchestrator/internal/graph"
)

// PostgresStore persists run history in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewPostgresStore creates a store backed by a pgx connection pool.
// Requires DATABASE_URL environment variable to be set.
func NewPostgresStore(ctx context.Context, logger *zap.SugaredLogger) (*PostgresStore, error) {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to PostgreSQL")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close closes the database connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Migrate creates the run history tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflow_runs (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			success      BOOLEAN NOT NULL DEFAULT FALSE,
			error        TEXT,
			outputs      JSONB,
			completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS execution_records (
			id           BIGSERIAL PRIMARY KEY,
			run_id       TEXT NOT NULL,
			node_id      TEXT NOT NULL,
			node_type    TEXT NOT NULL,
			node_name    TEXT,
			status       TEXT NOT NULL,
			input        JSONB,
			output       JSONB,
			error        TEXT,
			started_at   TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			duration_ms  BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_execution_records_run
			ON execution_records (run_id, started_at);
	`)
	if err != nil {
		return fmt.Errorf("migrate run history schema: %w", err)
	}
	return nil
}

// AppendExecutionRecord inserts one node outcome. History is append-only:
// the engine writes exactly one terminal row per node and never updates it.
func (s *PostgresStore) AppendExecutionRecord(ctx context.Context, record *engine.ExecutionRecord) error {
	inputJSON, err := marshalJSONB(record.Input)
	if err != nil {
		return fmt.Errorf("marshal record input: %w", err)
	}
	outputJSON, err := marshalJSONB(record.Output)
	if err != nil {
		return fmt.Errorf("marshal record output: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO execution_records
			(run_id, node_id, node_type, node_name, status, input, output, error, started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, record.RunID, record.NodeID, string(record.NodeType), record.NodeName,
		string(record.Status), inputJSON, outputJSON, nullable(record.Error),
		record.StartedAt, record.CompletedAt, record.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("append execution record: %w", err)
	}
	return nil
}

// FinalizeRun writes the aggregate outcome of a completed run.
func (s *PostgresStore) FinalizeRun(ctx context.Context, result *engine.RunResult) error {
	outputsJSON, err := marshalJSONB(result.Outputs)
	if err != nil {
		return fmt.Errorf("marshal run outputs: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, status, success, error, outputs, completed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    success = EXCLUDED.success,
		    error = EXCLUDED.error,
		    outputs = EXCLUDED.outputs,
		    completed_at = NOW()
	`, result.RunID, string(result.Status), result.Success, nullable(result.Error), outputsJSON)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	return nil
}

// GetRun retrieves the final outcome of a run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*engine.RunResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, status, success, error, outputs
		FROM workflow_runs WHERE id = $1
	`, runID)

	var result engine.RunResult
	var status string
	var errMsg, outputsJSON *string
	if err := row.Scan(&result.RunID, &status, &result.Success, &errMsg, &outputsJSON); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	result.Status = engine.RunStatus(status)
	if errMsg != nil {
		result.Error = *errMsg
	}
	if outputsJSON != nil {
		if err := json.Unmarshal([]byte(*outputsJSON), &result.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal run outputs: %w", err)
		}
	}
	return &result, nil
}

// GetRunRecords retrieves all execution records for a run in append order.
func (s *PostgresStore) GetRunRecords(ctx context.Context, runID string) ([]engine.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, node_id, node_type, node_name, status, input, output, error,
		       started_at, completed_at, duration_ms
		FROM execution_records
		WHERE run_id = $1
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run records: %w", err)
	}
	defer rows.Close()

	var records []engine.ExecutionRecord
	for rows.Next() {
		var rec engine.ExecutionRecord
		var nodeType, status string
		var inputJSON, outputJSON, errMsg *string
		var durationMs int64
		if err := rows.Scan(&rec.RunID, &rec.NodeID, &nodeType, &rec.NodeName,
			&status, &inputJSON, &outputJSON, &errMsg,
			&rec.StartedAt, &rec.CompletedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan execution record: %w", err)
		}
		rec.NodeType = graph.NodeType(nodeType)
		rec.Status = engine.Status(status)
		if inputJSON != nil {
			var v any
			if err := json.Unmarshal([]byte(*inputJSON), &v); err == nil {
				rec.Input = v
			}
		}
		if outputJSON != nil {
			var v any
			if err := json.Unmarshal([]byte(*outputJSON), &v); err == nil {
				rec.Output = v
			}
		}
		if errMsg != nil {
			rec.Error = *errMsg
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, rec)
	}
	return records, nil
}

func marshalJSONB(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
