package checkpointstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kestrelai/agentkit/internal/workflow"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	checkpoint_id TEXT PRIMARY KEY,
	workflow_id   TEXT NOT NULL,
	structure_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	payload       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow ON checkpoints(workflow_id, created_at);
`

// SQLite is a durable Store backed by an embedded SQLite database. The full
// checkpoint document is stored as a JSON payload column; workflow id,
// structure hash, and timestamp are lifted into columns for querying.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and ensures the
// checkpoint table exists. Use ":memory:" for an ephemeral store.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("checkpointstore.SQLite: open: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpointstore.SQLite: migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Save(checkpoint workflow.Checkpoint) error {
	payload, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("checkpointstore.SQLite: marshal: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO checkpoints (checkpoint_id, workflow_id, structure_hash, created_at, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		checkpoint.CheckpointID, checkpoint.WorkflowID, checkpoint.StructureHash,
		checkpoint.Timestamp.UTC(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("checkpointstore.SQLite: save: %w", err)
	}
	return nil
}

func (s *SQLite) LoadLatest(workflowID string) (*workflow.Checkpoint, error) {
	row := s.db.QueryRow(
		`SELECT payload FROM checkpoints WHERE workflow_id = ? ORDER BY created_at DESC LIMIT 1`,
		workflowID,
	)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpointstore.SQLite: load: %w", err)
	}
	var cp workflow.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, fmt.Errorf("checkpointstore.SQLite: unmarshal: %w", err)
	}
	return &cp, nil
}

func (s *SQLite) ListMetadata(workflowID string) ([]workflow.CheckpointMeta, error) {
	query := `SELECT checkpoint_id, workflow_id, created_at FROM checkpoints ORDER BY created_at DESC`
	args := []any{}
	if workflowID != "" {
		query = `SELECT checkpoint_id, workflow_id, created_at FROM checkpoints
		         WHERE workflow_id = ? ORDER BY created_at DESC`
		args = append(args, workflowID)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("checkpointstore.SQLite: list: %w", err)
	}
	defer rows.Close()

	var out []workflow.CheckpointMeta
	for rows.Next() {
		var meta workflow.CheckpointMeta
		var ts time.Time
		if err := rows.Scan(&meta.CheckpointID, &meta.WorkflowID, &ts); err != nil {
			return nil, fmt.Errorf("checkpointstore.SQLite: scan: %w", err)
		}
		meta.Timestamp = ts
		out = append(out, meta)
	}
	return out, rows.Err()
}

func (s *SQLite) Delete(checkpointID string) error {
	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)
	if err != nil {
		return fmt.Errorf("checkpointstore.SQLite: delete: %w", err)
	}
	return nil
}
