// Package provenance records every guard verdict in SQLite so a
// rejected or rewritten response can be audited after the fact.
package provenance

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/response-guard/internal/guard"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS guard_decisions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id        TEXT NOT NULL,
	action         TEXT NOT NULL,
	issues_json    TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	response_chars INTEGER NOT NULL DEFAULT 0,
	temperature    REAL,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_guard_decisions_turn ON guard_decisions(turn_id);
`
// #endregion schema

// #region entry
// DecisionEntry is a single row in the guard_decisions table. The
// response text itself is never stored, only its length.
type DecisionEntry struct {
	ID            int64
	TurnID        string
	Action        guard.Action
	Issues        []guard.Issue
	RetryCount    int
	ResponseChars int
	Temperature   float32
	CreatedAt     time.Time
}
// #endregion entry

// #region init
// Init creates the guard_decisions table on a connection shared with
// the chemistry store.
func Init(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate guard_decisions: %w", err)
	}
	return nil
}
// #endregion init

// #region log-decision
// LogDecision writes one guard verdict.
func LogDecision(db *sql.DB, entry DecisionEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var issuesJSON interface{}
	if len(entry.Issues) > 0 {
		b, err := json.Marshal(entry.Issues)
		if err != nil {
			return fmt.Errorf("marshal issues: %w", err)
		}
		issuesJSON = string(b)
	}

	_, err := db.Exec(
		`INSERT INTO guard_decisions (turn_id, action, issues_json, retry_count, response_chars, temperature, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.TurnID,
		string(entry.Action),
		issuesJSON,
		entry.RetryCount,
		entry.ResponseChars,
		entry.Temperature,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}
// #endregion log-decision

// #region recent
// RecentDecisions returns the newest decisions first.
func RecentDecisions(db *sql.DB, limit int) ([]DecisionEntry, error) {
	rows, err := db.Query(
		`SELECT id, turn_id, action, issues_json, retry_count, response_chars, temperature, created_at
		 FROM guard_decisions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var entries []DecisionEntry
	for rows.Next() {
		var entry DecisionEntry
		var action string
		var issuesJSON sql.NullString
		var temperature sql.NullFloat64
		var createdStr string

		if err := rows.Scan(&entry.ID, &entry.TurnID, &action, &issuesJSON,
			&entry.RetryCount, &entry.ResponseChars, &temperature, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		entry.Action = guard.Action(action)
		if issuesJSON.Valid && issuesJSON.String != "" {
			if err := json.Unmarshal([]byte(issuesJSON.String), &entry.Issues); err != nil {
				return nil, fmt.Errorf("unmarshal issues: %w", err)
			}
		}
		if temperature.Valid {
			entry.Temperature = float32(temperature.Float64)
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
// #endregion recent

// #region turn-lookup
// DecisionsForTurn returns all decisions for one turn, oldest first,
// so a retry sequence reads in order.
func DecisionsForTurn(db *sql.DB, turnID string) ([]DecisionEntry, error) {
	rows, err := db.Query(
		`SELECT id, turn_id, action, issues_json, retry_count, response_chars, temperature, created_at
		 FROM guard_decisions WHERE turn_id = ? ORDER BY id ASC`, turnID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turn decisions: %w", err)
	}
	defer rows.Close()

	var entries []DecisionEntry
	for rows.Next() {
		var entry DecisionEntry
		var action string
		var issuesJSON sql.NullString
		var temperature sql.NullFloat64
		var createdStr string

		if err := rows.Scan(&entry.ID, &entry.TurnID, &action, &issuesJSON,
			&entry.RetryCount, &entry.ResponseChars, &temperature, &createdStr); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		entry.Action = guard.Action(action)
		if issuesJSON.Valid && issuesJSON.String != "" {
			if err := json.Unmarshal([]byte(issuesJSON.String), &entry.Issues); err != nil {
				return nil, fmt.Errorf("unmarshal issues: %w", err)
			}
		}
		if temperature.Valid {
			entry.Temperature = float32(temperature.Float64)
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
// #endregion turn-lookup
