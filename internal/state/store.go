// Package state persists versioned chemistry snapshots in SQLite so a
// process restart resumes from the last committed levels instead of
// the baseline.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/response-guard/internal/chemistry"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS chemistry_versions (
	version_id     TEXT PRIMARY KEY,
	parent_id      TEXT,
	dopamine       REAL NOT NULL,
	serotonin      REAL NOT NULL,
	norepinephrine REAL NOT NULL,
	delta_json     TEXT,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES chemistry_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_chemistry (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES chemistry_versions(version_id)
);
`
// #endregion schema

// #region store-struct
// Store manages versioned chemistry state in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection; the caller owns its
// lifecycle and migrations.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. provenance).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region create-initial
// CreateInitial creates a baseline-level initial version and marks it active.
func (s *Store) CreateInitial() (ChemistryRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	levels := chemistry.Baseline()

	rec := ChemistryRecord{
		VersionID: id,
		ParentID:  "",
		Levels:    levels,
		CreatedAt: now,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO chemistry_versions (version_id, parent_id, dopamine, serotonin, norepinephrine, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, nil, levels.Dopamine, levels.Serotonin, levels.Norepinephrine, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_chemistry (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		id,
	)
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ChemistryRecord{}, fmt.Errorf("commit: %w", err)
	}

	return rec, nil
}
// #endregion create-initial

// #region get-current
// GetCurrent reads the active chemistry version.
func (s *Store) GetCurrent() (ChemistryRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_chemistry WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}
// #endregion get-current

// #region get-version
// GetVersion retrieves a specific chemistry version by ID.
func (s *Store) GetVersion(id string) (ChemistryRecord, error) {
	var rec ChemistryRecord
	var parentID sql.NullString
	var deltaJSON sql.NullString
	var createdStr string

	err := s.db.QueryRow(
		`SELECT version_id, parent_id, dopamine, serotonin, norepinephrine, delta_json, created_at
		 FROM chemistry_versions WHERE version_id = ?`, id,
	).Scan(&rec.VersionID, &parentID, &rec.Levels.Dopamine, &rec.Levels.Serotonin,
		&rec.Levels.Norepinephrine, &deltaJSON, &createdStr)
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}

	if parentID.Valid {
		rec.ParentID = parentID.String
	}
	if deltaJSON.Valid && deltaJSON.String != "" {
		if err := json.Unmarshal([]byte(deltaJSON.String), &rec.Delta); err != nil {
			return ChemistryRecord{}, fmt.Errorf("unmarshal delta: %w", err)
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)

	return rec, nil
}
// #endregion get-version

// #region commit
// Commit records new levels as a child of the active version and moves
// the active pointer, atomically. The applied delta travels with the
// row so History explains each transition.
func (s *Store) Commit(levels chemistry.Levels, delta chemistry.Delta) (ChemistryRecord, error) {
	parent, err := s.GetCurrent()
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("resolve parent: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	deltaJSON, err := json.Marshal(delta)
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("marshal delta: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO chemistry_versions (version_id, parent_id, dopamine, serotonin, norepinephrine, delta_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, parent.VersionID, levels.Dopamine, levels.Serotonin, levels.Norepinephrine,
		string(deltaJSON), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(`UPDATE active_chemistry SET version_id = ? WHERE id = 1`, id)
	if err != nil {
		return ChemistryRecord{}, fmt.Errorf("update active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ChemistryRecord{}, fmt.Errorf("commit: %w", err)
	}

	return ChemistryRecord{
		VersionID: id,
		ParentID:  parent.VersionID,
		Levels:    levels,
		Delta:     delta,
		CreatedAt: now,
	}, nil
}
// #endregion commit

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM chemistry_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	_, err = s.db.Exec(`UPDATE active_chemistry SET version_id = ? WHERE id = 1`, targetVersionID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region history
// History returns the most recent chemistry versions, newest first.
func (s *Store) History(limit int) ([]ChemistryRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, parent_id, dopamine, serotonin, norepinephrine, delta_json, created_at
		 FROM chemistry_versions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []ChemistryRecord
	for rows.Next() {
		var rec ChemistryRecord
		var parentID sql.NullString
		var deltaJSON sql.NullString
		var createdStr string

		if err := rows.Scan(&rec.VersionID, &parentID, &rec.Levels.Dopamine, &rec.Levels.Serotonin,
			&rec.Levels.Norepinephrine, &deltaJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if parentID.Valid {
			rec.ParentID = parentID.String
		}
		if deltaJSON.Valid && deltaJSON.String != "" {
			if err := json.Unmarshal([]byte(deltaJSON.String), &rec.Delta); err != nil {
				return nil, fmt.Errorf("unmarshal delta: %w", err)
			}
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}
// #endregion history
