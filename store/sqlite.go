package store

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLite is a Store backed by a single-table SQLite database. All keys are
// loaded into an embedded Memory at open and every mutation writes through,
// so reads never touch the database on the hot path.
type SQLite struct {
	*Memory
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and loads the
// stored keys.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	s := &SQLite{Memory: NewMemory(), db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) load() error {
	rows, err := s.db.Query(`SELECT key, value FROM kv`)
	if err != nil {
		return fmt.Errorf("select kv: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan kv: %w", err)
		}
		s.values[key] = value
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate kv: %w", err)
	}
	return nil
}

func (s *SQLite) put(key, value string) error {
	if _, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) SetDisplayName(name string) error {
	if err := s.put(keyDisplayName, name); err != nil {
		return err
	}
	return s.Memory.SetDisplayName(name)
}

func (s *SQLite) SetStopOnRelease(v bool) error {
	if err := s.put(keyStopOnRelease, strconv.FormatBool(v)); err != nil {
		return err
	}
	return s.Memory.SetStopOnRelease(v)
}

func (s *SQLite) SetImmediateSpeedControl(v bool) error {
	if err := s.put(keyImmediateSpeedControl, strconv.FormatBool(v)); err != nil {
		return err
	}
	return s.Memory.SetImmediateSpeedControl(v)
}

func (s *SQLite) SetAssignment(throttleID int, trainID string) error {
	if err := s.put(assignmentKey(throttleID), trainID); err != nil {
		return err
	}
	return s.Memory.SetAssignment(throttleID, trainID)
}

func (s *SQLite) ClearAssignment(throttleID int) error {
	if err := s.delete(assignmentKey(throttleID)); err != nil {
		return err
	}
	return s.Memory.ClearAssignment(throttleID)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
