//go:build sqlite

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func newSQLiteStore(path string) (Store, error) {
	s := &SQLiteStore{path: path}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			run_id TEXT PRIMARY KEY,
			finished_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS traces (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			score REAL NOT NULL,
			observed_at INTEGER NOT NULL,
			params BLOB,
			PRIMARY KEY (run_id, seq)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create sqlite tables: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("sqlite store is closed")
	}
	return s.db, nil
}

// SaveRecord implements Store.
func (s *SQLiteStore) SaveRecord(runID string, record *Record) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO records (run_id, finished_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			payload = excluded.payload
	`, runID, record.Timestamp.UnixNano(), payload)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// LoadRecord implements Store.
func (s *SQLiteStore) LoadRecord(runID string) (*Record, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = db.QueryRow(`SELECT payload FROM records WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", runID, err)
	}
	return &record, nil
}

// ListRecords implements Store.
func (s *SQLiteStore) ListRecords() ([]RecordInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT payload FROM records ORDER BY finished_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	infos := []RecordInfo{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			continue
		}
		infos = append(infos, record.ToInfo())
	}
	return infos, rows.Err()
}

// DeleteRecord implements Store.
func (s *SQLiteStore) DeleteRecord(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM records WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{RunID: runID}
	}
	if _, err := tx.Exec(`DELETE FROM traces WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete trace: %w", err)
	}
	return tx.Commit()
}

// OpenTrace implements Store.
func (s *SQLiteStore) OpenTrace(runID string) (TraceSink, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`DELETE FROM traces WHERE run_id = ?`, runID); err != nil {
		return nil, fmt.Errorf("failed to reset trace: %w", err)
	}
	return &sqliteTrace{db: db, runID: runID, order: newTraceOrder()}, nil
}

// LoadTrace implements Store.
func (s *SQLiteStore) LoadTrace(runID string) ([]TraceEntry, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`SELECT seq, score, observed_at, params FROM traces WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	defer rows.Close()

	var entries []TraceEntry
	for rows.Next() {
		var (
			entry  TraceEntry
			nanos  int64
			params []byte
		)
		if err := rows.Scan(&entry.Seq, &entry.Score, &nanos, &params); err != nil {
			return nil, err
		}
		entry.Timestamp = time.Unix(0, nanos)
		if len(params) > 0 {
			if err := json.Unmarshal(params, &entry.Params); err != nil {
				return nil, fmt.Errorf("decode trace params: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if entries == nil {
		var exists int
		err := db.QueryRow(`SELECT 1 FROM records WHERE run_id = ?`, runID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{RunID: runID}
		}
	}
	return entries, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type sqliteTrace struct {
	mu    sync.Mutex
	db    *sql.DB
	runID string
	order traceOrder
}

func (t *sqliteTrace) Write(entry TraceEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	last := t.order
	if err := t.order.advance(entry); err != nil {
		return err
	}

	var params []byte
	if entry.Params != nil {
		var err error
		if params, err = json.Marshal(entry.Params); err != nil {
			t.order = last
			return fmt.Errorf("failed to marshal trace params: %w", err)
		}
	}
	_, err := t.db.Exec(`INSERT INTO traces (run_id, seq, score, observed_at, params) VALUES (?, ?, ?, ?, ?)`,
		t.runID, entry.Seq, entry.Score, entry.Timestamp.UnixNano(), params)
	if err != nil {
		t.order = last
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

func (t *sqliteTrace) Close() error {
	return nil
}
