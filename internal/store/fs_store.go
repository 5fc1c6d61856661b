package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Runs are stored in a directory structure: <baseDir>/runs/<runID>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// RunDir returns the directory path for a given run ID.
func (fs *FSStore) RunDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

func (fs *FSStore) recordPath(runID string) string {
	return filepath.Join(fs.RunDir(runID), "record.json")
}

// SaveRecord atomically saves a record using the temp file + rename pattern.
func (fs *FSStore) SaveRecord(runID string, record *Record) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	runDir := fs.RunDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	tempPath := fs.recordPath(runID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp record file: %w", err)
	}

	finalPath := fs.recordPath(runID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file: %w", err)
	}

	slog.Debug("Record saved", "run_id", runID, "path", finalPath)
	return nil
}

// LoadRecord retrieves the record for the given run.
func (fs *FSStore) LoadRecord(runID string) (*Record, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := fs.recordPath(runID)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}

	return &record, nil
}

// ListRecords returns metadata for all stored runs, newest first.
// Corrupted records are skipped with a warning.
func (fs *FSStore) ListRecords() ([]RecordInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	entries, err := os.ReadDir(runsDir)
	if os.IsNotExist(err) {
		return []RecordInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		runID := entry.Name()
		if _, err := os.Stat(fs.recordPath(runID)); os.IsNotExist(err) {
			continue // run still in progress or trace only
		}

		record, err := fs.LoadRecord(runID)
		if err != nil {
			slog.Warn("Failed to load record for listing", "run_id", runID, "error", err)
			continue
		}

		infos = append(infos, record.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed records", "count", len(infos))
	return infos, nil
}

// DeleteRecord removes the run directory with its record and trace.
func (fs *FSStore) DeleteRecord(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	runDir := fs.RunDir(runID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Record deleted", "run_id", runID, "path", runDir)
	return nil
}

// OpenTrace creates a fresh trace.jsonl for the run.
func (fs *FSStore) OpenTrace(runID string) (TraceSink, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	return createTrace(fs.RunDir(runID))
}

// LoadTrace reads the run's trace.jsonl.
func (fs *FSStore) LoadTrace(runID string) ([]TraceEntry, error) {
	return loadTraceFile(fs.RunDir(runID), runID)
}
