package store

// Store defines the interface for run record persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if the record doesn't exist (for Load/Delete/LoadTrace)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveRecord atomically saves the record of a finished run, replacing any
	// previous record with the same runID.
	SaveRecord(runID string, record *Record) error

	// LoadRecord retrieves the record for the given run.
	LoadRecord(runID string) (*Record, error)

	// ListRecords returns metadata for all stored runs, newest first.
	ListRecords() ([]RecordInfo, error)

	// DeleteRecord removes the record and its trace.
	DeleteRecord(runID string) error

	// OpenTrace returns a sink for the improvement trace of a run. Existing
	// entries for the run are discarded.
	OpenTrace(runID string) (TraceSink, error)

	// LoadTrace returns the improvement trace of a run in write order.
	LoadTrace(runID string) ([]TraceEntry, error)
}

// TraceSink receives improvement trace entries.
type TraceSink interface {
	Write(entry TraceEntry) error
	Close() error
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing record error.
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
