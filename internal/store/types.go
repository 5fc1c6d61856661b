package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/portfolioopt/internal/opt"
)

// RunConfig holds the configuration of a run. The server uses it as its job
// configuration as well.
type RunConfig struct {
	Problem string     `json:"problem"`
	Dim     int        `json:"dim,omitempty"`
	Engine  string     `json:"engine,omitempty"`
	Seed    int64      `json:"seed"`
	Params  opt.Params `json:"params"`
}

// Record is the persisted outcome of a finished portfolio run.
//
// Only the best candidate is kept, not any engine state. A stored record can
// warm start a later run: its BestParams become the new archetype, and since
// the archetype seeds the shared best register the resumed run can never end
// with a worse score.
type Record struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// BestParams is the vectorized best candidate
	BestParams []float64 `json:"bestParams"`

	// BestScore is the score of BestParams; never above ArchetypeScore
	BestScore float64 `json:"bestScore"`

	// ArchetypeScore is the score of the starting value
	ArchetypeScore float64 `json:"archetypeScore"`

	Evaluations  int    `json:"evaluations"`
	Improvements int    `json:"improvements"`
	Summary      string `json:"summary,omitempty"`

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`

	Config RunConfig `json:"config"`
}

// RecordInfo contains metadata about a record without the parameter data.
type RecordInfo struct {
	RunID        string    `json:"runId"`
	Problem      string    `json:"problem"`
	Engine       string    `json:"engine,omitempty"`
	Dim          int       `json:"dim"`
	Copies       int       `json:"copies"`
	BestScore    float64   `json:"bestScore"`
	Evaluations  int       `json:"evaluations"`
	Improvements int       `json:"improvements"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRecord creates a record timestamped now.
func NewRecord(runID string, config RunConfig, bestParams []float64, bestScore, archetypeScore float64, evaluations, improvements int, summary string) *Record {
	return &Record{
		RunID:          runID,
		BestParams:     bestParams,
		BestScore:      bestScore,
		ArchetypeScore: archetypeScore,
		Evaluations:    evaluations,
		Improvements:   improvements,
		Summary:        summary,
		Timestamp:      time.Now(),
		Config:         config,
	}
}

// ToInfo converts a full Record to RecordInfo (metadata only).
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		RunID:        r.RunID,
		Problem:      r.Config.Problem,
		Engine:       r.Config.Engine,
		Dim:          len(r.BestParams),
		Copies:       r.Config.Params.PortfolioCopies,
		BestScore:    r.BestScore,
		Evaluations:  r.Evaluations,
		Improvements: r.Improvements,
		Timestamp:    r.Timestamp,
	}
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.BestParams == nil {
		return &ValidationError{Field: "BestParams", Reason: "cannot be nil"}
	}
	if r.Config.Dim > 0 && len(r.BestParams) != r.Config.Dim {
		return &ValidationError{
			Field:  "BestParams",
			Reason: fmt.Sprintf("length mismatch: expected %d values, got %d", r.Config.Dim, len(r.BestParams)),
		}
	}
	if r.BestScore > r.ArchetypeScore {
		return &ValidationError{Field: "BestScore", Reason: "cannot exceed ArchetypeScore"}
	}
	if r.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if r.Improvements < 0 {
		return &ValidationError{Field: "Improvements", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.Problem == "" {
		return &ValidationError{Field: "Config.Problem", Reason: "cannot be empty"}
	}
	if err := r.Config.Params.Validate(); err != nil {
		return &ValidationError{Field: "Config.Params", Reason: err.Error()}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this record can warm start a run of the given
// problem and dimension.
func (r *Record) IsCompatible(problem string, dim int) error {
	if r.Config.Problem != problem {
		return &CompatibilityError{
			Field:    "Problem",
			Expected: r.Config.Problem,
			Actual:   problem,
		}
	}
	if len(r.BestParams) != dim {
		return &CompatibilityError{
			Field:    "Dim",
			Expected: fmt.Sprintf("%d", len(r.BestParams)),
			Actual:   fmt.Sprintf("%d", dim),
		}
	}
	return nil
}

// CompatibilityError represents a record compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
