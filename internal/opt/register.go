package opt

import (
	"math"
	"sync"
)

// Improvement describes one accepted replacement of the best candidate.
type Improvement[T any] struct {
	// Seq is 1 for the first improvement after seeding and grows by one.
	Seq       int
	Score     float64
	Candidate T
	// Copy is the portfolio copy that found the candidate.
	Copy int
}

// Register holds the best (score, candidate) pair seen during a run. It is
// safe for concurrent use; the score never increases.
type Register[T any] struct {
	mu      sync.RWMutex
	score   float64
	best    T
	seq     int
	observe func(Improvement[T])
}

// NewRegister creates a register seeded with a known candidate.
func NewRegister[T any](score float64, candidate T) *Register[T] {
	return &Register[T]{score: score, best: candidate}
}

// Observe installs fn to be called for every accepted improvement. fn runs
// while the register is locked, so calls arrive in score order and must not
// call back into the register.
func (r *Register[T]) Observe(fn func(Improvement[T])) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observe = fn
}

// Offer replaces the best candidate if score is strictly lower and reports
// whether it did. Ties keep the candidate registered first. NaN scores never
// win, and a register holding a NaN score accepts any other score.
func (r *Register[T]) Offer(score float64, candidate T) bool {
	return r.offer(score, candidate, 0)
}

func (r *Register[T]) offer(score float64, candidate T, copyIdx int) bool {
	r.mu.RLock()
	better := improves(score, r.score)
	r.mu.RUnlock()
	if !better {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another copy may have improved it in between.
	if !improves(score, r.score) {
		return false
	}
	r.score = score
	r.best = candidate
	r.seq++

	if r.observe != nil {
		r.observe(Improvement[T]{Seq: r.seq, Score: score, Candidate: candidate, Copy: copyIdx})
	}
	return true
}

// improves orders NaN after every number.
func improves(score, current float64) bool {
	return score < current || (math.IsNaN(current) && !math.IsNaN(score))
}

// Best returns the current best candidate and its score.
func (r *Register[T]) Best() (T, float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.best, r.score
}

// Improvements returns how many times the candidate was replaced.
func (r *Register[T]) Improvements() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}
