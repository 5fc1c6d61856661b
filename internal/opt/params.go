package opt

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidCopies is returned when PortfolioCopies is below 1.
	ErrInvalidCopies = errors.New("portfolio copies must be at least 1")

	// ErrInvalidBounds is returned when the search box is empty or not finite.
	ErrInvalidBounds = errors.New("lower bound must be finite and below a finite upper bound")
)

// Params configures one optimization run.
type Params struct {
	// Iter, Depth and Attc are handed verbatim to the engine.
	Iter  int `json:"iter" yaml:"iter"`
	Depth int `json:"depth" yaml:"depth"`
	Attc  int `json:"attc" yaml:"attc"`

	// LowerBound and UpperBound bound every dimension of the search space.
	LowerBound float64 `json:"lowerBound" yaml:"lower_bound"`
	UpperBound float64 `json:"upperBound" yaml:"upper_bound"`

	// PortfolioCopies is the number of independent engine runs raced in parallel.
	PortfolioCopies int `json:"portfolioCopies" yaml:"portfolio_copies"`
}

// DefaultParams returns the stock engine budget: 1000 iterations, depth 1,
// 10 attempts, bounds [-1, 1] and a single copy.
func DefaultParams() Params {
	return Params{
		Iter:            1000,
		Depth:           1,
		Attc:            10,
		LowerBound:      -1,
		UpperBound:      1,
		PortfolioCopies: 1,
	}
}

// Validate checks the preconditions of a run.
func (p Params) Validate() error {
	if p.PortfolioCopies < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidCopies, p.PortfolioCopies)
	}
	if !finite(p.LowerBound) || !finite(p.UpperBound) || p.LowerBound >= p.UpperBound {
		return fmt.Errorf("%w: [%g, %g]", ErrInvalidBounds, p.LowerBound, p.UpperBound)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
