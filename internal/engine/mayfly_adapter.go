package engine

import (
	"log/slog"
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/cwbudde/mayfly"
)

// mayflyMinPop is the smallest population the mayfly library accepts.
const mayflyMinPop = 20

// Mayfly wraps the external Mayfly library to conform to the Engine contract.
//
// Knob interpretation:
//   - iter: MaxIterations of one mayfly run
//   - depth: population multiplier, NPop = 20*depth
//   - attc: number of independent runs; the best one is kept
type Mayfly struct {
	seed   int64
	calls  atomic.Int64
	logger *slog.Logger
}

// NewMayfly creates a new Mayfly engine adapter. Failed runs are reported
// to logger; nil selects slog.Default().
func NewMayfly(seed int64, logger *slog.Logger) *Mayfly {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mayfly{seed: seed, logger: logger}
}

// Minimize implements Engine.
func (m *Mayfly) Minimize(out []float64, h Handle, lower, upper float64, iter, depth, attc int, eval EvalFunc) {
	dim := len(out)
	if dim == 0 {
		return
	}
	clear(out)

	call := m.calls.Add(1) - 1
	bestCost := math.Inf(1)

	for a := 0; a < max(attc, 1); a++ {
		config := mayfly.NewDefaultConfig()

		config.ObjectiveFunc = func(x []float64) float64 {
			return eval(dim, x, h)
		}
		config.ProblemSize = dim
		config.MaxIterations = max(iter, 1)
		config.NPop = mayflyMinPop * max(depth, 1)

		// The library uses scalar bounds shared by every dimension.
		config.LowerBound = lower
		config.UpperBound = upper

		config.Rand = rand.New(rand.NewSource(m.seed + call*7919 + int64(a)))

		result, err := mayfly.Optimize(config)
		if err != nil {
			m.logger.Warn("Mayfly run failed", "attempt", a, "error", err)
			continue
		}

		if result.GlobalBest.Cost < bestCost {
			bestCost = result.GlobalBest.Cost
			copy(out, result.GlobalBest.Position)
		}
	}
}
