package engine

import (
	"math"
	"math/rand"
	"sync/atomic"
)

// minStepRatio stops an attempt once the poll step shrinks below this
// fraction of the box width.
const minStepRatio = 1e-12

// Compass is a derivative-free pattern search with random restarts.
//
// Knob interpretation:
//   - iter: evaluation budget of a single attempt
//   - depth: number of random probe points an attempt starts from (the best one wins)
//   - attc: number of attempts
//
// Values below 1 are treated as 1. Every Minimize call draws its own seed from
// the engine seed and a call counter, so concurrent calls explore different
// starting points while a single call is reproducible for a given seed.
type Compass struct {
	seed  int64
	calls atomic.Int64
}

// NewCompass creates a compass search engine.
func NewCompass(seed int64) *Compass {
	return &Compass{seed: seed}
}

// Minimize implements Engine.
func (c *Compass) Minimize(out []float64, h Handle, lower, upper float64, iter, depth, attc int, eval EvalFunc) {
	dim := len(out)
	if dim == 0 {
		return
	}
	clear(out)

	iter = max(iter, 1)
	depth = max(depth, 1)
	attc = max(attc, 1)

	call := c.calls.Add(1) - 1
	rng := rand.New(rand.NewSource(c.seed + call*7919))

	width := upper - lower
	bestF := math.Inf(1)
	found := false

	x := make([]float64, dim)
	probe := make([]float64, dim)

	for a := 0; a < attc; a++ {
		evals := 0

		// Start from the best of depth random probes.
		fx := math.Inf(1)
		for p := 0; p < depth && evals < iter; p++ {
			for i := range probe {
				probe[i] = lower + rng.Float64()*width
			}
			f := eval(dim, probe, h)
			evals++
			if f < fx || p == 0 {
				fx = f
				copy(x, probe)
			}
		}

		step := width / 4
		for evals < iter && step > width*minStepRatio {
			improved := false
		poll:
			for i := 0; i < dim; i++ {
				for _, dir := range [2]float64{1, -1} {
					if evals >= iter {
						break poll
					}
					copy(probe, x)
					probe[i] = clamp(x[i]+dir*step, lower, upper)
					if probe[i] == x[i] {
						continue
					}
					f := eval(dim, probe, h)
					evals++
					if f < fx {
						fx = f
						copy(x, probe)
						improved = true
						break poll
					}
				}
			}
			if !improved {
				step /= 2
			}
		}

		if !found || fx < bestF {
			bestF = fx
			copy(out, x)
			found = true
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
