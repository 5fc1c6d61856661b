package opt

import (
	"sync/atomic"

	"github.com/cwbudde/portfolioopt/internal/engine"
)

// twoPoly is the two-parameter value used across the package tests.
type twoPoly struct {
	X, Y float64
}

func (p twoPoly) ToVec() ([]float64, Context) {
	return []float64{p.X, p.Y}, nil
}

func (twoPoly) FromVec(x []float64, _ Context) twoPoly {
	return twoPoly{X: x[0], Y: x[1]}
}

func l1Score(p twoPoly) float64 {
	return abs(p.X-2) + abs(p.Y-8)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// grid is a row-major matrix whose shape lives in the context.
type grid struct {
	Rows, Cols int
	Cells      []float64
}

type gridShape struct{ rows, cols int }

func (g grid) ToVec() ([]float64, Context) {
	return append([]float64(nil), g.Cells...), gridShape{rows: g.Rows, cols: g.Cols}
}

func (grid) FromVec(x []float64, ctx Context) grid {
	shape := ctx.(gridShape)
	return grid{Rows: shape.rows, Cols: shape.cols, Cells: x}
}

// funcEngine is an Engine backed by a function, counting its calls.
type funcEngine struct {
	calls atomic.Int64
	fn    func(out []float64, h engine.Handle, eval engine.EvalFunc)
}

func (e *funcEngine) Minimize(out []float64, h engine.Handle, _, _ float64, _, _, _ int, eval engine.EvalFunc) {
	e.calls.Add(1)
	e.fn(out, h, eval)
}
