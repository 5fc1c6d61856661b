package opt

import (
	"slices"

	"github.com/cwbudde/portfolioopt/internal/engine"
)

// evaluator is what a bridge handle points to. The trampoline only knows this
// interface, never the domain type behind it.
type evaluator interface {
	evaluate(x []float64) float64
}

// bridge turns a scoring closure over T into something an engine can call
// through Trampoline and an opaque handle.
//
// A bridge belongs to exactly one engine invocation, so its fields are only
// touched from the goroutine running that invocation.
type bridge[T Vectorizable[T]] struct {
	archetype T
	ctx       Context
	score     func(T) float64
	best      *Register[T] // nil outside a portfolio run
	copyIdx   int
	evals     int
}

func (b *bridge[T]) evaluate(x []float64) float64 {
	b.evals++
	candidate := b.archetype.FromVec(slices.Clone(x), b.ctx)
	s := b.score(candidate)
	if b.best != nil {
		b.best.offer(s, candidate, b.copyIdx)
	}
	return s
}

// bind registers b for the duration of one engine call. The returned release
// must run once the call has returned.
func (b *bridge[T]) bind() (engine.Handle, func()) {
	h := engine.NewHandle(evaluator(b))
	return h, h.Delete
}

// Trampoline is the fixed engine.EvalFunc behind every bridge. It resolves h
// back to its bridge and scores the first dim values of x.
func Trampoline(dim int, x []float64, h engine.Handle) float64 {
	return h.Value().(evaluator).evaluate(x[:dim])
}
