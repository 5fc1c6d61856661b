package opt

import (
	"github.com/cwbudde/portfolioopt/internal/engine"
)

// Invoke runs a single engine call and decodes the point the engine reports
// as its answer. It does not consult any shared best register, so the value
// returned is the engine's own final point, not necessarily the best one it
// evaluated. Params.PortfolioCopies is ignored.
func Invoke[T Vectorizable[T]](eng engine.Engine, archetype T, params Params, score func(T) float64) T {
	vec, ctx := archetype.ToVec()
	b := &bridge[T]{
		archetype: archetype,
		ctx:       ctx,
		score:     score,
	}
	return invoke(eng, b, len(vec), params)
}

// invoke sizes the output buffer from the archetype's dimension, never from
// anything the engine reports.
func invoke[T Vectorizable[T]](eng engine.Engine, b *bridge[T], dim int, params Params) T {
	out := make([]float64, dim)

	h, release := b.bind()
	defer release()

	eng.Minimize(out, h, params.LowerBound, params.UpperBound, params.Iter, params.Depth, params.Attc, Trampoline)

	return b.archetype.FromVec(out, b.ctx)
}
