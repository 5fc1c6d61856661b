// Package engine defines the synchronous call contract of a black-box minimizer
// and ships the engines the rest of the module runs against.
//
// An engine never sees the caller's domain values. It fills a caller-owned
// buffer with the best point it found and reports every candidate it wants
// scored through a plain EvalFunc plus an opaque Handle, the same shape as a
// C callback with a void* user-data slot.
package engine

// EvalFunc scores one candidate point.
//
// x holds exactly dim values and is only valid for the duration of the call.
// h is the handle that was passed to Engine.Minimize, unchanged.
type EvalFunc func(dim int, x []float64, h Handle) float64

// Engine is a synchronous, blocking minimizer.
//
// Minimize searches the box [lower, upper]^len(out) and writes the best point it
// found into out before returning. len(out) is the dimension; an engine must
// never infer a different one. eval is called zero or more times on the
// calling goroutine, always with h.
//
// iter, depth and attc are opaque budget and structure knobs; each engine
// documents its own interpretation.
//
// Implementations must allow concurrent Minimize calls that use distinct out
// buffers and handles.
type Engine interface {
	Minimize(out []float64, h Handle, lower, upper float64, iter, depth, attc int, eval EvalFunc)
}
