package opt

// Context carries the non-numeric structure needed to turn a vector back into
// a value. It is derived once from the archetype and shared read-only by every
// concurrent copy of a run.
type Context = any

// Vectorizable is implemented by domain values that can be optimized.
//
// ToVec flattens the value into a vector plus the context needed to invert the
// mapping. FromVec rebuilds a value from a vector of the same length; it is
// called on the archetype and must only depend on x and ctx, never on the
// receiver's numbers. FromVec may keep x: callers always hand it a private
// copy.
//
// For a fixed shape the vector length is constant and
// v.FromVec(v.ToVec()) is observationally equal to v.
type Vectorizable[T any] interface {
	ToVec() ([]float64, Context)
	FromVec(x []float64, ctx Context) T
}

// Dimension returns the length of v's vectorized form.
func Dimension[T Vectorizable[T]](v T) int {
	x, _ := v.ToVec()
	return len(x)
}
