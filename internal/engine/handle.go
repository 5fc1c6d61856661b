package engine

import (
	"sync"
	"sync/atomic"
)

// Handle is an opaque reference to a Go value that can travel through an
// engine's user-data slot. It carries no type information and does not keep
// the engine aware of what it points to.
//
// The zero Handle is never valid.
type Handle uintptr

var (
	handles   sync.Map // Handle -> any
	handleIdx atomic.Uintptr
)

// NewHandle registers v and returns a handle for it. The handle stays valid
// until Delete is called.
func NewHandle(v any) Handle {
	h := Handle(handleIdx.Add(1))
	handles.Store(h, v)
	return h
}

// Value returns the value registered for h. It panics if h is invalid.
func (h Handle) Value() any {
	v, ok := handles.Load(h)
	if !ok {
		panic("engine: misuse of an invalid Handle")
	}
	return v
}

// Delete invalidates h. It panics if h is already invalid.
func (h Handle) Delete() {
	if _, ok := handles.LoadAndDelete(h); !ok {
		panic("engine: misuse of an invalid Handle")
	}
}
