// Package weakref provides a non-owning reference whose holder can tell whether
// the referent is still live.
//
// Timers hold a Ref to the request they guard. Completing a request releases the
// reference, so a timer firing afterwards observes nil and does nothing.
package weakref

import (
	"sync/atomic"
	"weak"
)

// Ref is a weak reference to a *T that can also be released explicitly.
type Ref[T any] struct {
	ptr      weak.Pointer[T]
	released atomic.Bool
}

// Make returns a reference to v. It does not keep v alive.
func Make[T any](v *T) *Ref[T] {
	return &Ref[T]{ptr: weak.Make(v)}
}

// Value returns the referent, or nil if it was released or collected.
func (r *Ref[T]) Value() *T {
	if r == nil || r.released.Load() {
		return nil
	}
	return r.ptr.Value()
}

// Release detaches the reference. Subsequent Value calls return nil.
// It reports whether this call performed the release.
func (r *Ref[T]) Release() bool {
	if r == nil {
		return false
	}
	return r.released.CompareAndSwap(false, true)
}

// Released reports whether Release has been called.
func (r *Ref[T]) Released() bool {
	return r != nil && r.released.Load()
}
