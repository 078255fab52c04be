package lockcell

import (
	"fmt"

	"ticketcore/debug"
)

// ============================================================================
// EXCLUSIVE GUARD
// ============================================================================

// Guard is proof of exclusive ownership. It must not travel to another core.
type Guard[T any] struct {
	cell     Internal[T]
	released bool
}

// NewGuard is called by lock implementations right after acquisition.
func NewGuard[T any](cell Internal[T]) *Guard[T] {
	return &Guard[T]{cell: cell}
}

// Cell returns the lock this guard belongs to.
func (g *Guard[T]) Cell() Internal[T] { return g.cell }

// Get returns the protected value.
func (g *Guard[T]) Get() *T {
	if g.released {
		debug.Fatal("GUARD_RELEASED", "access through a released guard")
	}
	return g.cell.Data()
}

// Set overwrites the protected value.
func (g *Guard[T]) Set(v T) { *g.Get() = v }

// Also runs fn on the protected value and returns the guard for chaining.
func (g *Guard[T]) Also(fn func(*T)) *Guard[T] {
	fn(g.Get())
	return g
}

// Release unlocks. A second Release is fatal.
func (g *Guard[T]) Release() {
	if g.released {
		debug.Fatal("GUARD_DOUBLE_RELEASE", "guard released twice")
	}
	g.released = true
	g.cell.Unlock(g)
}

// Forget retires the guard without unlocking. The lock stays held until
// someone calls ForceUnlock.
func (g *Guard[T]) Forget() { g.released = true }

// Released reports whether the guard was released or forgotten.
func (g *Guard[T]) Released() bool { return g.released }

func (g *Guard[T]) String() string { return fmt.Sprint(*g.Get()) }

// ============================================================================
// READ GUARD
// ============================================================================

// ReadGuard is proof of shared ownership.
type ReadGuard[T any] struct {
	cell     RwInternal[T]
	released bool
}

// NewReadGuard is called by lock implementations right after a reader got in.
func NewReadGuard[T any](cell RwInternal[T]) *ReadGuard[T] {
	return &ReadGuard[T]{cell: cell}
}

// Cell returns the lock this guard belongs to.
func (g *ReadGuard[T]) Cell() RwInternal[T] { return g.cell }

// Get returns the protected value. Callers must not write through it.
func (g *ReadGuard[T]) Get() *T {
	if g.released {
		debug.Fatal("GUARD_RELEASED", "access through a released read guard")
	}
	return g.cell.Data()
}

// Release drops this reader. A second Release is fatal.
func (g *ReadGuard[T]) Release() {
	if g.released {
		debug.Fatal("GUARD_DOUBLE_RELEASE", "read guard released twice")
	}
	g.released = true
	g.cell.ReleaseRead(g)
}

// Forget retires the guard without dropping the reader.
func (g *ReadGuard[T]) Forget() { g.released = true }

// Released reports whether the guard was released or forgotten.
func (g *ReadGuard[T]) Released() bool { return g.released }

func (g *ReadGuard[T]) String() string { return fmt.Sprint(*g.Get()) }

// ============================================================================
// SCOPED ACCESS
// ============================================================================

// With runs fn under the lock. The lock is released on every exit from fn,
// including a panic unwinding through it.
func With[T any](l LockCell[T], fn func(*T)) {
	g := l.Lock()
	defer g.Release()
	fn(g.Get())
}

// WithRead runs fn under a read lock.
func WithRead[T any](l RwLockCell[T], fn func(*T)) {
	g := l.Read()
	defer g.Release()
	fn(g.Get())
}
