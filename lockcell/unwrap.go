package lockcell

import (
	"io"

	"ticketcore/debug"
)

// ============================================================================
// UNWRAP LOCK CELL
// ============================================================================

// Unwrap turns a lock over a possibly empty Slot[T] into a lock over T.
// It is meant for globals that need static storage before their initializer
// can run: the lock exists from the start, the value appears once LockUninit
// fills it, and every Lock before that is fatal.
type Unwrap[T any] struct {
	inner LockCell[Slot[T]]
	rw    RwLockCell[Slot[T]] // nil unless inner supports readers
	held  *Guard[Slot[T]]     // inner guard of the current exclusive holder
}

// NewUnwrap wraps inner.
func NewUnwrap[T any](inner LockCell[Slot[T]]) *Unwrap[T] {
	u := &Unwrap[T]{inner: inner}
	if rw, ok := inner.(RwLockCell[Slot[T]]); ok {
		u.rw = rw
	}
	return u
}

// Inner exposes the wrapped lock.
func (u *Unwrap[T]) Inner() LockCell[Slot[T]] { return u.inner }

// LockUninit acquires the lock and exposes the raw slot so the caller can
// initialize it.
func (u *Unwrap[T]) LockUninit() *Guard[Slot[T]] { return u.inner.Lock() }

// Lock acquires the lock over the initialized value.
func (u *Unwrap[T]) Lock() *Guard[T] {
	return u.adopt(u.inner.Lock())
}

// TryLock is Lock without spinning.
func (u *Unwrap[T]) TryLock() (*Guard[T], bool) {
	g, ok := u.inner.TryLock()
	if !ok {
		return nil, false
	}
	return u.adopt(g), true
}

// Write takes the inner lock for writing. The inner lock must be an
// RwLockCell.
func (u *Unwrap[T]) Write() *Guard[T] {
	return u.adopt(u.mustRw().Write())
}

// Read takes the inner lock for reading.
func (u *Unwrap[T]) Read() *ReadGuard[T] {
	return u.adoptRead(u.mustRw().Read())
}

// TryRead is Read without spinning.
func (u *Unwrap[T]) TryRead() (*ReadGuard[T], bool) {
	g, ok := u.mustRw().TryRead()
	if !ok {
		return nil, false
	}
	return u.adoptRead(g), true
}

func (u *Unwrap[T]) adopt(g *Guard[Slot[T]]) *Guard[T] {
	if !g.Get().IsInit() {
		g.Release()
		debug.Fatal("UNWRAP_UNINIT", "lock taken before initialization")
	}
	u.held = g
	return NewGuard[T](u)
}

// adoptRead keeps the reader registered on the inner lock and retires the
// inner guard; ReleaseRead drops the reader again.
func (u *Unwrap[T]) adoptRead(g *ReadGuard[Slot[T]]) *ReadGuard[T] {
	if !g.Get().IsInit() {
		g.Release()
		debug.Fatal("UNWRAP_UNINIT", "read lock taken before initialization")
	}
	g.Forget()
	return NewReadGuard[T](u)
}

func (u *Unwrap[T]) mustRw() RwLockCell[Slot[T]] {
	if u.rw == nil {
		debug.Fatal("UNWRAP_NOT_RW", "inner lock has no read side")
	}
	return u.rw
}

// Data returns the initialized value. Fatal while empty.
func (u *Unwrap[T]) Data() *T { return u.inner.Data().Value() }

// Unlock releases an exclusive guard from Lock, TryLock or Write.
func (u *Unwrap[T]) Unlock(g *Guard[T]) {
	if g.Cell() != Internal[T](u) {
		debug.Fatal("LOCK_FOREIGN_GUARD", "guard released on the wrong unwrap cell")
	}
	h := u.held
	if h == nil {
		debug.Fatal("LOCK_NOT_HELD", "unwrap cell released while not held")
	}
	u.held = nil
	h.Release()
}

// ForceUnlock releases the inner lock without a guard.
func (u *Unwrap[T]) ForceUnlock() {
	if h := u.held; h != nil {
		h.Forget()
		u.held = nil
	}
	u.inner.ForceUnlock()
}

// ReleaseRead drops a reader added by Read.
func (u *Unwrap[T]) ReleaseRead(g *ReadGuard[T]) {
	if g.Cell() != RwInternal[T](u) {
		debug.Fatal("LOCK_FOREIGN_GUARD", "read guard released on the wrong unwrap cell")
	}
	u.mustRw().ForceReleaseRead()
}

// ForceReleaseRead drops one reader without a guard.
func (u *Unwrap[T]) ForceReleaseRead() { u.mustRw().ForceReleaseRead() }

// OpenToRead forwards to the inner lock.
func (u *Unwrap[T]) OpenToRead() bool { return u.mustRw().OpenToRead() }

// IsUnlocked forwards to the inner lock.
func (u *Unwrap[T]) IsUnlocked() bool { return u.inner.IsUnlocked() }

// IsPreemptable forwards to the inner lock.
func (u *Unwrap[T]) IsPreemptable() bool { return u.inner.IsPreemptable() }

// Drop destroys the value through the inner lock. A value implementing
// io.Closer (directly or via its pointer) is closed first. The cell can be
// initialized again afterwards.
func (u *Unwrap[T]) Drop() error {
	g := u.inner.Lock()
	defer g.Release()
	s := g.Get()
	if !s.IsInit() {
		return nil
	}
	var err error
	if c, ok := any(&s.value).(io.Closer); ok {
		err = c.Close()
	} else if c, ok := any(s.value).(io.Closer); ok {
		err = c.Close()
	}
	s.take()
	return err
}
