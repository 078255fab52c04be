// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🔒 LOCK CELL CAPABILITY
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Lock interfaces shared by every spinlock in the kernel core
//
// Description:
//   A lock cell owns its payload. The payload is reachable only through a guard, and a guard
//   exists only between a successful acquisition and its release. Exclusivity across
//   interrupt boundaries cannot be proven by the type system; it is held up by runtime
//   checks in the lock implementations (owner tracking, double-release detection).
//
// Release discipline:
//   - Release exactly once, normally via defer or With
//   - A guard belongs to the core that acquired it
//   - ForceUnlock exists for the terminal fault path only
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package lockcell

import "ticketcore/types"

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// INTERRUPT STATE PROVIDER
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// InterruptState is what a lock needs to know about the core it runs on.
//
// EnterCriticalSection is called once per acquisition attempt before any
// shared state is touched; with disable set it turns interrupts off and bumps
// the core's disable count. ExitCriticalSection is called once per matching
// enter, with the same flag. With enable set it drops the disable count and
// turns interrupts back on only when the count reaches zero outside of an
// interrupt handler. Unmatched or doubled calls are caller bugs and are not
// checked.
type InterruptState interface {
	InInterrupt() bool
	InException() bool
	CoreID() types.CoreID
	EnterCriticalSection(disableInterrupts bool)
	ExitCriticalSection(enableInterrupts bool)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CELL INTERFACES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Internal is the part of a lock that guards call back into.
type Internal[T any] interface {
	// Data returns the payload. Only valid while a guard is live.
	Data() *T
	// Unlock releases an exclusive guard created by this cell.
	Unlock(g *Guard[T])
	// ForceUnlock releases the lock without a guard.
	ForceUnlock()
	IsUnlocked() bool
	IsPreemptable() bool
}

// LockCell is an exclusive lock over a T.
type LockCell[T any] interface {
	Internal[T]
	Lock() *Guard[T]
	TryLock() (*Guard[T], bool)
}

// RwInternal is what read guards call back into.
type RwInternal[T any] interface {
	Internal[T]
	// ReleaseRead releases a read guard created by this cell.
	ReleaseRead(g *ReadGuard[T])
	// ForceReleaseRead drops one reader without a guard.
	ForceReleaseRead()
	// OpenToRead reports whether a reader would get in right now.
	OpenToRead() bool
}

// RwLockCell admits many readers or one writer.
type RwLockCell[T any] interface {
	LockCell[T]
	RwInternal[T]
	Read() *ReadGuard[T]
	TryRead() (*ReadGuard[T], bool)
	Write() *Guard[T]
}
