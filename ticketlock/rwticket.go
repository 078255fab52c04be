package ticketlock

import (
	"sync/atomic"

	"ticketcore/cpu"
	"ticketcore/debug"
	"ticketcore/lockcell"
	"ticketcore/types"
	"ticketcore/utils"
)

// ============================================================================
// READ-WRITE TICKET LOCK
// ============================================================================

// RwTicketLock admits any number of readers or one writer. The access
// counter is 0 when free, the reader count when positive and -1 while
// written. Readers and writers are not queued; a steady stream of readers
// can starve a writer.
type RwTicketLock[T any] struct {
	access atomic.Int64
	_      [56]byte
	writer atomic.Uint32 // writing core, or noOwner
	_      [60]byte

	preemptable bool
	state       lockcell.InterruptState
	data        T
}

var _ lockcell.RwLockCell[int] = (*RwTicketLock[int])(nil)

func newRw[T any](state lockcell.InterruptState, data T, preemptable bool) *RwTicketLock[T] {
	if state == nil {
		debug.Fatal("LOCK_NO_STATE", "rw ticket lock needs an interrupt state provider")
	}
	l := &RwTicketLock[T]{preemptable: preemptable, state: state, data: data}
	l.writer.Store(noOwner)
	return l
}

// NewRw returns a preemptable rw lock.
func NewRw[T any](state lockcell.InterruptState, data T) *RwTicketLock[T] {
	return newRw(state, data, true)
}

// NewRwNonPreemptable returns an rw lock whose writers disable interrupts.
func NewRwNonPreemptable[T any](state lockcell.InterruptState, data T) *RwTicketLock[T] {
	return newRw(state, data, false)
}

// DefaultRw is NewRw with a zero payload.
func DefaultRw[T any](state lockcell.InterruptState) *RwTicketLock[T] {
	var zero T
	return newRw(state, zero, true)
}

// DefaultRwNonPreemptable is NewRwNonPreemptable with a zero payload.
func DefaultRwNonPreemptable[T any](state lockcell.InterruptState) *RwTicketLock[T] {
	var zero T
	return newRw(state, zero, false)
}

// ============================================================================
// READERS
// ============================================================================

// Read waits for any writer to leave and joins the readers. Readers never
// touch the interrupt flag, so Read is legal inside interrupt handlers.
func (l *RwTicketLock[T]) Read() *lockcell.ReadGuard[T] {
	l.state.EnterCriticalSection(false)
	core := l.state.CoreID()
	spins := 0
	for {
		c := l.access.Load()
		if c >= 0 {
			if l.access.CompareAndSwap(c, c+1) {
				return lockcell.NewReadGuard[T](l)
			}
			continue
		}
		if l.writer.Load() == uint32(core) {
			debug.Fatal("LOCK_DEADLOCK", core.String()+" reads an rw lock it is writing")
		}
		cpu.Spin(&spins)
	}
}

// TryRead joins the readers unless a writer holds the lock.
func (l *RwTicketLock[T]) TryRead() (*lockcell.ReadGuard[T], bool) {
	l.state.EnterCriticalSection(false)
	for {
		c := l.access.Load()
		if c < 0 {
			l.state.ExitCriticalSection(false)
			return nil, false
		}
		if l.access.CompareAndSwap(c, c+1) {
			return lockcell.NewReadGuard[T](l), true
		}
	}
}

// ReleaseRead is called by ReadGuard.Release.
func (l *RwTicketLock[T]) ReleaseRead(g *lockcell.ReadGuard[T]) {
	if g.Cell() != lockcell.RwInternal[T](l) {
		debug.Fatal("LOCK_FOREIGN_GUARD", "read guard released on the wrong rw lock")
	}
	l.ForceReleaseRead()
}

// ForceReleaseRead drops one reader. Dropping a reader that is not there is
// fatal.
func (l *RwTicketLock[T]) ForceReleaseRead() {
	for {
		c := l.access.Load()
		if c <= 0 {
			debug.Fatal("RW_UNBALANCED_READ", "read release with access count "+utils.Itoa(int(c)))
		}
		if l.access.CompareAndSwap(c, c-1) {
			break
		}
	}
	l.state.ExitCriticalSection(false)
}

// OpenToRead reports that no writer holds the lock.
func (l *RwTicketLock[T]) OpenToRead() bool { return l.access.Load() >= 0 }

// ============================================================================
// WRITER
// ============================================================================

// Write waits for the counter to drop to 0 and claims it.
func (l *RwTicketLock[T]) Write() *lockcell.Guard[T] {
	if l.preemptable && l.state.InInterrupt() {
		debug.Fatal("LOCK_IN_INTERRUPT", "preemptable rw lock written inside an interrupt handler")
	}
	l.state.EnterCriticalSection(!l.preemptable)
	core := l.state.CoreID()
	spins := 0
	for !l.access.CompareAndSwap(0, -1) {
		if l.writer.Load() == uint32(core) {
			debug.Fatal("LOCK_DEADLOCK", core.String()+" writes an rw lock it is already writing")
		}
		cpu.Spin(&spins)
	}
	l.writer.Store(uint32(core))
	return lockcell.NewGuard[T](l)
}

// Lock is Write.
func (l *RwTicketLock[T]) Lock() *lockcell.Guard[T] { return l.Write() }

// TryLock writes only if the lock is completely free.
func (l *RwTicketLock[T]) TryLock() (*lockcell.Guard[T], bool) {
	if l.preemptable && l.state.InInterrupt() {
		debug.Fatal("LOCK_IN_INTERRUPT", "preemptable rw lock written inside an interrupt handler")
	}
	l.state.EnterCriticalSection(!l.preemptable)
	if !l.access.CompareAndSwap(0, -1) {
		l.state.ExitCriticalSection(!l.preemptable)
		return nil, false
	}
	l.writer.Store(uint32(l.state.CoreID()))
	return lockcell.NewGuard[T](l), true
}

// Unlock is called by Guard.Release.
func (l *RwTicketLock[T]) Unlock(g *lockcell.Guard[T]) {
	if g.Cell() != lockcell.Internal[T](l) {
		debug.Fatal("LOCK_FOREIGN_GUARD", "guard released on the wrong rw lock")
	}
	if core := l.state.CoreID(); l.writer.Load() != uint32(core) {
		debug.Fatal("LOCK_NOT_OWNER", core.String()+" released an rw lock it is not writing")
	}
	l.ForceUnlock()
}

// ForceUnlock ends the current write.
func (l *RwTicketLock[T]) ForceUnlock() {
	if l.access.Load() != -1 {
		debug.Fatal("RW_NOT_WRITE_LOCKED", "write release of an rw lock that is not written")
	}
	l.writer.Store(noOwner)
	l.access.Store(0)
	l.state.ExitCriticalSection(!l.preemptable)
}

// ============================================================================
// INSPECTION
// ============================================================================

// Data returns the payload. Only meaningful under a guard.
func (l *RwTicketLock[T]) Data() *T { return &l.data }

// IsUnlocked reports no readers and no writer.
func (l *RwTicketLock[T]) IsUnlocked() bool { return l.access.Load() == 0 }

// IsPreemptable reports whether writers leave interrupts enabled.
func (l *RwTicketLock[T]) IsPreemptable() bool { return l.preemptable }

// AccessCount is the raw counter: readers, 0, or -1.
func (l *RwTicketLock[T]) AccessCount() int64 { return l.access.Load() }

// Writer returns the writing core.
func (l *RwTicketLock[T]) Writer() (types.CoreID, bool) {
	w := l.writer.Load()
	if w == noOwner {
		return 0, false
	}
	return types.CoreID(w), true
}
