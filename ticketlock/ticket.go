// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🎫 TICKET LOCK
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: FIFO spinlock for kernel cores
//
// Description:
//   Two monotonically increasing counters: next hands out tickets, current names the ticket
//   allowed in. A waiter spins until current reaches its ticket, so cores are served strictly
//   in arrival order. A non-preemptable lock keeps interrupts off on the holding core for
//   the whole hold, which is what makes it usable from interrupt handlers.
//
// Runtime checks:
//   - A preemptable lock taken inside an interrupt handler is fatal
//   - A core spinning on a lock it already owns is fatal (self-deadlock)
//   - Unlock by a core that is not the owner is fatal
//   - ForceUnlock with nothing held is fatal
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package ticketlock

import (
	"fmt"
	"io"
	"sync/atomic"

	"ticketcore/cpu"
	"ticketcore/debug"
	"ticketcore/lockcell"
	"ticketcore/types"
)

// noOwner marks a lock nobody holds.
const noOwner = ^uint32(0)

// TicketLock is a fair spinlock owning a T.
type TicketLock[T any] struct {
	current atomic.Uint64 // ticket allowed to proceed
	_       [56]byte
	next    atomic.Uint64 // next ticket to hand out
	_       [56]byte
	owner   atomic.Uint32 // holding core, or noOwner
	_       [60]byte

	preemptable bool
	state       lockcell.InterruptState
	probe       Probe
	data        T
}

var _ lockcell.LockCell[int] = (*TicketLock[int])(nil)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CONSTRUCTORS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func newTicket[T any](state lockcell.InterruptState, data T, preemptable bool) *TicketLock[T] {
	if state == nil {
		debug.Fatal("LOCK_NO_STATE", "ticket lock needs an interrupt state provider")
	}
	l := &TicketLock[T]{preemptable: preemptable, state: state, data: data}
	l.owner.Store(noOwner)
	return l
}

// New returns a preemptable lock: interrupts stay as they are while held.
func New[T any](state lockcell.InterruptState, data T) *TicketLock[T] {
	return newTicket(state, data, true)
}

// NewNonPreemptable returns a lock that disables interrupts while held.
func NewNonPreemptable[T any](state lockcell.InterruptState, data T) *TicketLock[T] {
	return newTicket(state, data, false)
}

// Default is New with a zero payload.
func Default[T any](state lockcell.InterruptState) *TicketLock[T] {
	var zero T
	return newTicket(state, zero, true)
}

// DefaultNonPreemptable is NewNonPreemptable with a zero payload.
func DefaultNonPreemptable[T any](state lockcell.InterruptState) *TicketLock[T] {
	var zero T
	return newTicket(state, zero, false)
}

// SetProbe attaches a trace probe. Call before the lock is shared.
func (l *TicketLock[T]) SetProbe(p Probe) { l.probe = p }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// ACQUIRE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func (l *TicketLock[T]) checkContext() {
	if l.preemptable && l.state.InInterrupt() {
		debug.Fatal("LOCK_IN_INTERRUPT", "preemptable ticket lock taken inside an interrupt handler")
	}
}

// Lock spins until this core's ticket is served.
func (l *TicketLock[T]) Lock() *lockcell.Guard[T] {
	l.checkContext()
	l.state.EnterCriticalSection(!l.preemptable)

	core := l.state.CoreID()
	ticket := l.next.Add(1) - 1
	if l.probe != nil {
		l.probe.TicketIssued(core, ticket)
	}

	spins := 0
	for l.current.Load() != ticket {
		if l.owner.Load() == uint32(core) {
			debug.Fatal("LOCK_DEADLOCK", core.String()+" waits on a ticket lock it holds")
		}
		cpu.Spin(&spins)
	}

	l.owner.Store(uint32(core))
	if l.probe != nil {
		l.probe.TicketGranted(core, ticket, spins)
	}
	return lockcell.NewGuard[T](l)
}

// TryLock takes the lock only if no ticket is outstanding. It never spins.
func (l *TicketLock[T]) TryLock() (*lockcell.Guard[T], bool) {
	l.checkContext()
	l.state.EnterCriticalSection(!l.preemptable)

	cur := l.current.Load()
	if !l.next.CompareAndSwap(cur, cur+1) {
		l.state.ExitCriticalSection(!l.preemptable)
		return nil, false
	}

	core := l.state.CoreID()
	l.owner.Store(uint32(core))
	if l.probe != nil {
		l.probe.TicketIssued(core, cur)
		l.probe.TicketGranted(core, cur, 0)
	}
	return lockcell.NewGuard[T](l), true
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RELEASE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Unlock is called by Guard.Release.
func (l *TicketLock[T]) Unlock(g *lockcell.Guard[T]) {
	if g.Cell() != lockcell.Internal[T](l) {
		debug.Fatal("LOCK_FOREIGN_GUARD", "guard released on the wrong ticket lock")
	}
	core := l.state.CoreID()
	if l.owner.Load() != uint32(core) {
		debug.Fatal("LOCK_NOT_OWNER", core.String()+" released a ticket lock it does not hold")
	}
	l.release(core)
}

// ForceUnlock releases the lock whoever holds it. For fault handlers only.
func (l *TicketLock[T]) ForceUnlock() {
	if l.current.Load() >= l.next.Load() {
		debug.Fatal("LOCK_NOT_HELD", "force unlock of a free ticket lock")
	}
	l.release(l.state.CoreID())
}

// release hands the lock to the next ticket. core is the releasing core,
// which is not the holder on the ForceUnlock path.
func (l *TicketLock[T]) release(core types.CoreID) {
	served := l.current.Load()
	if l.probe != nil {
		l.probe.TicketReleased(core, served)
	}
	l.owner.Store(noOwner)
	l.current.Add(1)
	l.state.ExitCriticalSection(!l.preemptable)
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// INSPECTION
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Data returns the payload. Only meaningful under a guard.
func (l *TicketLock[T]) Data() *T { return &l.data }

// IsUnlocked reports that every issued ticket has been served.
func (l *TicketLock[T]) IsUnlocked() bool { return l.current.Load() == l.next.Load() }

// IsPreemptable reports whether holders leave interrupts enabled.
func (l *TicketLock[T]) IsPreemptable() bool { return l.preemptable }

// CurrentTicket is the ticket allowed in.
func (l *TicketLock[T]) CurrentTicket() uint64 { return l.current.Load() }

// NextTicket is the ticket the next caller will draw.
func (l *TicketLock[T]) NextTicket() uint64 { return l.next.Load() }

// Owner returns the holding core.
func (l *TicketLock[T]) Owner() (types.CoreID, bool) {
	o := l.owner.Load()
	if o == noOwner {
		return 0, false
	}
	return types.CoreID(o), true
}

// WriteState dumps the counters for a panic screen.
func (l *TicketLock[T]) WriteState(w io.Writer) error {
	_, err := fmt.Fprintf(w, "[TicketLock(c: %d, n: %d, o: %d)]",
		l.current.Load(), l.next.Load(), int64(int32(l.owner.Load())))
	return err
}
