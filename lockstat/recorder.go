// ════════════════════════════════════════════════════════════════════════════════════════════════
// 📈 LOCK TRACE RECORDER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Per-core ticket event capture
//
// Description:
//   Ticket locks report issue/grant/release through a Probe. Each simulated core writes its
//   events into its own SPSC ring, so the lock path never shares a cache line with another
//   producer beyond the global stamp counter. A single collector drains all rings from a
//   pinned thread, spinning hot while the machine is busy and backing off once it cools.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package lockstat

import (
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"ticketcore/constants"
	"ticketcore/control"
	"ticketcore/cpu"
	"ticketcore/debug"
	"ticketcore/evring"
	"ticketcore/ticketlock"
	"ticketcore/types"
	"ticketcore/utils"
)

// ErrRunning is returned when the collector is started twice.
var ErrRunning = errors.New("lockstat: collector already running")

// Recorder collects ticket events from every core.
type Recorder struct {
	rings   []*evring.Ring
	stamp   atomic.Uint64
	dropped atomic.Uint64

	stop    uint32
	running atomic.Bool
	done    chan struct{}

	events []Event // consumer-owned; read after Stop
	sorted bool
}

// New returns a recorder for cores cores with the default ring size.
func New(cores int) *Recorder {
	return NewSized(cores, constants.TraceRingSize)
}

// NewSized returns a recorder whose per-core rings hold size events.
func NewSized(cores, size int) *Recorder {
	r := &Recorder{rings: make([]*evring.Ring, cores)}
	for i := range r.rings {
		r.rings[i] = evring.New(size)
	}
	return r
}

// Probe binds a ticket probe to lock.
func (r *Recorder) Probe(lock types.LockID) ticketlock.Probe {
	return &probe{r: r, lock: lock}
}

// record runs on the producing core.
func (r *Recorder) record(lock types.LockID, core types.CoreID, kind Kind, ticket uint64, spins int) {
	if int(core) >= len(r.rings) {
		r.dropped.Add(1)
		return
	}
	e := Event{
		Ticket: ticket,
		Stamp:  r.stamp.Add(1),
		Spins:  uint32(spins),
		Lock:   lock,
		Core:   core,
		Kind:   kind,
	}
	var b [evring.RecordSize]byte
	e.encode(&b)
	if !r.rings[core].Push(&b) {
		r.dropped.Add(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// COLLECTOR
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Start launches the collector pinned to host CPU core.
func (r *Recorder) Start(core int) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	atomic.StoreUint32(&r.stop, 0)
	r.done = make(chan struct{})
	go r.collect(core, r.done)
	return nil
}

func (r *Recorder) collect(core int, done chan<- struct{}) {
	restore := cpu.PinThread(core)
	defer func() {
		restore()
		close(done)
	}()

	_, hot := control.Flags()
	var miss int
	lastHit := time.Now()

	for {
		if atomic.LoadUint32(&r.stop) != 0 {
			r.Drain()
			return
		}

		if r.Drain() > 0 {
			miss = 0
			lastHit = time.Now()
			continue
		}

		control.PollCooldown()
		if atomic.LoadUint32(hot) == 1 || time.Since(lastHit) <= constants.HotWindow {
			cpu.Relax()
			continue
		}
		cpu.Spin(&miss)
	}
}

// Drain moves every queued event into the recorder and returns how many it
// moved. Only the collector may call it while one is running.
func (r *Recorder) Drain() int {
	n := 0
	for _, ring := range r.rings {
		for p := ring.Pop(); p != nil; p = ring.Pop() {
			r.events = append(r.events, decode(p))
			n++
		}
	}
	if n > 0 {
		r.sorted = false
	}
	return n
}

// Stop ends the collector after a final drain and waits for it.
func (r *Recorder) Stop() {
	if !r.running.Load() {
		return
	}
	atomic.StoreUint32(&r.stop, 1)
	<-r.done
	r.running.Store(false)
	if d := r.dropped.Load(); d > 0 {
		debug.DropMessage("lockstat", utils.Utoa(d)+" events dropped")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// RESULTS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Events returns collected events in stamp order. Call after Stop.
func (r *Recorder) Events() []Event {
	if !r.sorted {
		sort.Slice(r.events, func(i, j int) bool { return r.events[i].Stamp < r.events[j].Stamp })
		r.sorted = true
	}
	return r.events
}

// Dropped counts events lost to full rings or out-of-range cores.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// GrantOrder lists the tickets of lock in the order they were granted.
func (r *Recorder) GrantOrder(lock types.LockID) []uint64 {
	var order []uint64
	for _, e := range r.Events() {
		if e.Lock == lock && e.Kind == Granted {
			order = append(order, e.Ticket)
		}
	}
	return order
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// PROBE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

type probe struct {
	r    *Recorder
	lock types.LockID
}

func (p *probe) TicketIssued(core types.CoreID, ticket uint64) {
	p.r.record(p.lock, core, Issued, ticket, 0)
}

func (p *probe) TicketGranted(core types.CoreID, ticket uint64, spins int) {
	p.r.record(p.lock, core, Granted, ticket, spins)
}

func (p *probe) TicketReleased(core types.CoreID, ticket uint64) {
	p.r.record(p.lock, core, Released, ticket, 0)
}
