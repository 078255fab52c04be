// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ INTERRUPT DESCRIPTOR TABLE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Vector dispatch for simulated cores
//
// Description:
//   One table per machine, loaded on every core. Asynchronous vectors arrive through the
//   core's CPU delivery hook with interrupts already masked; synchronous exceptions are raised
//   by the running code itself. Dispatch tracks nesting depth in the core's Locals so locks
//   can tell handler context apart, and counts each vector under a non-preemptable ticket
//   lock, the only kind a handler may take.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package interrupts

import (
	"sync/atomic"

	"ticketcore/constants"
	"ticketcore/corelocal"
	"ticketcore/debug"
	"ticketcore/lockcell"
	"ticketcore/ticketlock"
	"ticketcore/types"
	"ticketcore/utils"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// VECTORS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

const (
	Breakpoint  uint8 = 3
	DoubleFault uint8 = 8
	PageFault   uint8 = 14

	Timer    uint8 = constants.PIC1Offset
	Keyboard uint8 = constants.PIC1Offset + 1
)

// Frame is what a handler learns about the interrupted core.
type Frame struct {
	Vector    uint8
	Core      types.CoreID
	Locals    *corelocal.Locals
	Exception bool
}

// Handler services one vector on the core that received it.
type Handler func(f *Frame)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// TABLE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// IDT maps vectors to handlers for every core of a machine.
type IDT struct {
	m        *corelocal.Machine
	handlers [constants.VectorCount]atomic.Pointer[Handler]
	counts   *ticketlock.TicketLock[[constants.VectorCount]uint64]
}

// New builds a table with the CPU exception handlers installed.
func New(m *corelocal.Machine) *IDT {
	t := &IDT{
		m:      m,
		counts: ticketlock.DefaultNonPreemptable[[constants.VectorCount]uint64](m.InterruptState()),
	}
	t.SetHandler(Breakpoint, breakpointHandler)
	t.SetHandler(DoubleFault, doubleFaultHandler)
	t.SetHandler(PageFault, pageFaultHandler)
	return t
}

// SetHandler installs h for vector. A nil h removes the entry.
func (t *IDT) SetHandler(vector uint8, h Handler) {
	if h == nil {
		t.handlers[vector].Store(nil)
		return
	}
	t.handlers[vector].Store(&h)
}

// Load points the calling core's CPU at this table.
func (t *IDT) Load() {
	l := t.mustLocals()
	l.CPU().SetDeliver(t.deliver)
}

// Init loads the table and drops the boot-time interrupt mask on the calling
// core. Interrupts must be on afterwards.
func (t *IDT) Init() {
	t.Load()
	l := t.mustLocals()
	l.EnableInterrupts()
	if !l.InterruptsEnabled() {
		debug.Fatal("INTERRUPTS_NOT_ENABLED", l.CoreID().String()+" still masked after interrupt init")
	}
}

// Raise sends an external interrupt to core.
func (t *IDT) Raise(core types.CoreID, vector uint8) {
	c := t.m.CPUOf(core)
	if c == nil {
		debug.Fatal("NO_SUCH_CORE", "interrupt for "+core.String()+" which never booted")
	}
	c.Raise(vector)
}

// Broadcast raises vector on every core that has booted.
func (t *IDT) Broadcast(vector uint8) {
	for id := 0; id < t.m.StartedCores(); id++ {
		if c := t.m.CPUOf(types.CoreID(id)); c != nil {
			c.Raise(vector)
		}
	}
}

// Exception raises a synchronous exception on the calling core. It runs
// whether or not interrupts are enabled.
func (t *IDT) Exception(vector uint8) {
	l := t.mustLocals()
	g := l.IncException()
	defer g.Release()
	t.dispatch(l, vector, true)
}

// Count reports how often vector was dispatched. Must run on a booted core.
func (t *IDT) Count(vector uint8) uint64 {
	var n uint64
	lockcell.With[[constants.VectorCount]uint64](t.counts, func(c *[constants.VectorCount]uint64) {
		n = c[vector]
	})
	return n
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// DISPATCH
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// deliver is the CPU hook: IF is already clear.
func (t *IDT) deliver(vector uint8) {
	l := t.mustLocals()
	g := l.IncInterrupt()
	defer g.Release()
	t.dispatch(l, vector, false)
}

func (t *IDT) dispatch(l *corelocal.Locals, vector uint8, exception bool) {
	// Handlers may take only non-preemptable locks; this is one.
	lockcell.With[[constants.VectorCount]uint64](t.counts, func(c *[constants.VectorCount]uint64) {
		c[vector]++
	})

	h := t.handlers[vector].Load()
	if h == nil {
		debug.Fatal("UNHANDLED_VECTOR", "vector "+utils.Utoa(uint64(vector))+" on "+l.CoreID().String())
	}
	(*h)(&Frame{Vector: vector, Core: l.CoreID(), Locals: l, Exception: exception})
}

func (t *IDT) mustLocals() *corelocal.Locals {
	l := t.m.Locals()
	if l == nil {
		debug.Fatal("LOCALS_UNBOOTED", "interrupt table used off-core")
	}
	return l
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// CPU EXCEPTIONS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

func breakpointHandler(f *Frame) {
	debug.DropMessage("EXCEPTION: BREAKPOINT", f.Core.String())
}

func doubleFaultHandler(f *Frame) {
	debug.Fatal("DOUBLE_FAULT", "double fault on "+f.Core.String())
}

func pageFaultHandler(f *Frame) {
	debug.Fatal("PAGE_FAULT", "page fault on "+f.Core.String())
}
