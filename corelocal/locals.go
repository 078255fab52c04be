// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ PER-CORE LOCALS
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Core identity and interrupt bookkeeping
//
// Description:
//   Every booted core reaches its own Locals record through the core-local base register of
//   its CPU, so a lookup is one thread-table probe and one pointer load, never a lock. The
//   record tracks interrupt and exception nesting and the interrupt-disable reference count.
//
// Interrupt re-enable rule:
//   Interrupts come back on only when the disable count drops to zero outside of an interrupt
//   handler. Inside a handler the gate's own IF restore does the job.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package corelocal

import (
	"sync/atomic"

	"ticketcore/cpu"
	"ticketcore/debug"
	"ticketcore/types"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// SCOPED DEPTH COUNTERS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// AutoRefCounter is a nesting depth raised for the lifetime of a guard.
type AutoRefCounter struct {
	n atomic.Uint64
}

// AutoRefGuard lowers its counter on Release.
type AutoRefGuard struct {
	c *AutoRefCounter
}

// Increment raises the depth until the returned guard is released.
func (c *AutoRefCounter) Increment() *AutoRefGuard {
	c.n.Add(1)
	return &AutoRefGuard{c: c}
}

// Count is the current depth.
func (c *AutoRefCounter) Count() uint64 { return c.n.Load() }

// Release lowers the depth. Releasing twice is fatal.
func (g *AutoRefGuard) Release() {
	if g.c == nil {
		debug.Fatal("DEPTH_DOUBLE_RELEASE", "depth guard released twice")
	}
	g.c.n.Add(^uint64(0))
	g.c = nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LOCALS RECORD
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Locals is one core's private record. Fields other than the counters are
// written once, before the record is published.
type Locals struct {
	addr     uintptr       // self address, for core-local lookups by value
	bootLock atomic.Uint64 // handshake: id of the core allowed to boot (boot record only)

	coreID types.CoreID
	cpu    *cpu.CPU

	interruptDepth AutoRefCounter
	exceptionDepth AutoRefCounter
	disableCount   atomic.Int64
}

// CoreID is this core's id.
func (l *Locals) CoreID() types.CoreID { return l.coreID }

// IsBSP reports whether this is the bootstrap core.
func (l *Locals) IsBSP() bool { return l.coreID.IsBSP() }

// Addr is the record's own address.
func (l *Locals) Addr() uintptr { return l.addr }

// CPU is the register file this core runs on.
func (l *Locals) CPU() *cpu.CPU { return l.cpu }

// IncInterrupt marks entry into an interrupt handler.
func (l *Locals) IncInterrupt() *AutoRefGuard { return l.interruptDepth.Increment() }

// IncException marks entry into an exception handler.
func (l *Locals) IncException() *AutoRefGuard { return l.exceptionDepth.Increment() }

// InInterrupt reports that an interrupt handler is running on this core.
func (l *Locals) InInterrupt() bool { return l.interruptDepth.Count() > 0 }

// InException reports that an exception handler is running on this core.
func (l *Locals) InException() bool { return l.exceptionDepth.Count() > 0 }

// InterruptDepth is the interrupt nesting depth.
func (l *Locals) InterruptDepth() uint64 { return l.interruptDepth.Count() }

// ExceptionDepth is the exception nesting depth.
func (l *Locals) ExceptionDepth() uint64 { return l.exceptionDepth.Count() }

// DisableCount is the number of outstanding disable requests.
func (l *Locals) DisableCount() int64 { return l.disableCount.Load() }

// DisableInterrupts turns interrupts off and records one more request to
// keep them off.
func (l *Locals) DisableInterrupts() {
	l.cpu.DisableInterrupts()
	l.disableCount.Add(1)
}

// EnableInterrupts drops one disable request and turns interrupts back on
// when none remain, unless an interrupt handler is running.
func (l *Locals) EnableInterrupts() {
	if l.disableCount.Add(-1) == 0 && !l.InInterrupt() {
		l.cpu.EnableInterrupts()
	}
}

// InterruptsEnabled reads the CPU's interrupt flag.
func (l *Locals) InterruptsEnabled() bool { return l.cpu.InterruptsEnabled() }
