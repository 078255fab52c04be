// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ SIMULATED CORE REGISTER FILE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Per-thread CPU state for hosted cores
//
// Description:
//   A simulated core is a goroutine locked to an OS thread. Each such thread owns one CPU:
//   the interrupt flag, a core-local base register and a 256-bit pending interrupt register.
//   Any goroutine may raise a vector; only the owning thread delivers it, and only at an
//   instruction boundary the simulation can see: sti, an explicit Poll, or Halt.
//
// Delivery model:
//   - Highest pending vector first
//   - Interrupt gate: IF is cleared for the handler and restored afterwards (IRET)
//   - Nothing is delivered while IF is clear; raised vectors stay pending
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package cpu

import (
	"math/bits"
	"sync/atomic"
	"unsafe"

	"ticketcore/debug"
	"ticketcore/utils"
)

// DeliverFunc receives a vector on the owning thread with IF already cleared.
type DeliverFunc func(vector uint8)

// CPU is the register file of one simulated core.
type CPU struct {
	iflag atomic.Uint32 // 1 = interrupts enabled
	_     [60]byte

	pending [4]atomic.Uint64 // IRR, raised from any goroutine
	_       [32]byte

	gs        unsafe.Pointer // core-local base, owner thread only
	deliver   atomic.Pointer[DeliverFunc]
	delivered atomic.Uint64
	slot      int
	tid       uint32
	restore   func()
}

// Slot is the table slot (core id) this CPU was attached to.
func (c *CPU) Slot() int { return c.slot }

// ============================================================================
// INTERRUPT FLAG
// ============================================================================

// DisableInterrupts is cli.
//
//go:nosplit
func (c *CPU) DisableInterrupts() { c.iflag.Store(0) }

// EnableInterrupts is sti followed by delivery of anything pending.
func (c *CPU) EnableInterrupts() {
	c.iflag.Store(1)
	c.Poll()
}

// InterruptsEnabled reads IF.
//
//go:nosplit
func (c *CPU) InterruptsEnabled() bool { return c.iflag.Load() == 1 }

// ============================================================================
// CORE-LOCAL BASE
// ============================================================================

// SetGSBase installs the core-local base pointer.
func (c *CPU) SetGSBase(p unsafe.Pointer) { atomic.StorePointer(&c.gs, p) }

// GSBase reads the core-local base pointer.
func (c *CPU) GSBase() unsafe.Pointer { return atomic.LoadPointer(&c.gs) }

// ============================================================================
// PENDING INTERRUPTS
// ============================================================================

// SetDeliver installs the delivery hook (the loaded IDT).
func (c *CPU) SetDeliver(fn DeliverFunc) {
	if fn == nil {
		c.deliver.Store(nil)
		return
	}
	c.deliver.Store(&fn)
}

// Raise marks vector pending. Safe from any goroutine.
func (c *CPU) Raise(vector uint8) {
	c.pending[vector>>6].Or(1 << (vector & 63))
}

// Pending reports whether any vector is waiting.
func (c *CPU) Pending() bool {
	for i := range c.pending {
		if c.pending[i].Load() != 0 {
			return true
		}
	}
	return false
}

// Delivered counts vectors handed to the delivery hook.
func (c *CPU) Delivered() uint64 { return c.delivered.Load() }

// take claims the highest pending vector.
func (c *CPU) take() (uint8, bool) {
	for i := len(c.pending) - 1; i >= 0; i-- {
		for {
			w := c.pending[i].Load()
			if w == 0 {
				break
			}
			bit := uint(63 - bits.LeadingZeros64(w))
			mask := uint64(1) << bit
			if c.pending[i].And(^mask)&mask != 0 {
				return uint8(i<<6) | uint8(bit), true
			}
		}
	}
	return 0, false
}

// Poll delivers pending vectors while IF is set and returns how many ran.
// Must be called on the owning thread.
func (c *CPU) Poll() int {
	n := 0
	for c.iflag.Load() == 1 {
		v, ok := c.take()
		if !ok {
			break
		}
		c.dispatch(v)
		n++
	}
	return n
}

func (c *CPU) dispatch(v uint8) {
	prev := c.iflag.Swap(0)
	if fn := c.deliver.Load(); fn != nil {
		c.delivered.Add(1)
		(*fn)(v)
	} else {
		debug.DropMessage("cpu", "spurious vector "+utils.Utoa(uint64(v))+" on slot "+utils.Itoa(c.slot))
	}
	c.iflag.Store(prev)
}

// Halt idles until an interrupt is delivered or *stop becomes non-zero.
// With IF clear only stop can end the wait, as on hardware.
func (c *CPU) Halt(stop *uint32) {
	spins := 0
	for atomic.LoadUint32(stop) == 0 {
		if c.iflag.Load() == 1 && c.Pending() {
			c.Poll()
			return
		}
		Spin(&spins)
	}
}
