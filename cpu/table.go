package cpu

import (
	"runtime"
	"sync/atomic"

	"ticketcore/constants"
	"ticketcore/debug"
	"ticketcore/localidx"
	"ticketcore/utils"
)

// ============================================================================
// THREAD -> CPU TABLE
// ============================================================================

// Table answers "which CPU am I" for the calling OS thread in O(1) without
// taking a lock. The thread index is copy-on-write behind an atomic pointer.
type Table struct {
	index atomic.Pointer[localidx.Hash]
	slots [constants.MaxCores]atomic.Pointer[CPU]
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{}
	h := localidx.New(constants.ThreadIndexCapacity)
	t.index.Store(&h)
	return t
}

// Attach locks the calling goroutine to its OS thread, pins the thread and
// binds it to a fresh CPU in slot. Attaching a thread twice or reusing a
// slot is fatal.
func (t *Table) Attach(slot int) *CPU {
	if slot < 0 || slot >= constants.MaxCores {
		debug.Fatal("CPU_SLOT_RANGE", "slot "+utils.Itoa(slot)+" out of range")
	}

	restore := PinThread(slot)
	tid := threadID()
	if _, ok := t.index.Load().Get(tid); ok {
		restore()
		debug.Fatal("CPU_REATTACH", "thread "+utils.Utoa(uint64(tid))+" already attached")
	}

	c := &CPU{slot: slot, tid: tid, restore: restore}
	if !t.slots[slot].CompareAndSwap(nil, c) {
		restore()
		debug.Fatal("CPU_SLOT_TAKEN", "slot "+utils.Itoa(slot)+" already attached")
	}

	for {
		old := t.index.Load()
		next := old.Clone()
		if _, ok := next.Put(tid, uint32(slot)); !ok {
			debug.Fatal("CPU_INDEX_FULL", "thread index exhausted")
		}
		if t.index.CompareAndSwap(old, &next) {
			return c
		}
	}
}

// Detach unbinds the calling thread and releases it back to the runtime.
// The CPU keeps its slot so late Raise calls stay harmless.
func (t *Table) Detach() {
	c := t.Current()
	if c == nil {
		return
	}
	for {
		old := t.index.Load()
		next := old.Clone()
		next.Delete(c.tid)
		if t.index.CompareAndSwap(old, &next) {
			break
		}
	}
	c.restore()
}

// Current returns the CPU bound to the calling thread, or nil.
func (t *Table) Current() *CPU {
	slot, ok := t.index.Load().Get(threadID())
	if !ok {
		return nil
	}
	return t.slots[slot].Load()
}

// Slot returns the CPU attached at slot i, or nil.
func (t *Table) Slot(i int) *CPU {
	if i < 0 || i >= constants.MaxCores {
		return nil
	}
	return t.slots[i].Load()
}

// Attached counts live thread bindings.
func (t *Table) Attached() int { return t.index.Load().Len() }

// PinThread locks the calling goroutine to its thread and restricts the
// thread to one host CPU chosen from core. The returned func undoes both.
func PinThread(core int) (restore func()) {
	runtime.LockOSThread()
	undo, err := setAffinity(core % runtime.NumCPU())
	if err != nil {
		debug.DropError("cpu: affinity for core "+utils.Itoa(core), err)
	}
	return func() {
		undo()
		runtime.UnlockOSThread()
	}
}
