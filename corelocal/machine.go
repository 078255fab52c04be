package corelocal

import (
	"sync/atomic"
	"unsafe"

	"ticketcore/constants"
	"ticketcore/cpu"
	"ticketcore/debug"
	"ticketcore/lockcell"
	"ticketcore/types"
	"ticketcore/utils"
)

// ============================================================================
// MACHINE
// ============================================================================

// Machine is the process-wide core registry: the id counter, the shared boot
// record, and one permanent record per ready core. Records are never freed.
type Machine struct {
	cpus    *cpu.Table
	nextID  atomic.Uint32
	ready   atomic.Uint32
	halted  atomic.Bool
	boot    Locals
	records [constants.MaxCores]atomic.Pointer[Locals]
	onFault atomic.Pointer[func(*CoreFault)]
}

// NewMachine returns a machine with no cores booted.
func NewMachine() *Machine {
	m := &Machine{cpus: cpu.NewTable()}
	m.boot.addr = uintptr(unsafe.Pointer(&m.boot))
	// Cores boot with interrupts off.
	m.boot.disableCount.Store(1)
	return m
}

// CoreBoot claims the next core id for the calling goroutine and runs the
// boot handshake: the goroutine becomes a core pinned to its own thread,
// turns interrupts off, waits for its turn and points its core-local base at
// the shared boot record. The caller holds the handshake until Init.
func (m *Machine) CoreBoot() types.CoreID {
	n := m.nextID.Add(1) - 1
	if n >= constants.MaxCores {
		debug.Fatal("CORE_LIMIT", "core "+utils.Utoa(uint64(n))+" exceeds the core table")
	}
	id := types.CoreID(n)

	c := m.cpus.Attach(int(n))
	c.DisableInterrupts()

	spins := 0
	for m.boot.bootLock.Load() != uint64(n) {
		if m.halted.Load() {
			debug.Fatal("MACHINE_HALTED", id.String()+" abandoned boot")
		}
		cpu.Spin(&spins)
	}

	l := &m.boot
	c.SetGSBase(unsafe.Pointer(l))
	l.coreID = id
	l.cpu = c

	if l.InInterrupt() {
		debug.Fatal("BOOT_IN_INTERRUPT", id.String()+" booted inside an interrupt")
	}
	if l.InException() {
		debug.Fatal("BOOT_IN_EXCEPTION", id.String()+" booted inside an exception")
	}
	if l.DisableCount() != 1 {
		debug.Fatal("BOOT_INTERRUPTS_ENABLED", id.String()+" booted with disable count "+utils.Itoa(int(l.DisableCount())))
	}
	return id
}

// Init moves the core from the boot record to its permanent record and lets
// the next core boot.
func (m *Machine) Init(id types.CoreID) *Locals {
	l := m.Locals()
	if l == nil {
		debug.Fatal("LOCALS_UNBOOTED", id.String()+" initialized before core boot")
	}
	if m.records[id].Load() != nil {
		debug.Fatal("CORE_DOUBLE_INIT", id.String()+" registered twice")
	}
	if l.coreID != id {
		debug.Fatal("CORE_ID_MISMATCH", "init of "+id.String()+" on "+l.coreID.String())
	}

	p := &Locals{coreID: id, cpu: l.cpu}
	p.addr = uintptr(unsafe.Pointer(p))
	p.disableCount.Store(l.disableCount.Load())
	if !m.records[id].CompareAndSwap(nil, p) {
		debug.Fatal("CORE_DOUBLE_INIT", id.String()+" registered twice")
	}

	// From here on this core never touches the boot record again.
	l.cpu.SetGSBase(unsafe.Pointer(p))
	m.boot.bootLock.Add(1)
	m.ready.Add(1)
	debug.DropMessage("corelocal", id.String()+" ready")
	return p
}

// ============================================================================
// LOOKUP
// ============================================================================

// Locals returns the calling core's record: the boot record between
// CoreBoot and Init, the permanent one after. Nil off-core.
func (m *Machine) Locals() *Locals {
	c := m.cpus.Current()
	if c == nil {
		return nil
	}
	return (*Locals)(c.GSBase())
}

func (m *Machine) mustLocals() *Locals {
	l := m.Locals()
	if l == nil {
		debug.Fatal("LOCALS_UNBOOTED", "core-local access from a thread that is not a booted core")
	}
	return l
}

// LocalsOf returns the permanent record of core id, or nil.
func (m *Machine) LocalsOf(id types.CoreID) *Locals { return m.records[id].Load() }

// CPUOf returns the register file core id runs on, or nil.
func (m *Machine) CPUOf(id types.CoreID) *cpu.CPU { return m.cpus.Slot(int(id)) }

// StartedCores counts cores that entered CoreBoot.
func (m *Machine) StartedCores() int {
	n := int(m.nextID.Load())
	if n > constants.MaxCores {
		n = constants.MaxCores
	}
	return n
}

// ReadyCores counts cores that completed Init.
func (m *Machine) ReadyCores() int { return int(m.ready.Load()) }

// InterruptState is the provider locks use on this machine.
func (m *Machine) InterruptState() lockcell.InterruptState { return CoreInterruptState{m: m} }

// Halt makes cores still waiting for the boot handshake give up.
func (m *Machine) Halt() { m.halted.Store(true) }

// Retire detaches the calling core from its thread. The record stays.
func (m *Machine) Retire() { m.cpus.Detach() }

// OnFault installs a hook that runs on a faulting core before it retires.
func (m *Machine) OnFault(fn func(*CoreFault)) { m.onFault.Store(&fn) }
