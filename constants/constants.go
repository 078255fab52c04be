// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go - compile-time tunables for the lock core
//
// Purpose:
//   - Core limits, spin pacing, trace sizing and interrupt vector layout.
//
// ⚠️ No runtime logic here; all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

import "time"

// ───────────────────────────── Cores ──────────────────────────────

const (
	// MaxCores bounds the per-core record table. CoreID is a uint8 and the
	// last value is kept free so a 256th boot attempt is detectable.
	MaxCores = 255

	// ThreadIndexCapacity sizes the thread -> core lookup table.
	ThreadIndexCapacity = MaxCores + 1
)

// ───────────────────────────── Spinning ──────────────────────────────

const (
	// SpinBudget is the number of failed polls between scheduler yields.
	// Simulated cores share Ps with ordinary goroutines; a holder that lost
	// its P must get it back eventually.
	SpinBudget = 224

	// HotWindow keeps the trace collector polling without relaxation after
	// the last event it saw.
	HotWindow = 5 * time.Second

	// Cooldown clears the global hot flag after this much idle time.
	Cooldown = 1 * time.Second
)

// ───────────────────────────── Tracing ──────────────────────────────

const (
	// TraceRingSize is the per-core trace ring capacity (power of two).
	TraceRingSize = 1 << 14

	// DefaultTraceDB is where the runner exports lock traces.
	DefaultTraceDB = "locktrace.db"
)

// ───────────────────────────── Interrupts ──────────────────────────────

const (
	// VectorCount is the size of the interrupt descriptor table.
	VectorCount = 256

	// PIC1Offset and PIC2Offset remap hardware IRQs past the CPU exceptions.
	PIC1Offset = 32
	PIC2Offset = PIC1Offset + 8
)
