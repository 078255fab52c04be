package cpu

import (
	"runtime"

	"ticketcore/constants"
)

// Relax is the spin-wait hint (PAUSE on amd64, YIELD on arm64).
//
//go:nosplit
func Relax() { cpuRelax() }

// Spin is one iteration of a busy-wait. Every SpinBudget iterations it
// yields the P so a lock holder sharing it can run.
func Spin(spins *int) {
	cpuRelax()
	*spins++
	if *spins%constants.SpinBudget == 0 {
		runtime.Gosched()
	}
}
