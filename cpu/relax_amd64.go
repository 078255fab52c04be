// ════════════════════════════════════════════════════════════════════════════════════════════════
// CPU Relaxation - AMD64 Architecture
// ────────────────────────────────────────────────────────────────────────────────────────────────
// PAUSE tells the core it is in a spin-wait: it frees pipeline resources for the sibling
// hyperthread and avoids the memory-order violation flush when the awaited line changes.
// ════════════════════════════════════════════════════════════════════════════════════════════════

//go:build amd64 && cgo && !noasm

package cpu

/*
static inline void cpu_pause() {
    __asm__ __volatile__("pause" ::: "memory");
}
*/
import "C"

//go:nosplit
func cpuRelax() {
	C.cpu_pause()
}
