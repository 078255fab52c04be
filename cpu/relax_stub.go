// relax_stub.go - no-op spin hint where no PAUSE/YIELD is reachable
// (other architectures, cgo disabled, or the noasm tag).

//go:build (!amd64 && !arm64) || !cgo || noasm

package cpu

//go:nosplit
func cpuRelax() {}
