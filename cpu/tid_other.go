//go:build !linux

package cpu

import "runtime"

// threadID falls back to the goroutine id. A simulated core never leaves its
// goroutine, so the goroutine id names the core's thread as well.
func threadID() uint32 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// "goroutine 123 [running]:"
	const prefix = len("goroutine ")
	var id uint32
	for i := prefix; i < n; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint32(c-'0')
	}
	return id
}
