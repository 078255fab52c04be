// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: utils.go - allocation-light helpers for cold-path diagnostics
//
// Purpose:
//   - Integer formatting without fmt, so fatal and trace paths stay cheap.
//   - Warning sink used by the debug package.
//   - Hash mixer for trace digests and table keys.
// ─────────────────────────────────────────────────────────────────────────────

package utils

import (
	"io"
	"os"
	"sync/atomic"
	"unsafe"
)

///////////////////////////////////////////////////////////////////////////////
// Conversion Utilities
///////////////////////////////////////////////////////////////////////////////

// Utoa formats an unsigned integer in base 10.
func Utoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Itoa formats a signed integer in base 10.
func Itoa(n int) string {
	if n >= 0 {
		return Utoa(uint64(n))
	}
	return "-" + Utoa(uint64(-int64(n)))
}

///////////////////////////////////////////////////////////////////////////////
// Warning Sink
///////////////////////////////////////////////////////////////////////////////

type sinkBox struct{ w io.Writer }

var sink atomic.Pointer[sinkBox]

// SetWarningOutput redirects PrintWarning. A nil writer restores stderr.
func SetWarningOutput(w io.Writer) {
	if w == nil {
		sink.Store(nil)
		return
	}
	sink.Store(&sinkBox{w: w})
}

// PrintWarning writes msg verbatim to the warning sink (stderr by default).
// Write errors are ignored: there is nowhere left to report them.
func PrintWarning(msg string) {
	b := unsafe.Slice(unsafe.StringData(msg), len(msg))
	if s := sink.Load(); s != nil {
		_, _ = s.w.Write(b)
		return
	}
	_, _ = os.Stderr.Write(b)
}

///////////////////////////////////////////////////////////////////////////////
// Hash & Mixers
///////////////////////////////////////////////////////////////////////////////

// Mix64 applies a Murmur3-style avalanche to a 64-bit value.
//
//go:nosplit
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
