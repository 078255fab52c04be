// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🎛️ MACHINE CONTROL FLAGS
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Stop / hot coordination for simulated cores
//
// Description:
//   Two process-wide words polled by spinning cores and the trace collector. stop ends every
//   loop that watches it; hot keeps pollers in their tight loop while lock traffic is flowing
//   and decays after a cooldown without activity.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package control

import (
	"sync/atomic"
	"time"

	"ticketcore/constants"
)

var (
	hot  uint32 // 1 while lock traffic is recent
	stop uint32 // 1 once shutdown was requested

	lastHot    atomic.Int64 // unix nanos of the last activity
	cooldownNs = int64(constants.Cooldown)
)

// SignalActivity marks the machine hot.
func SignalActivity() {
	lastHot.Store(time.Now().UnixNano())
	atomic.StoreUint32(&hot, 1)
}

// PollCooldown drops the hot flag once no activity arrived for the cooldown.
// Only one poller should call it.
func PollCooldown() {
	if atomic.LoadUint32(&hot) == 1 && time.Now().UnixNano()-lastHot.Load() > cooldownNs {
		atomic.StoreUint32(&hot, 0)
	}
}

// Shutdown asks every loop watching the stop flag to return.
func Shutdown() {
	atomic.StoreUint32(&stop, 1)
}

// Stopping reports whether Shutdown ran.
func Stopping() bool { return atomic.LoadUint32(&stop) != 0 }

// Hot reports whether activity was signalled within the cooldown.
func Hot() bool { return atomic.LoadUint32(&hot) != 0 }

// Flags exposes the raw words for loops that poll them directly, such as
// cpu.Halt. Read them atomically.
func Flags() (stopFlag *uint32, hotFlag *uint32) {
	return &stop, &hot
}

// Reset clears both flags.
func Reset() {
	atomic.StoreUint32(&stop, 0)
	atomic.StoreUint32(&hot, 0)
	lastHot.Store(0)
}
