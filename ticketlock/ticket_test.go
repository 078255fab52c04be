package ticketlock

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticketcore/corelocal"
	"ticketcore/debug"
	"ticketcore/lockcell"
	"ticketcore/types"
	"ticketcore/utils"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

const testTimeout = 20 * time.Second

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func quiet(t *testing.T) {
	t.Helper()
	utils.SetWarningOutput(discard{})
	t.Cleanup(func() { utils.SetWarningOutput(nil) })
}

// run boots n cores on a fresh machine and executes body on every core.
func run(t *testing.T, n int, body func(m *corelocal.Machine, l *corelocal.Locals)) error {
	t.Helper()
	m := corelocal.NewMachine()
	return m.Launch(n, nil, func(l *corelocal.Locals) { body(m, l) }).Wait(testTimeout)
}

func wantFault(t *testing.T, err error, code string) {
	t.Helper()
	var f *debug.Fault
	if !errors.As(err, &f) {
		t.Fatalf("want fault %s, got %v", code, err)
	}
	if f.Code != code {
		t.Fatalf("fault %s, want %s", f.Code, code)
	}
}

// recordingProbe keeps every ticket event in arrival order.
type recordingProbe struct {
	mu       sync.Mutex
	issued   []uint64
	granted  []uint64
	released []uint64
}

func (p *recordingProbe) TicketIssued(_ types.CoreID, ticket uint64) {
	p.mu.Lock()
	p.issued = append(p.issued, ticket)
	p.mu.Unlock()
}

func (p *recordingProbe) TicketGranted(_ types.CoreID, ticket uint64, _ int) {
	p.mu.Lock()
	p.granted = append(p.granted, ticket)
	p.mu.Unlock()
}

func (p *recordingProbe) TicketReleased(_ types.CoreID, ticket uint64) {
	p.mu.Lock()
	p.released = append(p.released, ticket)
	p.mu.Unlock()
}

// ============================================================================
// MUTUAL EXCLUSION AND FAIRNESS
// ============================================================================

func TestTicketLock_MutualExclusion(t *testing.T) {
	quiet(t)
	const cores, rounds = 8, 2000
	m := corelocal.NewMachine()
	lock := New[int](m.InterruptState(), 0)
	var inside, overlap atomic.Int32

	err := m.Launch(cores, nil, func(*corelocal.Locals) {
		for i := 0; i < rounds; i++ {
			g := lock.Lock()
			if inside.Add(1) != 1 {
				overlap.Add(1)
			}
			*g.Get()++
			inside.Add(-1)
			g.Release()
		}
	}).Wait(testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if overlap.Load() != 0 {
		t.Fatalf("%d overlapping holders", overlap.Load())
	}
	if *lock.Data() != cores*rounds {
		t.Fatalf("counter = %d, want %d", *lock.Data(), cores*rounds)
	}
	if !lock.IsUnlocked() || lock.CurrentTicket() != cores*rounds {
		t.Fatalf("final tickets c=%d n=%d", lock.CurrentTicket(), lock.NextTicket())
	}
}

func TestTicketLock_FIFOGrants(t *testing.T) {
	quiet(t)
	const cores, rounds = 6, 500
	m := corelocal.NewMachine()
	lock := DefaultNonPreemptable[int](m.InterruptState())
	probe := &recordingProbe{}
	lock.SetProbe(probe)

	err := m.Launch(cores, nil, func(*corelocal.Locals) {
		for i := 0; i < rounds; i++ {
			lockcell.With[int](lock, func(v *int) { *v++ })
		}
	}).Wait(testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if len(probe.granted) != cores*rounds || len(probe.issued) != cores*rounds {
		t.Fatalf("granted %d issued %d", len(probe.granted), len(probe.issued))
	}
	for i, ticket := range probe.granted {
		if ticket != uint64(i) {
			t.Fatalf("grant %d served ticket %d", i, ticket)
		}
	}
	for i, ticket := range probe.released {
		if ticket != uint64(i) {
			t.Fatalf("release %d freed ticket %d", i, ticket)
		}
	}
}

func TestTicketLock_TwoCoreHandoff(t *testing.T) {
	quiet(t)
	m := corelocal.NewMachine()
	lock := New[int](m.InterruptState(), 0)
	var aHolds atomic.Bool
	var bTicket atomic.Uint64
	bTicket.Store(^uint64(0))

	err := m.Launch(2, nil, func(l *corelocal.Locals) {
		if l.CoreID() == 0 {
			g := lock.Lock()
			aHolds.Store(true)
			time.Sleep(20 * time.Millisecond)
			*g.Get() = 1
			g.Release()
			return
		}
		for !aHolds.Load() {
			time.Sleep(time.Millisecond)
		}
		g := lock.Lock()
		bTicket.Store(lock.CurrentTicket())
		*g.Get()++
		g.Release()
	}).Wait(testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if *lock.Data() != 2 {
		t.Fatalf("shared value = %d, want 2", *lock.Data())
	}
	if bTicket.Load() != 1 {
		t.Fatalf("second core served at ticket %d, want 1", bTicket.Load())
	}
}

// ============================================================================
// INTERRUPT INTERPLAY
// ============================================================================

func TestTicketLock_NonPreemptableMasksInterrupts(t *testing.T) {
	quiet(t)
	var held, after atomic.Bool
	var heldCount, afterCount atomic.Int64
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := DefaultNonPreemptable[int](m.InterruptState())
		l.EnableInterrupts()

		outer := lock.Lock()
		inner := New[int](m.InterruptState(), 0).Lock()
		held.Store(l.InterruptsEnabled())
		heldCount.Store(l.DisableCount())
		inner.Release()
		outer.Release()
		after.Store(l.InterruptsEnabled())
		afterCount.Store(l.DisableCount())
	})
	if err != nil {
		t.Fatal(err)
	}
	if held.Load() || heldCount.Load() != 1 {
		t.Errorf("while held: IF=%v count=%d", held.Load(), heldCount.Load())
	}
	if !after.Load() || afterCount.Load() != 0 {
		t.Errorf("after release: IF=%v count=%d", after.Load(), afterCount.Load())
	}
}

func TestTicketLock_PendingInterruptDeliveredAtRelease(t *testing.T) {
	quiet(t)
	var whileHeld, atRelease atomic.Int32
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		var hits int32
		l.CPU().SetDeliver(func(uint8) { hits++ })
		l.EnableInterrupts()

		lock := DefaultNonPreemptable[int](m.InterruptState())
		g := lock.Lock()
		l.CPU().Raise(32)
		l.CPU().Poll()
		whileHeld.Store(hits)
		g.Release()
		atRelease.Store(hits)
	})
	if err != nil {
		t.Fatal(err)
	}
	if whileHeld.Load() != 0 || atRelease.Load() != 1 {
		t.Fatalf("deliveries while held=%d at release=%d", whileHeld.Load(), atRelease.Load())
	}
}

func TestTicketLock_PreemptableInInterruptIsFatal(t *testing.T) {
	quiet(t)
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		np := DefaultNonPreemptable[int](m.InterruptState())
		g := l.IncInterrupt()
		np.Lock().Release() // legal from a handler
		New[int](m.InterruptState(), 0).Lock()
		g.Release()
	})
	wantFault(t, err, "LOCK_IN_INTERRUPT")
}

// ============================================================================
// CONTRACT VIOLATIONS
// ============================================================================

func TestTicketLock_ReentrantDeadlockIsFatal(t *testing.T) {
	quiet(t)
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := Default[int](m.InterruptState())
		lock.Lock()
		lock.Lock()
	})
	wantFault(t, err, "LOCK_DEADLOCK")
}

func TestTicketLock_TryLockContended(t *testing.T) {
	quiet(t)
	m := corelocal.NewMachine()
	lock := DefaultNonPreemptable[int](m.InterruptState())
	var held, tried atomic.Bool
	var ok atomic.Bool
	var elapsed atomic.Int64
	var countBefore, countAfter atomic.Int64

	err := m.Launch(2, nil, func(l *corelocal.Locals) {
		if l.CoreID() == 0 {
			g := lock.Lock()
			held.Store(true)
			for !tried.Load() {
				time.Sleep(time.Millisecond)
			}
			g.Release()
			return
		}
		for !held.Load() {
			time.Sleep(time.Millisecond)
		}
		countBefore.Store(l.DisableCount())
		start := time.Now()
		_, got := lock.TryLock()
		elapsed.Store(int64(time.Since(start)))
		ok.Store(got)
		countAfter.Store(l.DisableCount())
		tried.Store(true)
	}).Wait(testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if ok.Load() {
		t.Fatal("TryLock succeeded on a held lock")
	}
	if time.Duration(elapsed.Load()) > 100*time.Millisecond {
		t.Fatalf("TryLock took %v", time.Duration(elapsed.Load()))
	}
	if countBefore.Load() != countAfter.Load() {
		t.Fatalf("failed TryLock leaked a critical section: %d -> %d", countBefore.Load(), countAfter.Load())
	}
}

func TestTicketLock_TryLockFree(t *testing.T) {
	quiet(t)
	var got atomic.Bool
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := New[string](m.InterruptState(), "free")
		g, ok := lock.TryLock()
		if ok {
			owner, held := lock.Owner()
			got.Store(held && owner == l.CoreID() && *g.Get() == "free")
			g.Release()
		}
	})
	if err != nil || !got.Load() {
		t.Fatalf("TryLock on a free lock: err=%v", err)
	}
}

func TestTicketLock_ReleaseFromOtherCoreIsFatal(t *testing.T) {
	quiet(t)
	m := corelocal.NewMachine()
	lock := Default[int](m.InterruptState())
	handoff := make(chan *lockcell.Guard[int], 1)
	var released atomic.Bool

	err := m.Launch(2, nil, func(l *corelocal.Locals) {
		if l.CoreID() == 0 {
			handoff <- lock.Lock()
			for !released.Load() {
				time.Sleep(time.Millisecond)
			}
			return
		}
		g := <-handoff
		defer released.Store(true)
		g.Release()
	}).Wait(testTimeout)
	wantFault(t, err, "LOCK_NOT_OWNER")
}

func TestTicketLock_ForeignGuardIsFatal(t *testing.T) {
	quiet(t)
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		a := Default[int](m.InterruptState())
		b := Default[int](m.InterruptState())
		b.Unlock(a.Lock())
	})
	wantFault(t, err, "LOCK_FOREIGN_GUARD")
}

func TestTicketLock_DoubleReleaseIsFatal(t *testing.T) {
	quiet(t)
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		g := Default[int](m.InterruptState()).Lock()
		g.Release()
		g.Release()
	})
	wantFault(t, err, "GUARD_DOUBLE_RELEASE")
}

func TestTicketLock_ForceUnlock(t *testing.T) {
	quiet(t)
	var free atomic.Bool
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := DefaultNonPreemptable[int](m.InterruptState())
		lock.Lock().Forget()
		lock.ForceUnlock()
		free.Store(lock.IsUnlocked() && l.DisableCount() == 1)
		lock.ForceUnlock()
	})
	if !free.Load() {
		t.Fatal("ForceUnlock did not free a held lock")
	}
	wantFault(t, err, "LOCK_NOT_HELD")
}

func TestTicketLock_WriteState(t *testing.T) {
	quiet(t)
	var out atomic.Value
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := Default[int](m.InterruptState())
		lock.Lock().Release()
		g := lock.Lock()
		var buf bytes.Buffer
		_ = lock.WriteState(&buf)
		g.Release()
		_ = lock.WriteState(&buf)
		out.Store(buf.String())
	})
	if err != nil {
		t.Fatal(err)
	}
	want := "[TicketLock(c: 1, n: 2, o: 0)][TicketLock(c: 2, n: 2, o: -1)]"
	if out.Load() != want {
		t.Fatalf("state %q, want %q", out.Load(), want)
	}
}

func TestTicketLock_NilStateIsFatal(t *testing.T) {
	quiet(t)
	if f := debug.Catch(func() { New[int](nil, 0) }); f == nil || f.Code != "LOCK_NO_STATE" {
		t.Fatalf("fault %v", f)
	}
}

// ============================================================================
// UNWRAP OVER TICKET LOCKS
// ============================================================================

func TestUnwrapUninit(t *testing.T) {
	quiet(t)
	var value atomic.Value
	m := corelocal.NewMachine()
	cell := NewUnwrapNonPreemptableUninit[string](m.InterruptState())
	err := m.Launch(1, nil, func(l *corelocal.Locals) {
		if f := debug.Catch(func() { cell.Lock() }); f == nil || f.Code != "UNWRAP_UNINIT" {
			panic("uninitialized access was not rejected")
		}
		if !cell.IsUnlocked() || l.DisableCount() != 1 {
			panic("rejected access left the lock or interrupts held")
		}
		g := cell.LockUninit()
		g.Get().Init("framebuffer")
		g.Release()
		lockcell.With[string](cell, func(s *string) { value.Store(*s) })
	}).Wait(testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if value.Load() != "framebuffer" || cell.IsPreemptable() {
		t.Fatalf("value %v", value.Load())
	}
}
