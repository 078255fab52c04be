package ticketlock

import (
	"sync/atomic"
	"testing"
	"time"

	"ticketcore/corelocal"
	"ticketcore/lockcell"
)

// ============================================================================
// RW EXCLUSIVITY
// ============================================================================

func TestRwTicketLock_Exclusivity(t *testing.T) {
	quiet(t)
	const cores, rounds = 6, 1500
	m := corelocal.NewMachine()
	lock := NewRw[[4]int](m.InterruptState(), [4]int{})
	var readers, writers, violations atomic.Int32

	err := m.Launch(cores, nil, func(l *corelocal.Locals) {
		for i := 0; i < rounds; i++ {
			if (i+int(l.CoreID()))%5 == 0 {
				g := lock.Write()
				if writers.Add(1) != 1 || readers.Load() != 0 || lock.AccessCount() != -1 {
					violations.Add(1)
				}
				v := g.Get()
				for k := range v {
					v[k]++
				}
				writers.Add(-1)
				g.Release()
				continue
			}
			r := lock.Read()
			readers.Add(1)
			if writers.Load() != 0 || lock.AccessCount() < 1 {
				violations.Add(1)
			}
			v := r.Get()
			if v[0] != v[3] {
				violations.Add(1) // torn write observed
			}
			readers.Add(-1)
			r.Release()
		}
	}).Wait(testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if violations.Load() != 0 {
		t.Fatalf("%d exclusivity violations", violations.Load())
	}
	if !lock.IsUnlocked() {
		t.Fatalf("access count %d after all guards released", lock.AccessCount())
	}
	writes := 0
	for c := 0; c < cores; c++ {
		for i := 0; i < rounds; i++ {
			if (i+c)%5 == 0 {
				writes++
			}
		}
	}
	if lock.Data()[2] != writes {
		t.Fatalf("writes = %d, want %d", lock.Data()[2], writes)
	}
}

func TestRwTicketLock_ConcurrentReaders(t *testing.T) {
	quiet(t)
	const cores = 4
	m := corelocal.NewMachine()
	lock := NewRw[int](m.InterruptState(), 7)
	var in, peak atomic.Int32

	err := m.Launch(cores, nil, func(*corelocal.Locals) {
		lockcell.WithRead[int](lock, func(*int) {
			in.Add(1)
			deadline := time.Now().Add(2 * time.Second)
			for in.Load() < cores && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			if n := in.Load(); n > peak.Load() {
				peak.Store(n)
			}
		})
	}).Wait(testTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if peak.Load() != cores {
		t.Fatalf("peak concurrent readers %d, want %d", peak.Load(), cores)
	}
}

// ============================================================================
// INTERRUPT INTERPLAY
// ============================================================================

func TestRwTicketLock_ReadLeavesInterruptsAlone(t *testing.T) {
	quiet(t)
	var ok atomic.Bool
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := DefaultRwNonPreemptable[int](m.InterruptState())
		l.EnableInterrupts()

		r := lock.Read()
		readIF, readCount := l.InterruptsEnabled(), l.DisableCount()
		r.Release()

		w := lock.Write()
		writeIF, writeCount := l.InterruptsEnabled(), l.DisableCount()
		w.Release()

		ok.Store(readIF && readCount == 0 && !writeIF && writeCount == 1 &&
			l.InterruptsEnabled() && l.DisableCount() == 0)
	})
	if err != nil || !ok.Load() {
		t.Fatalf("interrupt state across rw guards: err=%v", err)
	}
}

func TestRwTicketLock_ReadInsideInterrupt(t *testing.T) {
	quiet(t)
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := DefaultRw[int](m.InterruptState())
		g := l.IncInterrupt()
		lock.Read().Release()
		lock.Write()
		g.Release()
	})
	wantFault(t, err, "LOCK_IN_INTERRUPT")
}

// ============================================================================
// CONTRACT VIOLATIONS
// ============================================================================

func TestRwTicketLock_UnbalancedRead(t *testing.T) {
	quiet(t)
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		DefaultRw[int](m.InterruptState()).ForceReleaseRead()
	})
	wantFault(t, err, "RW_UNBALANCED_READ")
}

func TestRwTicketLock_ForceUnlockNotWritten(t *testing.T) {
	quiet(t)
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := DefaultRw[int](m.InterruptState())
		lock.Read()
		lock.ForceUnlock()
	})
	wantFault(t, err, "RW_NOT_WRITE_LOCKED")
}

func TestRwTicketLock_WriterSelfDeadlock(t *testing.T) {
	quiet(t)
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := DefaultRw[int](m.InterruptState())
		lock.Write()
		lock.Write()
	})
	wantFault(t, err, "LOCK_DEADLOCK")

	err = run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := DefaultRw[int](m.InterruptState())
		lock.Write()
		lock.Read()
	})
	wantFault(t, err, "LOCK_DEADLOCK")
}

func TestRwTicketLock_TryPaths(t *testing.T) {
	quiet(t)
	var ok atomic.Bool
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		lock := DefaultRw[int](m.InterruptState())
		r, _ := lock.TryRead()
		_, wOK := lock.TryLock()
		open := lock.OpenToRead()
		r.Release()

		w, wOK2 := lock.TryLock()
		_, rOK := lock.TryRead()
		closed := !lock.OpenToRead()
		writer, writing := lock.Writer()
		w.Release()

		ok.Store(!wOK && open && wOK2 && !rOK && closed && writing && writer == l.CoreID() && lock.IsUnlocked())
	})
	if err != nil || !ok.Load() {
		t.Fatalf("try paths: err=%v", err)
	}
}

func TestRwUnwrapUninit(t *testing.T) {
	quiet(t)
	var sum atomic.Int64
	err := run(t, 1, func(m *corelocal.Machine, l *corelocal.Locals) {
		cell := NewRwUnwrapUninit[[]int](m.InterruptState())
		g := cell.LockUninit()
		g.Get().Init([]int{1, 2, 3})
		g.Release()

		a, b := cell.Read(), cell.Read()
		for _, v := range *a.Get() {
			sum.Add(int64(v))
		}
		b.Release()
		a.Release()

		w := cell.Write()
		*w.Get() = append(*w.Get(), 4)
		w.Release()
		lockcell.WithRead[[]int](cell, func(v *[]int) { sum.Add(int64(len(*v))) })
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.Load() != 10 {
		t.Fatalf("sum = %d, want 10", sum.Load())
	}
}
