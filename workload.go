package main

import (
	"encoding/hex"
	"errors"
	"io"
	"time"

	"ticketcore/console"
	"ticketcore/constants"
	"ticketcore/control"
	"ticketcore/corelocal"
	"ticketcore/debug"
	"ticketcore/interrupts"
	"ticketcore/lockcell"
	"ticketcore/lockstat"
	"ticketcore/ticketlock"
	"ticketcore/types"
	"ticketcore/utils"
)

// Lock ids in the trace.
const (
	counterLockID types.LockID = iota + 1
	tableLockID
)

// table is the RW workload's shared record. Writers bump every slot so a
// reader that sees unequal slots saw a torn write.
type table struct {
	writes uint64
	slots  [8]uint64
}

// Report summarizes one run.
type Report struct {
	Cores      int    `json:"cores"`
	Rounds     int    `json:"rounds"`
	Counter    uint64 `json:"counter"`
	Expected   uint64 `json:"expected"`
	RwWrites   uint64 `json:"rw_writes"`
	RwReads    uint64 `json:"rw_reads"`
	TimerTicks uint64 `json:"timer_ticks"`
	Lines      uint64 `json:"console_lines"`
	Events     int    `json:"trace_events"`
	Dropped    uint64 `json:"trace_dropped"`
	FIFO       bool   `json:"fifo"`
	Digest     string `json:"digest"`
	RunID      int64  `json:"run_id,omitempty"`
	Stopped    bool   `json:"stopped"`
	ElapsedMs  int64  `json:"elapsed_ms"`
}

// ErrCountMismatch reports a lost or doubled counter update.
var ErrCountMismatch = errors.New("counter mismatch")

// execute boots cfg.Cores cores, runs the lock workloads under timer
// interrupts and verifies the result. Console lines go to out.
func execute(cfg Config, out io.Writer) (Report, error) {
	start := time.Now()
	rep := Report{Cores: cfg.Cores, Rounds: cfg.Rounds}

	m := corelocal.NewMachine()
	state := m.InterruptState()
	cons := console.New(state)
	idt := interrupts.New(m)

	// One extra ring for the shutdown core.
	rec := lockstat.New(cfg.Cores + 1)
	counter := ticketlock.Default[uint64](state)
	counter.SetProbe(rec.Probe(counterLockID))
	shared := ticketlock.DefaultRw[table](state)
	ticks := ticketlock.DefaultNonPreemptable[[constants.MaxCores]uint64](state)

	var reads [constants.MaxCores]uint64

	idt.SetHandler(interrupts.Timer, func(f *interrupts.Frame) {
		var n uint64
		lockcell.With[[constants.MaxCores]uint64](ticks, func(t *[constants.MaxCores]uint64) {
			t[f.Core]++
			n = t[f.Core]
		})
		if n%1000 == 0 {
			cons.TryPrintf("%s: %d timer ticks", f.Core, n)
		}
	})

	m.OnFault(func(f *corelocal.CoreFault) {
		debug.DropError("FAULT", f)
		if f.Core >= 0 {
			cons.ForceUnlock(types.CoreID(f.Core))
		}
		cons.TryPrintf("core %d: fatal: %v", f.Core, f)
	})

	if err := rec.Start(cfg.CollectorCore); err != nil {
		return rep, err
	}

	setup := func(id types.CoreID) {
		if id.IsBSP() {
			cons.Init(out)
		}
	}

	run := func(l *corelocal.Locals) {
		id := l.CoreID()
		idt.Init()
		cons.Printf("%s online", id)
		reader := int(id) < cfg.Readers

		for i := 0; i < cfg.Rounds; i++ {
			if control.Stopping() {
				return
			}
			lockcell.With[uint64](counter, func(v *uint64) { *v++ })

			if reader {
				lockcell.WithRead[table](shared, func(t *table) {
					for _, s := range t.slots {
						debug.Assert(s == t.slots[0], "RW_TORN_READ", id.String()+" saw a partial write")
					}
				})
				reads[id]++
			} else if i%8 == 0 {
				lockcell.With[table](shared, func(t *table) {
					t.writes++
					for j := range t.slots {
						t.slots[j]++
					}
				})
			}

			if i%64 == 0 {
				control.SignalActivity()
			}
			l.CPU().Poll()
		}
		cons.Printf("%s done", id)
	}

	stopTimer := startTimer(idt, cfg.TimerPeriodMs)
	err := m.Launch(cfg.Cores, setup, run).Wait(time.Duration(cfg.TimeoutS) * time.Second)
	stopTimer()
	if err != nil {
		rec.Stop()
		return rep, err
	}

	// A last core reads the shared state under the locks and closes the console.
	err = m.Launch(1, nil, func(l *corelocal.Locals) {
		lockcell.With[uint64](counter, func(v *uint64) { rep.Counter = *v })
		lockcell.WithRead[table](shared, func(t *table) { rep.RwWrites = t.writes })
		lockcell.With[[constants.MaxCores]uint64](ticks, func(t *[constants.MaxCores]uint64) {
			for _, n := range t {
				rep.TimerTicks += n
			}
		})
		rep.Lines = cons.Lines()
		if err := cons.Close(); err != nil {
			debug.DropError("console close", err)
		}
	}).Wait(time.Duration(cfg.TimeoutS) * time.Second)
	rec.Stop()
	if err != nil {
		return rep, err
	}

	for _, n := range reads {
		rep.RwReads += n
	}
	rep.Stopped = control.Stopping()
	rep.Expected = uint64(cfg.Cores) * uint64(cfg.Rounds)
	rep.Events = len(rec.Events())
	rep.Dropped = rec.Dropped()
	sum := rec.Digest()
	rep.Digest = hex.EncodeToString(sum[:])

	switch err := rec.CheckFIFO(counterLockID); {
	case err == nil:
		rep.FIFO = true
	case errors.Is(err, lockstat.ErrIncomplete):
		debug.DropError("TRACE", err)
	default:
		rep.ElapsedMs = time.Since(start).Milliseconds()
		return rep, err
	}

	if cfg.TraceDB != "" {
		id, err := rec.Export(cfg.TraceDB)
		if err != nil {
			debug.DropError("EXPORT", err)
		} else {
			rep.RunID = id
			debug.DropMessage("EXPORT", "run "+utils.Itoa(int(id))+" written to "+cfg.TraceDB)
		}
	}

	rep.ElapsedMs = time.Since(start).Milliseconds()
	if !rep.Stopped && rep.Counter != rep.Expected {
		return rep, ErrCountMismatch
	}
	return rep, nil
}

// startTimer broadcasts the timer vector every period until the returned
// func is called. A zero period disables it.
func startTimer(idt *interrupts.IDT, periodMs int) (stop func()) {
	if periodMs == 0 {
		return func() {}
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(time.Duration(periodMs) * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				if control.Stopping() {
					return
				}
				idt.Broadcast(interrupts.Timer)
			}
		}
	}()
	return func() {
		close(quit)
		<-done
	}
}
