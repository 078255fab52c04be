package corelocal

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ticketcore/debug"
	"ticketcore/types"
)

// ============================================================================
// CLUSTER LAUNCH
// ============================================================================

// ErrTimeout is returned by Cluster.Wait when cores are still running.
var ErrTimeout = errors.New("corelocal: cores still running")

// CoreFault reports how a core died. Core is -1 when the core failed before
// it was assigned an id.
type CoreFault struct {
	Core  int
	Fault *debug.Fault
	Value any // the panic value when it was not a Fault
}

func (f *CoreFault) Error() string {
	if f.Fault != nil {
		return fmt.Sprintf("core %d: %v", f.Core, f.Fault)
	}
	return fmt.Sprintf("core %d: panic: %v", f.Core, f.Value)
}

func (f *CoreFault) Unwrap() error {
	if f.Fault == nil {
		return nil
	}
	return f.Fault
}

// Cluster is a set of cores started by Launch.
type Cluster struct {
	m    *Machine
	g    errgroup.Group
	done chan struct{}
	err  error
}

// Launch starts n cores. Each runs CoreBoot, then setup (if non-nil) while
// still holding the boot handshake on the boot record, then Init, then run
// on its permanent record. A fault stops only the core that raised it.
func (m *Machine) Launch(n int, setup func(types.CoreID), run func(*Locals)) *Cluster {
	c := &Cluster{m: m, done: make(chan struct{})}
	for i := 0; i < n; i++ {
		c.g.Go(func() error { return m.runCore(setup, run) })
	}
	go func() {
		c.err = c.g.Wait()
		close(c.done)
	}()
	return c
}

func (m *Machine) runCore(setup func(types.CoreID), run func(*Locals)) (err error) {
	core := -1
	booted := false
	defer func() {
		r := recover()
		if r != nil {
			l := m.Locals()
			// CoreBoot faults after writing the id into the boot record.
			if core < 0 && l != nil {
				core = int(l.CoreID())
			}
			// Cores still queued behind an unfinished boot would wait forever.
			if !booted {
				m.Halt()
			}
			f := &CoreFault{Core: core, Value: r}
			f.Fault, _ = debug.AsFault(r)
			if hook := m.onFault.Load(); hook != nil && l != nil {
				func() {
					defer func() { _ = recover() }()
					(*hook)(f)
				}()
			}
			err = f
		}
		m.Retire()
	}()

	id := m.CoreBoot()
	core = int(id)
	if setup != nil {
		setup(id)
	}
	l := m.Init(id)
	booted = true
	run(l)
	return nil
}

// Done is closed once every core has returned or faulted.
func (c *Cluster) Done() <-chan struct{} { return c.done }

// Wait blocks until every core finished or timeout passed. It returns the
// first core fault, ErrTimeout, or nil. On timeout the machine is halted.
func (c *Cluster) Wait(timeout time.Duration) error {
	select {
	case <-c.done:
		return c.err
	case <-time.After(timeout):
		c.m.Halt()
		return ErrTimeout
	}
}

// Machine is the machine the cluster runs on.
func (c *Cluster) Machine() *Machine { return c.m }
