// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🖨️ KERNEL CONSOLE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Shared line sink for every core
//
// Description:
//   The writer sits in a non-preemptable unwrap cell: it is installed exactly once after boot,
//   every line is written with interrupts masked on the printing core, and interrupt handlers
//   may print through TryPrintf without risking a self-deadlock. A fatal path that dies while
//   printing can force the lock open so the final message still gets out.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package console

import (
	"fmt"
	"io"

	"ticketcore/debug"
	"ticketcore/lockcell"
	"ticketcore/ticketlock"
	"ticketcore/types"
)

type sink struct {
	w     io.Writer
	lines uint64
	buf   []byte
}

func (s *sink) printf(format string, args []any) {
	s.buf = fmt.Appendf(s.buf[:0], format, args...)
	if n := len(s.buf); n == 0 || s.buf[n-1] != '\n' {
		s.buf = append(s.buf, '\n')
	}
	if _, err := s.w.Write(s.buf); err != nil {
		debug.DropError("console", err)
		return
	}
	s.lines++
}

// Close closes the underlying writer when it is closable.
func (s *sink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Console serializes whole lines from every core onto one writer.
type Console struct {
	cell *lockcell.Unwrap[sink]
}

// New returns a console that must be Init'ed before use.
func New(state lockcell.InterruptState) *Console {
	return &Console{cell: ticketlock.NewUnwrapNonPreemptableUninit[sink](state)}
}

// Init installs w. A second Init is fatal.
func (c *Console) Init(w io.Writer) {
	g := c.cell.LockUninit()
	defer g.Release()
	g.Get().Init(sink{w: w})
}

// Ready reports whether Init ran.
func (c *Console) Ready() bool {
	g := c.cell.LockUninit()
	defer g.Release()
	return g.Get().IsInit()
}

// Printf writes one line, waiting for the console if another core holds it.
func (c *Console) Printf(format string, args ...any) {
	g := c.cell.Lock()
	defer g.Release()
	g.Get().printf(format, args)
}

// TryPrintf writes one line only if the console is free right now.
func (c *Console) TryPrintf(format string, args ...any) bool {
	g, ok := c.cell.TryLock()
	if !ok {
		return false
	}
	defer g.Release()
	g.Get().printf(format, args)
	return true
}

// Lines counts lines written since Init.
func (c *Console) Lines() uint64 {
	g := c.cell.Lock()
	defer g.Release()
	return g.Get().lines
}

// owned is the part of a ticket lock that names its holder.
type owned interface {
	Owner() (types.CoreID, bool)
}

// ForceUnlock opens the console if core died while holding it and reports
// whether it did. A console held by any other core is left alone: that core
// is still printing. Fatal paths only, on the faulting core.
func (c *Console) ForceUnlock(core types.CoreID) bool {
	o, ok := c.cell.Inner().(owned)
	if !ok {
		return false
	}
	if holder, held := o.Owner(); !held || holder != core {
		return false
	}
	c.cell.ForceUnlock()
	return true
}

// Close closes the writer and leaves the console uninitialized.
func (c *Console) Close() error {
	return c.cell.Drop()
}
