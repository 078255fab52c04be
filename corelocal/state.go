package corelocal

import (
	"ticketcore/lockcell"
	"ticketcore/types"
)

// CoreInterruptState answers interrupt-state questions for whichever core
// calls it. It is stateless; all state lives in the caller's Locals.
type CoreInterruptState struct {
	m *Machine
}

var _ lockcell.InterruptState = CoreInterruptState{}

// InInterrupt reports whether the calling core is servicing an interrupt.
func (s CoreInterruptState) InInterrupt() bool { return s.m.mustLocals().InInterrupt() }

// InException reports whether the calling core is handling an exception.
func (s CoreInterruptState) InException() bool { return s.m.mustLocals().InException() }

// CoreID is the calling core's id.
func (s CoreInterruptState) CoreID() types.CoreID { return s.m.mustLocals().CoreID() }

// EnterCriticalSection masks interrupts on the calling core when asked to.
func (s CoreInterruptState) EnterCriticalSection(disableInterrupts bool) {
	if disableInterrupts {
		s.m.mustLocals().DisableInterrupts()
	}
}

// ExitCriticalSection undoes a masking EnterCriticalSection. IF comes back
// only at the outermost exit and never inside a handler.
func (s CoreInterruptState) ExitCriticalSection(enableInterrupts bool) {
	if enableInterrupts {
		s.m.mustLocals().EnableInterrupts()
	}
}
