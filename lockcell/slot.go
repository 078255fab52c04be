package lockcell

import "ticketcore/debug"

// Slot is storage that exists before its value does. It is written exactly
// once and read only after that.
type Slot[T any] struct {
	value T
	init  bool
}

// Init stores v. Initializing twice is fatal.
func (s *Slot[T]) Init(v T) {
	if s.init {
		debug.Fatal("SLOT_REINIT", "slot initialized twice")
	}
	s.value = v
	s.init = true
}

// IsInit reports whether Init has run.
func (s *Slot[T]) IsInit() bool { return s.init }

// Value returns the stored value. Reading an empty slot is fatal.
func (s *Slot[T]) Value() *T {
	if !s.init {
		debug.Fatal("UNWRAP_UNINIT", "access to an uninitialized slot")
	}
	return &s.value
}

// take empties the slot and hands back what it held.
func (s *Slot[T]) take() (T, bool) {
	v, ok := s.value, s.init
	var zero T
	s.value, s.init = zero, false
	return v, ok
}
