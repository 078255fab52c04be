package ticketlock

import "ticketcore/lockcell"

// NewUnwrapUninit returns an empty unwrap cell over a preemptable ticket lock.
func NewUnwrapUninit[T any](state lockcell.InterruptState) *lockcell.Unwrap[T] {
	return lockcell.NewUnwrap[T](Default[lockcell.Slot[T]](state))
}

// NewUnwrapNonPreemptableUninit returns an empty unwrap cell over a
// non-preemptable ticket lock, for values used from interrupt handlers.
func NewUnwrapNonPreemptableUninit[T any](state lockcell.InterruptState) *lockcell.Unwrap[T] {
	return lockcell.NewUnwrap[T](DefaultNonPreemptable[lockcell.Slot[T]](state))
}

// NewRwUnwrapUninit returns an empty unwrap cell over an rw ticket lock.
func NewRwUnwrapUninit[T any](state lockcell.InterruptState) *lockcell.Unwrap[T] {
	return lockcell.NewUnwrap[T](DefaultRw[lockcell.Slot[T]](state))
}
