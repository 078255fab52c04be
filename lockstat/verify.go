package lockstat

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"ticketcore/evring"
	"ticketcore/types"
)

// ErrIncomplete is wrapped by CheckFIFO when events were dropped.
var ErrIncomplete = errors.New("lockstat: trace incomplete")

// Digest is the sha3-256 of the event stream in stamp order.
func (r *Recorder) Digest() [32]byte {
	return digest(r.Events())
}

func digest(events []Event) [32]byte {
	h := sha3.New256()
	var b [evring.RecordSize]byte
	for i := range events {
		events[i].encode(&b)
		h.Write(b[:])
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// CheckFIFO verifies that lock granted tickets in issue order with at most
// one holder at a time.
func (r *Recorder) CheckFIFO(lock types.LockID) error {
	if d := r.Dropped(); d > 0 {
		return fmt.Errorf("lock %d: %d events dropped: %w", lock, d, ErrIncomplete)
	}
	return checkFIFO(r.Events(), lock)
}

func checkFIFO(events []Event, lock types.LockID) error {
	var (
		first   = true
		next    uint64
		held    bool
		holding uint64
	)
	for _, e := range events {
		if e.Lock != lock {
			continue
		}
		switch e.Kind {
		case Granted:
			if held {
				return fmt.Errorf("lock %d: ticket %d granted while %d held (stamp %d)", lock, e.Ticket, holding, e.Stamp)
			}
			if !first && e.Ticket != next {
				return fmt.Errorf("lock %d: granted ticket %d, want %d (stamp %d)", lock, e.Ticket, next, e.Stamp)
			}
			first = false
			held = true
			holding = e.Ticket
			next = e.Ticket + 1
		case Released:
			if !held || e.Ticket != holding {
				return fmt.Errorf("lock %d: release of ticket %d not held (stamp %d)", lock, e.Ticket, e.Stamp)
			}
			held = false
		}
	}
	return nil
}
