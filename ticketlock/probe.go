package ticketlock

import "ticketcore/types"

// Probe observes ticket traffic. Calls arrive on the acting core while the
// lock's critical section is entered, so implementations must not take
// locks or block.
type Probe interface {
	TicketIssued(core types.CoreID, ticket uint64)
	TicketGranted(core types.CoreID, ticket uint64, spins int)
	TicketReleased(core types.CoreID, ticket uint64)
}
