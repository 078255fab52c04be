package lockstat

import (
	"encoding/binary"

	"ticketcore/evring"
	"ticketcore/types"
)

// Kind is the lock transition an event records.
type Kind uint8

const (
	Issued Kind = iota + 1
	Granted
	Released
)

func (k Kind) String() string {
	switch k {
	case Issued:
		return "issued"
	case Granted:
		return "granted"
	case Released:
		return "released"
	}
	return "unknown"
}

// Event is one ticket transition. Stamp orders events machine-wide.
//
// Wire layout (24 bytes, little endian):
//
//	[0:8]   Ticket
//	[8:16]  Stamp
//	[16:20] Spins
//	[20:22] Lock
//	[22]    Core
//	[23]    Kind
type Event struct {
	Ticket uint64
	Stamp  uint64
	Spins  uint32
	Lock   types.LockID
	Core   types.CoreID
	Kind   Kind
}

func (e *Event) encode(b *[evring.RecordSize]byte) {
	binary.LittleEndian.PutUint64(b[0:8], e.Ticket)
	binary.LittleEndian.PutUint64(b[8:16], e.Stamp)
	binary.LittleEndian.PutUint32(b[16:20], e.Spins)
	binary.LittleEndian.PutUint16(b[20:22], uint16(e.Lock))
	b[22] = byte(e.Core)
	b[23] = byte(e.Kind)
}

func decode(b *[evring.RecordSize]byte) Event {
	return Event{
		Ticket: binary.LittleEndian.Uint64(b[0:8]),
		Stamp:  binary.LittleEndian.Uint64(b[8:16]),
		Spins:  binary.LittleEndian.Uint32(b[16:20]),
		Lock:   types.LockID(binary.LittleEndian.Uint16(b[20:22])),
		Core:   types.CoreID(b[22]),
		Kind:   Kind(b[23]),
	}
}
