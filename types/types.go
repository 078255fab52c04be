package types

import "ticketcore/utils"

// ============================================================================
// CORE IDENTITY
// ============================================================================

// CoreID identifies a booted core. Ids are handed out sequentially at boot
// starting from 0 and never change afterwards.
type CoreID uint8

// BSP is the bootstrap core.
const BSP CoreID = 0

// IsBSP reports whether c is the bootstrap core.
//
//go:nosplit
func (c CoreID) IsBSP() bool { return c == BSP }

func (c CoreID) String() string { return "core-" + utils.Utoa(uint64(c)) }

// ============================================================================
// LOCK IDENTITY
// ============================================================================

// LockID tags a lock in trace records. 0 means untraced.
type LockID uint16
