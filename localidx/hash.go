// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ ROBIN HOOD THREAD INDEX
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Thread id -> core slot lookup
//
// Description:
//   Fixed-capacity Robin Hood hash from uint32 keys to uint32 values. Readers never lock:
//   writers Clone the table, mutate the copy and publish it with a compare-and-swap on an
//   atomic pointer held by the caller. A published table is never written again.
//
// Design Principles:
//   - Power-of-2 sizing for mask-based modulo
//   - Robin Hood displacement bounds probe distance
//   - Backward-shift deletion keeps the early-termination invariant without tombstones
//   - Zero key is the empty sentinel
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package localidx

import "ticketcore/utils"

// Hash implements a fixed-capacity Robin Hood hash map.
type Hash struct {
	keys []uint32 // 0 = empty
	vals []uint32
	mask uint32
	size int
}

//go:nosplit
func nextPow2(n int) uint32 {
	s := uint32(1)
	for s < uint32(n) {
		s <<= 1
	}
	return s
}

// New creates a map able to hold capacity keys at no more than 50% load.
func New(capacity int) Hash {
	sz := nextPow2(capacity * 2)
	return Hash{
		keys: make([]uint32, sz),
		vals: make([]uint32, sz),
		mask: sz - 1,
	}
}

// Clone returns an independent copy for copy-on-write updates.
func (h Hash) Clone() Hash {
	c := Hash{
		keys: make([]uint32, len(h.keys)),
		vals: make([]uint32, len(h.vals)),
		mask: h.mask,
		size: h.size,
	}
	copy(c.keys, h.keys)
	copy(c.vals, h.vals)
	return c
}

// Len reports the number of stored keys.
func (h Hash) Len() int { return h.size }

// Cap reports the number of keys the table accepts.
func (h Hash) Cap() int { return int(h.mask+1) / 2 }

// home is the ideal slot of key k. Thread ids arrive nearly sequential, so
// they are mixed before masking.
//
//go:nosplit
func (h Hash) home(k uint32) uint32 {
	return uint32(utils.Mix64(uint64(k))) & h.mask
}

// dist is how far slot i is from the ideal slot of key k.
//
//go:nosplit
func (h Hash) dist(k, i uint32) uint32 {
	return (i + h.mask + 1 - h.home(k)) & h.mask
}

// Put inserts key -> val and returns val. An existing key keeps its value and
// that value is returned instead. Put reports false when the table is full.
//
// Key must not be 0.
func (h *Hash) Put(key, val uint32) (uint32, bool) {
	if v, ok := h.Get(key); ok {
		return v, true
	}
	if h.size >= h.Cap() {
		return 0, false
	}
	h.size++

	i := h.home(key)
	d := uint32(0)
	for {
		k := h.keys[i]
		if k == 0 {
			h.keys[i], h.vals[i] = key, val
			return val, true
		}
		// Rich slot: the occupant sits closer to home than we do.
		if kd := h.dist(k, i); kd < d {
			key, h.keys[i] = h.keys[i], key
			val, h.vals[i] = h.vals[i], val
			d = kd
		}
		i = (i + 1) & h.mask
		d++
	}
}

// Get retrieves the value stored for key.
func (h Hash) Get(key uint32) (uint32, bool) {
	if key == 0 || h.keys == nil {
		return 0, false
	}
	i := h.home(key)
	d := uint32(0)
	for {
		k := h.keys[i]
		if k == 0 {
			return 0, false
		}
		if k == key {
			return h.vals[i], true
		}
		if h.dist(k, i) < d {
			return 0, false
		}
		i = (i + 1) & h.mask
		d++
	}
}

// Delete removes key and reports whether it was present.
func (h *Hash) Delete(key uint32) bool {
	if key == 0 || h.keys == nil {
		return false
	}
	i := h.home(key)
	d := uint32(0)
	for {
		k := h.keys[i]
		if k == 0 || h.dist(k, i) < d {
			return false
		}
		if k == key {
			break
		}
		i = (i + 1) & h.mask
		d++
	}

	// Backward shift until an empty slot or an entry already at home.
	for {
		j := (i + 1) & h.mask
		k := h.keys[j]
		if k == 0 || h.dist(k, j) == 0 {
			h.keys[i], h.vals[i] = 0, 0
			break
		}
		h.keys[i], h.vals[i] = k, h.vals[j]
		i = j
	}
	h.size--
	return true
}
