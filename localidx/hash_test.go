package localidx

import (
	"math/rand"
	"testing"
)

// ============================================================================
// BASIC OPERATIONS
// ============================================================================

func TestPutGet(t *testing.T) {
	h := New(8)
	for k := uint32(1); k <= 8; k++ {
		if v, ok := h.Put(k, k*10); !ok || v != k*10 {
			t.Fatalf("Put(%d) = %d,%v", k, v, ok)
		}
	}
	for k := uint32(1); k <= 8; k++ {
		if v, ok := h.Get(k); !ok || v != k*10 {
			t.Fatalf("Get(%d) = %d,%v", k, v, ok)
		}
	}
	if _, ok := h.Get(99); ok {
		t.Error("Get of a missing key succeeded")
	}
	if _, ok := h.Get(0); ok {
		t.Error("key 0 is the empty sentinel and must never be found")
	}
}

func TestPut_ExistingKeyKeepsValue(t *testing.T) {
	h := New(4)
	h.Put(7, 1)
	if v, ok := h.Put(7, 2); !ok || v != 1 {
		t.Fatalf("Put on existing key = %d,%v, want 1,true", v, ok)
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.Len())
	}
}

func TestPut_Full(t *testing.T) {
	h := New(4)
	for k := uint32(1); int(k) <= h.Cap(); k++ {
		if _, ok := h.Put(k, k); !ok {
			t.Fatalf("Put(%d) failed below capacity", k)
		}
	}
	if _, ok := h.Put(1000, 1); ok {
		t.Fatal("Put past capacity succeeded")
	}
}

// ============================================================================
// DELETION
// ============================================================================

func TestDelete_KeepsProbeChainsIntact(t *testing.T) {
	h := New(64)
	// Keys sharing one home slot, plus its neighbour, force displacement chains.
	var keys []uint32
	for k, n0, n1 := uint32(1), 0, 0; n0 < 5 || n1 < 3; k++ {
		switch h.home(k) {
		case 7:
			if n0 < 5 {
				keys = append(keys, k)
				n0++
			}
		case 8:
			if n1 < 3 {
				keys = append(keys, k)
				n1++
			}
		}
	}
	for _, k := range keys {
		h.Put(k, k+1)
	}
	victim := keys[1]
	if !h.Delete(victim) {
		t.Fatal("Delete reported missing")
	}
	if h.Delete(victim) {
		t.Fatal("second Delete reported present")
	}
	for _, k := range keys {
		v, ok := h.Get(k)
		if k == victim {
			if ok {
				t.Fatal("deleted key still visible")
			}
			continue
		}
		if !ok || v != k+1 {
			t.Fatalf("Get(%d) = %d,%v after delete", k, v, ok)
		}
	}
	if h.Len() != len(keys)-1 {
		t.Errorf("Len = %d", h.Len())
	}
}

func TestDelete_RandomAgainstMap(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	h := New(256)
	ref := make(map[uint32]uint32)
	for i := 0; i < 20000; i++ {
		k := uint32(rng.Intn(400)) + 1
		switch rng.Intn(3) {
		case 0, 1:
			if len(ref) >= h.Cap() {
				continue
			}
			if _, ok := ref[k]; !ok {
				ref[k] = uint32(i)
			}
			h.Put(k, uint32(i))
		case 2:
			_, want := ref[k]
			delete(ref, k)
			if got := h.Delete(k); got != want {
				t.Fatalf("step %d: Delete(%d) = %v, want %v", i, k, got, want)
			}
		}
	}
	for k, v := range ref {
		if got, ok := h.Get(k); !ok || got != v {
			t.Fatalf("Get(%d) = %d,%v want %d", k, got, ok, v)
		}
	}
	if h.Len() != len(ref) {
		t.Fatalf("Len = %d, want %d", h.Len(), len(ref))
	}
}

// ============================================================================
// COPY-ON-WRITE
// ============================================================================

func TestClone_IsIndependent(t *testing.T) {
	h := New(8)
	h.Put(5, 50)
	c := h.Clone()
	c.Put(6, 60)
	c.Delete(5)

	if _, ok := h.Get(6); ok {
		t.Error("insert into clone leaked into the source table")
	}
	if v, ok := h.Get(5); !ok || v != 50 {
		t.Error("delete from clone leaked into the source table")
	}
}

func TestZeroValue(t *testing.T) {
	var h Hash
	if _, ok := h.Get(1); ok {
		t.Error("zero Hash returned a value")
	}
	if h.Delete(1) {
		t.Error("zero Hash deleted a value")
	}
}

func BenchmarkGet(b *testing.B) {
	h := New(256)
	for k := uint32(1); k <= 200; k++ {
		h.Put(k*7919, k)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Get(uint32(i%200+1) * 7919)
	}
}
