package mem

import (
	"testing"
	"unsafe"
)

func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}

// heapFor builds a heap big enough for exactly want usable frames and
// returns an initialized Allocator plus that usable count.
func heapFor(t *testing.T, want int) *Allocator {
	t.Helper()
	// Binary-search-free: grow n until Init's own descriptor-region arithmetic gives
	// us exactly `want` usable frames after the descriptor region is
	// carved out.
	for n := want + 1; ; n++ {
		r := (n + PGSIZE) / (PGSIZE + 1)
		if r < 1 {
			r = 1
		}
		if n-r == want {
			a := &Allocator{}
			backing := make([]byte, (n+1)*PGSIZE)
			base := Pa_t(uintptrOf(backing))
			a.Init(base, base+Pa_t(n*PGSIZE))
			return a
		}
		if n > want+PGSIZE+8 {
			t.Fatalf("could not size heap for %d usable frames", want)
		}
	}
}

func TestPFABoundary(t *testing.T) {
	a := heapFor(t, 64)

	pa, ok := a.Alloc(64)
	if !ok {
		t.Fatalf("alloc(64) should succeed on a 64-frame pool")
	}
	if _, ok := a.Alloc(1); ok {
		t.Fatalf("alloc(1) should fail once the pool is exhausted")
	}
	a.Dealloc(pa)
	if _, ok := a.Alloc(64); !ok {
		t.Fatalf("alloc(64) should succeed again after dealloc")
	}
}

func TestAllocMarksUsedAndLast(t *testing.T) {
	a := heapFor(t, 8)
	pa, ok := a.Alloc(3)
	if !ok {
		t.Fatal("alloc(3) failed")
	}
	idx := int((pa - a.allocBase) / PGSIZE)
	for i := idx; i < idx+2; i++ {
		if a.descs[i] != dUSED {
			t.Fatalf("descriptor %d: want USED only, got %x", i, a.descs[i])
		}
	}
	if a.descs[idx+2] != dUSED|dLAST {
		t.Fatalf("terminal descriptor: want USED|LAST, got %x", a.descs[idx+2])
	}
}

func TestDeallocResetsDescriptors(t *testing.T) {
	a := heapFor(t, 8)
	pa, _ := a.Alloc(4)
	a.Dealloc(pa)
	for i, d := range a.descs {
		if d != 0 {
			t.Fatalf("descriptor %d not cleared after dealloc: %x", i, d)
		}
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := heapFor(t, 4)
	pa, _ := a.Alloc(2)
	a.Dealloc(pa)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	a.Dealloc(pa)
}

func TestPagesNeeded(t *testing.T) {
	cases := []struct{ start, end Pa_t }{
		{0, 1}, {0, PGSIZE}, {0, PGSIZE + 1}, {PGSIZE / 2, PGSIZE*3 + 17},
	}
	for _, c := range cases {
		got := PagesNeeded(c.start, c.end)
		if Pa_t(got)*PGSIZE < c.end-c.start {
			t.Fatalf("pages_needed(%d,%d)=%d covers too little", c.start, c.end, got)
		}
	}
}
