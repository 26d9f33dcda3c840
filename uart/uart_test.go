package uart

import "testing"

func TestRingPushCapsAtSize(t *testing.T) {
	var r Ring
	big := make([]byte, ringSize+10)
	for i := range big {
		big[i] = byte(i)
	}
	r.Push(big)
	if !r.full() {
		t.Fatal("expected ring to be full after overfilling push")
	}
	if r.head-r.tail != ringSize {
		t.Fatalf("used = %d, want %d", r.head-r.tail, ringSize)
	}
}

func TestRingEmptyAfterEqualPushPop(t *testing.T) {
	var r Ring
	r.Push([]byte("hello"))
	if r.empty() {
		t.Fatal("expected non-empty ring after push")
	}
	r.tail = r.head
	if !r.empty() {
		t.Fatal("expected ring to report empty once tail catches head")
	}
}
