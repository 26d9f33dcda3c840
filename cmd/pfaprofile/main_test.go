package main

import (
	"os"
	"path/filepath"
	"testing"

	"riscvkernel/mem"
)

func TestReplayProducesOneSamplePerLiveRun(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "trace.txt")
	content := "alloc 2\nalloc 1\ndealloc 0\nzalloc 3\n"
	if err := os.WriteFile(trace, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &mem.Allocator{}
	a.Init(poolBase, poolBase+mem.Pa_t(poolPages*mem.PGSIZE))
	if err := replay(a, trace); err != nil {
		t.Fatalf("replay: %v", err)
	}

	p := a.Profile()
	if len(p.Sample) != 2 {
		t.Fatalf("len(Sample) = %d, want 2 (one freed, two live runs)", len(p.Sample))
	}
}

func TestReplayRejectsOutOfRangeDealloc(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "trace.txt")
	if err := os.WriteFile(trace, []byte("dealloc 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &mem.Allocator{}
	a.Init(poolBase, poolBase+mem.Pa_t(poolPages*mem.PGSIZE))
	if err := replay(a, trace); err == nil {
		t.Fatal("expected an error for dealloc with no prior allocations")
	}
}

func TestReplayRejectsMalformedLine(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "trace.txt")
	if err := os.WriteFile(trace, []byte("alloc\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := &mem.Allocator{}
	a.Init(poolBase, poolBase+mem.Pa_t(poolPages*mem.PGSIZE))
	if err := replay(a, trace); err == nil {
		t.Fatal("expected an error for a line missing its operand")
	}
}
