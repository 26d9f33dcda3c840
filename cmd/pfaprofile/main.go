// Command pfaprofile replays a physical frame allocator trace against a
// standalone mem.Allocator and writes the resulting allocation-run
// profile in pprof's wire format, so it can be inspected with
// `go tool pprof` the same way any other Go profile is.
//
// Trace lines are one of:
//
//	alloc <pages>
//	zalloc <pages>
//	dealloc <index>
//
// where <index> refers to the 0-based order in which prior alloc/zalloc
// lines returned an address (this tool has no view of a running
// kernel's addresses, only the sequence of calls it made).
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"riscvkernel/mem"
)

const (
	poolBase  = mem.Pa_t(0x8000_0000)
	poolPages = 4096
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: pfaprofile <trace file> <output profile>\n")
		os.Exit(1)
	}

	a := &mem.Allocator{}
	a.Init(poolBase, poolBase+mem.Pa_t(poolPages*mem.PGSIZE))

	if err := replay(a, os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "pfaprofile: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pfaprofile: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := a.Profile().Write(out); err != nil {
		fmt.Fprintf(os.Stderr, "pfaprofile: writing profile: %v\n", err)
		os.Exit(1)
	}
}

func replay(a *mem.Allocator, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var live []mem.Pa_t
	sc := bufio.NewScanner(f)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return fmt.Errorf("line %d: want 2 fields, got %d", lineNo, len(fields))
		}
		arg, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch fields[0] {
		case "alloc":
			pa, ok := a.Alloc(arg)
			if !ok {
				return fmt.Errorf("line %d: alloc %d pages failed", lineNo, arg)
			}
			live = append(live, pa)
		case "zalloc":
			// The replay pool is not backed by host memory, so the frames
			// are not zeroed; the descriptor state is the same as Zalloc's.
			pa, ok := a.Alloc(arg)
			if !ok {
				return fmt.Errorf("line %d: zalloc %d pages failed", lineNo, arg)
			}
			live = append(live, pa)
		case "dealloc":
			if arg < 0 || arg >= len(live) {
				return fmt.Errorf("line %d: dealloc index %d out of range", lineNo, arg)
			}
			a.Dealloc(live[arg])
		default:
			return fmt.Errorf("line %d: unknown op %q", lineNo, fields[0])
		}
	}
	return sc.Err()
}
