package elf

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"

	"riscvkernel/mem"
	"riscvkernel/vm"
)

// buildMiniELF hand-assembles the smallest valid little-endian ELF64
// image with a single PT-irrelevant, SHF_ALLOC|SHF_EXECINSTR .text
// section at virtual address vaddr containing code, plus a section
// header string table (required by debug/elf).
func buildMiniELF(t *testing.T, code []byte, vaddr uint64, entry uint64) []byte {
	t.Helper()
	const ehsize = 64
	const shsize = 64

	shstrtab := []byte("\x00.text\x00.shstrtab\x00")
	textNameOff := uint32(1)
	shstrNameOff := uint32(7)

	var buf bytes.Buffer
	buf.Write(make([]byte, ehsize))

	textOff := uint64(buf.Len())
	buf.Write(code)
	for buf.Len()%8 != 0 {
		buf.WriteByte(0)
	}
	shstrOff := uint64(buf.Len())
	buf.Write(shstrtab)
	for buf.Len()%8 != 0 {
		buf.WriteByte(0)
	}
	shoff := uint64(buf.Len())

	// section 0: null
	buf.Write(make([]byte, shsize))

	// section 1: .text
	sh := make([]byte, shsize)
	binary.LittleEndian.PutUint32(sh[0:4], textNameOff)
	binary.LittleEndian.PutUint32(sh[4:8], 1) // SHT_PROGBITS
	binary.LittleEndian.PutUint64(sh[8:16], 0x2|0x4) // SHF_ALLOC|SHF_EXECINSTR
	binary.LittleEndian.PutUint64(sh[16:24], vaddr)
	binary.LittleEndian.PutUint64(sh[24:32], textOff)
	binary.LittleEndian.PutUint64(sh[32:40], uint64(len(code)))
	buf.Write(sh)

	// section 2: .shstrtab
	sh2 := make([]byte, shsize)
	binary.LittleEndian.PutUint32(sh2[0:4], shstrNameOff)
	binary.LittleEndian.PutUint32(sh2[4:8], 3) // SHT_STRTAB
	binary.LittleEndian.PutUint64(sh2[24:32], shstrOff)
	binary.LittleEndian.PutUint64(sh2[32:40], uint64(len(shstrtab)))
	buf.Write(sh2)

	out := buf.Bytes()
	eh := out[:ehsize]
	copy(eh[0:4], []byte{0x7f, 'E', 'L', 'F'})
	eh[4] = 2 // ELFCLASS64
	eh[5] = 1 // ELFDATA2LSB
	eh[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(eh[16:18], 2) // ET_EXEC
	binary.LittleEndian.PutUint16(eh[18:20], 0xf3) // EM_RISCV
	binary.LittleEndian.PutUint32(eh[20:24], 1)
	binary.LittleEndian.PutUint64(eh[24:32], entry)
	binary.LittleEndian.PutUint64(eh[40:48], shoff)
	binary.LittleEndian.PutUint16(eh[52:54], ehsize)
	binary.LittleEndian.PutUint16(eh[58:60], shsize)
	binary.LittleEndian.PutUint16(eh[60:62], 3) // e_shnum
	binary.LittleEndian.PutUint16(eh[62:64], 2) // e_shstrndx

	return out
}

func newAllocator(t *testing.T, frames int) *mem.Allocator {
	t.Helper()
	n := frames + frames/mem.PGSIZE + 8
	backing := make([]byte, (n+1)*mem.PGSIZE)
	base := mem.Pa_t(uintptr(unsafe.Pointer(&backing[0])))
	a := &mem.Allocator{}
	a.Init(base, base+mem.Pa_t(n*mem.PGSIZE))
	return a
}

func TestLoadReproducesProgbitsBytes(t *testing.T) {
	code := []byte{0x13, 0x05, 0x10, 0x00, 0x67, 0x80, 0x00, 0x00} // arbitrary bytes
	const vaddr = 0x10000
	img := buildMiniELF(t, code, vaddr, vaddr)

	a := newAllocator(t, 64)
	mt := vm.New(a)

	loaded, err := Load(img, mt, a)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if uint64(loaded.Entry) != vaddr {
		t.Fatalf("entry = %#x, want %#x", loaded.Entry, vaddr)
	}

	pa, ok := mt.VirtToPhys(mem.Pa_t(vaddr))
	if !ok {
		t.Fatal("expected .text page to be mapped")
	}
	got := mem.Pg2bytes(pa &^ mem.PGMASK)[vaddr%mem.PGSIZE : vaddr%mem.PGSIZE+len(code)]
	if !bytes.Equal(got, code) {
		t.Fatalf("loaded bytes = %x, want %x", got, code)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	a := newAllocator(t, 8)
	mt := vm.New(a)
	if _, err := Load([]byte("not an elf"), mt, a); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestNeededPagesExactBoundary(t *testing.T) {
	cases := []struct {
		name string
		secs []allocSection
		want int
	}{
		{"one full page", []allocSection{{addr: 0, size: mem.PGSIZE}}, 1},
		{"two full pages", []allocSection{{addr: 0, size: 2 * mem.PGSIZE}}, 2},
		{"one byte into a new page", []allocSection{{addr: 0, size: mem.PGSIZE + 1}}, 2},
		{"adjacent sections sharing no page", []allocSection{
			{addr: 0, size: mem.PGSIZE},
			{addr: mem.PGSIZE, size: mem.PGSIZE},
		}, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := neededPages(c.secs); got != c.want {
				t.Fatalf("neededPages(%+v) = %d, want %d", c.secs, got, c.want)
			}
		})
	}
}
