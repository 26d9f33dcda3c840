// Package elf loads a statically-placed ELF64 image into a process
// address space: section iteration, clean-page counting, and permission
// derivation from section flags.
package elf

import (
	"bytes"
	debugelf "debug/elf"
	"sort"

	"riscvkernel/kerrors"
	"riscvkernel/mem"
	"riscvkernel/vm"
)

/// Loaded describes the result of loading an ELF image into a process's
/// address space.
type Loaded struct {
	Entry    mem.Pa_t /// program_counter: header.e_entry
	BasePhys mem.Pa_t /// first physical frame backing the image
	NumPages int
}

/// allocSection is one SHF_ALLOC section, carried through sorting and
/// layout.
type allocSection struct {
	addr  uint64
	size  uint64
	flags debugelf.SectionFlag
	typ   debugelf.SectionType
	data  []byte
}

/// Load validates the ELF magic, collects SHF_ALLOC sections, lays them
/// out into freshly allocated physical frames, copies PROGBITS content,
/// and maps the result into mt with user-mode permission bits derived
/// from each section's flags (base spec §4.8).
func Load(image []byte, mt *vm.MapTable, a *mem.Allocator) (*Loaded, error) {
	if len(image) < 4 || image[0] != 0x7f || image[1] != 'E' || image[2] != 'L' || image[3] != 'F' {
		return nil, kerrors.EINVALIDMAGIC
	}
	f, err := debugelf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, kerrors.EINVALIDMAGIC
	}
	defer f.Close()

	var sections []allocSection
	for _, s := range f.Sections {
		if s.Flags&debugelf.SHF_ALLOC == 0 {
			continue
		}
		var data []byte
		if s.Type == debugelf.SHT_PROGBITS {
			data, err = s.Data()
			if err != nil {
				return nil, kerrors.EIO
			}
		}
		sections = append(sections, allocSection{
			addr:  s.Addr,
			size:  s.Size,
			flags: s.Flags,
			typ:   s.Type,
			data:  data,
		})
	}
	if len(sections) == 0 {
		return nil, kerrors.EINVALIDMAGIC
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].addr < sections[j].addr })

	numPages := neededPages(sections)
	basePhys, ok := a.Zalloc(numPages)
	if !ok {
		return nil, kerrors.ENOMEM
	}

	baseVirt := sections[0].addr &^ mem.PGMASK
	for _, s := range sections {
		if s.typ == debugelf.SHT_PROGBITS {
			pageIdx := (s.addr - baseVirt) / mem.PGSIZE
			pageOff := (s.addr - baseVirt) % mem.PGSIZE
			dst := mem.Pg2bytes(basePhys + mem.Pa_t(pageIdx*mem.PGSIZE))
			copy(dst[pageOff:], s.data)
		}
	}

	for i := 0; i < numPages; i++ {
		vaddr := mem.Pa_t(baseVirt) + mem.Pa_t(i*mem.PGSIZE)
		paddr := basePhys + mem.Pa_t(i*mem.PGSIZE)
		bits := permissionBitsForPage(sections, baseVirt, i)
		if !mt.Map(vaddr, paddr, bits, 0) {
			return nil, kerrors.ENOMEM
		}
	}

	return &Loaded{
		Entry:    mem.Pa_t(f.Entry),
		BasePhys: basePhys,
		NumPages: numPages,
	}, nil
}

// neededPages implements the "clean page" counting algorithm: a new page
// is needed whenever a section's start page differs from the previous
// section's end page; otherwise trailing sections share a page.
func neededPages(sections []allocSection) int {
	count := 0
	var prevEndPage uint64 = ^uint64(0)
	for _, s := range sections {
		startPage := s.addr / mem.PGSIZE
		// Last page index the section touches, not a page count: a
		// section ending exactly on a page boundary must not spill into
		// the next page.
		endPage := (s.addr+s.size+mem.PGMASK)/mem.PGSIZE - 1
		if startPage != prevEndPage {
			count += int(endPage-startPage) + 1
		} else {
			count += int(endPage - startPage)
		}
		prevEndPage = endPage
	}
	if count == 0 {
		count = 1
	}
	return count
}

// permissionBitsForPage derives U|R|{W|X} for page index i from whatever
// section(s) cover it: SHF_EXECINSTR -> U|R|X, else SHF_WRITE -> U|R|W,
// else the conservative U|R|X default (base spec §4.8).
func permissionBitsForPage(sections []allocSection, baseVirt uint64, pageIdx int) vm.PTEBits {
	pageStart := baseVirt + uint64(pageIdx)*mem.PGSIZE
	pageEnd := pageStart + mem.PGSIZE
	for _, s := range sections {
		if s.addr < pageEnd && s.addr+s.size > pageStart {
			switch {
			case s.flags&debugelf.SHF_EXECINSTR != 0:
				return vm.PteU | vm.PteR | vm.PteX
			case s.flags&debugelf.SHF_WRITE != 0:
				return vm.PteU | vm.PteR | vm.PteW
			}
		}
	}
	return vm.PteU | vm.PteR | vm.PteX
}
