// Package dtb implements just enough of the flattened device tree format
// to answer one question at boot: where does usable RAM start, and how
// big is it. No other property is parsed.
package dtb

import (
	"encoding/binary"

	"riscvkernel/kerrors"
)

/// fdtMagic is the big-endian magic word beginning every FDT blob.
const fdtMagic = 0xD00D_FEED

// FDT structure-block token values.
const (
	fdtBeginNode = 0x00000001
	fdtEndNode   = 0x00000002
	fdtProp      = 0x00000003
	fdtNop       = 0x00000004
	fdtEnd       = 0x00000009
)

/// header mirrors the fixed fdt_header layout (all fields big-endian).
type header struct {
	Magic           uint32
	TotalSize       uint32
	OffDTStruct     uint32
	OffDTStrings    uint32
	OffMemRsvmap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	SizeDTStrings   uint32
	SizeDTStruct    uint32
}

/// MemInfo is the sole fact extracted from a device tree blob: the base
/// and size of the first "memory@..." node's "reg" property.
type MemInfo struct {
	Base uint64
	Size uint64
}

/// Read walks blob's structure block looking for a node whose name
/// begins with "memory@" and returns its "reg" property decoded as a
/// (base, size) pair. It returns kerrors.EDTB for a bad magic, a
/// truncated blob, or a missing memory node — never panics, since this
/// runs before the frame allocator exists.
func Read(blob []byte) (MemInfo, error) {
	if len(blob) < 40 {
		return MemInfo{}, kerrors.EDTB
	}
	h := header{
		Magic:           be32(blob, 0),
		TotalSize:       be32(blob, 4),
		OffDTStruct:     be32(blob, 8),
		OffDTStrings:    be32(blob, 12),
		OffMemRsvmap:    be32(blob, 16),
		Version:         be32(blob, 20),
		LastCompVersion: be32(blob, 24),
		BootCPUIDPhys:   be32(blob, 28),
		SizeDTStrings:   be32(blob, 32),
		SizeDTStruct:    be32(blob, 36),
	}
	if h.Magic != fdtMagic {
		return MemInfo{}, kerrors.EDTB
	}
	if uint64(h.OffDTStruct)+uint64(h.SizeDTStruct) > uint64(len(blob)) {
		return MemInfo{}, kerrors.EDTB
	}
	if uint64(h.OffDTStrings)+uint64(h.SizeDTStrings) > uint64(len(blob)) {
		return MemInfo{}, kerrors.EDTB
	}
	structBlock := blob[h.OffDTStruct : h.OffDTStruct+h.SizeDTStruct]
	stringsBlock := blob[h.OffDTStrings : h.OffDTStrings+h.SizeDTStrings]

	off := 0
	addrCells, sizeCells := 2, 1
	inMemoryNode := false
	for off+4 <= len(structBlock) {
		tok := be32(structBlock, off)
		off += 4
		switch tok {
		case fdtBeginNode:
			name, n := cString(structBlock[off:])
			off += align4(n)
			inMemoryNode = len(name) >= 7 && name[:7] == "memory@"
		case fdtEndNode:
			inMemoryNode = false
		case fdtProp:
			if off+8 > len(structBlock) {
				return MemInfo{}, kerrors.EDTB
			}
			length := int(be32(structBlock, off))
			nameOff := int(be32(structBlock, off+4))
			off += 8
			if off+length > len(structBlock) {
				return MemInfo{}, kerrors.EDTB
			}
			prop := structBlock[off : off+length]
			off += align4(length)

			if nameOff > len(stringsBlock) {
				return MemInfo{}, kerrors.EDTB
			}
			propName, _ := cString(stringsBlock[nameOff:])
			if (propName == "#address-cells" || propName == "#size-cells") && len(prop) < 4 {
				return MemInfo{}, kerrors.EDTB
			}
			switch propName {
			case "#address-cells":
				addrCells = int(be32(prop, 0))
			case "#size-cells":
				sizeCells = int(be32(prop, 0))
			case "reg":
				if inMemoryNode {
					info, ok := decodeReg(prop, addrCells, sizeCells)
					if ok {
						return info, nil
					}
				}
			}
		case fdtNop:
		case fdtEnd:
			return MemInfo{}, kerrors.EDTB
		default:
			return MemInfo{}, kerrors.EDTB
		}
	}
	return MemInfo{}, kerrors.EDTB
}

func decodeReg(prop []byte, addrCells, sizeCells int) (MemInfo, bool) {
	need := (addrCells + sizeCells) * 4
	if len(prop) < need {
		return MemInfo{}, false
	}
	var base, size uint64
	off := 0
	for i := 0; i < addrCells; i++ {
		base = base<<32 | uint64(be32(prop, off))
		off += 4
	}
	for i := 0; i < sizeCells; i++ {
		size = size<<32 | uint64(be32(prop, off))
		off += 4
	}
	return MemInfo{Base: base, Size: size}, true
}

func be32(b []byte, off int) uint32 {
	return binary.BigEndian.Uint32(b[off : off+4])
}

func cString(b []byte) (string, int) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1
		}
	}
	return string(b), len(b)
}

func align4(n int) int { return (n + 3) &^ 3 }
