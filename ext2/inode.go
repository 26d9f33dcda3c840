package ext2

import (
	"encoding/binary"
	"io"
)

/// RootInode is the well-known root directory inode number.
const RootInode = 2

const inodeBlockPointers = 15 // 12 direct + single + double + triple

/// Inode is the subset of an EXT2 inode this read-only reader needs.
type Inode struct {
	Mode  uint16
	Size  uint32
	Block [inodeBlockPointers]uint32
}

// readInode resolves a 1-based inode id to its on-disk Inode, per the
// base spec's group-index and inode-table-offset formulas.
func readInode(dev io.ReaderAt, firstSector uint32, sb *Superblock, inodeID uint32) (*Inode, error) {
	i := inodeID - 1
	group := i / sb.InodesPerGroup
	bg, err := readBlockGroup(dev, firstSector, sb, group)
	if err != nil {
		return nil, err
	}
	blockSize := sb.BlockSize()
	inodeSize := uint32(sb.InodeSize)
	byteOffset := uint64(bg.InodeTable)*uint64(blockSize) + uint64(i%sb.InodesPerGroup)*uint64(inodeSize)

	// byteOffset is partition-relative; apply the same 2048 floor rule as
	// block reads do not apply here (inode table offsets are already
	// block-addressed), so we read directly.
	abs := int64(firstSector)*sectorSize + int64(byteOffset)
	buf := make([]byte, 128)
	if _, err := dev.ReadAt(buf, abs); err != nil {
		return nil, err
	}

	in := &Inode{
		Mode: binary.LittleEndian.Uint16(buf[0:2]),
		Size: binary.LittleEndian.Uint32(buf[4:8]),
	}
	for k := 0; k < inodeBlockPointers; k++ {
		off := 40 + k*4
		in.Block[k] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
	return in, nil
}

/// blocksFor enumerates every logical data block of an inode in order,
/// resolving the 4-region direct/single/double/triple-indirect scheme. A
/// zero block id terminates iteration (sparse holes are not
/// materialized); the triple-indirect region is left unimplemented and
/// returns an error if reached, per base spec §4.6.
func blocksFor(dev io.ReaderAt, firstSector uint32, sb *Superblock, in *Inode) ([]uint32, error) {
	blockSize := sb.BlockSize()
	e := blockSize / 4 // pointers per indirect block
	nblocks := (in.Size + blockSize - 1) / blockSize

	var out []uint32
	readPtrBlock := func(blockID uint32) ([]uint32, error) {
		buf, err := readFromBlock(dev, firstSector, blockSize, blockID, int(blockSize))
		if err != nil {
			return nil, err
		}
		ptrs := make([]uint32, blockSize/4)
		for i := range ptrs {
			ptrs[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
		}
		return ptrs, nil
	}

	for n := uint32(0); n < nblocks; n++ {
		switch {
		case n < 12:
			if in.Block[n] == 0 {
				return out, nil
			}
			out = append(out, in.Block[n])
		case n < 12+e:
			ptrs, err := readPtrBlock(in.Block[12])
			if err != nil {
				return nil, err
			}
			idx := n - 12
			if ptrs[idx] == 0 {
				return out, nil
			}
			out = append(out, ptrs[idx])
		case n < 12+e+e*e:
			outer, err := readPtrBlock(in.Block[13])
			if err != nil {
				return nil, err
			}
			rel := n - 12 - e
			outerIdx := rel / e
			innerIdx := rel % e
			if outer[outerIdx] == 0 {
				return out, nil
			}
			inner, err := readPtrBlock(outer[outerIdx])
			if err != nil {
				return nil, err
			}
			if inner[innerIdx] == 0 {
				return out, nil
			}
			out = append(out, inner[innerIdx])
		default:
			return nil, errTripleIndirectUnimplemented
		}
	}
	return out, nil
}
