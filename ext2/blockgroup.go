package ext2

import (
	"encoding/binary"
	"io"
)

const blockGroupDescSize = 32

/// BlockGroup is one block-group descriptor.
type BlockGroup struct {
	BlockBitmap    uint32
	InodeBitmap    uint32
	InodeTable     uint32
	FreeBlocks     uint16
	FreeInodes     uint16
	UsedDirs       uint16
}

/// readFromBlock reads size_of(T) bytes starting at the given block,
/// applying the 2048-byte floor that protects the superblock + group
/// descriptor region when block_size < 2048 (base spec §4.6).
func readFromBlock(dev io.ReaderAt, firstSector uint32, blockSize uint32, blockID uint32, size int) ([]byte, error) {
	blockStart := blockSize * (blockID - 1)
	if blockStart < 2048 {
		blockStart = 2048
	}
	abs := int64(firstSector)*sectorSize + int64(blockStart)
	buf := make([]byte, size)
	if _, err := dev.ReadAt(buf, abs); err != nil {
		return nil, err
	}
	return buf, nil
}

// readBlockGroup reads the (groupIndex+2)-th block as a BlockGroup
// descriptor, per the inode-lookup formula in base spec §4.6.
func readBlockGroup(dev io.ReaderAt, firstSector uint32, sb *Superblock, groupIndex uint32) (*BlockGroup, error) {
	buf, err := readFromBlock(dev, firstSector, sb.BlockSize(), groupIndex+2, blockGroupDescSize)
	if err != nil {
		return nil, err
	}
	return &BlockGroup{
		BlockBitmap: binary.LittleEndian.Uint32(buf[0:4]),
		InodeBitmap: binary.LittleEndian.Uint32(buf[4:8]),
		InodeTable:  binary.LittleEndian.Uint32(buf[8:12]),
		FreeBlocks:  binary.LittleEndian.Uint16(buf[12:14]),
		FreeInodes:  binary.LittleEndian.Uint16(buf[14:16]),
		UsedDirs:    binary.LittleEndian.Uint16(buf[16:18]),
	}, nil
}
