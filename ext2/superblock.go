package ext2

import (
	"encoding/binary"
	"io"
)

const (
	superblockOffset = 1024
	superblockSize   = 90 // fields actually consumed by this reader
)

/// Superblock holds the EXT2 superblock fields this read-only reader
/// needs, decoded explicitly little-endian (SPEC_FULL.md §9 decision —
/// never a raw struct-over-bytes cast).
type Superblock struct {
	InodesCount      uint32
	BlocksCountLo    uint32
	RBlocksCountLo   uint32
	FreeBlocksCount  uint32
	FreeInodesCount  uint32
	FirstDataBlock   uint32
	LogBlockSize     uint32
	LogClusterSize   uint32
	BlocksPerGroup   uint32
	ClustersPerGroup uint32
	InodesPerGroup   uint32
	Magic            uint16
	InodeSize        uint16
}

const ext2Magic = 0xEF53

// ReadSuperblock reads the superblock at partition-relative offset 1024,
// per the data model.
func ReadSuperblock(dev io.ReaderAt, firstSector uint32) (*Superblock, error) {
	abs := int64(firstSector)*sectorSize + superblockOffset
	buf := make([]byte, 128) // pad past s_inode_size field at offset 88
	if _, err := dev.ReadAt(buf, abs); err != nil {
		return nil, err
	}
	sb := &Superblock{
		InodesCount:      binary.LittleEndian.Uint32(buf[0:4]),
		BlocksCountLo:    binary.LittleEndian.Uint32(buf[4:8]),
		RBlocksCountLo:   binary.LittleEndian.Uint32(buf[8:12]),
		FreeBlocksCount:  binary.LittleEndian.Uint32(buf[12:16]),
		FreeInodesCount:  binary.LittleEndian.Uint32(buf[16:20]),
		FirstDataBlock:   binary.LittleEndian.Uint32(buf[20:24]),
		LogBlockSize:     binary.LittleEndian.Uint32(buf[24:28]),
		LogClusterSize:   binary.LittleEndian.Uint32(buf[28:32]),
		BlocksPerGroup:   binary.LittleEndian.Uint32(buf[32:36]),
		ClustersPerGroup: binary.LittleEndian.Uint32(buf[36:40]),
		InodesPerGroup:   binary.LittleEndian.Uint32(buf[40:44]),
		Magic:            binary.LittleEndian.Uint16(buf[56:58]),
		InodeSize:        binary.LittleEndian.Uint16(buf[88:90]),
	}
	if sb.InodeSize == 0 {
		sb.InodeSize = 128 // EXT2 revision 0 default
	}
	return sb, nil
}

/// BlockSize returns 1024 << s_log_block_size.
func (sb *Superblock) BlockSize() uint32 {
	return 1024 << sb.LogBlockSize
}
