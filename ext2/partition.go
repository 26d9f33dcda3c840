package ext2

import (
	"encoding/binary"
	"io"
)

const sectorSize = 512

// PartitionType distinguishes the MBR partition-table byte values this
// kernel cares about; every other byte value is Unsupported.
type PartitionType uint8

const (
	PartitionFree        PartitionType = 0x00
	PartitionLinux       PartitionType = 0x83
	PartitionUnsupported PartitionType = 0xff
)

func partitionTypeOf(b byte) PartitionType {
	switch b {
	case 0x00:
		return PartitionFree
	case 0x83:
		return PartitionLinux
	default:
		return PartitionUnsupported
	}
}

/// PartitionInfo is one decoded 16-byte MBR partition table entry.
type PartitionInfo struct {
	Bootable      bool
	Type          PartitionType
	InitialSector uint32
	Size          uint32
}

/// PartitionTable holds the raw 512-byte MBR sector.
type PartitionTable struct {
	data [sectorSize]byte
}

/// ReadPartitionTable reads sector 0 from dev into a PartitionTable.
func ReadPartitionTable(dev io.ReaderAt) (*PartitionTable, error) {
	pt := &PartitionTable{}
	if _, err := dev.ReadAt(pt.data[:], 0); err != nil {
		return nil, err
	}
	return pt, nil
}

/// IsMBR reports whether the signature bytes 0x55,0xAA are present at
/// 0x1FE/0x1FF.
func (pt *PartitionTable) IsMBR() bool {
	return pt.data[0x1FE] == 0x55 && pt.data[0x1FF] == 0xAA
}

/// GetPartitionInfo decodes entry k (1-based, 1..=4) at offset
/// 0x1BE + 0x10*(k-1).
func (pt *PartitionTable) GetPartitionInfo(k int) PartitionInfo {
	if k < 1 || k > 4 {
		panic("partition index out of range")
	}
	off := 0x1BE + 0x10*(k-1)
	e := pt.data[off : off+16]
	return PartitionInfo{
		Bootable:      e[0] != 0,
		Type:          partitionTypeOf(e[4]),
		InitialSector: binary.LittleEndian.Uint32(e[8:12]),
		Size:          binary.LittleEndian.Uint32(e[12:16]),
	}
}

/// FirstLinuxPartition scans entries 1..=4 for the first Linux (0x83)
/// partition.
func (pt *PartitionTable) FirstLinuxPartition() (PartitionInfo, bool) {
	for k := 1; k <= 4; k++ {
		info := pt.GetPartitionInfo(k)
		if info.Type == PartitionLinux {
			return info, true
		}
	}
	return PartitionInfo{}, false
}
