package main

import "encoding/binary"

// blockSize is fixed at the EXT2 minimum for this tool's images; the
// reader derives it from s_log_block_size == 0, matching here.
const blockSize = 1024

const (
	rootInode  = 2
	firstInode = 11 // conventional first non-reserved EXT2 inode
	inodeSize  = 128

	// Fixed metadata layout, mirroring ext2/ext2_test.go's buildTinyImage:
	// block 1 is the boot block, block 2 (offset 1024) the superblock,
	// byte offset 2048 the (single) group descriptor — reached by the
	// reader's readFromBlock floor rather than a literal block id, so
	// block ids 1..4 are never used for anything else. The inode table
	// starts at block 5; data blocks start after it.
	groupDescOffset = 2048
	inodeTableBlock = 5

	// maxInodes bounds how many files+directories (plus the 10 reserved
	// ids below firstInode) a single image built by this tool can hold.
	// The inode table's block span must be fixed before the first data
	// block is allocated — dataBase (and therefore every block id baked
	// into an inode's block pointers) would otherwise shift out from
	// under already-written inodes as later files grew the table.
	maxInodes       = 256
	inodeTableBlocks = (maxInodes*inodeSize + blockSize - 1) / blockSize
)

type inodeRecord struct {
	mode  uint16
	size  uint32
	block [15]uint32
}

type dirent struct {
	inode uint32
	name  string
}

// image accumulates an in-memory EXT2 partition image one file/directory
// at a time; render() lays out the final byte buffer.
type image struct {
	inodes    map[uint32]inodeRecord
	nextInode uint32
	dataBlks  [][]byte // index 0 == on-disk block id dataBase
}

func newImage() *image {
	return &image{inodes: make(map[uint32]inodeRecord), nextInode: firstInode}
}

// dataBase is fixed for the lifetime of an image: it depends only on the
// compile-time maxInodes capacity, never on how many inodes have actually
// been allocated so far. The +1 accounts for the inode table being
// addressed directly (block_id * blockSize) while ordinary data blocks
// are addressed (block_id-1)*blockSize by the reader — without it the
// first data block would alias the inode table's last byte range.
func (img *image) dataBase() uint32 {
	return inodeTableBlock + uint32(inodeTableBlocks) + 1
}

func (img *image) allocBlock() uint32 {
	img.dataBlks = append(img.dataBlks, make([]byte, blockSize))
	return img.dataBase() + uint32(len(img.dataBlks)-1)
}

// writeFile copies data into freshly allocated blocks and records an
// inode for it (direct blocks only — adequate for the small fixtures
// this tool seeds; base spec §4.6's indirect regions are a read-side-only
// concern).
func (img *image) writeFile(data []byte) uint32 {
	var blks [15]uint32
	n := (len(data) + blockSize - 1) / blockSize
	if n == 0 {
		n = 1 // a zero-length file still owns one (empty) block, like the original tool
	}
	if n > 12 {
		panic("mkdisk: indirect blocks unsupported by this tool")
	}
	for i := 0; i < n; i++ {
		id := img.allocBlock()
		chunk := data[min(i*blockSize, len(data)):]
		if len(chunk) > blockSize {
			chunk = chunk[:blockSize]
		}
		copy(img.dataBlks[id-img.dataBase()], chunk)
		blks[i] = id
	}
	id := img.allocInode()
	img.inodes[id] = inodeRecord{mode: 0o100644, size: uint32(len(data)), block: blks}
	return id
}

func (img *image) allocInode() uint32 {
	if img.nextInode > maxInodes {
		panic("mkdisk: too many files for this tool's fixed inode table capacity")
	}
	id := img.nextInode
	img.nextInode++
	return id
}

// writeDir allocates one data block of directory entries and records a
// directory inode. Directories whose entries overflow one block are not
// supported by this tool.
func (img *image) writeDir(entries []dirent) uint32 {
	id := img.allocBlock()
	packDirEntries(img.dataBlks[id-img.dataBase()], entries)

	inodeID := img.allocInode()
	var blks [15]uint32
	blks[0] = id
	img.inodes[inodeID] = inodeRecord{mode: 0o040755, size: blockSize, block: blks}
	return inodeID
}

// setRoot fills in the well-known root inode (id 2) once every child of
// "/" has already been written and has an inode number to reference.
func (img *image) setRoot(entries []dirent) {
	id := img.allocBlock()
	packDirEntries(img.dataBlks[id-img.dataBase()], entries)

	var blks [15]uint32
	blks[0] = id
	img.inodes[rootInode] = inodeRecord{mode: 0o040755, size: blockSize, block: blks}
}

func packDirEntries(block []byte, entries []dirent) {
	off := 0
	for _, e := range entries {
		recLen := 8 + len(e.name)
		recLen = (recLen + 3) &^ 3
		binary.LittleEndian.PutUint32(block[off:off+4], e.inode)
		binary.LittleEndian.PutUint16(block[off+4:off+6], uint16(recLen))
		block[off+6] = byte(len(e.name))
		block[off+7] = 0 // file_type, unused by the reader
		copy(block[off+8:], e.name)
		off += recLen
	}
	// Trailing zero rec_len (from the zero-initialized block) signals
	// end-of-block to the reader's readDir.
}

// render lays out the final partition-relative byte image.
func (img *image) render() []byte {
	lastBlockID := int(img.dataBase()) + len(img.dataBlks) - 1
	if len(img.dataBlks) == 0 {
		lastBlockID = int(img.dataBase()) - 1
	}
	total := lastBlockID // block ids are 1-based, so the highest id is also the block count
	out := make([]byte, total*blockSize)

	writeSuperblock(out, img.nextInode-1, uint32(total))
	writeGroupDesc(out)

	inodeTable := out[inodeTableBlock*blockSize : (inodeTableBlock+uint32(inodeTableBlocks))*blockSize]
	for id, rec := range img.inodes {
		off := int(id-1) * inodeSize
		binary.LittleEndian.PutUint16(inodeTable[off:off+2], rec.mode)
		binary.LittleEndian.PutUint32(inodeTable[off+4:off+8], rec.size)
		for k, b := range rec.block {
			binary.LittleEndian.PutUint32(inodeTable[off+40+k*4:off+40+k*4+4], b)
		}
	}

	for i, blk := range img.dataBlks {
		id := int(img.dataBase()) + i
		dst := (id - 1) * blockSize // readFromBlock addresses block id X at (X-1)*blockSize
		copy(out[dst:dst+blockSize], blk)
	}
	return out
}

func writeSuperblock(out []byte, inodesCount, blocksCount uint32) {
	buf := out[1024 : 1024+128]
	binary.LittleEndian.PutUint32(buf[0:4], inodesCount)
	binary.LittleEndian.PutUint32(buf[4:8], blocksCount)
	binary.LittleEndian.PutUint32(buf[20:24], 1) // first_data_block
	binary.LittleEndian.PutUint32(buf[24:28], 0) // log_block_size -> 1024<<0
	binary.LittleEndian.PutUint32(buf[40:44], inodesCount)
	binary.LittleEndian.PutUint16(buf[56:58], 0xEF53)
	binary.LittleEndian.PutUint16(buf[88:90], inodeSize)
}

func writeGroupDesc(out []byte) {
	buf := out[groupDescOffset : groupDescOffset+32]
	binary.LittleEndian.PutUint32(buf[0:4], 3)                // block bitmap (unused by the reader)
	binary.LittleEndian.PutUint32(buf[4:8], 4)                // inode bitmap (unused by the reader)
	binary.LittleEndian.PutUint32(buf[8:12], inodeTableBlock) // inode table block id
}
