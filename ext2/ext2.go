package ext2

import (
	"encoding/binary"
	"errors"
	"io"
	"strings"

	"riscvkernel/kerrors"
)

var errTripleIndirectUnimplemented = errors.New("ext2: triple-indirect blocks not implemented")

/// Reader is a read-only EXT2 partition reader sitting on a block device
/// exposed as an io.ReaderAt (base spec §4.6).
type Reader struct {
	dev         io.ReaderAt
	firstSector uint32
	sb          *Superblock
}

// Open locates the first Linux partition on dev and reads its
// superblock, returning a ready-to-query Reader.
func Open(dev io.ReaderAt) (*Reader, error) {
	pt, err := ReadPartitionTable(dev)
	if err != nil {
		return nil, err
	}
	if !pt.IsMBR() {
		return nil, kerrors.EFILENOTEXISTS
	}
	part, ok := pt.FirstLinuxPartition()
	if !ok {
		return nil, kerrors.EFILENOTEXISTS
	}
	sb, err := ReadSuperblock(dev, part.InitialSector)
	if err != nil {
		return nil, err
	}
	if sb.Magic != ext2Magic {
		return nil, kerrors.EIO
	}
	return &Reader{dev: dev, firstSector: part.InitialSector, sb: sb}, nil
}

/// Stat resolves path (slash-separated, rooted at "/") to its Inode,
/// descending one directory component at a time from the root inode.
func (r *Reader) Stat(path string) (*Inode, error) {
	cur, err := readInode(r.dev, r.firstSector, r.sb, RootInode)
	if err != nil {
		return nil, err
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return cur, nil
	}
	for _, comp := range strings.Split(path, "/") {
		entries, err := r.readDir(cur)
		if err != nil {
			return nil, err
		}
		next, ok := entries[comp]
		if !ok {
			return nil, kerrors.EFILENOTEXISTS
		}
		cur, err = readInode(r.dev, r.firstSector, r.sb, next)
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

/// ReadFile returns the full contents of the regular file at path,
/// concatenating its data blocks and truncating the last to i_size.
func (r *Reader) ReadFile(path string) ([]byte, error) {
	in, err := r.Stat(path)
	if err != nil {
		return nil, err
	}
	return r.readInodeData(in)
}

func (r *Reader) readInodeData(in *Inode) ([]byte, error) {
	blocks, err := blocksFor(r.dev, r.firstSector, r.sb, in)
	if err != nil {
		return nil, err
	}
	blockSize := r.sb.BlockSize()
	out := make([]byte, 0, len(blocks)*int(blockSize))
	for _, b := range blocks {
		buf, err := readFromBlock(r.dev, r.firstSector, blockSize, b, int(blockSize))
		if err != nil {
			return nil, err
		}
		out = append(out, buf...)
	}
	if uint32(len(out)) > in.Size {
		out = out[:in.Size]
	}
	return out, nil
}

/// readDir iterates a directory inode's data blocks as a stream of
/// (inode, rec_len, name_len, file_type, name) entries, per base spec
/// §4.6: rec_len == 0 terminates, and iteration never advances past the
/// block end.
func (r *Reader) readDir(dirInode *Inode) (map[string]uint32, error) {
	data, err := r.readInodeData(dirInode)
	if err != nil {
		return nil, err
	}
	blockSize := int(r.sb.BlockSize())
	entries := make(map[string]uint32)

	for blockStart := 0; blockStart < len(data); blockStart += blockSize {
		blockEnd := blockStart + blockSize
		if blockEnd > len(data) {
			blockEnd = len(data)
		}
		block := data[blockStart:blockEnd]
		off := 0
		for off+8 <= len(block) {
			inode := binary.LittleEndian.Uint32(block[off : off+4])
			recLen := binary.LittleEndian.Uint16(block[off+4 : off+6])
			nameLen := block[off+6]
			if recLen == 0 {
				break
			}
			if inode != 0 {
				nameStart := off + 8
				nameEnd := nameStart + int(nameLen)
				if nameEnd <= len(block) {
					entries[string(block[nameStart:nameEnd])] = inode
				}
			}
			off += int(recLen)
		}
	}
	return entries, nil
}

/// ListDir returns the names present in the directory at path.
func (r *Reader) ListDir(path string) ([]string, error) {
	in, err := r.Stat(path)
	if err != nil {
		return nil, err
	}
	entries, err := r.readDir(in)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	return names, nil
}
