// Command mkdisk builds a bootable disk image: an MBR with a single
// Linux partition at LBA 2048 containing an EXT2 filesystem populated
// by walking a host skeleton directory, mirroring the teacher's mkfs
// tool (biscuit/src/mkfs/mkfs.go) but targeting this kernel's read-only
// EXT2 reader instead of biscuit's own on-disk format.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

const (
	sectorSize   = 512
	partitionLBA = 2048
	mbrTypeLinux = 0x83
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: mkdisk <skeldir> <output image>\n")
		os.Exit(1)
	}
	skelDir, outPath := os.Args[1], os.Args[2]

	img := newImage()
	entries, err := addTree(img, skelDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mkdisk: %v\n", err)
		os.Exit(1)
	}
	img.setRoot(entries)

	partition := img.render()
	disk := assembleDisk(partition)

	if err := writeDisk(outPath, disk); err != nil {
		fmt.Fprintf(os.Stderr, "mkdisk: %v\n", err)
		os.Exit(1)
	}
}

// addTree walks dir on the host, recursing into subdirectories before
// returning so every child already has an inode number by the time its
// parent's directory block is written.
func addTree(img *image, dir string) ([]dirent, error) {
	hostEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	sort.Slice(hostEntries, func(i, j int) bool { return hostEntries[i].Name() < hostEntries[j].Name() })

	var out []dirent
	for _, e := range hostEntries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			children, err := addTree(img, path)
			if err != nil {
				return nil, err
			}
			out = append(out, dirent{inode: img.writeDir(children), name: e.Name()})
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		out = append(out, dirent{inode: img.writeFile(data), name: e.Name()})
	}
	return out, nil
}

// assembleDisk prefixes partition with an MBR boot sector naming a
// single Linux partition starting at partitionLBA.
func assembleDisk(partition []byte) []byte {
	disk := make([]byte, partitionLBA*sectorSize+len(partition))

	entry := disk[0x1BE : 0x1BE+16]
	entry[0] = 0 // not bootable
	entry[4] = mbrTypeLinux
	putLE32(entry[8:12], partitionLBA)
	putLE32(entry[12:16], uint32(len(partition)/sectorSize))
	disk[0x1FE] = 0x55
	disk[0x1FF] = 0xAA

	copy(disk[partitionLBA*sectorSize:], partition)
	return disk
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// writeDisk creates outPath fresh, preallocates it to the image's full
// size, and fsyncs before closing so the result is durable even if the
// process is killed immediately after mkdisk exits.
func writeDisk(outPath string, disk []byte) error {
	f, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Ftruncate(int(f.Fd()), int64(len(disk))); err != nil {
		return fmt.Errorf("ftruncate: %w", err)
	}
	if _, err := f.Write(disk); err != nil {
		return err
	}
	if err := unix.Fsync(int(f.Fd())); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}
