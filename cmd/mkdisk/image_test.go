package main

import (
	"bytes"
	"testing"

	"riscvkernel/ext2"
)

type memDevice []byte

func (m memDevice) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m[off:])
	return n, nil
}

func TestRenderedImageRoundTripsThroughReader(t *testing.T) {
	img := newImage()
	bootID := img.writeDir([]dirent{{inode: img.writeFile([]byte("Hello world!\n")), name: "hello.md"}})
	img.setRoot([]dirent{{inode: bootID, name: "boot"}})

	disk := assembleDisk(img.render())

	r, err := ext2.Open(memDevice(disk))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := r.ReadFile("/boot/hello.md")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := []byte("Hello world!\n")
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadFile = %q, want %q", got, want)
	}

	names, err := r.ListDir("/")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(names) != 1 || names[0] != "boot" {
		t.Fatalf("ListDir(/) = %v, want [boot]", names)
	}
}

func TestRenderedImageEmptyRootDirectory(t *testing.T) {
	img := newImage()
	img.setRoot(nil)

	disk := assembleDisk(img.render())
	r, err := ext2.Open(memDevice(disk))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	names, err := r.ListDir("/")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("ListDir(/) = %v, want empty", names)
	}
}
