package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"

	"riscvkernel/ext2"
)

// skeleton is the host directory tree addTree walks, expressed as one
// txtar archive instead of a handful of os.WriteFile calls.
var skeleton = []byte(`
-- hello.md --
Hello world!
-- boot/notes.txt --
first boot notes
-- boot/second/deep.txt --
nested file
`)

func writeSkeleton(t *testing.T, archive []byte) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range txtar.Parse(archive).Files {
		path := filepath.Join(root, f.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestAddTreeBuildsNestedDirectories(t *testing.T) {
	root := writeSkeleton(t, skeleton)

	img := newImage()
	entries, err := addTree(img, root)
	if err != nil {
		t.Fatalf("addTree: %v", err)
	}
	img.setRoot(entries)

	disk := assembleDisk(img.render())
	r, err := ext2.Open(memDevice(disk))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, err := r.ReadFile("/hello.md")
	if err != nil {
		t.Fatalf("ReadFile(/hello.md): %v", err)
	}
	if !bytes.Equal(got, []byte("Hello world!\n")) {
		t.Fatalf("ReadFile(/hello.md) = %q", got)
	}

	got, err = r.ReadFile("/boot/second/deep.txt")
	if err != nil {
		t.Fatalf("ReadFile(/boot/second/deep.txt): %v", err)
	}
	if !bytes.Equal(got, []byte("nested file\n")) {
		t.Fatalf("ReadFile(/boot/second/deep.txt) = %q", got)
	}

	names, err := r.ListDir("/boot")
	if err != nil {
		t.Fatalf("ListDir(/boot): %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("ListDir(/boot) = %v, want 2 entries", names)
	}
}
