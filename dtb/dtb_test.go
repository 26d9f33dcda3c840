package dtb

import (
	"bytes"
	"encoding/binary"
	"testing"

	"riscvkernel/kerrors"
)

// buildTinyFDT hand-assembles a minimal FDT blob: root node with
// #address-cells=2 #size-cells=2, a single "memory@80000000" child node
// with a matching "reg" property.
func buildTinyFDT(t *testing.T, base, size uint64) []byte {
	t.Helper()

	be32 := func(buf *bytes.Buffer, v uint32) {
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], v)
		buf.Write(tmp[:])
	}
	cstr := func(buf *bytes.Buffer, s string) int {
		n, _ := buf.WriteString(s)
		buf.WriteByte(0)
		n++
		for buf.Len()%4 != 0 {
			buf.WriteByte(0)
		}
		return n
	}

	var strings bytes.Buffer
	addrCellsOff := strings.Len()
	cstr(&strings, "#address-cells")
	sizeCellsOff := strings.Len()
	cstr(&strings, "#size-cells")
	regOff := strings.Len()
	cstr(&strings, "reg")

	var structBlock bytes.Buffer
	be32(&structBlock, fdtBeginNode)
	cstr(&structBlock, "") // root node name

	be32(&structBlock, fdtProp)
	be32(&structBlock, 4)
	be32(&structBlock, uint32(addrCellsOff))
	be32(&structBlock, 2)

	be32(&structBlock, fdtProp)
	be32(&structBlock, 4)
	be32(&structBlock, uint32(sizeCellsOff))
	be32(&structBlock, 2)

	be32(&structBlock, fdtBeginNode)
	cstr(&structBlock, "memory@80000000")

	var reg bytes.Buffer
	be32(&reg, uint32(base>>32))
	be32(&reg, uint32(base))
	be32(&reg, uint32(size>>32))
	be32(&reg, uint32(size))

	be32(&structBlock, fdtProp)
	be32(&structBlock, uint32(reg.Len()))
	be32(&structBlock, uint32(regOff))
	structBlock.Write(reg.Bytes())

	be32(&structBlock, fdtEndNode)
	be32(&structBlock, fdtEndNode)
	be32(&structBlock, fdtEnd)

	const headerSize = 40
	structOff := headerSize
	stringsOff := structOff + structBlock.Len()

	var out bytes.Buffer
	be32(&out, fdtMagic)
	be32(&out, uint32(stringsOff+strings.Len()))
	be32(&out, uint32(structOff))
	be32(&out, uint32(stringsOff))
	be32(&out, 0) // off_mem_rsvmap, unused
	be32(&out, 17)
	be32(&out, 16)
	be32(&out, 0)
	be32(&out, uint32(strings.Len()))
	be32(&out, uint32(structBlock.Len()))
	out.Write(structBlock.Bytes())
	out.Write(strings.Bytes())
	return out.Bytes()
}

func TestReadExtractsMemoryNode(t *testing.T) {
	const wantBase, wantSize = 0x8000_0000, 0x800_0000
	blob := buildTinyFDT(t, wantBase, wantSize)

	info, err := Read(blob)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if info.Base != wantBase || info.Size != wantSize {
		t.Fatalf("got %+v, want base=%#x size=%#x", info, wantBase, wantSize)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	blob := make([]byte, 64)
	if _, err := Read(blob); err != kerrors.EDTB {
		t.Fatalf("err = %v, want EDTB", err)
	}
}

func TestReadRejectsTruncatedBlob(t *testing.T) {
	if _, err := Read([]byte{0xd0, 0x0d}); err != kerrors.EDTB {
		t.Fatalf("err = %v, want EDTB", err)
	}
}
