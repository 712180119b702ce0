package regs

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func memFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mem")
	if err := os.WriteFile(path, make([]byte, size), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMMIO_ReadWrite(t *testing.T) {
	page := os.Getpagesize()
	path := memFile(t, 2*page)

	// База намеренно не выровнена по странице.
	base := uintptr(page + 0x400)
	m, err := OpenMMIO(path, base, 0x100)
	if err != nil {
		t.Fatalf("OpenMMIO: %v", err)
	}
	if err := Set(m, *NewBit(0x28, 4)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Write32(0x0, 0x00010000); err != nil {
		t.Fatal(err)
	}
	v, err := m.Read32(0x28)
	if err != nil || v != 1<<4 {
		t.Errorf("Read32(0x28) = %#x, %v", v, err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.NativeEndian.Uint32(raw[int(base)+0x28:]); got != 1<<4 {
		t.Errorf("file word at base+0x28 = %#x, want %#x", got, 1<<4)
	}
	if got := binary.NativeEndian.Uint32(raw[int(base):]); got != 0x00010000 {
		t.Errorf("file word at base = %#x", got)
	}
}

func TestMMIO_Bounds(t *testing.T) {
	path := memFile(t, os.Getpagesize())
	m, err := OpenMMIO(path, 0, 0x40)
	if err != nil {
		t.Fatalf("OpenMMIO: %v", err)
	}
	defer m.Close()

	for _, off := range []uint32{0x40, 0x3e, 0x1000} {
		if _, err := m.Read32(off); !errors.Is(err, ErrHardwareFault) {
			t.Errorf("Read32(%#x): got %v, want ErrHardwareFault", off, err)
		}
	}
	if err := m.Write32(0x3c, 1); err != nil {
		t.Errorf("Write32 at last word: %v", err)
	}
}

func TestMMIO_Closed(t *testing.T) {
	path := memFile(t, os.Getpagesize())
	m, err := OpenMMIO(path, 0, 0x10)
	if err != nil {
		t.Fatal(err)
	}
	m.Close()
	if _, err := m.Read32(0); !errors.Is(err, ErrHardwareFault) {
		t.Errorf("read after Close: %v", err)
	}
}

func TestMMIO_MissingDevice(t *testing.T) {
	if _, err := OpenMMIO(filepath.Join(t.TempDir(), "nope"), 0, 4); err == nil {
		t.Error("expected error opening missing device")
	}
}
