package regs

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

// MMIO открывает окно регистров, отображённое из устройства памяти (обычно /dev/mem).
type MMIO struct {
	path string
	base uintptr
	size uint32
	mem  mmap.MMap
	offs uintptr
}

// OpenMMIO отображает size байт физического адресного пространства от base.
// Отображение начинается с границы страницы ниже base, как требует mmap.
func OpenMMIO(path string, base uintptr, size uint32) (*MMIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	page := uintptr(os.Getpagesize())
	mapAddr := base &^ (page - 1)
	offs := base - mapAddr
	mem, err := mmap.MapRegion(f, int(offs)+int(size), mmap.RDWR, 0, int64(mapAddr))
	if err != nil {
		return nil, fmt.Errorf("map %s at %#x (+%#x): %w", path, base, size, err)
	}
	return &MMIO{path: path, base: base, size: size, mem: mem, offs: offs}, nil
}

func (m *MMIO) String() string {
	return fmt.Sprintf("mmio:%s@%#x", m.path, m.base)
}

func (m *MMIO) word(off uint32) (*uint32, error) {
	if m.mem == nil {
		return nil, fmt.Errorf("%s: closed: %w", m, ErrHardwareFault)
	}
	if off&3 != 0 || uint64(off)+4 > uint64(m.size) {
		return nil, fmt.Errorf("%s: offset %#x outside window: %w", m, off, ErrHardwareFault)
	}
	return (*uint32)(unsafe.Pointer(&m.mem[m.offs+uintptr(off)])), nil
}

// Read32 реализует Bus.
func (m *MMIO) Read32(off uint32) (uint32, error) {
	p, err := m.word(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

// Write32 реализует Bus.
func (m *MMIO) Write32(off uint32, v uint32) error {
	p, err := m.word(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, v)
	return nil
}

// Close снимает отображение.
func (m *MMIO) Close() error {
	if m.mem == nil {
		return nil
	}
	err := m.mem.Unmap()
	m.mem = nil
	return err
}
