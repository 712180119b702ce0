package regs

import "fmt"

// Window задаёт подокно более широкой шины, начиная с Base.
type Window struct {
	Bus  Bus
	Base uint32
}

// Read32 реализует Bus.
func (w Window) Read32(off uint32) (uint32, error) {
	a, err := w.addr(off)
	if err != nil {
		return 0, err
	}
	return w.Bus.Read32(a)
}

// Write32 реализует Bus.
func (w Window) Write32(off uint32, v uint32) error {
	a, err := w.addr(off)
	if err != nil {
		return err
	}
	return w.Bus.Write32(a, v)
}

func (w Window) addr(off uint32) (uint32, error) {
	a := w.Base + off
	if a < w.Base {
		return 0, fmt.Errorf("window %#x: offset %#x wraps: %w", w.Base, off, ErrHardwareFault)
	}
	return a, nil
}
