package regs

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/mmr"
	"periph.io/x/host/v3"
)

// I2C открывает окно регистров устройства на шине I2C (внешний PMIC, генератор
// тактов). Адреса регистров 16-битные, данные 32-битные little-endian.
type I2C struct {
	mu     sync.Mutex
	name   string
	dev    mmr.Dev16
	closer io.Closer
}

// OpenI2C инициализирует драйверы хоста и открывает addr на шине bus.
func OpenI2C(bus string, addr uint16) (*I2C, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("i2creg.Open %s: %w", bus, err)
	}
	d := NewI2C(fmt.Sprintf("%s-%#02x", bus, addr), &i2c.Dev{Addr: addr, Bus: b})
	d.closer = b
	return d, nil
}

// NewI2C оборачивает уже открытое соединение.
func NewI2C(name string, c conn.Conn) *I2C {
	return &I2C{
		name: name,
		dev:  mmr.Dev16{Conn: c, Order: binary.LittleEndian},
	}
}

func (d *I2C) String() string { return "i2c:" + d.name }

func (d *I2C) reg(off uint32) (uint16, error) {
	if off > 0xffff {
		return 0, fmt.Errorf("%s: offset %#x beyond 16-bit register space: %w", d, off, ErrHardwareFault)
	}
	return uint16(off), nil
}

// Read32 реализует Bus.
func (d *I2C) Read32(off uint32) (uint32, error) {
	r, err := d.reg(off)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.dev.ReadUint32(r)
	if err != nil {
		return 0, fmt.Errorf("%s: read %#04x: %v: %w", d, r, err, ErrHardwareFault)
	}
	return v, nil
}

// Write32 реализует Bus.
func (d *I2C) Write32(off uint32, v uint32) error {
	r, err := d.reg(off)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dev.WriteUint32(r, v); err != nil {
		return fmt.Errorf("%s: write %#04x: %v: %w", d, r, err, ErrHardwareFault)
	}
	return nil
}

// Close освобождает шину, если её открыл OpenI2C.
func (d *I2C) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
