// Package regs описывает отдельные биты и битовые поля 32-битных регистров
// устройства и выполняет над ними read-modify-write на шине регистров.
//
// Смещения отсчитываются от базы шины. Любое изменение затрагивает только
// названный бит или поле; соседние биты слова записываются обратно такими,
// какими были прочитаны. Повторов нет: ошибка доступа сразу возвращается
// вызывающему, обёрнутая в ErrHardwareFault.
package regs

import (
	"errors"
	"fmt"
)

// ErrHardwareFault сообщает о доступе к регистру, который повёл себя не так, как ожидалось.
var ErrHardwareFault = errors.New("hardware fault")

// Bus предоставляет окно 32-битных регистров.
type Bus interface {
	Read32(off uint32) (uint32, error)
	Write32(off uint32, v uint32) error
}

// Bit задаёт один бит одного регистра. ActiveLow отмечает линии сброса,
// активные при нулевом бите.
type Bit struct {
	Offset    uint32
	Index     uint8
	ActiveLow bool
}

// NewBit возвращает бит (offset, index).
func NewBit(offset uint32, index uint8) *Bit {
	return &Bit{Offset: offset, Index: index}
}

// NewResetBit возвращает бит сброса с активным нулём.
func NewResetBit(offset uint32, index uint8) *Bit {
	return &Bit{Offset: offset, Index: index, ActiveLow: true}
}

func (b Bit) mask() uint32 { return 1 << (b.Index & 31) }

func (b Bit) String() string {
	return fmt.Sprintf("%#04x[%d]", b.Offset, b.Index)
}

// Get сообщает, установлен ли бит физически.
func Get(bus Bus, b Bit) (bool, error) {
	v, err := read(bus, b.Offset)
	if err != nil {
		return false, err
	}
	return v&b.mask() != 0, nil
}

// Set устанавливает бит и проверяет его обратным чтением.
func Set(bus Bus, b Bit) error {
	return update(bus, b, true)
}

// Clear сбрасывает бит и проверяет его обратным чтением.
func Clear(bus Bus, b Bit) error {
	return update(bus, b, false)
}

// Assert переводит линию в активный уровень с учётом ActiveLow.
func Assert(bus Bus, b Bit) error {
	return update(bus, b, !b.ActiveLow)
}

// Deassert отпускает линию с учётом ActiveLow.
func Deassert(bus Bus, b Bit) error {
	return update(bus, b, b.ActiveLow)
}

// Asserted возвращает логический уровень линии.
func Asserted(bus Bus, b Bit) (bool, error) {
	on, err := Get(bus, b)
	if err != nil {
		return false, err
	}
	return on != b.ActiveLow, nil
}

func update(bus Bus, b Bit, on bool) error {
	v, err := read(bus, b.Offset)
	if err != nil {
		return err
	}
	nv := v &^ b.mask()
	if on {
		nv |= b.mask()
	}
	if nv == v {
		return nil
	}
	if err := write(bus, b.Offset, nv); err != nil {
		return err
	}
	got, err := read(bus, b.Offset)
	if err != nil {
		return err
	}
	if (got&b.mask() != 0) != on {
		return fmt.Errorf("bit %v did not latch: %w", b, ErrHardwareFault)
	}
	return nil
}

// Field задаёт битовое поле регистра. Нулевая Width означает, что поля нет.
type Field struct {
	Shift uint8
	Width uint8
}

// NewField возвращает поле ширины width, начиная с бита shift.
func NewField(shift, width uint8) Field {
	return Field{Shift: shift, Width: width}
}

// Present сообщает, есть ли поле.
func (f Field) Present() bool { return f.Width > 0 }

func (f Field) mask() uint32 {
	if f.Width >= 32 {
		return ^uint32(0)
	}
	return (uint32(1)<<f.Width - 1) << f.Shift
}

// Extract извлекает значение поля из слова регистра.
func (f Field) Extract(v uint32) uint32 {
	if !f.Present() {
		return 0
	}
	return (v & f.mask()) >> f.Shift
}

// Insert возвращает v с полем, заменённым на x. Лишние старшие биты x отбрасываются.
func (f Field) Insert(v, x uint32) uint32 {
	if !f.Present() {
		return v
	}
	return v&^f.mask() | (x<<f.Shift)&f.mask()
}

// Max возвращает наибольшее значение, которое вмещает поле.
func (f Field) Max() uint32 {
	return f.mask() >> f.Shift
}

// ReadField читает регистр off и извлекает из него f.
func ReadField(bus Bus, off uint32, f Field) (uint32, error) {
	v, err := read(bus, off)
	if err != nil {
		return 0, err
	}
	return f.Extract(v), nil
}

// WriteField заменяет поле f регистра off на x.
func WriteField(bus Bus, off uint32, f Field, x uint32) error {
	if x > f.Max() {
		return fmt.Errorf("value %d does not fit field %d:%d", x, f.Shift+f.Width-1, f.Shift)
	}
	v, err := read(bus, off)
	if err != nil {
		return err
	}
	nv := f.Insert(v, x)
	if nv == v {
		return nil
	}
	return write(bus, off, nv)
}

// Read возвращает регистр off целиком.
func Read(bus Bus, off uint32) (uint32, error) {
	return read(bus, off)
}

// Write записывает слово регистра целиком.
func Write(bus Bus, off, v uint32) error {
	return write(bus, off, v)
}

func read(bus Bus, off uint32) (uint32, error) {
	v, err := bus.Read32(off)
	if err != nil {
		return 0, fault("read", off, err)
	}
	return v, nil
}

func write(bus Bus, off, v uint32) error {
	if err := bus.Write32(off, v); err != nil {
		return fault("write", off, err)
	}
	return nil
}

func fault(op string, off uint32, err error) error {
	if errors.Is(err, ErrHardwareFault) {
		return fmt.Errorf("%s %#04x: %w", op, off, err)
	}
	return fmt.Errorf("%s %#04x: %v: %w", op, off, err, ErrHardwareFault)
}
