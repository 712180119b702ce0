// Package ccu реализует драйвер блоков управления тактированием в стиле
// Allwinner: каждый выход задан статическим дескриптором Clock (кандидаты в
// родители, регистр с полями мультиплексора и коэффициентов, бит вентиля и
// бит сброса).
//
// Частота выхода:
//
//	parent * N / (M+1) / (PreDiv+1) >> P
//
// отсутствующие поля из формулы выпадают.
package ccu

import (
	"errors"
	"fmt"
	"math"

	"github.com/shiwa/mgmtcore/internal/clock"
	"github.com/shiwa/mgmtcore/internal/regs"
	"periph.io/x/conn/v3/physic"
)

// Clock описывает один выход CCU.
type Clock struct {
	Name    string
	MinRate physic.Frequency
	MaxRate physic.Frequency

	// Fixed делает выход корнем с постоянной частотой. У таких выходов нет
	// родителей, полей, вентиля и сброса.
	Fixed physic.Frequency

	// Parents перечисляет входы мультиплексора в порядке кодирования.
	// Нулевой Handle означает зарезервированный код. Больше одного
	// родителя требует Mux.
	Parents []clock.Handle

	Reg uint32
	Mux regs.Field
	N   regs.Field // множитель, как есть
	M   regs.Field // делитель, значение+1
	P   regs.Field // постделитель, степень двойки

	// PreDiv задаёт дополнительные делители (значение+1), действующие
	// только при выборе соответствующего входа.
	PreDiv map[uint32]regs.Field

	Gate  *regs.Bit
	Reset *regs.Bit
}

func (c *Clock) factors() bool {
	return c.N.Present() || c.M.Present() || c.P.Present() || len(c.PreDiv) > 0
}

func (c *Clock) validate() error {
	if c.Fixed != 0 {
		if len(c.Parents) > 0 || c.factors() || c.Mux.Present() || c.Gate != nil || c.Reset != nil {
			return errors.New("fixed rate clock with parents, fields, gate or reset")
		}
		return nil
	}
	if len(c.Parents) > 1 {
		if !c.Mux.Present() {
			return fmt.Errorf("%d parents without a mux field", len(c.Parents))
		}
		if uint64(len(c.Parents))-1 > uint64(c.Mux.Max()) {
			return fmt.Errorf("%d parents do not fit a %d-bit mux", len(c.Parents), c.Mux.Width)
		}
	}
	if len(c.Parents) == 1 && c.Parents[0].Dev == nil {
		return errors.New("single parent is reserved")
	}
	for sel := range c.PreDiv {
		if int(sel) >= len(c.Parents) {
			return fmt.Errorf("pre-divider for mux input %d out of range", sel)
		}
	}
	return nil
}

// CCU реализует драйвер по дескрипторам регистров для одного clock.Device.
type CCU struct {
	dev    *clock.Device
	bus    regs.Bus
	clocks []Clock
}

// New проверяет дескрипторы, привязывает их к dev и подключает драйвер.
// У dev должно быть ровно len(clocks) выходов.
func New(dev *clock.Device, bus regs.Bus, clocks []Clock) (*CCU, error) {
	if dev.Outputs() != len(clocks) {
		return nil, fmt.Errorf("ccu %s: %d outputs, %d descriptors", dev.Name(), dev.Outputs(), len(clocks))
	}
	for i := range clocks {
		if err := clocks[i].validate(); err != nil {
			return nil, fmt.Errorf("ccu %s: clock %d (%s): %w", dev.Name(), i, clocks[i].Name, err)
		}
	}
	c := &CCU{dev: dev, bus: bus, clocks: clocks}
	dev.Attach(c)
	return c, nil
}

// Device возвращает устройство, к которому подключён драйвер.
func (c *CCU) Device() *clock.Device { return c.dev }

// Bus возвращает окно регистров блока.
func (c *CCU) Bus() regs.Bus { return c.bus }

// Clock возвращает дескриптор выхода id.
func (c *CCU) Clock(id uint8) *Clock { return &c.clocks[id] }

// Info реализует clock.Driver.
func (c *CCU) Info(id uint8) (clock.Info, error) {
	clk := &c.clocks[id]
	if clk.Fixed != 0 {
		return clock.Info{Name: clk.Name, MinRate: clk.Fixed, MaxRate: clk.Fixed}, nil
	}
	return clock.Info{Name: clk.Name, MinRate: clk.MinRate, MaxRate: clk.MaxRate}, nil
}

// Parent реализует clock.Parenter. Мультиплексор читается из железа при
// каждом вызове.
func (c *CCU) Parent(id uint8) (clock.Handle, bool, error) {
	clk := &c.clocks[id]
	switch len(clk.Parents) {
	case 0:
		return clock.Handle{}, false, nil
	case 1:
		return clk.Parents[0], true, nil
	}
	sel, err := regs.ReadField(c.bus, clk.Reg, clk.Mux)
	if err != nil {
		return clock.Handle{}, false, err
	}
	if int(sel) >= len(clk.Parents) || clk.Parents[sel].Dev == nil {
		return clock.Handle{}, false, fmt.Errorf("%s: reserved mux value %d: %w", clk.Name, sel, regs.ErrHardwareFault)
	}
	return clk.Parents[sel], true, nil
}

// Rate реализует clock.Driver.
func (c *CCU) Rate(id uint8, parent physic.Frequency) (physic.Frequency, error) {
	clk := &c.clocks[id]
	if clk.Fixed != 0 {
		return clk.Fixed, nil
	}
	if !clk.factors() {
		return parent, nil
	}
	v, err := regs.Read(c.bus, clk.Reg)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", clk.Name, err)
	}
	if parent < 0 {
		return 0, fmt.Errorf("%s: negative parent rate %d", clk.Name, parent)
	}

	rate := uint64(parent)
	if clk.N.Present() {
		n := uint64(clk.N.Extract(v))
		if n != 0 && rate > math.MaxInt64/n {
			return 0, fmt.Errorf("%s: rate overflow (%v x %d)", clk.Name, parent, n)
		}
		rate *= n
	}
	if clk.M.Present() {
		rate /= uint64(clk.M.Extract(v)) + 1
	}
	if f, ok := clk.PreDiv[clk.Mux.Extract(v)]; ok && clk.Mux.Present() {
		rate /= uint64(f.Extract(v)) + 1
	}
	if clk.P.Present() {
		rate >>= clk.P.Extract(v)
	}
	return physic.Frequency(rate), nil
}

// State реализует clock.Gater. Выходы без вентиля включены всегда.
func (c *CCU) State(id uint8) (bool, error) {
	clk := &c.clocks[id]
	if clk.Gate == nil {
		return true, nil
	}
	return regs.Get(c.bus, *clk.Gate)
}

// SetState реализует clock.Gater.
func (c *CCU) SetState(id uint8, on bool) error {
	clk := &c.clocks[id]
	if clk.Gate == nil {
		return nil
	}
	if on {
		return regs.Set(c.bus, *clk.Gate)
	}
	return regs.Clear(c.bus, *clk.Gate)
}

// SetReset реализует clock.Resetter. Выходы без сброса его игнорируют.
func (c *CCU) SetReset(id uint8, asserted bool) error {
	clk := &c.clocks[id]
	if clk.Reset == nil {
		return nil
	}
	if asserted {
		return regs.Assert(c.bus, *clk.Reset)
	}
	return regs.Deassert(c.bus, *clk.Reset)
}

// SetParent переключает мультиплексор выхода id на p. Если у выхода есть
// ссылки, p включается до переключения, а прежний родитель освобождается
// после него: ссылка переходит вместе с мультиплексором.
func (c *CCU) SetParent(id uint8, p clock.Handle) error {
	clk := &c.clocks[id]
	if p.Dev == nil {
		return fmt.Errorf("%s: %w", clk.Name, clock.ErrNoClock)
	}
	sel := -1
	for i, cand := range clk.Parents {
		if cand == p {
			sel = i
			break
		}
	}
	if sel < 0 {
		return fmt.Errorf("%s: %v is not a parent: %w", clk.Name, p, clock.ErrInvalidOperation)
	}
	if len(clk.Parents) == 1 {
		return nil
	}
	if c.dev.Clock(id).Refcount() == 0 {
		return regs.WriteField(c.bus, clk.Reg, clk.Mux, uint32(sel))
	}

	old, _, err := c.Parent(id)
	if err != nil {
		return err
	}
	if old == p {
		return nil
	}
	if err := p.Enable(); err != nil {
		return err
	}
	if err := regs.WriteField(c.bus, clk.Reg, clk.Mux, uint32(sel)); err != nil {
		if rerr := p.Disable(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return err
	}
	if err := old.Disable(); err != nil {
		return fmt.Errorf("%s: release %v: %w", clk.Name, old, err)
	}
	return nil
}

// SetN записывает поле множителя выхода id.
func (c *CCU) SetN(id uint8, n uint32) error {
	clk := &c.clocks[id]
	if !clk.N.Present() {
		return fmt.Errorf("%s: no multiplier: %w", clk.Name, clock.ErrInvalidOperation)
	}
	if n == 0 || n > clk.N.Max() {
		return fmt.Errorf("%s: multiplier %d out of range: %w", clk.Name, n, clock.ErrInvalidOperation)
	}
	return regs.WriteField(c.bus, clk.Reg, clk.N, n)
}
