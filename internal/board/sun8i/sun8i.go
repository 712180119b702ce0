// Package sun8i описывает дерево тактирования Allwinner A83T: R_CCU в
// постоянно питаемом блоке PRCM и основной CCU. Оба блока заданы обычными
// дескрипторами ccu; собственный код здесь только перепрограммирует PLL
// процессора для DVFS.
package sun8i

import (
	"fmt"

	"github.com/shiwa/mgmtcore/internal/clock"
	"github.com/shiwa/mgmtcore/internal/clock/ccu"
	"github.com/shiwa/mgmtcore/internal/regs"
	"periph.io/x/conn/v3/physic"
)

// Физические базовые адреса окон регистров.
const (
	RPRCMBase = 0x01f01400
	CCUBase   = 0x01c20000
	// WindowSize покрывает все регистры обоих блоков.
	WindowSize = 0x400
)

// Выходы R_CCU.
const (
	OSC16M = iota
	OSC24M
	OSC32K
	AR100
	AHB0
	APB0
	BusRPIO
	BusRCIR
	BusRTimer
	BusRRSB
	BusRUART
	BusRI2C
	BusRTWD
	RCIRMod
	numRCCU
)

// Выходы CCU.
const (
	PLLPeriph0 = iota
	PLLC0CPUX
	C0CPUX
	APB2
	BusMsgbox
	BusPIO
	BusUART0
	BusUART1
	BusUART2
	BusUART3
	BusUART4
	numCCU
)

const (
	apb2Reg    = 0x0058
	apb2Osc24M = 1 << 24

	pllStep = 24 * physic.MegaHertz
)

// Board хранит связанный граф тактирования.
type Board struct {
	RCCU *ccu.CCU
	CCU  *ccu.CCU
}

// New связывает оба блока поверх их окон регистров.
func New(prcm, ccuBus regs.Bus) (*Board, error) {
	r := clock.NewDevice("r_ccu", numRCCU)
	c := clock.NewDevice("ccu", numCCU)

	rUnit, err := ccu.New(r, prcm, rCCUClocks(r, c))
	if err != nil {
		return nil, err
	}
	cUnit, err := ccu.New(c, ccuBus, ccuClocks(r, c))
	if err != nil {
		return nil, err
	}
	return &Board{RCCU: rUnit, CCU: cUnit}, nil
}

func rCCUClocks(r, c *clock.Device) []ccu.Clock {
	busGate := func(name string, bit uint8, reset bool) ccu.Clock {
		clk := ccu.Clock{
			Name:    name,
			Parents: []clock.Handle{r.Clock(APB0)},
			Gate:    regs.NewBit(0x0028, bit),
		}
		if reset {
			clk.Reset = regs.NewResetBit(0x00b0, bit)
		}
		return clk
	}
	cir := busGate("r_cir", 1, true)
	cir.MaxRate = 100 * physic.MegaHertz

	return []ccu.Clock{
		OSC16M: {Name: "osc16m", Fixed: 16 * physic.MegaHertz},
		OSC24M: {Name: "osc24m", Fixed: 24 * physic.MegaHertz},
		OSC32K: {Name: "osc32k", Fixed: 32768 * physic.Hertz},
		AR100: {
			Name:    "ar100",
			MaxRate: 300 * physic.MegaHertz,
			Parents: []clock.Handle{
				r.Clock(OSC32K),
				r.Clock(OSC24M),
				c.Clock(PLLPeriph0),
				r.Clock(OSC16M),
			},
			Reg: 0x0000,
			Mux: regs.NewField(16, 2),
			P:   regs.NewField(4, 2),
			// PLL_PERIPH0 идёт через дополнительный делитель.
			PreDiv: map[uint32]regs.Field{2: regs.NewField(8, 5)},
		},
		AHB0: {Name: "ahb0", Parents: []clock.Handle{r.Clock(AR100)}},
		APB0: {
			Name:    "apb0",
			Parents: []clock.Handle{r.Clock(AHB0)},
			Reg:     0x000c,
			P:       regs.NewField(0, 2),
		},
		BusRPIO:   busGate("r_pio", 0, false),
		BusRCIR:   cir,
		BusRTimer: busGate("r_timer", 2, true),
		BusRRSB:   busGate("r_rsb", 3, true),
		BusRUART:  busGate("r_uart", 4, true),
		BusRI2C:   busGate("r_i2c", 6, true),
		BusRTWD:   busGate("r_twd", 7, false),
		RCIRMod: {
			Name: "r_cir_mod",
			// Входы 2 и 3 зарезервированы.
			Parents: []clock.Handle{r.Clock(OSC32K), r.Clock(OSC24M), {}, {}},
			Reg:     0x0054,
			Mux:     regs.NewField(24, 2),
			M:       regs.NewField(0, 4),
			P:       regs.NewField(16, 2),
			Gate:    regs.NewBit(0x0054, 31),
		},
	}
}

// Шинные такты AHB1 и APB1 здесь корни: частоты этих шин не моделируются,
// только вентили и сбросы.
func ccuClocks(r, c *clock.Device) []ccu.Clock {
	uart := func(n uint8) ccu.Clock {
		return ccu.Clock{
			Name:    fmt.Sprintf("bus_uart%d", n),
			Parents: []clock.Handle{c.Clock(APB2)},
			Gate:    regs.NewBit(0x006c, 16+n),
			Reset:   regs.NewResetBit(0x02d8, 16+n),
		}
	}
	return []ccu.Clock{
		PLLPeriph0: {Name: "pll_periph0", Fixed: 600 * physic.MegaHertz},
		PLLC0CPUX: {
			Name:    "pll_c0cpux",
			MinRate: 288 * physic.MegaHertz,
			MaxRate: 1800 * physic.MegaHertz,
			Parents: []clock.Handle{r.Clock(OSC24M)},
			Reg:     0x0000,
			N:       regs.NewField(8, 8),
			Gate:    regs.NewBit(0x0000, 31),
		},
		C0CPUX: {
			Name:    "c0cpux",
			MaxRate: 1800 * physic.MegaHertz,
			Parents: []clock.Handle{r.Clock(OSC24M), c.Clock(PLLC0CPUX)},
			Reg:     0x0050,
			Mux:     regs.NewField(12, 1),
		},
		// У APB2 есть мультиплексор, но Init фиксирует его на OSC24M.
		APB2: {
			Name:    "apb2",
			Parents: []clock.Handle{r.Clock(OSC24M)},
			Reg:     apb2Reg,
			M:       regs.NewField(0, 5),
			P:       regs.NewField(16, 2),
		},
		BusMsgbox: {
			Name:  "bus_msgbox",
			Gate:  regs.NewBit(0x0064, 21),
			Reset: regs.NewResetBit(0x02c4, 21),
		},
		BusPIO: {
			Name: "bus_pio",
			Gate: regs.NewBit(0x0068, 5),
		},
		BusUART0: uart(0),
		BusUART1: uart(1),
		BusUART2: uart(2),
		BusUART3: uart(3),
		BusUART4: uart(4),
	}
}

// Init переводит APB2 на OSC24M/1.
func (b *Board) Init() error {
	if err := regs.Write(b.CCU.Bus(), apb2Reg, apb2Osc24M); err != nil {
		return fmt.Errorf("apb2: %w", err)
	}
	return nil
}

// CPUClock возвращает такт кластера 0.
func (b *Board) CPUClock() clock.Handle {
	return b.CCU.Device().Clock(C0CPUX)
}

// SetCPURate переводит кластер 0 на OSC24M, перепрограммирует PLL_C0CPUX на
// rate и возвращает кластер на PLL. rate должна быть кратна 24MHz и лежать
// в диапазоне PLL. Такт CPU должен быть включён: его ссылка следует за
// мультиплексором и держит PLL включённым.
func (b *Board) SetCPURate(rate physic.Frequency) error {
	osc := b.RCCU.Device().Clock(OSC24M)
	pll := b.CCU.Device().Clock(PLLC0CPUX)
	info, err := pll.Info()
	if err != nil {
		return err
	}
	if rate < info.MinRate || rate > info.MaxRate {
		return fmt.Errorf("cpu rate %v outside %v..%v: %w", rate, info.MinRate, info.MaxRate, clock.ErrInvalidOperation)
	}
	if rate%pllStep != 0 {
		return fmt.Errorf("cpu rate %v is not a multiple of %v: %w", rate, pllStep, clock.ErrInvalidOperation)
	}
	if b.CPUClock().Refcount() == 0 {
		return fmt.Errorf("cpu clock is not enabled: %w", clock.ErrInvalidOperation)
	}
	if err := b.CCU.SetParent(C0CPUX, osc); err != nil {
		return err
	}
	if err := b.CCU.SetN(PLLC0CPUX, uint32(rate/pllStep)); err != nil {
		return err
	}
	return b.CCU.SetParent(C0CPUX, pll)
}

// Clocks возвращает все выходы обоих блоков, сначала R_CCU.
func (b *Board) Clocks() []clock.Handle {
	var hs []clock.Handle
	for _, d := range []*clock.Device{b.RCCU.Device(), b.CCU.Device()} {
		for i := 0; i < d.Outputs(); i++ {
			hs = append(hs, d.Clock(uint8(i)))
		}
	}
	return hs
}

// Lookup ищет выход по имени.
func (b *Board) Lookup(name string) (clock.Handle, error) {
	for _, h := range b.Clocks() {
		info, err := h.Info()
		if err != nil {
			return clock.Handle{}, err
		}
		if info.Name == name {
			return h, nil
		}
	}
	return clock.Handle{}, fmt.Errorf("clock %q: %w", name, clock.ErrNoClock)
}
