// Package dvfs переключает кластер CPU между рабочими точками. Текущая
// точка выводится из фактической частоты такта, а не запоминается, поэтому
// частота, выставленная в обход пакета, тоже определяется верно.
package dvfs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shiwa/mgmtcore/internal/clock"
	"github.com/shiwa/mgmtcore/internal/logger"
	"periph.io/x/conn/v3/physic"
)

// ErrInvalidOPP: неизвестное ядро или рабочая точка.
var ErrInvalidOPP = errors.New("invalid operating point")

// OPP задаёт одну рабочую точку. Индекс 0 в таблице самый медленный.
type OPP struct {
	Rate    physic.Frequency
	Voltage physic.ElectricPotential
}

// RateSetter перепрограммирует такт CPU.
type RateSetter interface {
	SetCPURate(physic.Frequency) error
}

// Regulator управляет шиной питания CPU.
type Regulator interface {
	SetVoltage(physic.ElectricPotential) error
}

// CPU переключает рабочие точки одного кластера.
type CPU struct {
	clk   clock.Handle
	rate  RateSetter
	reg   Regulator
	cores uint8
	table []OPP
	log   *logger.Logger
}

// New возвращает переключатель для кластера ядер с общим тактом clk. reg
// может быть nil при фиксированном питании. table сортируется по частоте.
func New(clk clock.Handle, rate RateSetter, reg Regulator, cores uint8, table []OPP) (*CPU, error) {
	if len(table) == 0 || len(table) > 256 {
		return nil, fmt.Errorf("dvfs: %d operating points", len(table))
	}
	if cores == 0 {
		return nil, errors.New("dvfs: no cores")
	}
	t := append([]OPP(nil), table...)
	sort.Slice(t, func(i, j int) bool { return t[i].Rate < t[j].Rate })
	for i := 1; i < len(t); i++ {
		if t[i].Rate == t[i-1].Rate {
			return nil, fmt.Errorf("dvfs: duplicate rate %v", t[i].Rate)
		}
	}
	return &CPU{clk: clk, rate: rate, reg: reg, cores: cores, table: t, log: logger.New("dvfs")}, nil
}

// Table возвращает рабочие точки, начиная с самой медленной.
func (c *CPU) Table() []OPP { return c.table }

// GetOPP возвращает самую быструю рабочую точку не выше текущей частоты,
// либо 0, если такт ниже всех точек.
func (c *CPU) GetOPP(core uint8) (uint8, error) {
	if core >= c.cores {
		return 0, fmt.Errorf("core %d: %w", core, ErrInvalidOPP)
	}
	rate, err := c.clk.Rate()
	if err != nil {
		return 0, err
	}
	level := 0
	for i, opp := range c.table {
		if opp.Rate <= rate {
			level = i
		}
	}
	return uint8(level), nil
}

// SetOPP переводит кластер ядра core на уровень level. Напряжение
// поднимается до ускорения и снижается после замедления.
func (c *CPU) SetOPP(core, level uint8) error {
	if core >= c.cores || int(level) >= len(c.table) {
		return fmt.Errorf("core %d level %d: %w", core, level, ErrInvalidOPP)
	}
	cur, err := c.clk.Rate()
	if err != nil {
		return err
	}
	opp := c.table[level]
	up := opp.Rate > cur

	if up {
		if err := c.setVoltage(opp.Voltage); err != nil {
			return err
		}
	}
	if err := c.rate.SetCPURate(opp.Rate); err != nil {
		return fmt.Errorf("set rate %v: %w", opp.Rate, err)
	}
	if !up {
		if err := c.setVoltage(opp.Voltage); err != nil {
			return err
		}
	}
	c.log.Info("core %d: level %d (%v, %v)", core, level, opp.Rate, opp.Voltage)
	return nil
}

func (c *CPU) setVoltage(v physic.ElectricPotential) error {
	if c.reg == nil || v == 0 {
		return nil
	}
	if err := c.reg.SetVoltage(v); err != nil {
		return fmt.Errorf("set voltage %v: %w", v, err)
	}
	return nil
}
