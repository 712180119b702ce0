// Package mgmtcore собирает из конфигурации граф тактирования, DVFS и
// тепловой монитор и запускает цикл опроса. Используется демоном mgmtcored
// и встраивается в beat.
package mgmtcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shiwa/mgmtcore/internal/board/sun8i"
	"github.com/shiwa/mgmtcore/internal/config"
	"github.com/shiwa/mgmtcore/internal/dvfs"
	"github.com/shiwa/mgmtcore/internal/logger"
	"github.com/shiwa/mgmtcore/internal/power"
	"github.com/shiwa/mgmtcore/internal/regs"
	"github.com/shiwa/mgmtcore/internal/thermal"
	"periph.io/x/conn/v3/physic"
)

// openEnv открывает датчик окружающей среды на I2C; подменяется в тестах.
var openEnv = func(bus string, addr uint16) (thermal.Sensor, io.Closer, error) {
	s, err := thermal.OpenBMxx80(bus, addr)
	if err != nil {
		return nil, nil, err
	}
	return s, s, nil
}

// ErrHalted возвращается RunDaemon после выключения системы по критической
// температуре.
var ErrHalted = errors.New("thermal monitor halted")

// Report передаётся наблюдателю после каждого опроса.
type Report struct {
	Time time.Time
	thermal.Status
	CPURate physic.Frequency
	OPP     uint8
}

// System хранит собранное ядро управления.
type System struct {
	Board   *sun8i.Board
	CPU     *dvfs.CPU
	Monitor *thermal.Monitor

	closers []io.Closer
	log     *logger.Logger
}

// Build открывает бэкенд регистров и связывает всё, что описано в cfg.
// Включаются такт CPU и все такты из EnableClocks.
func Build(cfg *config.Config) (*System, error) {
	s := &System{log: logger.New("core")}
	prcm, cc, err := s.openBuses(cfg.Registers)
	if err != nil {
		return nil, err
	}
	if s.Board, err = sun8i.New(prcm, cc); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.setupClocks(cfg.EnableClocks); err != nil {
		s.Close()
		return nil, err
	}
	if s.CPU, err = dvfs.New(s.Board.CPUClock(), s.Board, nil, cfg.DVFS.Cores, oppTable(cfg.DVFS.OPPs)); err != nil {
		s.Close()
		return nil, err
	}
	if l := cfg.DVFS.InitialLevel; l != nil {
		if err := s.CPU.SetOPP(0, uint8(*l)); err != nil {
			s.Close()
			return nil, fmt.Errorf("initial operating point: %w", err)
		}
	}

	var shutdown thermal.Shutdowner = power.NewSystem()
	if cfg.Shutdown.DryRun {
		shutdown = power.NewDryRun()
	}
	s.Monitor = thermal.New(s.sensors(cfg.Sensors), s.CPU, shutdown, thermal.DefaultThresholds())
	return s, nil
}

func (s *System) openBuses(rc config.RegistersConfig) (prcm, cc regs.Bus, err error) {
	switch rc.Backend {
	case config.BackendMMIO:
		p, err := regs.OpenMMIO(rc.MemPath, uintptr(rc.RCCUBase), sun8i.WindowSize)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, p)
		c, err := regs.OpenMMIO(rc.MemPath, uintptr(rc.CCUBase), sun8i.WindowSize)
		if err != nil {
			s.Close()
			return nil, nil, err
		}
		s.closers = append(s.closers, c)
		return p, c, nil
	case config.BackendI2C:
		d, err := regs.OpenI2C(rc.I2CBus, rc.I2CAddr)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, d)
		return regs.Window{Bus: d}, regs.Window{Bus: d, Base: sun8i.WindowSize}, nil
	default:
		return regs.NewSim("r_prcm"), regs.NewSim("ccu"), nil
	}
}

func (s *System) setupClocks(names []string) error {
	if err := s.Board.Init(); err != nil {
		return err
	}
	if err := s.Board.CPUClock().Enable(); err != nil {
		return fmt.Errorf("cpu clock: %w", err)
	}
	for _, name := range names {
		h, err := s.Board.Lookup(name)
		if err != nil {
			return err
		}
		if err := h.Enable(); err != nil {
			return err
		}
		if err := h.DeassertReset(); err != nil {
			return err
		}
		rate, err := h.Rate()
		if err != nil {
			return err
		}
		s.log.Info("clock %s enabled at %v", name, rate)
	}
	return nil
}

func (s *System) sensors(cfgs []config.SensorConfig) []thermal.Sensor {
	if len(cfgs) == 0 {
		cfgs = []config.SensorConfig{{Type: config.SensorSysfs, Path: thermal.DefaultZones}}
	}
	var out []thermal.Sensor
	for _, c := range cfgs {
		switch c.Type {
		case config.SensorStatic:
			out = append(out, thermal.Static(c.MilliCelsius))
		case config.SensorEnv:
			sensor, closer, err := openEnv(c.I2CBus, c.I2CAddr)
			if err != nil {
				s.log.Warn("sensors: %v", err)
				continue
			}
			s.closers = append(s.closers, closer)
			out = append(out, sensor)
		default:
			if !strings.ContainsAny(c.Path, "*?[") {
				out = append(out, thermal.SysfsZone{Path: c.Path})
				continue
			}
			zones, err := thermal.SysfsZones(c.Path)
			if err != nil {
				s.log.Warn("sensors: %v", err)
				continue
			}
			out = append(out, zones...)
		}
	}
	s.log.Info("%d temperature sensors", len(out))
	return out
}

// Report возвращает состояние монитора и текущую рабочую точку CPU.
func (s *System) Report() Report {
	r := Report{Time: time.Now(), Status: s.Monitor.Status()}
	var err error
	if r.CPURate, err = s.Board.CPUClock().Rate(); err != nil {
		s.log.Error("cpu rate: %v", err)
	}
	if r.OPP, err = s.CPU.GetOPP(0); err != nil {
		s.log.Error("cpu operating point: %v", err)
	}
	return r
}

// Close освобождает бэкенды регистров и датчики.
func (s *System) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// RunDaemon опрашивает датчики каждые cfg.PollInterval до отмены ctx или
// остановки монитора. observer, если не nil, получает Report после каждого
// опроса.
func RunDaemon(ctx context.Context, cfg *config.Config, observer func(Report)) error {
	if cfg == nil {
		cfg = config.Default()
	}
	logger.Quiet = cfg.Quiet
	s, err := Build(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	interval := cfg.Interval()
	s.log.Info("backend=%s interval=%v opps=%d", cfg.Registers.Backend, interval, len(s.CPU.Table()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		s.Monitor.PollSensors()
		if observer != nil {
			observer(s.Report())
		}
		if s.Monitor.Halted() {
			return ErrHalted
		}
	}
}

func oppTable(cfgs []config.OPPConfig) []dvfs.OPP {
	t := make([]dvfs.OPP, 0, len(cfgs))
	for _, c := range cfgs {
		t = append(t, dvfs.OPP{
			Rate:    physic.Frequency(c.MHz) * physic.MegaHertz,
			Voltage: physic.ElectricPotential(c.MilliVolts) * physic.MilliVolt,
		})
	}
	return t
}
