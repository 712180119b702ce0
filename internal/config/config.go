// Package config загружает YAML-конфигурацию mgmtcore. Те же структуры
// размечены тегами config, чтобы beat распаковывал в них свою секцию.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Бэкенды регистров.
const (
	BackendSim  = "sim"
	BackendMMIO = "mmio"
	BackendI2C  = "i2c"
)

// Типы датчиков.
const (
	SensorSysfs  = "sysfs"
	SensorStatic = "static"
	SensorEnv    = "env"
)

// DefaultEnvAddr: основной адрес BMx280 на I2C.
const DefaultEnvAddr = 0x76

// Config описывает конфигурацию демона.
type Config struct {
	PollInterval string          `yaml:"poll_interval" config:"poll_interval"`
	Quiet        bool            `yaml:"quiet" config:"quiet"`
	Registers    RegistersConfig `yaml:"registers" config:"registers"`
	Sensors      []SensorConfig  `yaml:"sensors" config:"sensors"`
	DVFS         DVFSConfig      `yaml:"dvfs" config:"dvfs"`
	Shutdown     ShutdownConfig  `yaml:"shutdown" config:"shutdown"`
	// EnableClocks выводятся из сброса и включаются при старте.
	EnableClocks []string `yaml:"enable_clocks" config:"enable_clocks"`
}

// RegistersConfig задаёт, где находятся регистры блоков тактирования. Для
// бэкенда i2c окно R_CCU начинается с регистра 0x0000 устройства, окно CCU
// сразу за ним.
type RegistersConfig struct {
	Backend  string `yaml:"backend" config:"backend"`
	MemPath  string `yaml:"mem_path" config:"mem_path"`
	RCCUBase uint64 `yaml:"r_ccu_base" config:"r_ccu_base"`
	CCUBase  uint64 `yaml:"ccu_base" config:"ccu_base"`
	I2CBus   string `yaml:"i2c_bus" config:"i2c_bus"`
	I2CAddr  uint16 `yaml:"i2c_addr" config:"i2c_addr"`
}

// SensorConfig описывает один источник температуры. Путь sysfs может быть
// glob-шаблоном; датчик env это Bosch BMP180/BMx280 на шине i2c_bus.
type SensorConfig struct {
	Type         string `yaml:"type" config:"type"`
	Path         string `yaml:"path" config:"path"`
	MilliCelsius int32  `yaml:"millicelsius" config:"millicelsius"`
	I2CBus       string `yaml:"i2c_bus" config:"i2c_bus"`
	I2CAddr      uint16 `yaml:"i2c_addr" config:"i2c_addr"`
}

// DVFSConfig содержит таблицу рабочих точек кластера 0.
type DVFSConfig struct {
	Cores uint8       `yaml:"cores" config:"cores"`
	OPPs  []OPPConfig `yaml:"opps" config:"opps"`
	// InitialLevel, если задан, применяется один раз при старте.
	InitialLevel *int `yaml:"initial_level" config:"initial_level"`
}

// OPPConfig задаёт одну рабочую точку.
type OPPConfig struct {
	MHz        uint32 `yaml:"mhz" config:"mhz"`
	MilliVolts uint32 `yaml:"millivolts" config:"millivolts"`
}

// ShutdownConfig управляет реакцией на критическую температуру.
type ShutdownConfig struct {
	DryRun bool `yaml:"dry_run" config:"dry_run"`
}

// Default возвращает конфигурацию симулируемой платы A83T.
func Default() *Config {
	return &Config{
		PollInterval: "1s",
		Registers: RegistersConfig{
			Backend:  BackendSim,
			MemPath:  "/dev/mem",
			RCCUBase: 0x01f01400,
			CCUBase:  0x01c20000,
			I2CAddr:  0x50,
		},
		DVFS: DVFSConfig{
			Cores: 4,
			OPPs: []OPPConfig{
				{MHz: 480, MilliVolts: 820},
				{MHz: 720, MilliVolts: 880},
				{MHz: 1008, MilliVolts: 1000},
				{MHz: 1200, MilliVolts: 1100},
			},
		},
	}
}

// Load читает YAML-файл path и заполняет значения по умолчанию.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	ApplyDefaults(&c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults заполняет незаданные поля из Default.
func ApplyDefaults(c *Config) {
	d := Default()
	if c.PollInterval == "" {
		c.PollInterval = d.PollInterval
	}
	r := &c.Registers
	if r.Backend == "" {
		r.Backend = d.Registers.Backend
	}
	if r.MemPath == "" {
		r.MemPath = d.Registers.MemPath
	}
	if r.RCCUBase == 0 {
		r.RCCUBase = d.Registers.RCCUBase
	}
	if r.CCUBase == 0 {
		r.CCUBase = d.Registers.CCUBase
	}
	if r.I2CAddr == 0 {
		r.I2CAddr = d.Registers.I2CAddr
	}
	if c.DVFS.Cores == 0 {
		c.DVFS.Cores = d.DVFS.Cores
	}
	if len(c.DVFS.OPPs) == 0 {
		c.DVFS.OPPs = d.DVFS.OPPs
	}
	for i := range c.Sensors {
		if c.Sensors[i].Type == "" {
			c.Sensors[i].Type = SensorSysfs
		}
		if c.Sensors[i].Type == SensorEnv && c.Sensors[i].I2CAddr == 0 {
			c.Sensors[i].I2CAddr = DefaultEnvAddr
		}
	}
}

// Interval возвращает период опроса.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// Validate отклоняет значения, с которыми демон не может работать.
func (c *Config) Validate() error {
	switch c.Registers.Backend {
	case BackendSim, BackendMMIO:
	case BackendI2C:
		if c.Registers.I2CBus == "" {
			return fmt.Errorf("registers: i2c backend needs i2c_bus")
		}
	default:
		return fmt.Errorf("registers: unknown backend %q", c.Registers.Backend)
	}
	for i, s := range c.Sensors {
		switch s.Type {
		case SensorSysfs, SensorStatic:
		case SensorEnv:
			if s.I2CBus == "" {
				return fmt.Errorf("sensors[%d]: env sensor needs i2c_bus", i)
			}
		default:
			return fmt.Errorf("sensors[%d]: unknown type %q", i, s.Type)
		}
	}
	if l := c.DVFS.InitialLevel; l != nil && (*l < 0 || *l >= len(c.DVFS.OPPs)) {
		return fmt.Errorf("dvfs: initial_level %d outside table of %d", *l, len(c.DVFS.OPPs))
	}
	return nil
}
