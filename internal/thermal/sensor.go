package thermal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"periph.io/x/conn/v3/physic"
)

// DefaultZones соответствует всем thermal zone Linux.
const DefaultZones = "/sys/class/thermal/thermal_zone*/temp"

// SysfsZone читает файл thermal zone или hwmon temp*_input; оба содержат
// миллиградусы Цельсия.
type SysfsZone struct {
	Path string
}

// Temperature реализует Sensor.
func (z SysfsZone) Temperature() (MilliCelsius, error) {
	b, err := os.ReadFile(z.Path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", z.Path, err)
	}
	return MilliCelsius(v), nil
}

func (z SysfsZone) String() string { return "sysfs:" + z.Path }

// SysfsZones возвращает по датчику на каждый файл, подходящий под pattern.
func SysfsZones(pattern string) ([]Sensor, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no sensor matches %s", pattern)
	}
	sensors := make([]Sensor, 0, len(paths))
	for _, p := range paths {
		sensors = append(sensors, SysfsZone{Path: p})
	}
	return sensors, nil
}

// EnvSensor адаптирует датчик окружающей среды periph (BME280, BMP180 и т.п.).
type EnvSensor struct {
	Dev physic.SenseEnv
}

// Temperature реализует Sensor.
func (s EnvSensor) Temperature() (MilliCelsius, error) {
	var e physic.Env
	if err := s.Dev.Sense(&e); err != nil {
		return 0, fmt.Errorf("%s: %w", s.Dev, err)
	}
	return MilliCelsius((e.Temperature - physic.ZeroCelsius) / physic.MilliKelvin), nil
}

// Static всегда отдаёт одно и то же показание; заменяет датчики на
// симулируемой плате.
type Static MilliCelsius

// Temperature реализует Sensor.
func (s Static) Temperature() (MilliCelsius, error) { return MilliCelsius(s), nil }
