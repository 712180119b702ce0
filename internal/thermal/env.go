package thermal

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// I2CEnv описывает Bosch BMP180/BMP280/BME280 на собственном дескрипторе шины I2C.
type I2CEnv struct {
	EnvSensor
	bus i2c.BusCloser
}

// OpenBMxx80 инициализирует драйверы хоста и опрашивает BMx80 по адресу addr.
func OpenBMxx80(bus string, addr uint16) (*I2CEnv, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("i2creg.Open %s: %w", bus, err)
	}
	d, err := bmxx80.NewI2C(b, addr, &bmxx80.DefaultOpts)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("bmxx80 %s-%#02x: %w", bus, addr, err)
	}
	return &I2CEnv{EnvSensor: EnvSensor{Dev: d}, bus: b}, nil
}

// Close останавливает датчик и освобождает шину.
func (s *I2CEnv) Close() error {
	return errors.Join(s.Dev.Halt(), s.bus.Close())
}
