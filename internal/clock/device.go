// Package clock реализует движок графа тактирования. Аппаратные блоки,
// вырабатывающие такты, реализуют Driver (и при необходимости дополнительные
// интерфейсы возможностей) и привязываются к Device; каждый выход затем
// адресуется через Handle.
//
// Движок не потокобезопасен: все операции над графом выполняются из одной
// горутины, как и весь цикл ядра управления.
package clock

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Info описывает один выход тактирования.
type Info struct {
	Name    string
	MinRate physic.Frequency
	MaxRate physic.Frequency
}

// Driver задаёт обязательную часть таблицы возможностей.
//
// Rate получает частоту выбранного родителя (0 для корневых источников) и
// возвращает частоту выхода.
type Driver interface {
	Info(id uint8) (Info, error)
	Rate(id uint8, parent physic.Frequency) (physic.Frequency, error)
}

// Parenter реализуют драйверы, у выходов которых есть родители. Выходы
// остальных драйверов считаются корнями.
type Parenter interface {
	// Parent возвращает выбранного сейчас родителя; ok == false для корней.
	Parent(id uint8) (h Handle, ok bool, err error)
}

// Gater реализуют драйверы с управляемыми вентилями. Выходы остальных
// драйверов работают всегда.
type Gater interface {
	State(id uint8) (bool, error)
	SetState(id uint8, on bool) error
}

// Resetter реализуют драйверы с линиями сброса. У остальных сброса нет,
// запросы сброса для них проходят без эффекта.
type Resetter interface {
	SetReset(id uint8, asserted bool) error
}

type state struct {
	refcount uint32
}

// Device связывает имя и драйвер с состоянием каждого выхода.
type Device struct {
	name   string
	drv    Driver
	states []state
}

// NewDevice возвращает устройство с n выходами без драйвера. Сначала
// создаются устройства, затем подключаются драйверы, чтобы драйверы разных
// устройств могли ссылаться на выходы друг друга как на родителей.
func NewDevice(name string, n int) *Device {
	if n < 0 || n > 256 {
		panic(fmt.Sprintf("clock: device %s: %d outputs", name, n))
	}
	return &Device{name: name, states: make([]state, n)}
}

// Attach подключает drv к d. У устройства ровно один драйвер.
func (d *Device) Attach(drv Driver) {
	if d.drv != nil {
		panic("clock: device " + d.name + " already has a driver")
	}
	if drv == nil {
		panic("clock: nil driver for " + d.name)
	}
	d.drv = drv
}

// Name возвращает имя устройства для диагностики.
func (d *Device) Name() string { return d.name }

// Outputs возвращает число выходов.
func (d *Device) Outputs() int { return len(d.states) }

// Clock возвращает Handle выхода id. Проверка откладывается до использования.
func (d *Device) Clock(id uint8) Handle { return Handle{Dev: d, ID: id} }

// Handle указывает на один выход. Нулевой Handle не указывает ни на что.
type Handle struct {
	Dev *Device
	ID  uint8
}

func (h Handle) String() string {
	if h.Dev == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s.%d", h.Dev.name, h.ID)
}

// Refcount возвращает число действующих включений выхода.
func (h Handle) Refcount() uint32 {
	if h.valid() != nil {
		return 0
	}
	return h.Dev.states[h.ID].refcount
}

func (h Handle) valid() error {
	if h.Dev == nil || h.Dev.drv == nil || int(h.ID) >= len(h.Dev.states) {
		return fmt.Errorf("clock %v: %w", h, ErrNoClock)
	}
	return nil
}
