// Package thermal опрашивает датчики температуры и снижает рабочую точку
// CPU при перегреве. Критическое показание выключает систему.
package thermal

import (
	"fmt"

	"github.com/shiwa/mgmtcore/internal/logger"
)

// MilliCelsius задаёт температуру в тысячных долях градуса Цельсия.
type MilliCelsius int32

func (t MilliCelsius) String() string {
	sign := ""
	v := int64(t)
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%03d°C", sign, v/1000, v%1000)
}

// Sensor отдаёт температуру.
type Sensor interface {
	Temperature() (MilliCelsius, error)
}

// OPPController переключает рабочие точки CPU; 0 самая медленная.
type OPPController interface {
	GetOPP(core uint8) (uint8, error)
	SetOPP(core, level uint8) error
}

// Shutdowner выключает систему. Возврат из Shutdown не ожидается.
type Shutdowner interface {
	Shutdown()
}

// Thresholds задаёт политику троттлинга.
type Thresholds struct {
	Warm     MilliCelsius
	Hot      MilliCelsius
	Critical MilliCelsius
	// Band: насколько ниже Warm должно быть показание, чтобы считаться холодным.
	Band MilliCelsius
	// Window: число подряд идущих тёплых или холодных опросов на один шаг.
	Window uint8
}

// DefaultThresholds возвращает фиксированную политику ядра управления.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Warm:     80000,
		Hot:      90000,
		Critical: 100000,
		Band:     5000,
		Window:   5,
	}
}

// Status содержит снимок состояния монитора.
type Status struct {
	Temperature   MilliCelsius
	Sensors       int
	Failed        int
	OriginalOPP   uint8
	ThrottleLevel uint8
	Throttled     bool
	Halted        bool
}

// Monitor реализует автомат троттлинга. PollSensors нельзя вызывать
// параллельно.
type Monitor struct {
	sensors []Sensor
	dvfs    OPPController
	core    uint8
	power   Shutdowner
	th      Thresholds
	log     *logger.Logger

	originalOPP   uint8
	throttleLevel uint8
	timeCool      uint8
	timeWarm      uint8

	last   MilliCelsius
	failed int
	halted bool
}

// New возвращает монитор без троттлинга. dvfs может быть nil: тогда CPU не
// замедляется, остаётся только аварийное выключение.
func New(sensors []Sensor, dvfs OPPController, power Shutdowner, th Thresholds) *Monitor {
	if th.Window == 0 {
		th.Window = 1
	}
	return &Monitor{
		sensors: sensors,
		dvfs:    dvfs,
		power:   power,
		th:      th,
		log:     logger.New("thermal"),
	}
}

// PollSensors опрашивает все датчики и реагирует на самое горячее
// показание. Сбойные датчики пропускаются. После критического показания
// монитор останавливается и дальнейшие опросы ничего не делают.
func (m *Monitor) PollSensors() {
	if m.halted {
		return
	}
	var hottest MilliCelsius
	m.failed = 0
	for _, s := range m.sensors {
		t, err := s.Temperature()
		if err != nil {
			m.failed++
			continue
		}
		if t > hottest {
			hottest = t
		}
	}
	m.last = hottest

	switch {
	case hottest >= m.th.Critical:
		m.halted = true
		m.log.Warn("system temperature %v over limit; shutting down", hottest)
		m.power.Shutdown()
	case hottest >= m.th.Hot:
		if m.throttleLevel == 0 {
			m.log.Warn("system is hot (%v); throttling CPU", hottest)
		}
		m.startThrottling(true)
	case hottest >= m.th.Warm:
		if m.tick(&m.timeWarm) {
			m.startThrottling(false)
		}
	case hottest < m.th.Warm-m.th.Band:
		if m.tick(&m.timeCool) {
			m.stopThrottling()
		}
	}
}

// tick увеличивает счётчик гистерезиса с насыщением на окне и сообщает,
// заполнено ли окно.
func (m *Monitor) tick(c *uint8) bool {
	if *c < m.th.Window {
		*c++
	}
	return *c >= m.th.Window
}

func (m *Monitor) startThrottling(immediate bool) {
	if m.dvfs == nil {
		return
	}
	if m.throttleLevel == 0 {
		opp, err := m.dvfs.GetOPP(m.core)
		if err != nil {
			m.log.Error("failed to read CPU operating point: %v", err)
			return
		}
		m.originalOPP = opp
	}
	if m.throttleLevel == m.originalOPP || m.originalOPP == 0 {
		return
	}
	if immediate {
		m.throttleLevel = m.originalOPP
	} else {
		m.throttleLevel++
	}
	m.setOPP()
}

func (m *Monitor) stopThrottling() {
	if m.throttleLevel == 0 || m.originalOPP == 0 {
		return
	}
	m.throttleLevel--
	m.setOPP()
}

func (m *Monitor) setOPP() {
	if err := m.dvfs.SetOPP(m.core, m.originalOPP-m.throttleLevel); err != nil {
		m.log.Error("failed to throttle CPU: %v", err)
	}
	m.timeCool = 0
	m.timeWarm = 0
}

// IsThrottled сообщает, работает ли CPU ниже исходной рабочей точки.
func (m *Monitor) IsThrottled() bool {
	return m.throttleLevel > 0
}

// Halted сообщает, остановлен ли монитор критическим показанием.
func (m *Monitor) Halted() bool {
	return m.halted
}

// Status возвращает снимок троттлинга и последнего опроса.
func (m *Monitor) Status() Status {
	return Status{
		Temperature:   m.last,
		Sensors:       len(m.sensors),
		Failed:        m.failed,
		OriginalOPP:   m.originalOPP,
		ThrottleLevel: m.throttleLevel,
		Throttled:     m.IsThrottled(),
		Halted:        m.halted,
	}
}
