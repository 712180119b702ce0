// Package power выключает систему.
package power

import "github.com/shiwa/mgmtcore/internal/logger"

// System выключает машину.
type System struct {
	log *logger.Logger
}

// NewSystem возвращает настоящий примитив выключения.
func NewSystem() *System {
	return &System{log: logger.New("power")}
}

// Shutdown сбрасывает файловые системы на диск и выключает питание. Если
// ядро отказывает, процесс завершается.
func (s *System) Shutdown() {
	s.log.Warn("powering off")
	if err := poweroff(); err != nil {
		s.log.Critical("power off failed: %v", err)
	}
}

// DryRun только пишет запросы выключения в лог.
type DryRun struct {
	Calls int
	log   *logger.Logger
}

// NewDryRun возвращает примитив выключения для симуляции и тестов.
func NewDryRun() *DryRun {
	return &DryRun{log: logger.New("power")}
}

// Shutdown запоминает запрос.
func (d *DryRun) Shutdown() {
	d.Calls++
	d.log.Warn("power off requested (dry run)")
}
