package regs

import (
	"fmt"
	"sync"
)

// Access описывает одну записанную операцию на шине.
type Access struct {
	Write bool
	Off   uint32
	Value uint32
}

// Sim хранит регистровый файл в памяти. На нём работают бэкенд "sim" и тесты;
// сбои и залипшие биты задаются по смещению.
type Sim struct {
	mu      sync.Mutex
	name    string
	words   map[uint32]uint32
	stuck   map[uint32]uint32
	bad     map[uint32]bool
	log     []Access
	Logging bool
}

// NewSim возвращает пустой регистровый файл: все регистры читаются как ноль.
func NewSim(name string) *Sim {
	return &Sim{
		name:  name,
		words: make(map[uint32]uint32),
		stuck: make(map[uint32]uint32),
		bad:   make(map[uint32]bool),
	}
}

func (s *Sim) String() string { return "sim:" + s.name }

// Read32 реализует Bus.
func (s *Sim) Read32(off uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(off); err != nil {
		return 0, err
	}
	v := s.words[off]
	if s.Logging {
		s.log = append(s.log, Access{Off: off, Value: v})
	}
	return v, nil
}

// Write32 реализует Bus. Залипшие биты сохраняют прежнее значение.
func (s *Sim) Write32(off uint32, v uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(off); err != nil {
		return err
	}
	m := s.stuck[off]
	s.words[off] = v&^m | s.words[off]&m
	if s.Logging {
		s.log = append(s.log, Access{Write: true, Off: off, Value: v})
	}
	return nil
}

func (s *Sim) check(off uint32) error {
	if off&3 != 0 {
		return fmt.Errorf("%s: unaligned offset %#x: %w", s, off, ErrHardwareFault)
	}
	if s.bad[off] {
		return fmt.Errorf("%s: bus error at %#x: %w", s, off, ErrHardwareFault)
	}
	return nil
}

// Poke записывает значение напрямую, без журнала и проверки сбоев.
func (s *Sim) Poke(off, v uint32) {
	s.mu.Lock()
	s.words[off] = v
	s.mu.Unlock()
}

// Peek читает значение напрямую, без журнала и проверки сбоев.
func (s *Sim) Peek(off uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words[off]
}

// Fail заставляет любой доступ к off завершаться ошибкой шины до вызова Heal.
func (s *Sim) Fail(off uint32) {
	s.mu.Lock()
	s.bad[off] = true
	s.mu.Unlock()
}

// Heal отменяет Fail.
func (s *Sim) Heal(off uint32) {
	s.mu.Lock()
	delete(s.bad, off)
	s.mu.Unlock()
}

// Stick замораживает биты mask в off: запись их больше не меняет.
func (s *Sim) Stick(off, mask uint32) {
	s.mu.Lock()
	s.stuck[off] |= mask
	s.mu.Unlock()
}

// Writes возвращает записанные операции записи и очищает журнал.
func (s *Sim) Writes() []Access {
	s.mu.Lock()
	defer s.mu.Unlock()
	var w []Access
	for _, a := range s.log {
		if a.Write {
			w = append(w, a)
		}
	}
	s.log = nil
	return w
}
