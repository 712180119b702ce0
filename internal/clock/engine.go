package clock

import (
	"errors"
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"
)

// path хранит цепочку уже пройденных выходов при рекурсивном обходе. Обход
// линейный, поэтому append не портит соседние ветви.
type path []Handle

func (p path) enter(h Handle) (path, error) {
	if err := h.valid(); err != nil {
		return nil, err
	}
	for _, v := range p {
		if v == h {
			return nil, fmt.Errorf("clock %v: parent loop: %w", h, ErrNoClock)
		}
	}
	return append(p, h), nil
}

// Info возвращает статическое описание выхода.
func (h Handle) Info() (Info, error) {
	if err := h.valid(); err != nil {
		return Info{}, err
	}
	return h.Dev.drv.Info(h.ID)
}

// Parent возвращает текущего родителя, прочитанного из железа; ok == false
// для корневых источников.
func (h Handle) Parent() (p Handle, ok bool, err error) {
	if err := h.valid(); err != nil {
		return Handle{}, false, err
	}
	return h.parent()
}

func (h Handle) parent() (Handle, bool, error) {
	pr, isParenter := h.Dev.drv.(Parenter)
	if !isParenter {
		return Handle{}, false, nil
	}
	p, ok, err := pr.Parent(h.ID)
	if err != nil {
		return Handle{}, false, fmt.Errorf("clock %v: parent: %w", h, err)
	}
	return p, ok, nil
}

// Rate возвращает текущую частоту выхода, вычисленную через всех предков.
func (h Handle) Rate() (physic.Frequency, error) {
	return h.rate(nil)
}

func (h Handle) rate(seen path) (physic.Frequency, error) {
	seen, err := seen.enter(h)
	if err != nil {
		return 0, err
	}
	p, ok, err := h.parent()
	if err != nil {
		return 0, err
	}
	var in physic.Frequency
	if ok {
		if in, err = p.rate(seen); err != nil {
			return 0, err
		}
	}
	r, err := h.Dev.drv.Rate(h.ID, in)
	if err != nil {
		return 0, fmt.Errorf("clock %v: rate: %w", h, err)
	}
	return r, nil
}

// State сообщает, работает ли выход: его вентиль открыт и родитель, если
// он есть, тоже работает.
func (h Handle) State() (bool, error) {
	return h.state(nil)
}

func (h Handle) state(seen path) (bool, error) {
	seen, err := seen.enter(h)
	if err != nil {
		return false, err
	}
	if g, ok := h.Dev.drv.(Gater); ok {
		on, err := g.State(h.ID)
		if err != nil {
			return false, fmt.Errorf("clock %v: state: %w", h, err)
		}
		if !on {
			return false, nil
		}
	}
	p, ok, err := h.parent()
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return p.state(seen)
}

// Enable берёт ссылку на выход. Первая ссылка включает цепочку родителей от
// корня вниз и затем открывает собственный вентиль. При ошибке ни одна
// ссылка в цепочке не остаётся.
func (h Handle) Enable() error {
	return h.enable(nil)
}

func (h Handle) enable(seen path) error {
	seen, err := seen.enter(h)
	if err != nil {
		return err
	}
	st := &h.Dev.states[h.ID]
	switch st.refcount {
	case 0:
	case math.MaxUint32:
		return fmt.Errorf("clock %v: refcount overflow: %w", h, ErrInvalidOperation)
	default:
		st.refcount++
		return nil
	}

	p, ok, err := h.parent()
	if err != nil {
		return err
	}
	if ok {
		if err := p.enable(seen); err != nil {
			return err
		}
	}
	if err := h.setState(true); err != nil {
		if ok {
			if rerr := p.disable(seen); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
		return err
	}
	st.refcount = 1
	return nil
}

// Disable снимает ссылку, взятую Enable. Снятие последней закрывает вентиль
// выхода и затем освобождает родителя. Выключение выхода без ссылок
// возвращает ErrInvalidOperation и ничего не трогает.
func (h Handle) Disable() error {
	return h.disable(nil)
}

func (h Handle) disable(seen path) error {
	seen, err := seen.enter(h)
	if err != nil {
		return err
	}
	st := &h.Dev.states[h.ID]
	switch st.refcount {
	case 0:
		return fmt.Errorf("clock %v: disable without enable: %w", h, ErrInvalidOperation)
	case 1:
	default:
		st.refcount--
		return nil
	}

	p, ok, err := h.parent()
	if err != nil {
		return err
	}
	if err := h.setState(false); err != nil {
		return err
	}
	st.refcount = 0
	if ok {
		if err := p.disable(seen); err != nil {
			return fmt.Errorf("clock %v: release parent: %w", h, err)
		}
	}
	return nil
}

func (h Handle) setState(on bool) error {
	g, ok := h.Dev.drv.(Gater)
	if !ok {
		return nil
	}
	if err := g.SetState(h.ID, on); err != nil {
		return fmt.Errorf("clock %v: set state %v: %w", h, on, err)
	}
	return nil
}

// AssertReset держит в сбросе блок, питаемый выходом. Счётчик ссылок не
// меняется.
func (h Handle) AssertReset() error {
	return h.setReset(true)
}

// DeassertReset отпускает линию сброса выхода.
func (h Handle) DeassertReset() error {
	return h.setReset(false)
}

func (h Handle) setReset(asserted bool) error {
	if err := h.valid(); err != nil {
		return err
	}
	r, ok := h.Dev.drv.(Resetter)
	if !ok {
		return nil
	}
	if err := r.SetReset(h.ID, asserted); err != nil {
		return fmt.Errorf("clock %v: reset %v: %w", h, asserted, err)
	}
	return nil
}
