package clock

import (
	"errors"

	"github.com/shiwa/mgmtcore/internal/regs"
)

var (
	// ErrNoClock: Handle не указывает на выход, либо цепочка родителей
	// замкнута в цикл.
	ErrNoClock = errors.New("no such clock")
	// ErrInvalidOperation: нарушен контракт использования, например
	// выключение невключённого выхода.
	ErrInvalidOperation = errors.New("invalid clock operation")
	// ErrHardwareFault: сбой уровня регистров, реэкспортирован, чтобы
	// вызывающим хватало этого пакета.
	ErrHardwareFault = regs.ErrHardwareFault
)
