package regs

import (
	"errors"
	"testing"
)

func TestBit_SetClearPreservesNeighbours(t *testing.T) {
	bus := NewSim("t")
	bus.Poke(0x28, 0xa5a5a5a0)

	if err := Set(bus, *NewBit(0x28, 0)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := bus.Peek(0x28); got != 0xa5a5a5a1 {
		t.Errorf("after Set: %#x, want %#x", got, 0xa5a5a5a1)
	}
	if err := Clear(bus, *NewBit(0x28, 31)); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := bus.Peek(0x28); got != 0x25a5a5a1 {
		t.Errorf("after Clear: %#x, want %#x", got, 0x25a5a5a1)
	}
	on, err := Get(bus, *NewBit(0x28, 5))
	if err != nil || !on {
		t.Errorf("Get bit 5 = %v, %v; want true", on, err)
	}
}

func TestBit_Idempotent(t *testing.T) {
	bus := NewSim("t")
	bus.Poke(0x10, 1<<4)
	bus.Logging = true
	if err := Set(bus, *NewBit(0x10, 4)); err != nil {
		t.Fatal(err)
	}
	if w := bus.Writes(); len(w) != 0 {
		t.Errorf("Set on already set bit wrote %v", w)
	}
	if err := Clear(bus, *NewBit(0x10, 5)); err != nil {
		t.Fatal(err)
	}
	if w := bus.Writes(); len(w) != 0 {
		t.Errorf("Clear on already clear bit wrote %v", w)
	}
}

func TestBit_VerifyFailure(t *testing.T) {
	bus := NewSim("t")
	bus.Stick(0x64, 1<<21)
	err := Set(bus, *NewBit(0x64, 21))
	if !errors.Is(err, ErrHardwareFault) {
		t.Fatalf("Set on stuck bit: got %v, want ErrHardwareFault", err)
	}
}

func TestBit_BusError(t *testing.T) {
	bus := NewSim("t")
	bus.Fail(0x2c4)
	if _, err := Get(bus, *NewBit(0x2c4, 0)); !errors.Is(err, ErrHardwareFault) {
		t.Errorf("Get: got %v, want ErrHardwareFault", err)
	}
	if err := Set(bus, *NewBit(0x2c4, 0)); !errors.Is(err, ErrHardwareFault) {
		t.Errorf("Set: got %v, want ErrHardwareFault", err)
	}
	bus.Heal(0x2c4)
	if err := Set(bus, *NewBit(0x2c4, 0)); err != nil {
		t.Errorf("Set after Heal: %v", err)
	}
}

func TestBit_ActiveLow(t *testing.T) {
	bus := NewSim("t")
	rst := *NewResetBit(0xb0, 3)
	bus.Poke(0xb0, 1<<3)

	asserted, err := Asserted(bus, rst)
	if err != nil || asserted {
		t.Fatalf("initial Asserted = %v, %v; want false", asserted, err)
	}
	if err := Assert(bus, rst); err != nil {
		t.Fatal(err)
	}
	if got := bus.Peek(0xb0); got != 0 {
		t.Errorf("asserting active-low reset left %#x", got)
	}
	if err := Deassert(bus, rst); err != nil {
		t.Fatal(err)
	}
	if got := bus.Peek(0xb0); got != 1<<3 {
		t.Errorf("deasserting active-low reset left %#x", got)
	}
}

func TestField(t *testing.T) {
	tests := []struct {
		name   string
		f      Field
		in     uint32
		want   uint32
		insert uint32
		after  uint32
	}{
		{"mux", NewField(16, 2), 0x00020000, 2, 3, 0x00030000},
		{"p", NewField(4, 2), 0xffffffcf, 0, 1, 0xffffffdf},
		{"m", NewField(0, 4), 0x1234567f, 0xf, 0, 0x12345670},
		{"absent", Field{}, 0xffffffff, 0, 7, 0xffffffff},
		{"full", NewField(0, 32), 0xdeadbeef, 0xdeadbeef, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Extract(tt.in); got != tt.want {
				t.Errorf("Extract(%#x) = %#x, want %#x", tt.in, got, tt.want)
			}
			if got := tt.f.Insert(tt.in, tt.insert); got != tt.after {
				t.Errorf("Insert(%#x, %d) = %#x, want %#x", tt.in, tt.insert, got, tt.after)
			}
		})
	}
}

func TestWriteField(t *testing.T) {
	bus := NewSim("t")
	bus.Poke(0x0, 0x80001000)
	f := NewField(8, 8)
	if err := WriteField(bus, 0x0, f, 42); err != nil {
		t.Fatal(err)
	}
	if got := bus.Peek(0x0); got != 0x80002a00 {
		t.Errorf("register = %#x, want %#x", got, 0x80002a00)
	}
	v, err := ReadField(bus, 0x0, f)
	if err != nil || v != 42 {
		t.Errorf("ReadField = %d, %v; want 42", v, err)
	}
	if err := WriteField(bus, 0x0, f, 256); err == nil {
		t.Error("expected overflow error for 256 in an 8-bit field")
	}
}

func TestSim_Unaligned(t *testing.T) {
	bus := NewSim("t")
	if _, err := bus.Read32(0x2); !errors.Is(err, ErrHardwareFault) {
		t.Errorf("unaligned read: got %v", err)
	}
}

func TestWindow(t *testing.T) {
	bus := NewSim("t")
	w := Window{Bus: bus, Base: 0x400}
	if err := Set(w, *NewBit(0x28, 3)); err != nil {
		t.Fatal(err)
	}
	if got := bus.Peek(0x428); got != 1<<3 {
		t.Errorf("backing register = %#x", got)
	}
	if _, err := (Window{Bus: bus, Base: 0xfffffff0}).Read32(0x20); !errors.Is(err, ErrHardwareFault) {
		t.Errorf("wrapping offset: %v", err)
	}
}
