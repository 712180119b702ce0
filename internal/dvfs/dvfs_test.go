package dvfs

import (
	"errors"
	"testing"

	"github.com/shiwa/mgmtcore/internal/board/sun8i"
	"github.com/shiwa/mgmtcore/internal/regs"
	"periph.io/x/conn/v3/physic"
)

// journal хранит изменения частоты и напряжения в порядке вызовов.
type journal []string

type fakeRegulator struct{ j *journal }

func (r fakeRegulator) SetVoltage(v physic.ElectricPotential) error {
	*r.j = append(*r.j, "V "+v.String())
	return nil
}

type recordingBoard struct {
	*sun8i.Board
	j *journal
}

func (b recordingBoard) SetCPURate(f physic.Frequency) error {
	*b.j = append(*b.j, "F "+f.String())
	return b.Board.SetCPURate(f)
}

var table = []OPP{
	{Rate: 1200 * physic.MegaHertz, Voltage: 1100 * physic.MilliVolt},
	{Rate: 480 * physic.MegaHertz, Voltage: 820 * physic.MilliVolt},
	{Rate: 1008 * physic.MegaHertz, Voltage: 1000 * physic.MilliVolt},
	{Rate: 720 * physic.MegaHertz, Voltage: 900 * physic.MilliVolt},
}

func newCPU(t *testing.T) (*CPU, *sun8i.Board, *journal) {
	t.Helper()
	b, err := sun8i.New(regs.NewSim("r_prcm"), regs.NewSim("ccu"))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.CPUClock().Enable(); err != nil {
		t.Fatal(err)
	}
	j := &journal{}
	c, err := New(b.CPUClock(), recordingBoard{b, j}, fakeRegulator{j}, 4, table)
	if err != nil {
		t.Fatal(err)
	}
	return c, b, j
}

func TestTableSorted(t *testing.T) {
	c, _, _ := newCPU(t)
	want := []int64{480, 720, 1008, 1200}
	for i, opp := range c.Table() {
		if opp.Rate != physic.Frequency(want[i])*physic.MegaHertz {
			t.Errorf("table[%d] = %v, want %dMHz", i, opp.Rate, want[i])
		}
	}
}

func TestGetOPP(t *testing.T) {
	c, b, _ := newCPU(t)
	tests := []struct {
		rate physic.Frequency
		want uint8
	}{
		{0, 0}, // ещё на OSC24M
		{480 * physic.MegaHertz, 0},
		{696 * physic.MegaHertz, 0},
		{720 * physic.MegaHertz, 1},
		{1104 * physic.MegaHertz, 2},
		{1200 * physic.MegaHertz, 3},
		{1800 * physic.MegaHertz, 3},
	}
	for _, tt := range tests {
		if tt.rate != 0 {
			if err := b.SetCPURate(tt.rate); err != nil {
				t.Fatal(err)
			}
		}
		got, err := c.GetOPP(0)
		if err != nil || got != tt.want {
			t.Errorf("rate %v: GetOPP = %d, %v; want %d", tt.rate, got, err, tt.want)
		}
	}
}

func TestSetOPP_VoltageOrdering(t *testing.T) {
	c, _, j := newCPU(t)
	if err := c.SetOPP(0, 3); err != nil {
		t.Fatal(err)
	}
	if err := c.SetOPP(1, 0); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"V " + (1100 * physic.MilliVolt).String(),
		"F " + (1200 * physic.MegaHertz).String(),
		"F " + (480 * physic.MegaHertz).String(),
		"V " + (820 * physic.MilliVolt).String(),
	}
	if len(*j) != len(want) {
		t.Fatalf("journal = %v, want %v", *j, want)
	}
	for i := range want {
		if (*j)[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, (*j)[i], want[i])
		}
	}
	if got, _ := c.GetOPP(2); got != 0 {
		t.Errorf("GetOPP after SetOPP(0) = %d", got)
	}
}

func TestInvalid(t *testing.T) {
	c, _, _ := newCPU(t)
	if err := c.SetOPP(0, 4); !errors.Is(err, ErrInvalidOPP) {
		t.Errorf("SetOPP level 4: %v", err)
	}
	if err := c.SetOPP(4, 0); !errors.Is(err, ErrInvalidOPP) {
		t.Errorf("SetOPP core 4: %v", err)
	}
	if _, err := c.GetOPP(9); !errors.Is(err, ErrInvalidOPP) {
		t.Errorf("GetOPP core 9: %v", err)
	}
	if _, err := New(c.clk, nil, nil, 1, nil); err == nil {
		t.Error("New accepted an empty table")
	}
	dup := []OPP{{Rate: physic.GigaHertz}, {Rate: physic.GigaHertz}}
	if _, err := New(c.clk, nil, nil, 1, dup); err == nil {
		t.Error("New accepted duplicate rates")
	}
}
