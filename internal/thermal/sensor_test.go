package thermal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestSysfsZone(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    MilliCelsius
		wantErr bool
	}{
		{"zone", "45000\n", 45000, false},
		{"negative", "-2500\n", -2500, false},
		{"garbage", "hot\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name)
			if err := os.WriteFile(p, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := SysfsZone{Path: p}.Temperature()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Temperature() = %v, want %v", got, tt.want)
			}
		})
	}
	if _, err := (SysfsZone{Path: filepath.Join(dir, "missing")}).Temperature(); err == nil {
		t.Error("missing file read without error")
	}
}

func TestSysfsZones(t *testing.T) {
	dir := t.TempDir()
	for _, z := range []string{"thermal_zone0", "thermal_zone1", "cooling_device0"} {
		if err := os.MkdirAll(filepath.Join(dir, z), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, z, "temp"), []byte("50000\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sensors, err := SysfsZones(filepath.Join(dir, "thermal_zone*", "temp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sensors) != 2 {
		t.Errorf("found %d zones, want 2", len(sensors))
	}
	if _, err := SysfsZones(filepath.Join(dir, "hwmon*", "temp1_input")); err == nil {
		t.Error("empty match did not fail")
	}
}

type fakeEnv struct {
	temp physic.Temperature
	err  error
}

func (f *fakeEnv) String() string { return "bme280" }
func (f *fakeEnv) Halt() error    { return nil }

func (f *fakeEnv) Sense(e *physic.Env) error {
	if f.err != nil {
		return f.err
	}
	e.Temperature = f.temp
	return nil
}

func (f *fakeEnv) SenseContinuous(time.Duration) (<-chan physic.Env, error) {
	return nil, errors.New("not supported")
}

func (f *fakeEnv) Precision(e *physic.Env) {}

func TestEnvSensor(t *testing.T) {
	dev := &fakeEnv{temp: physic.ZeroCelsius + 42*physic.Kelvin + 500*physic.MilliKelvin}
	got, err := EnvSensor{Dev: dev}.Temperature()
	if err != nil || got != 42500 {
		t.Errorf("Temperature() = %v, %v; want 42.500°C", got, err)
	}
	dev.err = errors.New("bus error")
	if _, err := (EnvSensor{Dev: dev}).Temperature(); err == nil {
		t.Error("sense error swallowed")
	}
}
