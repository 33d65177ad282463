package config

import (
	"os"
	"path/filepath"
	"testing"

	"tinygfw/machine"
)

func TestDefaultConfiguresThreeLinearAxes(t *testing.T) {
	cfg := Default()
	for _, name := range []string{"x", "y", "z"} {
		if _, ok := cfg.Axes[name]; !ok {
			t.Fatalf("Default() missing axis %q", name)
		}
		if _, ok := cfg.Motors[name]; !ok {
			t.Fatalf("Default() missing motor %q", name)
		}
	}
	if len(cfg.MinSwitches) != 3 {
		t.Fatalf("got %d min switches, want 3", len(cfg.MinSwitches))
	}
}

func TestAxesByIDReKeysToAxisID(t *testing.T) {
	cfg := Default()
	byID := cfg.AxesByID()
	if _, ok := byID[machine.AxisX]; !ok {
		t.Fatal("expected AxisX present after re-keying")
	}
	if _, ok := byID[machine.AxisA]; ok {
		t.Fatal("AxisA was not in the default config, should not appear")
	}
}

func TestMotorsByIDReKeysToAxisID(t *testing.T) {
	cfg := Default()
	byID := cfg.MotorsByID()
	mc, ok := byID[machine.AxisZ]
	if !ok {
		t.Fatal("expected AxisZ motor present after re-keying")
	}
	if mc.Axis != machine.AxisZ {
		t.Fatalf("got Axis=%v, want AxisZ", mc.Axis)
	}
}

func TestHomingOrderIDsResolvesNamesInOrder(t *testing.T) {
	cfg := Default()
	ids := cfg.HomingOrderIDs()
	want := []machine.AxisID{machine.AxisZ, machine.AxisX, machine.AxisY}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("position %d: got %v, want %v", i, ids[i], id)
		}
	}
}

func TestHomingOrderIDsSkipsUnknownNames(t *testing.T) {
	cfg := Default()
	cfg.HomingOrder = []string{"z", "bogus", "x"}
	ids := cfg.HomingOrderIDs()
	if len(ids) != 2 || ids[0] != machine.AxisZ || ids[1] != machine.AxisX {
		t.Fatalf("got %v, want [Z X] with bogus skipped", ids)
	}
}

func TestLoadWithMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load with missing file should not error: %v", err)
	}
	if cfg.DefaultVelocity != Default().DefaultVelocity {
		t.Fatalf("got DefaultVelocity=%v, want default %v", cfg.DefaultVelocity, Default().DefaultVelocity)
	}
}

func TestLoadWithEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.DDAFrequencyHz != 50000 {
		t.Fatalf("got DDAFrequencyHz=%v, want 50000", cfg.DDAFrequencyHz)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machine.yaml")
	yaml := "DefaultVelocity: 1500\nJunctionDeviation: 0.1\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultVelocity != 1500 {
		t.Fatalf("got DefaultVelocity=%v, want 1500 (overridden)", cfg.DefaultVelocity)
	}
	if cfg.JunctionDeviation != 0.1 {
		t.Fatalf("got JunctionDeviation=%v, want 0.1 (overridden)", cfg.JunctionDeviation)
	}
	// Fields not present in the override file keep their hard default.
	if cfg.DDAFrequencyHz != 50000 {
		t.Fatalf("got DDAFrequencyHz=%v, want 50000 (default preserved)", cfg.DDAFrequencyHz)
	}
}
