package kinematics

import (
	"math"
	"testing"

	"tinygfw/machine"
)

func linearAxes() map[machine.AxisID]machine.AxisConfig {
	return map[machine.AxisID]machine.AxisConfig{
		machine.AxisX: {MaxVelocity: 3000, TravelMin: -10, TravelMax: 300, SoftLimitEnabled: true},
		machine.AxisY: {MaxVelocity: 3000, TravelMin: -10, TravelMax: 300, SoftLimitEnabled: true},
		machine.AxisZ: {MaxVelocity: 600, TravelMin: -5, TravelMax: 100, SoftLimitEnabled: true},
	}
}

func TestNewRequiresALinearAxis(t *testing.T) {
	axes := map[machine.AxisID]machine.AxisConfig{
		machine.AxisA: {Mode: machine.AxisModeStandard},
	}
	if _, err := New(axes); err == nil {
		t.Fatal("expected error for an all-rotary axis set")
	}
}

func TestNewAcceptsAtLeastOneLinearAxis(t *testing.T) {
	if _, err := New(linearAxes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAxesReturnsCanonicalOrder(t *testing.T) {
	axes := linearAxes()
	axes[machine.AxisA] = machine.AxisConfig{Mode: machine.AxisModeStandard}
	m, err := New(axes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := m.Axes()
	want := []machine.AxisID{machine.AxisX, machine.AxisY, machine.AxisZ, machine.AxisA}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, id := range want {
		if got[i] != id {
			t.Fatalf("position %d: got %v, want %v", i, got[i], id)
		}
	}
}

func TestCheckLimitsWithinRangeOK(t *testing.T) {
	m, err := New(linearAxes())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var pos machine.Position
	pos[machine.AxisX] = 50
	pos[machine.AxisY] = 50
	pos[machine.AxisZ] = 10
	if err := m.CheckLimits(pos); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckLimitsOutOfRangeErrors(t *testing.T) {
	m, err := New(linearAxes())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var pos machine.Position
	pos[machine.AxisX] = 500
	if err := m.CheckLimits(pos); err != ErrAxisOutOfRange {
		t.Fatalf("got %v, want ErrAxisOutOfRange", err)
	}
}

func TestCheckLimitsIgnoresAxesWithSoftLimitDisabled(t *testing.T) {
	axes := linearAxes()
	cfg := axes[machine.AxisZ]
	cfg.SoftLimitEnabled = false
	axes[machine.AxisZ] = cfg
	m, err := New(axes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var pos machine.Position
	pos[machine.AxisZ] = 10000
	if err := m.CheckLimits(pos); err != nil {
		t.Fatalf("unexpected error with soft limit disabled: %v", err)
	}
}

func TestResolveRotaryRadiusModeConvertsLinearToDegrees(t *testing.T) {
	axes := linearAxes()
	axes[machine.AxisA] = machine.AxisConfig{Mode: machine.AxisModeRadius, RotaryRadius: 10}
	m, err := New(axes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var target machine.Position
	// arc length of 10*pi on a radius-10 circle subtends 180 degrees
	target[machine.AxisA] = 10 * math.Pi
	got := m.ResolveRotary(target, nil)
	if math.Abs(got[machine.AxisA]-180) > 1e-6 {
		t.Fatalf("got %v degrees, want 180", got[machine.AxisA])
	}
}

func TestResolveRotarySlaveModeUsesSubspaceLength(t *testing.T) {
	axes := linearAxes()
	axes[machine.AxisB] = machine.AxisConfig{Mode: machine.AxisModeSlaveXY}
	m, err := New(axes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var target machine.Position
	got := m.ResolveRotary(target, func(mode machine.AxisMode) float64 {
		if mode == machine.AxisModeSlaveXY {
			return 42
		}
		return 0
	})
	if got[machine.AxisB] != 42 {
		t.Fatalf("got %v, want 42 (no RotaryRadius, length passed through)", got[machine.AxisB])
	}
}

func TestResolveRotarySlaveModeWithRadiusConvertsToDegrees(t *testing.T) {
	axes := linearAxes()
	axes[machine.AxisB] = machine.AxisConfig{Mode: machine.AxisModeSlaveX, RotaryRadius: 5}
	m, err := New(axes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var target machine.Position
	got := m.ResolveRotary(target, func(machine.AxisMode) float64 {
		return 5 * math.Pi
	})
	if math.Abs(got[machine.AxisB]-180) > 1e-6 {
		t.Fatalf("got %v degrees, want 180", got[machine.AxisB])
	}
}

func TestResolveRotaryIgnoresUnconfiguredAxes(t *testing.T) {
	m, err := New(linearAxes())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var target machine.Position
	target[machine.AxisA] = 999
	got := m.ResolveRotary(target, nil)
	if got[machine.AxisA] != 999 {
		t.Fatalf("unconfigured axis value mutated: got %v", got[machine.AxisA])
	}
}

func TestAxisConfigLookup(t *testing.T) {
	m, err := New(linearAxes())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := m.AxisConfig(machine.AxisX); !ok {
		t.Fatal("expected AxisX to be configured")
	}
	if _, ok := m.AxisConfig(machine.AxisC); ok {
		t.Fatal("expected AxisC to be unconfigured")
	}
}
