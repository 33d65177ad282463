package gcode

import (
	"errors"
	"testing"

	"tinygfw/machine"
	"tinygfw/machine/kinematics"
	"tinygfw/machine/planner"
	"tinygfw/machine/status"
)

// fakePlanner is a minimal in-memory stand-in for *planner.Planner,
// recording the last queued move/dwell without any jerk-limited
// admission math — enough to exercise the canonical machine's modal
// logic in isolation.
type fakePlanner struct {
	pos         machine.Position
	lastTarget  machine.Position
	lastFeed    float64
	moveCount   int
	dwellCount  int
	full        bool
	pathControl planner.PathControlMode
}

func (f *fakePlanner) QueueMove(target machine.Position, feed float64) (*machine.Block, error) {
	if f.full {
		return nil, planner.ErrQueueFull
	}
	f.lastTarget = target
	f.lastFeed = feed
	f.moveCount++
	f.pos = target
	return &machine.Block{Target: target}, nil
}

func (f *fakePlanner) QueueDwell(micros uint32) (*machine.Block, error) {
	f.dwellCount++
	return &machine.Block{Kind: machine.MoveKindDwell, DwellMicros: micros}, nil
}

func (f *fakePlanner) PlannerPosition() machine.Position    { return f.pos }
func (f *fakePlanner) SetPlannerPosition(p machine.Position) { f.pos = p }
func (f *fakePlanner) SetPathControl(m planner.PathControlMode) { f.pathControl = m }
func (f *fakePlanner) ClearQueue()                           {}
func (f *fakePlanner) IsIdle() bool                           { return true }

type fakeHoming struct {
	homeErr    error
	homedAxes  []machine.AxisID
	probeStop  machine.Position
	probeErr   error
}

func (f *fakeHoming) Home(axes []machine.AxisID) error {
	f.homedAxes = axes
	return f.homeErr
}

func (f *fakeHoming) Probe(target machine.Position, feed float64, towardWork bool) (machine.Position, error) {
	return f.probeStop, f.probeErr
}

func newTestMachine(t *testing.T) (*Machine, *fakePlanner, *fakeHoming) {
	t.Helper()
	axes := map[machine.AxisID]machine.AxisConfig{
		machine.AxisX: {Mode: machine.AxisModeStandard, MaxVelocity: 3000, TravelMax: 300},
		machine.AxisY: {Mode: machine.AxisModeStandard, MaxVelocity: 3000, TravelMax: 300},
		machine.AxisZ: {Mode: machine.AxisModeStandard, MaxVelocity: 1000, TravelMax: 100},
	}
	mapper, err := kinematics.New(axes)
	if err != nil {
		t.Fatalf("unexpected kinematics error: %v", err)
	}
	p := &fakePlanner{}
	h := &fakeHoming{}
	return NewMachine(mapper, p, h), p, h
}

func TestExecuteG1RequiresFeed(t *testing.T) {
	m, _, _ := newTestMachine(t)
	parser := NewParser()

	cmd, _ := parser.ParseLine("G1 X10")
	code, _ := m.Execute(cmd)
	if code != status.ErrFeedrateMissing {
		t.Fatalf("expected feedrate-missing error, got %v", code)
	}
}

func TestExecuteG1QueuesMove(t *testing.T) {
	m, p, _ := newTestMachine(t)
	parser := NewParser()

	cmd, _ := parser.ParseLine("G1 X10 Y20 F600")
	code, err := m.Execute(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != status.OK {
		t.Fatalf("expected ok, got %v", code)
	}
	if p.moveCount != 1 {
		t.Fatalf("expected 1 queued move, got %d", p.moveCount)
	}
	if p.lastTarget[machine.AxisX] != 10 || p.lastTarget[machine.AxisY] != 20 {
		t.Fatalf("unexpected target: %v", p.lastTarget)
	}
	if p.lastFeed != 600 {
		t.Fatalf("expected feed 600, got %v", p.lastFeed)
	}
}

func TestExecuteG0UsesMaxVelocity(t *testing.T) {
	m, p, _ := newTestMachine(t)
	parser := NewParser()

	cmd, _ := parser.ParseLine("G0 X5")
	code, err := m.Execute(cmd)
	if err != nil || code != status.OK {
		t.Fatalf("unexpected result: %v %v", code, err)
	}
	if p.lastFeed != 3000 {
		t.Fatalf("expected rapid feed to use the fastest configured axis (3000), got %v", p.lastFeed)
	}
}

func TestExecuteG92SetsOffset(t *testing.T) {
	m, p, _ := newTestMachine(t)
	p.pos[machine.AxisX] = 5
	parser := NewParser()

	cmd, _ := parser.ParseLine("G92 X0")
	code, err := m.Execute(cmd)
	if err != nil || code != status.OK {
		t.Fatalf("unexpected result: %v %v", code, err)
	}
	if !m.state.G92Active {
		t.Fatal("expected G92Active to be true")
	}
	if m.state.G92Offset[machine.AxisX] != -5 {
		t.Fatalf("expected offset -5, got %v", m.state.G92Offset[machine.AxisX])
	}
}

func TestExecuteG28Homing(t *testing.T) {
	m, _, h := newTestMachine(t)
	parser := NewParser()

	cmd, _ := parser.ParseLine("G28 X Y")
	code, err := m.Execute(cmd)
	if err != nil || code != status.OK {
		t.Fatalf("unexpected result: %v %v", code, err)
	}
	if len(h.homedAxes) != 2 {
		t.Fatalf("expected 2 axes passed to Home, got %v", h.homedAxes)
	}
	if m.state.Cycle != CycleOff {
		t.Fatalf("expected cycle to reset to CycleOff after homing, got %v", m.state.Cycle)
	}
	if !m.state.Homed[machine.AxisX] || !m.state.Homed[machine.AxisY] {
		t.Fatal("expected X and Y marked homed")
	}
}

func TestExecuteHomingFailurePropagates(t *testing.T) {
	m, _, h := newTestMachine(t)
	h.homeErr = errors.New("switch stuck")
	parser := NewParser()

	cmd, _ := parser.ParseLine("G28")
	code, err := m.Execute(cmd)
	if err == nil {
		t.Fatal("expected an error from a failed homing cycle")
	}
	if !code.IsError() {
		t.Fatalf("expected an error status code, got %v", code)
	}
}

func TestExecuteUnsupportedGCode(t *testing.T) {
	m, _, _ := newTestMachine(t)
	parser := NewParser()

	cmd, _ := parser.ParseLine("G200")
	code, err := m.Execute(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != status.ErrUnsupportedCode {
		t.Fatal("expected unsupported-code status")
	}
}
