package core

import (
	"testing"

	"tinygfw/machine"
)

// resetScheduler clears the package-level timer queue and clock so each
// test starts from a clean slate; tests in this package share that
// state since there is no per-instance scheduler.
func resetScheduler(t *testing.T) {
	t.Helper()
	timerList = nil
	currentTime = 0
	systemTicks = 0
	timerPastErrors = 0
}

// fakeBackend records Step calls and direction/enable state for
// assertions, standing in for a real GPIO/PIO stepper driver.
type fakeBackend struct {
	name      string
	steps     int
	dir       bool
	enabled   bool
	stopCalls int
}

func (b *fakeBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error { return nil }
func (b *fakeBackend) Step()                                                       { b.steps++ }
func (b *fakeBackend) SetDirection(dir bool)                                       { b.dir = dir }
func (b *fakeBackend) Stop()                                                       { b.stopCalls++ }
func (b *fakeBackend) Enable()                                                     { b.enabled = true }
func (b *fakeBackend) Disable()                                                    { b.enabled = false }
func (b *fakeBackend) GetName() string                                             { return b.name }

func TestDDAPrepStartsImmediatelyWhenIdle(t *testing.T) {
	resetScheduler(t)
	d := NewDDA()
	backend := &fakeBackend{name: "x"}
	d.AttachMotor(machine.AxisX, &DDAMotor{Backend: backend, Power: PowerAlwaysOn})

	seg := &machine.Segment{Ticks: 4, TickPeriod: 10}
	seg.Direction[machine.AxisX] = true
	seg.PowerFlag[machine.AxisX] = true
	seg.SubstepIncrement[machine.AxisX] = 1 << 31 // half scale: steps every other tick

	if err := d.Prep(seg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.IsActive() {
		t.Fatal("expected the segment to start running immediately on an idle DDA")
	}
	if !d.PrepReady() {
		t.Fatal("expected the prep slot to be free once the segment started running")
	}
}

func TestDDAPrepFullWhenSlotOccupied(t *testing.T) {
	resetScheduler(t)
	d := NewDDA()
	d.AttachMotor(machine.AxisX, &DDAMotor{Backend: &fakeBackend{name: "x"}, Power: PowerAlwaysOn})

	first := &machine.Segment{Ticks: 100, TickPeriod: 10}
	second := &machine.Segment{Ticks: 10, TickPeriod: 10}

	if err := d.Prep(first); err != nil {
		t.Fatalf("unexpected error on first prep: %v", err)
	}
	// First segment started running immediately (DDA was idle), so the
	// prep slot is free again and this should succeed too.
	if err := d.Prep(second); err != nil {
		t.Fatalf("unexpected error staging a second segment: %v", err)
	}
	if err := d.Prep(&machine.Segment{Ticks: 1, TickPeriod: 10}); err != ErrPrepFull {
		t.Fatalf("expected ErrPrepFull once both run and prep slots are occupied, got %v", err)
	}
}

func TestDDATickAdvancesPositionOnOverflow(t *testing.T) {
	resetScheduler(t)
	d := NewDDA()
	backend := &fakeBackend{name: "x"}
	motor := &DDAMotor{Backend: backend, Power: PowerAlwaysOn}
	d.AttachMotor(machine.AxisX, motor)

	seg := &machine.Segment{Ticks: 4, TickPeriod: 10}
	seg.Direction[machine.AxisX] = true
	seg.PowerFlag[machine.AxisX] = true
	seg.SubstepIncrement[machine.AxisX] = 1 << 31 // overflow every other tick

	if err := d.Prep(seg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 4; i++ {
		SetTime(GetTime() + 10)
		ProcessTimers()
	}

	if backend.steps != 2 {
		t.Fatalf("expected 2 step pulses from a half-scale increment over 4 ticks, got %d", backend.steps)
	}
	if motor.Position != 2 {
		t.Fatalf("expected position to advance by 2 in the positive direction, got %d", motor.Position)
	}
	if d.IsActive() {
		t.Fatal("expected the DDA to go idle once the segment's ticks are exhausted")
	}
}

func TestDDATickNegativeDirectionDecrementsPosition(t *testing.T) {
	resetScheduler(t)
	d := NewDDA()
	motor := &DDAMotor{Backend: &fakeBackend{name: "x"}, Power: PowerAlwaysOn}
	d.AttachMotor(machine.AxisX, motor)

	seg := &machine.Segment{Ticks: 2, TickPeriod: 10}
	seg.Direction[machine.AxisX] = false
	seg.PowerFlag[machine.AxisX] = true
	seg.SubstepIncrement[machine.AxisX] = 1 << 31

	if err := d.Prep(seg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 2; i++ {
		SetTime(GetTime() + 10)
		ProcessTimers()
	}

	if motor.Position != -1 {
		t.Fatalf("expected position -1 after a negative-direction segment, got %d", motor.Position)
	}
}

func TestDDASegmentDoneCallbackFiresWhenPrepEmpty(t *testing.T) {
	resetScheduler(t)
	d := NewDDA()
	d.AttachMotor(machine.AxisX, &DDAMotor{Backend: &fakeBackend{name: "x"}, Power: PowerAlwaysOn})

	called := false
	d.SetSegmentDoneCallback(func() { called = true })

	seg := &machine.Segment{Ticks: 1, TickPeriod: 10}
	if err := d.Prep(seg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	SetTime(GetTime() + 10)
	ProcessTimers()

	if !called {
		t.Fatal("expected the segment-done callback to fire once the run slot drains with no prep staged")
	}
}

func TestDDAStopClearsStateAndDeenergizes(t *testing.T) {
	resetScheduler(t)
	d := NewDDA()
	backend := &fakeBackend{name: "x"}
	d.AttachMotor(machine.AxisX, &DDAMotor{Backend: backend, Power: PowerOnWhenMoving})

	seg := &machine.Segment{Ticks: 100, TickPeriod: 10}
	seg.PowerFlag[machine.AxisX] = true
	if err := d.Prep(seg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !backend.enabled {
		t.Fatal("expected the motor to be energized once the segment is running")
	}

	d.Stop()

	if d.IsActive() {
		t.Fatal("expected DDA to be inactive after Stop")
	}
	if !d.PrepReady() {
		t.Fatal("expected the prep slot to be cleared after Stop")
	}
	if backend.enabled {
		t.Fatal("expected the motor to be de-energized after Stop")
	}
}

func TestApplyPowerModes(t *testing.T) {
	resetScheduler(t)
	d := NewDDA()

	alwaysOn := &fakeBackend{name: "always"}
	d.applyPower(&DDAMotor{Backend: alwaysOn, Power: PowerAlwaysOn})
	if !alwaysOn.enabled {
		t.Fatal("expected PowerAlwaysOn to enable regardless of cycle/energized state")
	}

	disabled := &fakeBackend{name: "disabled"}
	d.applyPower(&DDAMotor{Backend: disabled, Power: PowerDisabled})
	if disabled.enabled {
		t.Fatal("expected PowerDisabled to never enable")
	}

	onInCycle := &fakeBackend{name: "cycle"}
	m := &DDAMotor{Backend: onInCycle, Power: PowerOnInCycle}
	d.applyPower(m)
	if onInCycle.enabled {
		t.Fatal("expected PowerOnInCycle to stay disabled outside a cycle")
	}
	d.SetCycleActive(true)
	d.applyPower(m)
	if !onInCycle.enabled {
		t.Fatal("expected PowerOnInCycle to enable once the cycle is active")
	}
}
