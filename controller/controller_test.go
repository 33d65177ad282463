package controller

import (
	"strings"
	"testing"

	"tinygfw/core"
	"tinygfw/machine"
	"tinygfw/machine/executor"
	"tinygfw/machine/gcode"
	"tinygfw/machine/kinematics"
	"tinygfw/machine/planner"
	"tinygfw/machine/status"
)

func testAxes() map[machine.AxisID]machine.AxisConfig {
	return map[machine.AxisID]machine.AxisConfig{
		machine.AxisX: {MaxVelocity: 3000, MaxJerk: 5e7, TravelMin: -10, TravelMax: 300},
		machine.AxisY: {MaxVelocity: 3000, MaxJerk: 5e7, TravelMin: -10, TravelMax: 300},
		machine.AxisZ: {MaxVelocity: 600, MaxJerk: 5e7, TravelMin: -10, TravelMax: 100},
	}
}

// fakeBackend records stepper calls without touching real hardware.
type fakeBackend struct {
	steps int
	dir   bool
}

func (f *fakeBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error { return nil }
func (f *fakeBackend) Step()                                                       { f.steps++ }
func (f *fakeBackend) SetDirection(dir bool)                                       { f.dir = dir }
func (f *fakeBackend) Stop()                                                       {}
func (f *fakeBackend) Enable()                                                     {}
func (f *fakeBackend) Disable()                                                    {}
func (f *fakeBackend) GetName() string                                            { return "fake" }

// fakeHoming implements gcode.HomingCycle without touching any switches.
type fakeHoming struct{}

func (fakeHoming) Home(axes []machine.AxisID) error { return nil }
func (fakeHoming) Probe(target machine.Position, feed float64, towardWork bool) (machine.Position, error) {
	return target, nil
}

func newTestController(t *testing.T) (*Controller, *fakeBackend) {
	t.Helper()
	axes := testAxes()
	mapper, err := kinematics.New(axes)
	if err != nil {
		t.Fatalf("kinematics.New: %v", err)
	}
	p := planner.New(planner.DefaultRingSize, axes)
	dda := core.NewDDA()

	backend := &fakeBackend{}
	dda.AttachMotor(machine.AxisX, &core.DDAMotor{Backend: backend, Power: core.PowerAlwaysOn})

	var params executor.Params
	params.SegmentSeconds = 0.005
	params.DDAFrequencyHz = 50000
	params.StepsPerUnit[machine.AxisX] = 80
	params.PowerFlag[machine.AxisX] = true

	m := gcode.NewMachine(mapper, p, fakeHoming{})
	ctl := New(m, p, dda, params)
	return ctl, backend
}

func TestSubmitLineBlankIsNoop(t *testing.T) {
	ctl, _ := newTestController(t)
	code, err := ctl.SubmitLine("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != status.NOOP {
		t.Fatalf("got code=%v, want NOOP", code)
	}
}

func TestSubmitLineCommentIsNoop(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("; just a comment"); err != nil {
		t.Fatalf("unexpected error for comment-only line: %v", err)
	}
}

func TestSubmitLineQueuesMove(t *testing.T) {
	ctl, _ := newTestController(t)
	_, err := ctl.SubmitLine("G1 X10 F600")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctl.Planner.IsIdle() {
		t.Fatal("expected a queued move to make the planner non-idle")
	}
}

func TestServiceMotionDrivesFakeBackend(t *testing.T) {
	ctl, backend := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}

	core.SetTime(0)
	core.ProcessTimers()

	for i := 0; i < 100000 && !ctl.Planner.IsIdle(); i++ {
		ctl.ServiceMotion()
		core.SetTime(core.GetTime() + 240) // advance one DDA tick period (12MHz / 50kHz)
		core.ProcessTimers()
	}

	if !ctl.Planner.IsIdle() {
		t.Fatal("planner did not drain the queued move within the tick budget")
	}
	if backend.steps == 0 {
		t.Fatal("expected the fake backend to record at least one step")
	}
}

func TestSetFeedHoldPausesServicing(t *testing.T) {
	ctl, backend := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}
	ctl.SetFeedHold(true)

	core.SetTime(0)
	core.ProcessTimers()
	for i := 0; i < 50; i++ {
		ctl.ServiceMotion()
		core.SetTime(core.GetTime() + 20)
		core.ProcessTimers()
	}

	if backend.steps != 0 {
		t.Fatalf("expected no stepping while feedhold is engaged, got %d steps", backend.steps)
	}
}

func TestAbortClearsQueueAndDDA(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}
	ctl.Abort()

	if !ctl.Planner.IsIdle() {
		t.Fatal("expected Abort to leave the planner idle")
	}
	if ctl.DDA.IsActive() {
		t.Fatal("expected Abort to stop the DDA")
	}
}

func TestReportReflectsLineCount(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}
	if _, err := ctl.SubmitLine("G1 Y10"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}
	r := ctl.Report()
	if r.Line != 2 {
		t.Fatalf("got Line=%d, want 2", r.Line)
	}
}

func TestSubmitReaderStopsAtChecksumMismatch(t *testing.T) {
	ctl, _ := newTestController(t)
	r := strings.NewReader("G1 X10 F600\nG1 Y10*1\nG1 Z1\n")
	err := ctl.SubmitReader(r)
	if err == nil {
		t.Fatal("expected SubmitReader to surface the checksum-mismatch error")
	}
}

func TestPushReportRecordsHistory(t *testing.T) {
	ctl, _ := newTestController(t)
	if err := ctl.PushReport(); err != nil {
		t.Fatalf("PushReport: %v", err)
	}
	if ctl.History() == nil {
		t.Fatal("expected a non-nil history ring")
	}
}

// TestSetFeedHoldRampsRemainingBlockToZero engages a feedhold mid-block
// and checks that it reprofiles the remaining segments into a
// decel-to-zero ramp rather than freezing in place, without mutating
// the queued *machine.Block itself (spec.md §4.1/§8).
func TestSetFeedHoldRampsRemainingBlockToZero(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}

	core.SetTime(0)
	core.ProcessTimers()
	for i := 0; i < 5; i++ {
		ctl.ServiceMotion()
		core.SetTime(core.GetTime() + 20)
		core.ProcessTimers()
	}

	block := ctl.currentBlock
	if block == nil {
		t.Fatal("expected a block to be staged into the controller before engaging feedhold")
	}
	originalExit := block.RequestedExitVelocity
	if ctl.segIdx == 0 {
		t.Fatal("expected at least one segment to already be prepped before engaging feedhold")
	}

	ctl.SetFeedHold(true)

	if ctl.currentBlock != block {
		t.Fatal("expected feedhold to keep the same *machine.Block, not swap it for a new one")
	}
	if block.RequestedExitVelocity != originalExit {
		t.Fatal("expected feedhold to leave the queued block's own fields untouched")
	}
	if ctl.currentProfile.Exit != 0 {
		t.Fatalf("expected the reprofiled ramp's exit velocity to be zero, got %v", ctl.currentProfile.Exit)
	}
	if ctl.segIdx != 0 {
		t.Fatalf("expected the ramp's segment cache to restart from index 0, got %d", ctl.segIdx)
	}
	if len(ctl.currentSegs) == 0 {
		t.Fatal("expected the ramp to produce at least one segment")
	}
}

// TestSetFeedHoldIsIdempotent checks that engaging or releasing a
// feedhold that is already in that state is a no-op, rather than
// re-ramping (which would stack a second decel ramp on top of the
// first and make resume position-incorrect).
func TestSetFeedHoldIsIdempotent(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}

	core.SetTime(0)
	core.ProcessTimers()
	for i := 0; i < 5; i++ {
		ctl.ServiceMotion()
		core.SetTime(core.GetTime() + 20)
		core.ProcessTimers()
	}

	ctl.SetFeedHold(true)
	rampedSegs := ctl.currentSegs
	ctl.SetFeedHold(true)

	if len(ctl.currentSegs) != len(rampedSegs) {
		t.Fatal("expected a second SetFeedHold(true) to be a no-op rather than re-ramping an already-ramped block")
	}
}

// TestRunDwellDelaysExecDoneUntilWakeTime checks that a dwell block
// holds stepping until its requested microsecond count elapses, then
// lets the planner advance (spec.md §4.4).
func TestRunDwellDelaysExecDoneUntilWakeTime(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("G4 P0.01"); err != nil { // 10ms = 10000us dwell
		t.Fatalf("SubmitLine: %v", err)
	}
	if ctl.Planner.IsIdle() {
		t.Fatal("expected the dwell to be queued")
	}

	core.SetTime(0)
	core.ProcessTimers()
	ctl.ServiceMotion() // pops the dwell block and arms the wake time

	if ctl.dwellBlock == nil {
		t.Fatal("expected ServiceMotion to arm a pending dwell block")
	}
	if ctl.Planner.IsIdle() {
		t.Fatal("expected the dwell block to still occupy the planner while waiting")
	}

	// Advance less than the dwell duration: it must not complete yet.
	core.SetTime(core.TimerFromUS(5000))
	core.ProcessTimers()
	ctl.ServiceMotion()
	if ctl.dwellBlock == nil {
		t.Fatal("expected the dwell to still be pending halfway through its duration")
	}

	// Advance past the dwell duration: it must now complete.
	core.SetTime(core.TimerFromUS(20000))
	core.ProcessTimers()
	ctl.ServiceMotion()
	if ctl.dwellBlock != nil {
		t.Fatal("expected the dwell to clear once its wake time has passed")
	}
	if !ctl.Planner.IsIdle() {
		t.Fatal("expected the planner to drain once the dwell completes")
	}
}

// TestOnSwitchTriggerEngagesFeedHoldDuringNormalMotion checks that an
// unexpected switch trigger during ordinary motion engages a feedhold
// rather than aborting outright (spec.md §4.6).
func TestOnSwitchTriggerEngagesFeedHoldDuringNormalMotion(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}

	core.TriggerSyncDoTrigger(ctl.TriggerSync(), TriggerReasonFeedHold)

	if !ctl.feedHold {
		t.Fatal("expected an unexpected trigger during normal motion to engage a feedhold")
	}
	if ctl.Planner.IsIdle() {
		t.Fatal("expected a feedhold, not an abort, to leave the queued move intact")
	}
}

// TestOnSwitchTriggerEscalatesToAbortWhenAlreadyHeld checks that a
// second trigger arriving while the machine is already in a hold has
// no safe recovery by holding again, so it escalates to an abort
// (spec.md §4.6's cycle-state-based selection).
func TestOnSwitchTriggerEscalatesToAbortWhenAlreadyHeld(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}
	ctl.SetFeedHold(true)

	core.TriggerSyncDoTrigger(ctl.TriggerSync(), TriggerReasonFeedHold)

	if ctl.feedHold {
		t.Fatal("expected escalation to abort, not to remain in feedhold")
	}
	if !ctl.Planner.IsIdle() {
		t.Fatal("expected the abort to clear the planner queue")
	}
}

// TestOnSwitchTriggerIgnoresHomingReason checks that a trigger tagged
// as homing's own (which the homing cycle already handles through its
// own SwitchReader) is not separately treated as a safety event.
func TestOnSwitchTriggerIgnoresHomingReason(t *testing.T) {
	ctl, _ := newTestController(t)
	if _, err := ctl.SubmitLine("G1 X10 F600"); err != nil {
		t.Fatalf("SubmitLine: %v", err)
	}

	core.TriggerSyncDoTrigger(ctl.TriggerSync(), TriggerReasonHoming)

	if ctl.feedHold {
		t.Fatal("expected a homing-tagged trigger not to engage a feedhold")
	}
}
