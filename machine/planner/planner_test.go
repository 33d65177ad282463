package planner

import (
	"math"
	"testing"

	"tinygfw/machine"
)

func testAxes() map[machine.AxisID]machine.AxisConfig {
	return map[machine.AxisID]machine.AxisConfig{
		machine.AxisX: {MaxVelocity: 3000, MaxJerk: 500, JunctionDeviation: 0.05},
		machine.AxisY: {MaxVelocity: 3000, MaxJerk: 500, JunctionDeviation: 0.05},
		machine.AxisZ: {MaxVelocity: 600, MaxJerk: 100, JunctionDeviation: 0.02},
	}
}

func TestQueueMoveAdmitsBlock(t *testing.T) {
	p := New(4, testAxes())

	target := machine.Position{}
	target[machine.AxisX] = 10
	b, err := p.QueueMove(target, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b == nil {
		t.Fatal("expected a queued block, got nil")
	}
	if b.State != machine.BlockQueued {
		t.Fatalf("expected BlockQueued, got %v", b.State)
	}
	if p.IsIdle() {
		t.Fatal("expected planner not idle after a queued move")
	}
	if p.PlannerPosition() != target {
		t.Fatalf("expected planner position to carry forward to target, got %v", p.PlannerPosition())
	}
}

func TestQueueMoveZeroLengthAbsorbed(t *testing.T) {
	p := New(4, testAxes())

	target := machine.Position{}
	target[machine.AxisX] = 10
	if _, err := p.QueueMove(target, 600); err != nil {
		t.Fatalf("unexpected error on first move: %v", err)
	}

	// Same target again: zero displacement, absorbed into the queued tail.
	b, err := p.QueueMove(target, 600)
	if err != nil {
		t.Fatalf("expected absorption (nil error), got %v", err)
	}
	if b != nil {
		t.Fatalf("expected nil block for an absorbed move, got %v", b)
	}
}

func TestQueueMoveFullRing(t *testing.T) {
	p := New(2, testAxes())

	var target machine.Position
	for i := 0; i < 2; i++ {
		target[machine.AxisX] = float64(i + 1)
		if _, err := p.QueueMove(target, 600); err != nil {
			t.Fatalf("unexpected error on move %d: %v", i, err)
		}
	}

	target[machine.AxisX] = 99
	if _, err := p.QueueMove(target, 600); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull on a full ring, got %v", err)
	}
}

func TestExecPopAndExecDone(t *testing.T) {
	p := New(4, testAxes())

	var target machine.Position
	target[machine.AxisX] = 10
	if _, err := p.QueueMove(target, 600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.ExecPop() == nil {
		t.Fatal("expected ExecPop to return the head once queued")
	}
	// Second pop before ExecDone: head is now Running, not Queued.
	if b := p.ExecPop(); b != nil {
		t.Fatalf("expected nil on re-pop of a running block, got %v", b)
	}

	p.ExecDone()
	if !p.IsIdle() {
		t.Fatal("expected planner idle after ExecDone on the only block")
	}
}

func TestClearQueueDiscardsEverything(t *testing.T) {
	p := New(4, testAxes())

	var target machine.Position
	target[machine.AxisX] = 10
	if _, err := p.QueueMove(target, 600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.ClearQueue()
	if !p.IsIdle() {
		t.Fatal("expected planner idle after ClearQueue")
	}
	if p.IsFull() {
		t.Fatal("expected planner not full after ClearQueue")
	}
}

// TestReplanJunctionExitMatchesNextEntry checks the continuity invariant
// (spec.md §8): a non-exact-stop predecessor's planned exit velocity
// equals its successor's planned entry velocity.
func TestReplanJunctionExitMatchesNextEntry(t *testing.T) {
	p := New(4, testAxes())

	var a, b machine.Position
	a[machine.AxisX] = 10
	b[machine.AxisX] = 20
	b[machine.AxisY] = 10

	first, err := p.QueueMove(a, 3000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.QueueMove(b, 3000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.PlannedExitVelocity != second.PlannedEntryVelocity {
		t.Fatalf("expected continuity: exit=%v entry=%v", first.PlannedExitVelocity, second.PlannedEntryVelocity)
	}
	if second.PlannedEntryVelocity > second.RequestedCruiseVelocity {
		t.Fatalf("entry velocity %v exceeds cruise %v", second.PlannedEntryVelocity, second.RequestedCruiseVelocity)
	}
}

// TestReplanExactStopPinsZeroExit checks that G61 exact-stop forces a
// block's planned exit velocity to zero regardless of what follows.
func TestReplanExactStopPinsZeroExit(t *testing.T) {
	p := New(4, testAxes())
	p.SetPathControl(PathControlExactStop)

	var target machine.Position
	target[machine.AxisX] = 10
	b, err := p.QueueMove(target, 3000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.PlannedExitVelocity != 0 {
		t.Fatalf("expected exact-stop block to plan a zero exit velocity, got %v", b.PlannedExitVelocity)
	}
}

func TestJunctionVelocityColinearIsUnbounded(t *testing.T) {
	unit := machine.Position{}
	unit[machine.AxisX] = 1
	v := junctionVelocity(unit, unit, 500, 0.05, false)
	if !math.IsInf(v, 1) {
		t.Fatalf("expected +Inf for colinear unit vectors, got %v", v)
	}
}

func TestJunctionVelocityReversalIsZero(t *testing.T) {
	var a, b machine.Position
	a[machine.AxisX] = 1
	b[machine.AxisX] = -1
	v := junctionVelocity(a, b, 500, 0.05, false)
	if v != 0 {
		t.Fatalf("expected 0 for a full reversal, got %v", v)
	}
}

func TestAxisLimitsClampsToSlowestParticipatingAxis(t *testing.T) {
	p := New(4, testAxes())
	unit := machine.Position{}
	unit[machine.AxisZ] = 1

	cruise, _, _ := p.axisLimits(unit, 10000)
	if cruise != 600 {
		t.Fatalf("expected cruise clamped to Z's max velocity (600), got %v", cruise)
	}
}
