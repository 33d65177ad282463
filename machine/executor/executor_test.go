package executor

import (
	"math"
	"testing"

	"tinygfw/machine"
)

func TestPlanCruisePhaseReachedOnLongMove(t *testing.T) {
	b := &machine.Block{
		Length:                1000,
		PlannedEntryVelocity:  0,
		PlannedCruiseVelocity: 3000,
		PlannedExitVelocity:   0,
		Jerk:                  5_000_000,
	}
	p := Plan(b)

	if p.BodyTime <= 0 {
		t.Fatalf("expected a nonzero cruise phase on a long move, got profile %+v", p)
	}
	if p.Cruise != b.PlannedCruiseVelocity/60 {
		t.Fatalf("expected full requested cruise velocity to be reached, got %v want %v", p.Cruise, b.PlannedCruiseVelocity/60)
	}
	if b.HeadLength+b.BodyLength+b.TailLength == 0 {
		t.Fatal("expected block phase lengths to be written back")
	}
}

func TestPlanShortMoveReducesCruise(t *testing.T) {
	b := &machine.Block{
		Length:                0.01,
		PlannedEntryVelocity:  0,
		PlannedCruiseVelocity: 3000,
		PlannedExitVelocity:   0,
		Jerk:                  5_000_000,
	}
	p := Plan(b)

	if p.Cruise >= b.PlannedCruiseVelocity/60 {
		t.Fatalf("expected reduced cruise velocity on a too-short move, got %v", p.Cruise)
	}
	if p.BodyTime > 1e-6 {
		t.Fatalf("expected the cruise phase to collapse on a too-short move, got BodyTime=%v", p.BodyTime)
	}

	total := b.HeadLength + b.BodyLength + b.TailLength
	if math.Abs(total-b.Length) > 1e-6 {
		t.Fatalf("expected phase lengths to sum to block length %v, got %v", b.Length, total)
	}
}

func TestPlanEntryExitContinuity(t *testing.T) {
	b := &machine.Block{
		Length:                10,
		PlannedEntryVelocity:  600,
		PlannedCruiseVelocity: 3000,
		PlannedExitVelocity:   300,
		Jerk:                  5_000_000,
	}
	p := Plan(b)

	if p.Entry != b.PlannedEntryVelocity/60 {
		t.Fatalf("expected profile entry velocity to match the block's, got %v", p.Entry)
	}
	if p.Exit != b.PlannedExitVelocity/60 {
		t.Fatalf("expected profile exit velocity to match the block's, got %v", p.Exit)
	}
}

func TestVelocityAtBoundaries(t *testing.T) {
	p := Profile{Entry: 0, Cruise: 10, Exit: 0, HeadTime: 2, BodyTime: 3, TailTime: 2}

	if v := p.velocityAt(0); v != 0 {
		t.Fatalf("expected velocity 0 at t=0, got %v", v)
	}
	if v := p.velocityAt(2.5); math.Abs(v-10) > 1e-9 {
		t.Fatalf("expected cruise velocity mid-body, got %v", v)
	}
	if v := p.velocityAt(p.TotalTime()); math.Abs(v-0) > 1e-6 {
		t.Fatalf("expected velocity to return near 0 at the end of the tail, got %v", v)
	}
}

func TestSegmentsCoverTotalTime(t *testing.T) {
	b := &machine.Block{Length: 10}
	b.Unit[machine.AxisX] = 1
	p := Profile{Entry: 0, Cruise: 10, Exit: 0, HeadTime: 1, BodyTime: 1, TailTime: 1}

	params := Params{SegmentSeconds: 0.5, DDAFrequencyHz: 1000}
	params.StepsPerUnit[machine.AxisX] = 200
	params.PowerFlag[machine.AxisX] = true

	segs := Segments(b, p, params)
	if len(segs) == 0 {
		t.Fatal("expected at least one segment")
	}

	var totalTicks uint32
	for _, s := range segs {
		totalTicks += s.Ticks
	}
	expectedTicks := uint32(math.Round(p.TotalTime() * float64(params.DDAFrequencyHz)))
	if d := int(totalTicks) - int(expectedTicks); d < -1 || d > 1 {
		t.Fatalf("expected segment ticks to sum close to total duration ticks (%d), got %d", expectedTicks, totalTicks)
	}
}

func TestSegmentsRespectDirectionAndPower(t *testing.T) {
	b := &machine.Block{Length: 10}
	b.Unit[machine.AxisX] = -1
	p := Profile{Entry: 0, Cruise: 10, Exit: 0, HeadTime: 0, BodyTime: 1, TailTime: 0}

	params := Params{SegmentSeconds: 0.5, DDAFrequencyHz: 1000}
	params.StepsPerUnit[machine.AxisX] = 200
	params.PowerFlag[machine.AxisX] = true

	segs := Segments(b, p, params)
	if len(segs) == 0 {
		t.Fatal("expected at least one segment")
	}
	for _, s := range segs {
		if s.Direction[machine.AxisX] {
			t.Fatal("expected negative unit component to produce Direction=false")
		}
		if !s.PowerFlag[machine.AxisX] {
			t.Fatal("expected power flag to follow params.PowerFlag for a participating axis")
		}
		if s.PowerFlag[machine.AxisY] {
			t.Fatal("expected a non-participating axis to not be powered")
		}
	}
}

func TestSegmentsReturnsNilWhenUnconfigured(t *testing.T) {
	b := &machine.Block{Length: 10}
	p := Profile{Entry: 0, Cruise: 10, Exit: 0, BodyTime: 1}

	if segs := Segments(b, p, Params{}); segs != nil {
		t.Fatalf("expected nil segments with zero SegmentSeconds/DDAFrequencyHz, got %v", segs)
	}
}
