package homing

import (
	"testing"

	"tinygfw/machine"
)

// fakeMover is an in-memory Mover: every QueueMove "completes" the
// instant it's called, since homing only observes planner position and
// switch state, never block/segment execution.
type fakeMover struct {
	pos        machine.Position
	cleared    int
	moveCount  int
	lastTarget machine.Position
	lastFeed   float64
}

func (m *fakeMover) QueueMove(target machine.Position, feed float64) (*machine.Block, error) {
	m.moveCount++
	m.lastTarget = target
	m.lastFeed = feed
	m.pos = target
	return &machine.Block{Target: target}, nil
}

func (m *fakeMover) PlannerPosition() machine.Position    { return m.pos }
func (m *fakeMover) SetPlannerPosition(p machine.Position) { m.pos = p }
func (m *fakeMover) ClearQueue()                           { m.cleared++ }
func (m *fakeMover) IsIdle() bool                           { return true }

// alwaysTriggered reports every switch as already triggered, so
// runToSwitch's poll loop returns on its first check.
type alwaysTriggered struct{}

func (alwaysTriggered) Read(axis machine.AxisID, role Role) (bool, error) { return true, nil }

// neverTriggered is used to exercise ErrHomingTimeout: the poll loop
// runs out its deadline without ever seeing a trigger.
type neverTriggered struct{}

func (neverTriggered) Read(axis machine.AxisID, role Role) (bool, error) { return false, nil }

func testAxes() map[machine.AxisID]machine.AxisConfig {
	return map[machine.AxisID]machine.AxisConfig{
		machine.AxisX: {
			TravelMin:            -200,
			TravelMax:            0,
			HomingSearchVelocity: 600,
			HomingLatchVelocity:  60,
			HomingZeroBackoff:    5,
		},
		machine.AxisZ: {
			TravelMin:            -50,
			TravelMax:            0,
			HomingSearchVelocity: 300,
			HomingLatchVelocity:  30,
			HomingZeroBackoff:    2,
		},
	}
}

func TestHomeSingleAxisZeroesPosition(t *testing.T) {
	mover := &fakeMover{}
	c := New(testAxes(), mover, alwaysTriggered{}, []machine.AxisID{machine.AxisZ, machine.AxisX}, machine.Position{}, func() {})

	if err := c.Home([]machine.AxisID{machine.AxisX}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mover.pos[machine.AxisX] != 0 {
		t.Fatalf("expected homed axis position to be zeroed, got %v", mover.pos[machine.AxisX])
	}
	if mover.moveCount == 0 {
		t.Fatal("expected at least one queued move during homing")
	}
}

func TestHomeEmptyAxesUsesConfiguredOrder(t *testing.T) {
	mover := &fakeMover{}
	order := []machine.AxisID{machine.AxisZ, machine.AxisX}
	c := New(testAxes(), mover, alwaysTriggered{}, order, machine.Position{}, func() {})

	if err := c.Home(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mover.pos[machine.AxisX] != 0 || mover.pos[machine.AxisZ] != 0 {
		t.Fatalf("expected every axis in the cycle's order to be homed, got %v", mover.pos)
	}
}

func TestHomeUnconfiguredAxisReturnsError(t *testing.T) {
	mover := &fakeMover{}
	c := New(testAxes(), mover, alwaysTriggered{}, []machine.AxisID{machine.AxisX}, machine.Position{}, func() {})

	if err := c.Home([]machine.AxisID{machine.AxisY}); err != ErrAxisNotHomeable {
		t.Fatalf("expected ErrAxisNotHomeable for an axis with no config, got %v", err)
	}
}

func TestHomeTimesOutWithoutTrigger(t *testing.T) {
	mover := &fakeMover{}
	axes := testAxes()
	// Shrink travel so the search leg's tick budget is small and the
	// timeout fires after few poll iterations.
	cfg := axes[machine.AxisX]
	cfg.TravelMin = -0.001
	axes[machine.AxisX] = cfg

	c := New(axes, mover, neverTriggered{}, []machine.AxisID{machine.AxisX}, machine.Position{}, func() {})

	if err := c.Home([]machine.AxisID{machine.AxisX}); err != ErrHomingTimeout {
		t.Fatalf("expected ErrHomingTimeout, got %v", err)
	}
	if mover.cleared == 0 {
		t.Fatal("expected the queue to be cleared after a homing timeout")
	}
}

func TestProbeReturnsPositionOnTrigger(t *testing.T) {
	mover := &fakeMover{}
	c := New(testAxes(), mover, alwaysTriggered{}, nil, machine.Position{}, func() {})

	target := machine.Position{}
	target[machine.AxisZ] = -10
	stop, err := c.Probe(target, 100, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stop != target {
		t.Fatalf("expected probe stop position to equal the commanded target once triggered, got %v", stop)
	}
	if mover.cleared == 0 {
		t.Fatal("expected the queue to be cleared once the probe triggers")
	}
}

func TestProbeTimesOutWithoutTrigger(t *testing.T) {
	mover := &fakeMover{}
	c := New(testAxes(), mover, neverTriggered{}, nil, machine.Position{}, func() {})

	target := machine.Position{}
	target[machine.AxisZ] = -0.0005 // tiny move, so the deadline elapses quickly

	_, err := c.Probe(target, 100, true)
	if err != ErrHomingTimeout {
		t.Fatalf("expected ErrHomingTimeout, got %v", err)
	}
}
