// Package homing implements the search/latch homing and probing cycle
// of spec.md §4.7. Not present in the teacher (its doHome is a
// three-line position-reset stub); built new as a continuation bound
// to the controller's tick, the way spec.md §4.7/§5 describe homing:
// "a sequence of motion requests dispatched one per controller tick...
// each step enqueues at most one block and then yields." Cycle does
// not own a goroutine or a wall clock — every wait for a switch drives
// the caller-supplied TickFunc instead, the same single-threaded
// cooperative model controller.Controller uses for everything else.
package homing

import (
	"errors"
	"math"

	"tinygfw/machine"
)

// ErrHomingTimeout is returned when a search or latch move completes
// its full travel without the expected switch triggering.
var ErrHomingTimeout = errors.New("homing: switch did not trigger within travel limit")

// ErrAxisNotHomeable is returned for an axis with no configured
// min/max switch.
var ErrAxisNotHomeable = errors.New("homing: axis has no configured switch")

// Role selects which physical switch a homing/probing move watches.
type Role int

const (
	RoleMin Role = iota
	RoleMax
	RoleProbe
)

// SwitchReader reports the current debounced, polarity-corrected
// state of one configured switch. Implementations poll the real
// hardware or a fake, in tests; NewDebouncer wraps a raw pin reader to
// satisfy this interface with the leading-edge/N-sample confirm logic
// of spec.md §4.6.
type SwitchReader interface {
	Read(axis machine.AxisID, role Role) (triggered bool, err error)
}

// Resetter is optionally implemented by a SwitchReader whose trigger
// state latches (the leading-edge behavior spec.md §4.6 requires): the
// cycle calls Reset once a switch has been backed off of, so the next
// leg that watches the same switch starts from a clean debounce count
// instead of inheriting a stale latch ("re-read on expiry").
type Resetter interface {
	Reset(axis machine.AxisID, role Role)
}

func resetSwitch(r SwitchReader, axis machine.AxisID, role Role) {
	if rs, ok := r.(Resetter); ok {
		rs.Reset(axis, role)
	}
}

// Mover is the subset of *planner.Planner a homing/probing move drives.
// Homing moves bypass the ordinary jerk-limited queue semantics in one
// respect: each search/latch leg is a single block whose completion is
// observed by polling the switch, not by waiting for planner FIFO
// drain, so Mover only needs position get/set plus direct queuing.
type Mover interface {
	QueueMove(target machine.Position, feed float64) (*machine.Block, error)
	PlannerPosition() machine.Position
	SetPlannerPosition(pos machine.Position)
	ClearQueue()
	IsIdle() bool
}

// TickFunc advances the motion subsystem by one controller tick: it
// services the planner/executor/DDA pipeline so that a queued move
// actually progresses. Cycle calls it once per iteration of a
// search/latch wait instead of sleeping, matching spec.md §5's "single
// endless loop" — from homing's point of view, waiting for a switch
// *is* the main loop's motion-servicing step, not a separate sleep.
type TickFunc func()

// assumedTickHz bounds how many ticks a search/latch leg is allowed
// before declaring ErrHomingTimeout, scaled by the leg's estimated
// travel time. It doesn't need to match the DDA's real frequency
// exactly: it only has to be generous enough that a real move
// completes well inside the budget while a truly stuck switch still
// times out in a bounded number of iterations.
const assumedTickHz = 1000.0

// Cycle runs the per-axis homing sequence and probe moves.
type Cycle struct {
	axes     map[machine.AxisID]machine.AxisConfig
	mover    Mover
	switches SwitchReader
	order    []machine.AxisID
	tick     TickFunc
	waypoint machine.Position
}

// New builds a homing cycle. order lists axes in the sequence they
// should be homed when Home is called with no explicit axis filter
// (spec.md §3's HomingOrder, typically Z before X/Y). waypoint is the
// intermediate position step (6) of spec.md §4.7 traverses to before
// returning to work-zero. tick drives the motion pipeline while a
// search/latch leg waits on its switch; pass a no-op in tests that use
// an instantly-completing Mover.
func New(axes map[machine.AxisID]machine.AxisConfig, mover Mover, switches SwitchReader, order []machine.AxisID, waypoint machine.Position, tick TickFunc) *Cycle {
	if tick == nil {
		tick = func() {}
	}
	return &Cycle{axes: axes, mover: mover, switches: switches, order: order, tick: tick, waypoint: waypoint}
}

// Home runs the six-step search/backoff/latch/backoff sequence for
// each requested axis, in the cycle's configured order, then traverses
// to the way-point and work-zero and declares the machine homed. If
// axes is empty, every configured axis is homed.
func (c *Cycle) Home(axes []machine.AxisID) error {
	targets := axes
	if len(targets) == 0 {
		targets = c.order
	}

	want := make(map[machine.AxisID]bool, len(targets))
	for _, a := range targets {
		want[a] = true
	}

	for _, axis := range c.order {
		if !want[axis] {
			continue
		}
		if err := c.homeAxis(axis); err != nil {
			return err
		}
	}

	return c.finish()
}

// homeAxis runs spec.md §4.7's five motion steps for one axis:
// (1) already-closed backoff, (2) search, (3) search backoff,
// (4) latch, (5) latch backoff. Step (6), shared across every homed
// axis, runs once in finish after Home's axis loop completes.
func (c *Cycle) homeAxis(axis machine.AxisID) error {
	cfg, ok := c.axes[axis]
	if !ok {
		return ErrAxisNotHomeable
	}

	// Convention: negative travel searches toward RoleMin, matching
	// spec.md §4.7's single-switch-per-axis model.
	role := RoleMin

	// Step (1): if the switch is already closed, back off first so the
	// search leg below has room to run into it from the open side.
	closed, err := c.switches.Read(axis, role)
	if err != nil {
		return err
	}
	if closed {
		if err := c.moveBy(axis, cfg.HomingZeroBackoff, cfg.HomingLatchVelocity); err != nil {
			return err
		}
		resetSwitch(c.switches, axis, role)
	}

	// Step (2): search toward the switch at search velocity.
	if err := c.runToSwitch(axis, role, -axisTravel(cfg), cfg.HomingSearchVelocity); err != nil {
		return err
	}

	// Step (3): search backoff, clearing the latch before the slow
	// re-approach.
	if err := c.moveBy(axis, cfg.HomingZeroBackoff, cfg.HomingSearchVelocity); err != nil {
		return err
	}
	resetSwitch(c.switches, axis, role)

	// Step (4): latch — slow re-approach for a precise trigger point,
	// travelling 2*zero_offset so it re-crosses the switch from the
	// backed-off position.
	if err := c.runToSwitch(axis, role, -2*cfg.HomingZeroBackoff, cfg.HomingLatchVelocity); err != nil {
		return err
	}

	// Step (5): latch backoff, then declare this position zero.
	if err := c.moveBy(axis, cfg.HomingZeroBackoff, cfg.HomingLatchVelocity); err != nil {
		return err
	}
	resetSwitch(c.switches, axis, role)

	zeroed := c.mover.PlannerPosition()
	zeroed[axis] = 0
	c.mover.SetPlannerPosition(zeroed)

	return nil
}

// axisTravel returns the (positive) distance a full search leg must cover to
// guarantee reaching the min-side switch from anywhere in the axis's
// travel range, regardless of the machine's current position.
func axisTravel(cfg machine.AxisConfig) float64 {
	return cfg.TravelMax - cfg.TravelMin
}

// finish runs spec.md §4.7 step (6): traverse to the configured
// way-point, then to work-zero, then set coordinate offsets. Work-zero
// is the machine origin: every axis homed this cycle was just zeroed
// there, so returning to Position{} is the work-zero declaration.
func (c *Cycle) finish() error {
	if _, err := c.mover.QueueMove(c.waypoint, c.traverseVelocity()); err != nil {
		return err
	}
	c.mover.SetPlannerPosition(c.waypoint)
	c.pump()

	workZero := machine.Position{}
	if _, err := c.mover.QueueMove(workZero, c.traverseVelocity()); err != nil {
		return err
	}
	c.mover.SetPlannerPosition(workZero)
	c.pump()

	return nil
}

// traverseVelocity picks a representative feed for the two
// coordinating moves in finish: the slowest configured latch velocity
// among homed axes, erring toward caution over speed for a move that
// crosses every axis at once.
func (c *Cycle) traverseVelocity() float64 {
	slowest := math.Inf(1)
	for _, axis := range c.order {
		if cfg, ok := c.axes[axis]; ok && cfg.HomingLatchVelocity > 0 && cfg.HomingLatchVelocity < slowest {
			slowest = cfg.HomingLatchVelocity
		}
	}
	if math.IsInf(slowest, 1) {
		return 1
	}
	return slowest
}

// moveBy queues a single relative move of delta along axis and pumps
// the tick function until the planner has drained it.
func (c *Cycle) moveBy(axis machine.AxisID, delta, feed float64) error {
	target := c.mover.PlannerPosition()
	target[axis] += delta
	if _, err := c.mover.QueueMove(target, feed); err != nil {
		return err
	}
	c.mover.SetPlannerPosition(target)
	c.pump()
	return nil
}

// pump drains any in-flight motion by calling tick until the mover
// reports idle, bounding the wait the same way runToSwitch does.
func (c *Cycle) pump() {
	const maxTicks = 1_000_000
	for i := 0; i < maxTicks && !c.mover.IsIdle(); i++ {
		c.tick()
	}
}

// runToSwitch queues a single relative move of delta along axis and
// pumps the motion pipeline, checking the given switch after every
// tick, until it triggers or the leg's tick budget is exhausted.
func (c *Cycle) runToSwitch(axis machine.AxisID, role Role, delta, feed float64) error {
	if math.Abs(delta) < 1e-9 || feed <= 0 {
		return nil
	}

	start := c.mover.PlannerPosition()
	target := start
	target[axis] += delta
	if _, err := c.mover.QueueMove(target, feed); err != nil {
		return err
	}
	c.mover.SetPlannerPosition(target)

	etaSeconds := math.Abs(delta) / feed * 60
	maxTicks := int(etaSeconds*assumedTickHz) + 1000

	for i := 0; i < maxTicks; i++ {
		triggered, err := c.switches.Read(axis, role)
		if err != nil {
			return err
		}
		if triggered {
			c.mover.ClearQueue()
			return nil
		}
		c.tick()
	}

	c.mover.ClearQueue()
	return ErrHomingTimeout
}

// Probe drives toward target at feed, stopping and reporting the
// planner position at the instant the probe switch triggers. If the
// move completes without a trigger, it returns the un-triggered
// position and ErrHomingTimeout for the caller (G38.2/G38.3) to
// interpret.
func (c *Cycle) Probe(target machine.Position, feed float64, towardWork bool) (machine.Position, error) {
	start := c.mover.PlannerPosition()
	if _, err := c.mover.QueueMove(target, feed); err != nil {
		return start, err
	}

	length := vectorLength(target.Sub(start))
	etaSeconds := length / feed * 60
	maxTicks := int(etaSeconds*assumedTickHz) + 1000

	for i := 0; i < maxTicks; i++ {
		triggered, err := c.switches.Read(0, RoleProbe)
		if err != nil {
			return start, err
		}
		if triggered {
			stop := c.mover.PlannerPosition()
			c.mover.ClearQueue()
			resetSwitch(c.switches, 0, RoleProbe)
			return stop, nil
		}
		c.tick()
	}

	c.mover.ClearQueue()
	return c.mover.PlannerPosition(), ErrHomingTimeout
}

func vectorLength(p machine.Position) float64 {
	sum := 0.0
	for _, v := range p {
		sum += v * v
	}
	return math.Sqrt(sum)
}
