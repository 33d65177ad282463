package core

// Multi-axis Bresenham DDA stepper runtime.
//
// Rewritten from the teacher's per-motor Stepper (stepper.go), which
// ran one independent accelerating timer per axis. The canonical
// machine's segment executor instead hands down fixed-velocity
// segments that cover every axis at once (spec.md §4.4/§4.5), so all
// motors advance off ONE shared tick: each tick, every motor's
// fixed-point accumulator is bumped by that motor's per-tick
// increment, and a step pulse fires whenever the accumulator
// overflows. This is the same double-buffered prep/run handoff the
// teacher used (QueueMove / loadNextMoveFromHandler), just with one
// timer driving six accumulators instead of six timers each driving
// one.

import (
	"errors"

	"tinygfw/machine"
)

// MaxDDAMotors bounds the number of simultaneously driven motors to
// the six logical axes.
const MaxDDAMotors = int(machine.NumAxes)

// ErrPrepFull is returned by DDA.Prep when the single prep slot is
// already occupied; the caller (the executor) must wait for
// PrepReady before preparing the next segment.
var ErrPrepFull = errors.New("dda: prep slot occupied")

// DDAMotor is one physical stepper channel.
type DDAMotor struct {
	OID             uint8
	StepPin         uint8
	DirPin          uint8
	InvertStep      bool
	InvertDir       bool
	Power           MotorPowerState
	Position        int64
	Backend         StepperBackend
	accumulator     uint32
	direction       bool
	energized       bool
}

// MotorPowerState mirrors machine.MotorPowerMode at the runtime layer
// (disabled / always-on / on-in-cycle / on-when-moving).
type MotorPowerState uint8

const (
	PowerDisabled MotorPowerState = iota
	PowerAlwaysOn
	PowerOnInCycle
	PowerOnWhenMoving
)

// DDA drives up to MaxDDAMotors motors off a single shared tick. Only
// one segment runs at a time; a second may be staged in the prep slot
// so the executor never has to race the tick to hand off the next one.
type DDA struct {
	Motors [MaxDDAMotors]*DDAMotor

	tick Timer

	running *machine.Segment
	prep    *machine.Segment

	ticksRemaining uint32
	cycleActive    bool // true while the canonical machine is in a motion cycle

	onSegmentDone func() // called when the running segment completes and no prep was ready
}

// NewDDA creates an idle DDA runtime.
func NewDDA() *DDA {
	d := &DDA{}
	d.tick.Handler = d.tickHandler
	return d
}

// AttachMotor installs a motor at the given axis slot.
func (d *DDA) AttachMotor(axis machine.AxisID, m *DDAMotor) {
	d.Motors[axis] = m
}

// SetSegmentDoneCallback registers a callback fired from the timer
// context when the run slot drains and no prep segment was staged —
// the executor's cue to either feed another segment or declare the
// block complete.
func (d *DDA) SetSegmentDoneCallback(fn func()) {
	d.onSegmentDone = fn
}

// SetCycleActive toggles the "motion cycle in progress" flag consulted
// by PowerOnInCycle motors.
func (d *DDA) SetCycleActive(active bool) {
	d.cycleActive = active
	for _, m := range d.Motors {
		if m != nil {
			d.applyPower(m)
		}
	}
}

// Prep stages the next segment. Returns ErrPrepFull if a segment is
// already staged and not yet running.
func (d *DDA) Prep(seg *machine.Segment) error {
	if d.prep != nil {
		return ErrPrepFull
	}
	d.prep = seg

	if d.running == nil {
		d.start(seg)
		d.prep = nil
	}
	return nil
}

// PrepReady reports whether the prep slot is free to accept another
// segment.
func (d *DDA) PrepReady() bool {
	return d.prep == nil
}

// IsActive reports whether a segment is currently running.
func (d *DDA) IsActive() bool {
	return d.running != nil
}

// Stop immediately halts stepping and discards both slots (used by
// abort; a feedhold decelerates through segments instead).
func (d *DDA) Stop() {
	d.running = nil
	d.prep = nil
	d.ticksRemaining = 0
	for _, m := range d.Motors {
		if m != nil {
			m.energized = false
			d.applyPower(m)
		}
	}
}

func (d *DDA) start(seg *machine.Segment) {
	d.running = seg
	d.ticksRemaining = seg.Ticks

	for i, m := range d.Motors {
		if m == nil {
			continue
		}
		if m.direction != seg.Direction[i] {
			// Direction flip: mirror the accumulator so the fractional
			// progress since the last step counts toward the first step
			// in the new direction.
			m.accumulator = -m.accumulator
		}
		m.direction = seg.Direction[i]
		m.energized = seg.PowerFlag[i]
		d.applyPower(m)
		if m.Backend != nil {
			m.Backend.SetDirection(m.direction != m.InvertDir)
		}
	}

	d.tick.WakeTime = GetTime() + seg.TickPeriod
	ScheduleTimer(&d.tick)
}

// tickHandler advances every motor's accumulator by one tick's worth
// of substep increment, firing a step pulse on overflow.
func (d *DDA) tickHandler(t *Timer) uint8 {
	seg := d.running
	if seg == nil {
		return SF_DONE
	}

	if !seg.Dwell {
		for i, m := range d.Motors {
			if m == nil || seg.SubstepIncrement[i] == 0 {
				continue
			}
			before := m.accumulator
			m.accumulator += seg.SubstepIncrement[i]
			if m.accumulator < before { // unsigned overflow: a step is due
				if m.Backend != nil {
					m.Backend.Step()
				}
				if m.direction {
					m.Position++
				} else {
					m.Position--
				}
			}
		}
	}

	d.ticksRemaining--
	if d.ticksRemaining > 0 {
		t.WakeTime += seg.TickPeriod
		return SF_RESCHEDULE
	}

	if d.prep != nil {
		next := d.prep
		d.prep = nil
		d.start(next)
		return SF_DONE // start() has already rescheduled its own timer
	}

	d.running = nil
	for _, m := range d.Motors {
		if m != nil {
			d.applyPower(m)
		}
	}
	if d.onSegmentDone != nil {
		d.onSegmentDone()
	}
	return SF_DONE
}

func (d *DDA) applyPower(m *DDAMotor) {
	want := false
	switch m.Power {
	case PowerAlwaysOn:
		want = true
	case PowerOnInCycle:
		want = d.cycleActive
	case PowerOnWhenMoving:
		want = m.energized
	case PowerDisabled:
		want = false
	}
	if m.Backend != nil {
		if want {
			m.Backend.Enable()
		} else {
			m.Backend.Disable()
		}
	}
}
