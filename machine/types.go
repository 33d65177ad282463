// Package machine holds the canonical data model shared by the gcode,
// kinematics, planner, and executor packages: axes, motors, positions,
// motion blocks and segments.
package machine

import "errors"

// AxisID indexes the six logical axes. The first three are linear
// (length); the last three are rotary (degrees).
type AxisID int

const (
	AxisX AxisID = iota
	AxisY
	AxisZ
	AxisA
	AxisB
	AxisC
	NumAxes
)

func (a AxisID) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	case AxisA:
		return "A"
	case AxisB:
		return "B"
	case AxisC:
		return "C"
	default:
		return "?"
	}
}

// IsRotary reports whether the axis is angular (degrees) rather than
// linear (length).
func (a AxisID) IsRotary() bool {
	return a >= AxisA
}

// AxisMode selects how an axis participates in motion.
type AxisMode int

const (
	AxisModeDisabled AxisMode = iota
	AxisModeStandard
	AxisModeInhibited
	AxisModeRadius
	AxisModeSlaveX
	AxisModeSlaveY
	AxisModeSlaveZ
	AxisModeSlaveXY
	AxisModeSlaveXZ
	AxisModeSlaveYZ
	AxisModeSlaveXYZ
)

// AxisConfig carries the kinematic limits and homing parameters for
// one logical axis.
type AxisConfig struct {
	Mode AxisMode

	MaxVelocity float64 // mm/min or deg/min
	MaxFeedrate float64 // mm/min or deg/min
	TravelMin   float64
	TravelMax   float64
	MaxJerk     float64 // mm/min^3 or deg/min^3

	JunctionDeviation float64 // mm, sagitta of the cornering circle
	RotaryRadius      float64 // mm, used by AxisModeRadius

	HomingSearchVelocity float64
	HomingLatchVelocity  float64
	HomingZeroBackoff    float64 // "zero_offset" in spec.md §4.7
	HomingJerk           float64

	SoftLimitEnabled bool // off by default, spec.md §9
}

// MotorPowerMode controls when a motor driver is energized.
type MotorPowerMode int

const (
	MotorPowerDisabled MotorPowerMode = iota
	MotorPowerAlwaysOn
	MotorPowerOnInCycle
	MotorPowerOnWhenMoving
)

// MotorConfig describes one physical stepper motor mapped to an axis.
type MotorConfig struct {
	Axis AxisID

	Microsteps    uint16  // 1,2,4,8,...
	StepAngleDeg  float64 // whole-step angle, e.g. 1.8
	TravelPerRev  float64 // mm (linear) or deg (rotary) per motor revolution
	PolarityInvDir bool
	PolarityInvStep bool
	Power         MotorPowerMode

	// stepsPerUnit is derived: (360 * Microsteps) / (TravelPerRev * StepAngleDeg)
	stepsPerUnit float64
}

// StepsPerUnit returns the derived steps-per-mm (or steps-per-degree)
// scalar, recomputing it if any input has changed since the last call.
func (m *MotorConfig) StepsPerUnit() float64 {
	m.Recompute()
	return m.stepsPerUnit
}

// Recompute invalidates and recomputes steps-per-unit from the current
// microsteps / travel-per-rev / step-angle inputs.
func (m *MotorConfig) Recompute() {
	if m.StepAngleDeg <= 0 || m.TravelPerRev <= 0 {
		m.stepsPerUnit = 0
		return
	}
	m.stepsPerUnit = (360.0 * float64(m.Microsteps)) / (m.TravelPerRev * m.StepAngleDeg)
}

// Position is a vector over all six axes. Three instances of Position
// coexist in the system: model (gcode endpoint), planner (carried
// forward during planning) and runtime (actual commanded position, in
// steps via Vector()/FromSteps conversions done by the caller).
type Position [NumAxes]float64

// Add returns the element-wise sum of two positions.
func (p Position) Add(o Position) Position {
	var r Position
	for i := range p {
		r[i] = p[i] + o[i]
	}
	return r
}

// Sub returns the element-wise difference p - o.
func (p Position) Sub(o Position) Position {
	var r Position
	for i := range p {
		r[i] = p[i] - o[i]
	}
	return r
}

// MoveKind identifies what a Block represents.
type MoveKind int

const (
	MoveKindNull MoveKind = iota
	MoveKindLine
	MoveKindDwell
	MoveKindCommand
	MoveKindArcSegment
)

// BlockState is the planner/executor state tag of a Block. It is the
// single synchronization word between the planner (main loop) and the
// executor: the planner may mutate a block only while its state is
// BlockQueued; once the executor claims it the state becomes
// BlockRunning and the block is immutable.
type BlockState int

const (
	BlockEmpty BlockState = iota
	BlockPlanning
	BlockQueued
	BlockRunning
	BlockPending
)

// Block is one planner queue element: a single motion command with its
// full jerk-limited velocity profile. Blocks form a doubly linked ring
// (Next/Prev) owned by the planner.
type Block struct {
	State BlockState
	Kind  MoveKind

	Target    Position // absolute target vector
	Unit      Position // unit direction vector
	Length    float64  // total length (mm or mixed-unit blended length)

	RequestedEntryVelocity  float64
	RequestedCruiseVelocity float64
	RequestedExitVelocity   float64

	PlannedEntryVelocity  float64
	PlannedCruiseVelocity float64
	PlannedExitVelocity   float64

	Jerk              float64 // effective jerk-scaled acceleration limit for this block
	JunctionDeviation float64

	// Head/body/tail lengths of the 7-phase profile, filled by the
	// segment executor when the block starts running.
	HeadLength float64
	BodyLength float64
	TailLength float64

	DwellMicros uint32 // valid when Kind == MoveKindDwell

	ExactStop bool // G61 forces PlannedExitVelocity == 0, no junction smoothing
	ExactPath bool // G61.1 forces PlannedEntryVelocity == 0

	Next *Block
	Prev *Block
}

// ErrBlockImmutable is returned when something attempts to mutate a
// block whose state is BlockRunning.
var ErrBlockImmutable = errors.New("machine: block is running and immutable")

// Segment is the runtime unit produced by the executor: a constant
// duration slice of a block carrying one velocity command, decomposed
// into per-motor substep increments for the DDA. Segments are never
// queued — a single prep slot hands off to a single run slot (see
// core.DDA).
type Segment struct {
	// SubstepIncrement[i] is the per-tick accumulator increment for
	// motor i, scaled so that SubstepIncrement/FullScale steps/tick
	// gives the commanded velocity for that motor.
	SubstepIncrement [int(NumAxes)]uint32
	Direction        [int(NumAxes)]bool // true = positive
	PowerFlag        [int(NumAxes)]bool // motor should be energized this segment

	Ticks      uint32 // DDA tick count for this segment
	TickPeriod uint32 // DDA period, in timer ticks

	Dwell bool // true: this segment is a pure timed dwell, no stepping
}
