package gcode

import (
	"errors"
	"math"

	"tinygfw/machine"
	"tinygfw/machine/kinematics"
	"tinygfw/machine/planner"
	"tinygfw/machine/status"
)

// Planner is the subset of *planner.Planner the canonical machine
// drives. Kept as an interface (mirroring the teacher's
// standalone/gcode/interpreter.go Planner interface) so the CM can be
// tested against a fake ring.
type Planner interface {
	QueueMove(target machine.Position, feed float64) (*machine.Block, error)
	QueueDwell(micros uint32) (*machine.Block, error)
	PlannerPosition() machine.Position
	SetPlannerPosition(pos machine.Position)
	SetPathControl(m planner.PathControlMode)
	ClearQueue()
	IsIdle() bool
}

// HomingCycle is the subset of machine/homing.Cycle the CM invokes for
// G28/G38.2/G38.3. Kept as an interface to avoid a gcode->homing
// import cycle (homing consumes the CM's kinematics, not vice versa).
type HomingCycle interface {
	Home(axes []machine.AxisID) error
	Probe(target machine.Position, feed float64, towardWork bool) (machine.Position, error)
}

// Plane selects the active arc/offset plane (G17/G18/G19).
type Plane int

const (
	PlaneXY Plane = iota
	PlaneXZ
	PlaneYZ
)

// FeedrateMode distinguishes G94 (units/min, the default) from G93
// (inverse time: F is 1/minutes for the whole move).
type FeedrateMode int

const (
	FeedrateUnitsPerMinute FeedrateMode = iota
	FeedrateInverseTime
)

// CycleState is the machine's coarse run state, gating which commands
// are accepted (spec.md §4.1 "cycle state").
type CycleState int

const (
	CycleOff CycleState = iota
	CycleMachining
	CycleHoming
	CycleProbing
	CycleJog
	CycleHold
)

const inchesToMM = 25.4

// ErrAxisMissing is returned when a G-code word requires at least one
// axis letter and none was given.
var ErrAxisMissing = errors.New("gcode: no axis word present")

// ErrAxisNotAllowed is returned when an axis letter is present for an
// axis that is not configured.
var ErrAxisNotAllowed = errors.New("gcode: axis not configured")

// ErrFeedrateMissing is returned by a feed move with no F word and no
// previously-established feedrate.
var ErrFeedrateMissing = errors.New("gcode: no feedrate established")

// State is the canonical machine's full modal state (spec.md §4.1).
type State struct {
	AbsoluteMode bool // G90 true, G91 false

	ActiveCoordSystem int // 0 = G54 .. 5 = G59
	CoordOffsets      [6]machine.Position
	G92Offset         machine.Position
	G92Active         bool

	Plane        Plane
	InchMode     bool // G20 true, G21 false
	PathControl  planner.PathControlMode
	FeedrateMode FeedrateMode

	Feed float64

	SpindleOn  bool
	SpindleCW  bool
	SpindleRPM float64

	CoolantMist  bool
	CoolantFlood bool

	ToolNumber int
	Homed      [machine.NumAxes]bool

	Cycle CycleState
}

// NewState returns the power-on default modal state: absolute mode,
// G54, plane XY, millimeters, G64 continuous path, units/min feed.
func NewState() *State {
	return &State{
		AbsoluteMode: true,
		Plane:        PlaneXY,
		PathControl:  planner.PathControlContinuous,
		FeedrateMode: FeedrateUnitsPerMinute,
	}
}

// Machine is the canonical machine: modal state plus the kinematic
// mapper and planner it drives. Adapted from amken3d-gopper's
// standalone/gcode/interpreter.go Interpreter, generalized from a
// fixed XYZE cartesian printer to the six-axis jerk-limited mill/router
// model in spec.md §4.1.
type Machine struct {
	state   *State
	mapper  *kinematics.AxisMapper
	planner Planner
	homing  HomingCycle

	// g53Once, when true, makes the next motion command resolve its
	// target in machine coordinates (offsets bypassed) rather than the
	// active work coordinate system. Cleared after the move it gates.
	g53Once bool
}

// NewMachine builds a canonical machine bound to the given kinematics
// mapper, planner, and homing cycle.
func NewMachine(mapper *kinematics.AxisMapper, p Planner, homing HomingCycle) *Machine {
	return &Machine{
		state:   NewState(),
		mapper:  mapper,
		planner: p,
		homing:  homing,
	}
}

// State exposes the modal state for status reporting.
func (m *Machine) State() *State {
	return m.state
}

// Execute dispatches one parsed command to the appropriate G/M/T
// handler and returns the canonical result code.
func (m *Machine) Execute(cmd *Command) (status.Code, error) {
	if cmd == nil || (cmd.Comment != "" && cmd.Type == 0) {
		return status.NOOP, nil
	}

	switch cmd.Type {
	case 'G':
		return m.executeG(cmd)
	case 'M':
		return m.executeM(cmd)
	case 'T':
		m.state.ToolNumber = int(cmd.Number)
		return status.OK, nil
	}

	return status.NOOP, nil
}

func (m *Machine) executeG(cmd *Command) (status.Code, error) {
	switch cmd.Number {
	case 0:
		return m.doMove(cmd, true)
	case 1:
		return m.doMove(cmd, false)
	case 2:
		return m.doArc(cmd, true)
	case 3:
		return m.doArc(cmd, false)
	case 4:
		return m.doDwell(cmd)
	case 10:
		return m.doSetCoordOffset(cmd)
	case 17:
		m.state.Plane = PlaneXY
	case 18:
		m.state.Plane = PlaneXZ
	case 19:
		m.state.Plane = PlaneYZ
	case 20:
		m.state.InchMode = true
	case 21:
		m.state.InchMode = false
	case 28:
		return m.doHome(cmd)
	case 38.2:
		return m.doProbe(cmd, true)
	case 38.3:
		return m.doProbe(cmd, false)
	case 53:
		m.g53Once = true
	case 54, 55, 56, 57, 58, 59:
		m.state.ActiveCoordSystem = int(cmd.Number) - 54
	case 61:
		m.state.PathControl = planner.PathControlExactStop
	case 61.1:
		m.state.PathControl = planner.PathControlExactPath
	case 64:
		m.state.PathControl = planner.PathControlContinuous
	case 80:
		// Cancel motion mode: purely modal bookkeeping here, since each
		// Command already carries its own explicit G word.
	case 90:
		m.state.AbsoluteMode = true
	case 91:
		m.state.AbsoluteMode = false
	case 92:
		return m.doSetPosition(cmd)
	case 92.1:
		m.state.G92Offset = machine.Position{}
		m.state.G92Active = false
	case 92.2:
		m.state.G92Active = false
	case 92.3:
		m.state.G92Active = true
	case 93:
		m.state.FeedrateMode = FeedrateInverseTime
	case 94:
		m.state.FeedrateMode = FeedrateUnitsPerMinute
	default:
		return status.ErrUnsupportedCode, nil
	}

	return status.OK, nil
}

func (m *Machine) executeM(cmd *Command) (status.Code, error) {
	switch cmd.Number {
	case 0, 1:
		m.state.Cycle = CycleHold
	case 2, 30:
		m.state.Cycle = CycleOff
		m.planner.ClearQueue()
	case 3:
		m.state.SpindleOn = true
		m.state.SpindleCW = true
		if cmd.HasParameter('S') {
			m.state.SpindleRPM = cmd.GetParameter('S', 0)
		}
	case 4:
		m.state.SpindleOn = true
		m.state.SpindleCW = false
		if cmd.HasParameter('S') {
			m.state.SpindleRPM = cmd.GetParameter('S', 0)
		}
	case 5:
		m.state.SpindleOn = false
	case 6:
		if cmd.HasParameter('T') {
			m.state.ToolNumber = int(cmd.GetParameter('T', float64(m.state.ToolNumber)))
		}
	case 7:
		m.state.CoolantMist = true
	case 8:
		m.state.CoolantFlood = true
	case 9:
		m.state.CoolantMist = false
		m.state.CoolantFlood = false
	default:
		return status.ErrUnsupportedCode, nil
	}
	return status.OK, nil
}

// letterToAxis maps a G-code axis letter to an AxisID.
func letterToAxis(letter byte) (machine.AxisID, bool) {
	switch letter {
	case 'X':
		return machine.AxisX, true
	case 'Y':
		return machine.AxisY, true
	case 'Z':
		return machine.AxisZ, true
	case 'A':
		return machine.AxisA, true
	case 'B':
		return machine.AxisB, true
	case 'C':
		return machine.AxisC, true
	default:
		return 0, false
	}
}

// resolveTarget builds the absolute target position for a motion
// command from the current position and the command's axis words,
// applying unit conversion, distance mode, work/machine offsets, and
// reporting which axes were actually specified.
func (m *Machine) resolveTarget(cmd *Command, current machine.Position) (machine.Position, bool, status.Code) {
	target := current
	any := false

	workOffset := m.state.CoordOffsets[m.state.ActiveCoordSystem]
	g53 := m.g53Once
	m.g53Once = false

	for _, id := range m.mapper.Axes() {
		letter := axisLetter(id)
		if !cmd.HasParameter(letter) {
			continue
		}
		any = true
		v := cmd.GetParameter(letter, 0)
		if m.state.InchMode && !id.IsRotary() {
			v *= inchesToMM
		}

		var abs float64
		if m.state.AbsoluteMode {
			abs = v
			if !g53 {
				abs += workOffset[id]
				if m.state.G92Active {
					abs -= m.state.G92Offset[id]
				}
			}
		} else {
			abs = current[id] + v
		}
		target[id] = abs
	}

	if !any {
		return target, false, status.NOOP
	}
	return target, true, status.OK
}

func axisLetter(id machine.AxisID) byte {
	switch id {
	case machine.AxisX:
		return 'X'
	case machine.AxisY:
		return 'Y'
	case machine.AxisZ:
		return 'Z'
	case machine.AxisA:
		return 'A'
	case machine.AxisB:
		return 'B'
	case machine.AxisC:
		return 'C'
	default:
		return 0
	}
}

// feedFor resolves the commanded velocity for a move of the given
// length, applying F-word updates and the active feedrate mode.
func (m *Machine) feedFor(cmd *Command, length float64) (float64, status.Code) {
	if cmd.HasParameter('F') {
		f := cmd.GetParameter('F', 0)
		if m.state.InchMode {
			f *= inchesToMM
		}
		m.state.Feed = f
	}

	if m.state.FeedrateMode == FeedrateInverseTime {
		if m.state.Feed <= 0 {
			return 0, status.ErrFeedrateMissing
		}
		return length * m.state.Feed, status.OK
	}

	if m.state.Feed <= 0 {
		return 0, status.ErrFeedrateMissing
	}
	return m.state.Feed, status.OK
}

// doMove handles G0 (rapid) and G1 (feed) linear moves.
func (m *Machine) doMove(cmd *Command, rapid bool) (status.Code, error) {
	current := m.planner.PlannerPosition()
	target, any, code := m.resolveTarget(cmd, current)
	if !any {
		return code, nil
	}

	if err := m.mapper.CheckLimits(target); err != nil {
		return status.ErrSoftLimitExceeded, err
	}

	var feed float64
	if rapid {
		for _, id := range m.mapper.Axes() {
			if cfg, ok := m.mapper.AxisConfig(id); ok && cfg.MaxVelocity > feed {
				feed = cfg.MaxVelocity
			}
		}
	} else {
		length := vectorLength(target.Sub(current))
		f, code := m.feedFor(cmd, length)
		if code != status.OK {
			return code, nil
		}
		feed = f
	}

	block, err := m.planner.QueueMove(target, feed)
	if err != nil {
		if errors.Is(err, planner.ErrQueueFull) {
			return status.ErrQueueFull, err
		}
		return status.ErrInternal, err
	}
	if block == nil {
		return status.ErrMinLength, nil
	}
	return status.OK, nil
}

// doArc handles G2 (CW) and G3 (CCW) circular interpolation in the
// active plane, decomposed into short line segments queued through the
// same admission path as G1 (spec.md §4.1 treats arcs as a sequence of
// ArcSegment-kind line blocks, not a distinct executor primitive).
func (m *Machine) doArc(cmd *Command, clockwise bool) (status.Code, error) {
	current := m.planner.PlannerPosition()
	target, any, code := m.resolveTarget(cmd, current)
	if !any {
		return code, nil
	}

	u, v := planeAxes(m.state.Plane)
	centerOffsetU := cmd.GetParameter(planeLetter(u), 0)
	centerOffsetV := cmd.GetParameter(planeLetter(v), 0)
	if m.state.InchMode {
		centerOffsetU *= inchesToMM
		centerOffsetV *= inchesToMM
	}
	center := current
	center[u] += centerOffsetU
	center[v] += centerOffsetV

	radius := math.Hypot(current[u]-center[u], current[v]-center[v])
	if radius < 1e-9 {
		return status.ErrInternal, errors.New("gcode: degenerate arc radius")
	}

	startAngle := math.Atan2(current[v]-center[v], current[u]-center[u])
	endAngle := math.Atan2(target[v]-center[v], target[u]-center[u])
	sweep := endAngle - startAngle
	if clockwise && sweep > 0 {
		sweep -= 2 * math.Pi
	}
	if !clockwise && sweep < 0 {
		sweep += 2 * math.Pi
	}

	arcLength := math.Abs(sweep) * radius
	feed, code := m.feedFor(cmd, arcLength)
	if code != status.OK {
		return code, nil
	}

	const segmentLength = 0.5 // mm per chord, matches typical CAM tessellation tolerance
	segments := int(math.Ceil(arcLength / segmentLength))
	if segments < 1 {
		segments = 1
	}

	thirdAxis := thirdPlaneAxis(m.state.Plane)
	thirdStart := current[thirdAxis]
	thirdDelta := target[thirdAxis] - current[thirdAxis]

	for i := 1; i <= segments; i++ {
		frac := float64(i) / float64(segments)
		angle := startAngle + sweep*frac
		p := current
		p[u] = center[u] + radius*math.Cos(angle)
		p[v] = center[v] + radius*math.Sin(angle)
		p[thirdAxis] = thirdStart + thirdDelta*frac
		if i == segments {
			p = target
		}
		if err := m.mapper.CheckLimits(p); err != nil {
			return status.ErrSoftLimitExceeded, err
		}
		if _, err := m.planner.QueueMove(p, feed); err != nil {
			return status.ErrInternal, err
		}
	}

	return status.OK, nil
}

func planeAxes(p Plane) (machine.AxisID, machine.AxisID) {
	switch p {
	case PlaneXZ:
		return machine.AxisX, machine.AxisZ
	case PlaneYZ:
		return machine.AxisY, machine.AxisZ
	default:
		return machine.AxisX, machine.AxisY
	}
}

func thirdPlaneAxis(p Plane) machine.AxisID {
	switch p {
	case PlaneXZ:
		return machine.AxisY
	case PlaneYZ:
		return machine.AxisX
	default:
		return machine.AxisZ
	}
}

func planeLetter(id machine.AxisID) byte {
	switch id {
	case machine.AxisX:
		return 'I'
	case machine.AxisY:
		return 'J'
	case machine.AxisZ:
		return 'K'
	default:
		return 0
	}
}

func (m *Machine) doDwell(cmd *Command) (status.Code, error) {
	seconds := cmd.GetParameter('P', cmd.GetParameter('S', 0))
	if seconds <= 0 {
		return status.NOOP, nil
	}
	_, err := m.planner.QueueDwell(uint32(seconds * 1e6))
	if err != nil {
		return status.ErrQueueFull, err
	}
	return status.OK, nil
}

// doSetCoordOffset handles G10 L2/L20 Pn, which sets the origin of
// coordinate system n directly (as opposed to G92's transient offset).
func (m *Machine) doSetCoordOffset(cmd *Command) (status.Code, error) {
	if !cmd.HasParameter('L') || !cmd.HasParameter('P') {
		return status.ErrUnsupportedCode, nil
	}
	idx := int(cmd.GetParameter('P', 1)) - 1
	if idx < 0 || idx >= len(m.state.CoordOffsets) {
		return status.ErrAxisNotAllowed, nil
	}

	l := cmd.GetParameter('L', 2)
	current := m.planner.PlannerPosition()
	for _, id := range m.mapper.Axes() {
		letter := axisLetter(id)
		if !cmd.HasParameter(letter) {
			continue
		}
		v := cmd.GetParameter(letter, 0)
		if m.state.InchMode && !id.IsRotary() {
			v *= inchesToMM
		}
		if l == 20 {
			// L20: the given value becomes the current position under
			// this coordinate system, i.e. offset = current - value.
			m.state.CoordOffsets[idx][id] = current[id] - v
		} else {
			// L2: the given value becomes the offset directly.
			m.state.CoordOffsets[idx][id] = v
		}
	}
	return status.OK, nil
}

func (m *Machine) doHome(cmd *Command) (status.Code, error) {
	if m.homing == nil {
		return status.ErrHomingFailed, errors.New("gcode: no homing cycle configured")
	}

	var axes []machine.AxisID
	for _, id := range m.mapper.Axes() {
		if cmd.HasParameter(axisLetter(id)) {
			axes = append(axes, id)
		}
	}
	if len(axes) == 0 {
		axes = m.mapper.Axes()
	}

	m.state.Cycle = CycleHoming
	defer func() { m.state.Cycle = CycleOff }()

	if err := m.homing.Home(axes); err != nil {
		return status.ErrHomingFailed, err
	}
	for _, id := range axes {
		m.state.Homed[id] = true
	}
	return status.OK, nil
}

// doProbe handles G38.2 (probe toward workpiece, error if no contact)
// and G38.3 (probe toward workpiece, no error if no contact).
func (m *Machine) doProbe(cmd *Command, errorIfNoContact bool) (status.Code, error) {
	if m.homing == nil {
		return status.ErrProbeFailed, errors.New("gcode: no probing cycle configured")
	}
	current := m.planner.PlannerPosition()
	target, any, code := m.resolveTarget(cmd, current)
	if !any {
		return code, nil
	}
	feed, code := m.feedFor(cmd, vectorLength(target.Sub(current)))
	if code != status.OK {
		return code, nil
	}

	m.state.Cycle = CycleProbing
	defer func() { m.state.Cycle = CycleOff }()

	stop, err := m.homing.Probe(target, feed, true)
	if err != nil {
		if errorIfNoContact {
			return status.ErrProbeFailed, err
		}
		return status.OK, nil
	}
	m.planner.SetPlannerPosition(stop)
	return status.OK, nil
}

// doSetPosition handles G92: the current position is redefined as the
// given value without motion, by adjusting the G92 offset so that
// planner position + offset == the requested value.
func (m *Machine) doSetPosition(cmd *Command) (status.Code, error) {
	current := m.planner.PlannerPosition()
	for _, id := range m.mapper.Axes() {
		letter := axisLetter(id)
		if !cmd.HasParameter(letter) {
			continue
		}
		v := cmd.GetParameter(letter, 0)
		if m.state.InchMode && !id.IsRotary() {
			v *= inchesToMM
		}
		m.state.G92Offset[id] = v - current[id]
	}
	m.state.G92Active = true
	return status.OK, nil
}

func vectorLength(p machine.Position) float64 {
	sum := 0.0
	for _, v := range p {
		sum += v * v
	}
	return math.Sqrt(sum)
}
