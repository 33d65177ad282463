// Package executor turns a planned machine.Block into the fixed-time
// machine.Segment slices that the DDA stepper runtime consumes: the
// 7-phase jerk-limited S-curve of spec.md §4.3, with an iterative
// cruise-velocity reduction when a block is too short to reach its
// planned cruise velocity.
//
// Grounded on amken3d-gopper's core/stepper.go timer-driven move
// queue (QueueMove / stepperEventHandler): that file's per-motor
// Interval/Count/Add fields are the single-axis analogue of what this
// package computes for all axes at once, handed to core.DDA as
// machine.Segment values instead of StepperMove ones.
package executor

import (
	"math"

	"tinygfw/machine"
)

// Profile is the time-domain description of a block's 7-phase ramp:
// three head sub-phases (accel rising, peak, falling) collapsed to a
// single jerk-limited S-curve of duration HeadTime, a constant-cruise
// Body, and a mirrored 3-phase Tail.
type Profile struct {
	Entry, Cruise, Exit float64 // units/sec
	HeadTime            float64 // seconds
	BodyTime            float64
	TailTime            float64
}

// TotalTime is the sum of the three phases.
func (p Profile) TotalTime() float64 {
	return p.HeadTime + p.BodyTime + p.TailTime
}

const minPhaseVelocityDelta = 1e-9

// rampTime returns the duration of a jerk-limited S-curve ramp between
// v0 and v1 (v1 may be less than v0): T = 2*sqrt(|v1-v0|/jerk), so the
// ramp length from rest is |v1-v0|*sqrt(|v1-v0|/jerk). This is the
// "triangular acceleration, no acceleration plateau" S-curve — the
// velocity gain during a ramp of length T started at v0 is exactly
// (v0+v1)/2 * T, the same identity a trapezoidal ramp has, because the
// acceleration profile is anti-symmetric about the ramp's time
// midpoint regardless of whether it plateaus.
func rampTime(v0, v1, jerk float64) float64 {
	dv := math.Abs(v1 - v0)
	if dv < minPhaseVelocityDelta || jerk <= 0 {
		return 0
	}
	return 2 * math.Sqrt(dv/jerk)
}

func rampLength(v0, v1, t float64) float64 {
	return (v0 + v1) / 2 * t
}

// Plan derives the time-domain profile for a block, reducing cruise
// velocity via bisection when the head+tail ramps alone would overrun
// the block's length (spec.md §4.3's "iterative cruise-velocity
// reduction"). It also writes HeadLength/BodyLength/TailLength back
// onto the block for status reporting.
func Plan(b *machine.Block) Profile {
	// Block velocities and jerk are carried in units/min and
	// units/min^3 (matching AxisConfig's MaxVelocity/MaxJerk, and the
	// feedrates G-code words name). Every ramp-time/length computation
	// below assumes seconds, so convert once here rather than smuggling
	// a /60 into each formula.
	const minToSec = 1.0 / 60.0
	const jerkMinToSec = minToSec * minToSec * minToSec

	entry := b.PlannedEntryVelocity * minToSec
	exit := b.PlannedExitVelocity * minToSec
	cruise := b.PlannedCruiseVelocity * minToSec
	jerk := b.Jerk * jerkMinToSec

	if cruise < entry {
		cruise = entry
	}
	if cruise < exit {
		cruise = exit
	}

	headLen, tailLen := phaseLengths(entry, exit, cruise, jerk)

	if headLen+tailLen > b.Length {
		lo := math.Max(entry, exit)
		hi := cruise
		for i := 0; i < 32 && hi-lo > 1e-6; i++ {
			mid := (lo + hi) / 2
			hl, tl := phaseLengths(entry, exit, mid, jerk)
			if hl+tl > b.Length {
				hi = mid
			} else {
				lo = mid
			}
		}
		cruise = lo
		headLen, tailLen = phaseLengths(entry, exit, cruise, jerk)
	}

	bodyLen := b.Length - headLen - tailLen
	if bodyLen < 0 {
		bodyLen = 0
	}

	headTime := rampTime(entry, cruise, jerk)
	tailTime := rampTime(cruise, exit, jerk)
	bodyTime := 0.0
	if cruise > minPhaseVelocityDelta {
		bodyTime = bodyLen / cruise
	}

	b.HeadLength = headLen
	b.BodyLength = bodyLen
	b.TailLength = tailLen

	return Profile{
		Entry: entry, Cruise: cruise, Exit: exit,
		HeadTime: headTime, BodyTime: bodyTime, TailTime: tailTime,
	}
}

func phaseLengths(entry, exit, cruise, jerk float64) (head, tail float64) {
	ht := rampTime(entry, cruise, jerk)
	tt := rampTime(cruise, exit, jerk)
	return rampLength(entry, cruise, ht), rampLength(cruise, exit, tt)
}

// VelocityAt returns the instantaneous velocity, in units/sec, t
// seconds into the profile (0 <= t <= TotalTime()). Exported so a
// feedhold can sample the in-flight velocity of the block it is about
// to reprofile into a decel ramp.
func (p Profile) VelocityAt(t float64) float64 {
	return p.velocityAt(t)
}

// velocityAt returns the instantaneous velocity t seconds into the
// profile (0 <= t <= TotalTime()).
func (p Profile) velocityAt(t float64) float64 {
	switch {
	case t < p.HeadTime:
		return headVelocity(p.Entry, p.Cruise, p.HeadTime, t)
	case t < p.HeadTime+p.BodyTime:
		return p.Cruise
	default:
		tt := t - p.HeadTime - p.BodyTime
		return tailVelocity(p.Cruise, p.Exit, p.TailTime, tt)
	}
}

func headVelocity(entry, cruise, headTime, t float64) float64 {
	if headTime <= 0 {
		return cruise
	}
	half := headTime / 2
	if t <= half {
		// v = entry + a*t^2/2 where a = 4*(cruise-entry)/headTime^2 is the jerk (accel peaks at a*headTime/2, reached at half)
		a := 4 * (cruise - entry) / (headTime * headTime)
		return entry + a*t*t/2
	}
	rem := headTime - t
	a := 4 * (cruise - entry) / (headTime * headTime)
	return cruise - a*rem*rem/2
}

func tailVelocity(cruise, exit, tailTime, t float64) float64 {
	if tailTime <= 0 {
		return exit
	}
	half := tailTime / 2
	if t <= half {
		a := 4 * (cruise - exit) / (tailTime * tailTime)
		return cruise - a*t*t/2
	}
	rem := tailTime - t
	a := 4 * (cruise - exit) / (tailTime * tailTime)
	return exit + a*rem*rem/2
}

// Params carries the per-axis steps-per-unit table and the DDA timing
// constants segments are generated against.
type Params struct {
	StepsPerUnit   [int(machine.NumAxes)]float64
	PowerFlag      [int(machine.NumAxes)]bool
	SegmentSeconds float64 // T_seg, spec.md §4.3
	DDAFrequencyHz uint32  // F_DDA, spec.md §4.4
}

// substepScale is the fixed-point width the DDA accumulator overflows
// at: an accumulator increment of substepScale per tick yields exactly
// one step per tick.
const substepScale = 1 << 32

// Segments decomposes a planned, profiled block into fixed-duration
// machine.Segment values, one per SegmentSeconds slice of the total
// ramp time (the last segment absorbs any remainder).
func Segments(b *machine.Block, p Profile, params Params) []machine.Segment {
	total := p.TotalTime()
	if total <= 0 || params.SegmentSeconds <= 0 || params.DDAFrequencyHz == 0 {
		return nil
	}

	n := int(math.Ceil(total / params.SegmentSeconds))
	if n < 1 {
		n = 1
	}

	segs := make([]machine.Segment, 0, n)
	ticksPerSeg := uint32(params.SegmentSeconds * float64(params.DDAFrequencyHz))
	if ticksPerSeg == 0 {
		ticksPerSeg = 1
	}

	elapsed := 0.0
	for i := 0; i < n; i++ {
		segDur := params.SegmentSeconds
		if elapsed+segDur > total {
			segDur = total - elapsed
		}
		if segDur <= 0 {
			break
		}

		v := p.velocityAt(elapsed)

		seg := machine.Segment{
			Ticks:      ticksPerSeg,
			TickPeriod: tickPeriod(params.DDAFrequencyHz),
		}
		if i == n-1 {
			seg.Ticks = uint32(math.Round(segDur * float64(params.DDAFrequencyHz)))
			if seg.Ticks == 0 {
				seg.Ticks = 1
			}
		}

		for axis := machine.AxisX; axis < machine.NumAxes; axis++ {
			comp := b.Unit[axis]
			seg.Direction[axis] = comp >= 0
			seg.PowerFlag[axis] = params.PowerFlag[axis] && comp != 0

			if comp == 0 || params.StepsPerUnit[axis] == 0 {
				continue
			}
			axisVelPerSec := v * math.Abs(comp) // v and axisVelPerSec are units/sec
			stepsPerSec := axisVelPerSec * params.StepsPerUnit[axis]
			perTick := stepsPerSec / float64(params.DDAFrequencyHz)
			seg.SubstepIncrement[axis] = uint32(math.Round(perTick * substepScale))
		}

		segs = append(segs, seg)
		elapsed += segDur
	}

	return segs
}

func tickPeriod(ddaFreqHz uint32) uint32 {
	const timerFreqHz = 12_000_000 // matches core.TimerFreq
	if ddaFreqHz == 0 {
		return 1
	}
	return timerFreqHz / ddaFreqHz
}
