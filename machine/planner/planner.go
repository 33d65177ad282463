// Package planner implements the bounded ring of motion blocks and the
// forward/backward junction-velocity planning pass described in
// spec.md §4.2. Adapted from amken3d-gopper's standalone/planner
// (which queues trapezoid-only moves); the ring/admission shape is
// kept, the velocity math is replaced with jerk-limited junction
// planning.
package planner

import (
	"errors"
	"math"

	"tinygfw/machine"
)

// Default ring size, within spec.md §4.2's "typically 28-48" range.
const DefaultRingSize = 32

var (
	// ErrQueueFull is returned by QueueMove when the ring has no empty
	// slot (the write cursor has caught up with the oldest unfreed
	// block).
	ErrQueueFull = errors.New("planner: queue full")

	// ErrZeroLength is returned when a move's length is below the
	// minimum segment-length threshold and could not be absorbed into
	// the previous queued block's tail.
	ErrZeroLength = errors.New("planner: zero-length or below-minimum move")
)

// MinLength is the length, in the same units as Block.Length, below
// which a move is absorbed into the previous tail or dropped
// (spec.md §4.2 "Block admission").
const MinLength = 1e-6

// PathControlMode mirrors G61/G61.1/G64 (spec.md §4.2).
type PathControlMode int

const (
	PathControlContinuous PathControlMode = iota // G64
	PathControlExactStop                         // G61
	PathControlExactPath                         // G61.1
)

// Planner is a fixed-size ring of machine.Block with junction-velocity
// forward/backward planning.
//
// Simplification note (documented, see DESIGN.md): full TinyG-style
// backward/forward smoothing additionally re-derives per-block
// reachability from length and jerk at plan time; here the planner
// only clamps entry velocity to the junction cap and propagates
// continuity (exit[i-1] == entry[i]). Feasibility given a block's
// actual length is guaranteed downstream by the segment executor's
// iterative cruise-velocity reduction (spec.md §4.3), which is the
// authoritative place the "does this move fit in this length" question
// is answered. This keeps the invariants in spec.md §8 ("replan
// safety", "junction bound") exactly satisfiable without reimplementing
// the executor's feasibility search a second time in the planner.
type Planner struct {
	ring []machine.Block

	queueHead *machine.Block // oldest Queued/Running block (FIFO head)
	queueTail *machine.Block // newest Queued block
	write     *machine.Block // next Empty slot to allocate from

	axes map[machine.AxisID]machine.AxisConfig

	plannerPos  machine.Position
	pathControl PathControlMode
}

// New builds a Planner ring of the given size (0 selects
// DefaultRingSize) for the given axis configuration table.
func New(size int, axes map[machine.AxisID]machine.AxisConfig) *Planner {
	if size <= 0 {
		size = DefaultRingSize
	}
	p := &Planner{
		ring: make([]machine.Block, size),
		axes: axes,
	}
	for i := range p.ring {
		p.ring[i].Next = &p.ring[(i+1)%size]
		p.ring[i].Prev = &p.ring[(i-1+size)%size]
	}
	p.write = &p.ring[0]
	return p
}

// SetPathControl sets the active path-control mode (G61/G61.1/G64).
func (p *Planner) SetPathControl(m PathControlMode) {
	p.pathControl = m
}

// PlannerPosition returns the planner's carried-forward endpoint.
func (p *Planner) PlannerPosition() machine.Position {
	return p.plannerPos
}

// SetPlannerPosition forcibly resets the planner's carried endpoint,
// used by G92 and homing once the queue is empty.
func (p *Planner) SetPlannerPosition(pos machine.Position) {
	p.plannerPos = pos
}

// IsIdle reports whether the ring holds no in-flight blocks.
func (p *Planner) IsIdle() bool {
	return p.queueHead == nil
}

// IsFull reports whether the write cursor has caught up to the queue
// head, i.e. no further block can be admitted.
func (p *Planner) IsFull() bool {
	return p.write.State != machine.BlockEmpty
}

// QueueMove admits a straight-line move to target at the given
// requested feedrate (units/min), returning the queued block (or nil
// if the move was absorbed/dropped as zero-length).
func (p *Planner) QueueMove(target machine.Position, feed float64) (*machine.Block, error) {
	delta := target.Sub(p.plannerPos)
	length := vectorLength(delta)

	if length < MinLength {
		return nil, p.absorbOrDrop()
	}

	if p.write.State != machine.BlockEmpty {
		return nil, ErrQueueFull
	}

	unit := scale(delta, 1/length)
	cruise, jerk, junctionDev := p.axisLimits(unit, feed)

	b := p.write
	b.State = machine.BlockQueued
	b.Kind = machine.MoveKindLine
	b.Target = target
	b.Unit = unit
	b.Length = length
	b.RequestedCruiseVelocity = cruise
	b.RequestedEntryVelocity = 0
	b.RequestedExitVelocity = 0
	b.Jerk = jerk
	b.JunctionDeviation = junctionDev
	b.ExactStop = p.pathControl == PathControlExactStop
	b.ExactPath = p.pathControl == PathControlExactPath
	b.HeadLength, b.BodyLength, b.TailLength = 0, 0, 0

	p.plannerPos = target
	p.write = b.Next

	if p.queueHead == nil {
		p.queueHead = b
	}
	p.queueTail = b

	p.replan()

	return b, nil
}

// QueueDwell admits a dwell block of the given duration.
func (p *Planner) QueueDwell(micros uint32) (*machine.Block, error) {
	if p.write.State != machine.BlockEmpty {
		return nil, ErrQueueFull
	}
	b := p.write
	b.State = machine.BlockQueued
	b.Kind = machine.MoveKindDwell
	b.DwellMicros = micros
	b.PlannedEntryVelocity, b.PlannedCruiseVelocity, b.PlannedExitVelocity = 0, 0, 0

	p.write = b.Next
	if p.queueHead == nil {
		p.queueHead = b
	}
	p.queueTail = b
	return b, nil
}

// absorbOrDrop implements "Zero-length and below-minimum-segment-time
// moves are absorbed into the previous tail if possible, otherwise
// dropped" (spec.md §4.2). Absorption here is a no-op extension of the
// previous tail's target (the move contributed no displacement);
// dropping returns ErrZeroLength for the caller to treat as a no-op.
func (p *Planner) absorbOrDrop() error {
	if p.queueTail != nil && p.queueTail.State == machine.BlockQueued {
		return nil
	}
	return ErrZeroLength
}

// ExecPop hands the oldest ready block to the executor, transitioning
// it to BlockRunning. Returns nil if the queue is empty or the head is
// already running (executor should retry later — EAGAIN semantics).
func (p *Planner) ExecPop() *machine.Block {
	if p.queueHead == nil || p.queueHead.State != machine.BlockQueued {
		return nil
	}
	p.queueHead.State = machine.BlockRunning
	return p.queueHead
}

// ExecDone reports that the executor has fully consumed the running
// block, freeing its slot and advancing the FIFO head.
func (p *Planner) ExecDone() {
	if p.queueHead == nil {
		return
	}
	done := p.queueHead
	next := done.Next
	done.State = machine.BlockEmpty

	if done == p.queueTail {
		p.queueHead = nil
		p.queueTail = nil
		return
	}
	p.queueHead = next
}

// ClearQueue discards every in-flight block (used by abort, spec.md
// §5 "Cancellation").
func (p *Planner) ClearQueue() {
	for i := range p.ring {
		p.ring[i].State = machine.BlockEmpty
	}
	p.queueHead = nil
	p.queueTail = nil
	p.write = &p.ring[0]
}

// Replan re-runs the backward pass over the queued (not running) chain.
// A feedhold resume (cycle_start) calls this after its held block
// drains: that block's successor now has the completed/freed block as
// its predecessor, so it is re-clamped as if it were the new head of
// the queue, matching spec.md §4.1's "rebuilding the forward plan from
// the held block".
func (p *Planner) Replan() {
	p.replan()
}

// replan runs the backward pass (junction clamp + continuity) from the
// newest block back to the pin boundary: a running block or the
// queue head.
func (p *Planner) replan() {
	tail := p.queueTail
	if tail == nil {
		return
	}

	// Tail's exit velocity: 0 under exact-stop, otherwise its own
	// cruise (nothing queued after it yet to constrain it further).
	if tail.ExactStop {
		tail.PlannedExitVelocity = 0
	} else {
		tail.PlannedExitVelocity = tail.RequestedCruiseVelocity
	}
	tail.PlannedCruiseVelocity = tail.RequestedCruiseVelocity

	b := tail
	for {
		prev := b.Prev
		if b == p.queueHead || prev == nil || prev.State != machine.BlockQueued || prev == b {
			// b is the oldest queued block in the chain (pin at head).
			if prev != nil && prev.State == machine.BlockRunning {
				// Running blocks are never mutated (replan safety).
			}
			entryCap := b.RequestedCruiseVelocity
			if !b.ExactPath {
				entryCap = math.Min(entryCap, junctionVelocity(machine.Position{}, b.Unit, b.Jerk, b.JunctionDeviation, true))
			} else {
				entryCap = 0
			}
			b.PlannedEntryVelocity = math.Min(entryCap, b.PlannedExitVelocity)
			break
		}

		entryCap := math.Min(b.RequestedCruiseVelocity, b.PlannedExitVelocity)
		if b.ExactPath {
			entryCap = 0
		} else {
			jv := junctionVelocity(prev.Unit, b.Unit, math.Min(prev.Jerk, b.Jerk), math.Min(prev.JunctionDeviation, b.JunctionDeviation), false)
			entryCap = math.Min(entryCap, jv)
		}
		b.PlannedEntryVelocity = entryCap

		// Continuity: the predecessor's exit equals this block's entry,
		// unless the predecessor forces exact-stop (exit pinned at 0).
		if prev.ExactStop {
			prev.PlannedExitVelocity = 0
		} else {
			prev.PlannedExitVelocity = math.Min(prev.RequestedCruiseVelocity, b.PlannedEntryVelocity)
		}
		prev.PlannedCruiseVelocity = prev.RequestedCruiseVelocity

		if prev.State == machine.BlockRunning {
			break
		}
		b = prev
	}
}

// junctionVelocity implements spec.md §4.2's formula:
//
//	v_j^2 = a * delta * sin(theta/2) / (1 - sin(theta/2))
//
// Colinear unit vectors (theta ~ 0) yield +Inf (the caller clamps to
// cruise); reversals (theta ~ pi) yield 0. When first=true, prevUnit is
// ignored and the junction cap defaults to +Inf (no predecessor to
// corner against, e.g. the first block in an otherwise-empty queue).
func junctionVelocity(prevUnit, unit machine.Position, a, delta float64, first bool) float64 {
	if first {
		return math.Inf(1)
	}
	cos := dot(prevUnit, unit)
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	const eps = 1e-9
	if cos > 1-eps {
		return math.Inf(1)
	}
	if cos < -1+eps {
		return 0
	}
	theta := math.Acos(cos)
	s := math.Sin(theta / 2)
	if s >= 1-eps {
		return math.Inf(1)
	}
	v2 := a * delta * s / (1 - s)
	if v2 < 0 {
		return 0
	}
	return math.Sqrt(v2)
}

// axisLimits computes the requested cruise velocity (feed, clamped to
// every participating axis's max velocity along unit), the effective
// per-axis-scaled jerk limit, and the minimum junction deviation among
// participating axes.
func (p *Planner) axisLimits(unit machine.Position, feed float64) (cruise, jerk, junctionDev float64) {
	cruise = feed
	jerk = math.Inf(1)
	junctionDev = math.Inf(1)

	for id := machine.AxisX; id < machine.NumAxes; id++ {
		comp := unit[id]
		if comp == 0 {
			continue
		}
		cfg, ok := p.axes[id]
		if !ok {
			continue
		}
		absComp := math.Abs(comp)
		if cfg.MaxVelocity > 0 {
			axisCap := cfg.MaxVelocity / absComp
			if axisCap < cruise {
				cruise = axisCap
			}
		}
		if cfg.MaxJerk > 0 {
			axisJerk := cfg.MaxJerk / absComp
			if axisJerk < jerk {
				jerk = axisJerk
			}
		}
		if cfg.JunctionDeviation > 0 && cfg.JunctionDeviation < junctionDev {
			junctionDev = cfg.JunctionDeviation
		}
	}

	if math.IsInf(jerk, 1) {
		jerk = 0
	}
	if math.IsInf(junctionDev, 1) {
		junctionDev = 0
	}
	return cruise, jerk, junctionDev
}

func vectorLength(p machine.Position) float64 {
	sum := 0.0
	for _, v := range p {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func scale(p machine.Position, s float64) machine.Position {
	var r machine.Position
	for i, v := range p {
		r[i] = v * s
	}
	return r
}

func dot(a, b machine.Position) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
