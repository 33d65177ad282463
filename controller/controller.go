// Package controller is the cooperative main-loop dispatcher that
// replaces amken3d-gopper's standalone.Manager. Where the teacher's
// Manager synchronously parsed-and-executed one line at a time with no
// motion pipeline of its own, Controller keeps the strict dependency
// order spec.md §5 requires on every tick: switches first, then
// feeding the DDA/executor, then planner admission, then pulling more
// G-code, then status reporting — so a feedhold or trigger observed
// this tick can still gate the planner admission that happens later in
// the same tick.
package controller

import (
	"bufio"
	"io"

	"tinygfw/core"
	"tinygfw/machine"
	"tinygfw/machine/executor"
	"tinygfw/machine/gcode"
	"tinygfw/machine/planner"
	"tinygfw/machine/status"
)

// MotionParams bundles the per-motor steps-per-unit table and segment
// timing the executor needs, derived once from machine/config at
// startup.
type MotionParams = executor.Params

// Controller wires together the canonical machine, planner, segment
// executor and DDA runtime, and drives G-code line input.
type Controller struct {
	Machine *gcode.Machine
	Planner *planner.Planner
	DDA     *core.DDA

	history *status.History
	parser  *gcode.Parser
	params  MotionParams

	currentBlock   *machine.Block
	currentProfile executor.Profile
	currentSegs    []machine.Segment
	segIdx         int

	dwellBlock    *machine.Block
	dwellWakeTime uint32

	feedHold bool
	lineNo   int

	trsync *core.TriggerSync
}

// Trigger reasons the controller distinguishes when a switch fires via
// its core.TriggerSync (spec.md §4.6's "distinguish a homing trigger
// from a feedhold/abort trigger"). A homing trigger is consumed by
// machine/homing directly via its own SwitchReader and never reaches
// here; an unexpected trigger during normal motion becomes a feedhold,
// while a trigger with no safe recovery (e.g. a second switch firing
// while already held) escalates to an abort.
const (
	TriggerReasonHoming uint8 = iota + 1
	TriggerReasonFeedHold
	TriggerReasonAbort
)

// New builds a Controller over an already-constructed machine,
// planner and DDA runtime.
func New(m *gcode.Machine, p *planner.Planner, dda *core.DDA, params MotionParams) *Controller {
	c := &Controller{
		Machine: m,
		Planner: p,
		DDA:     dda,
		history: status.NewHistory(64),
		parser:  gcode.NewParser(),
		params:  params,
		trsync:  &core.TriggerSync{Flags: core.TSF_CAN_TRIGGER},
	}
	dda.SetSegmentDoneCallback(c.onDDAIdle)
	core.TriggerSyncAddSignal(c.trsync, c.onSwitchTrigger)
	return c
}

// TriggerSync exposes the controller's trigger-coordination object so
// a safety switch outside the homing cycle (a limit switch, an
// estop) can register against the same feedhold-vs-abort selection
// homing's own triggers would otherwise bypass.
func (c *Controller) TriggerSync() *core.TriggerSync {
	return c.trsync
}

// onSwitchTrigger runs whatever core.TriggerSyncDoTrigger's callback
// chain invokes it with. A homing-owned trigger is already handled by
// the homing cycle's own SwitchReader and is ignored here. Otherwise
// the response is chosen by the machine's current hold state (spec.md
// §4.6): a trigger arriving while the machine is already in a feedhold
// has no safe recovery by holding again, so it escalates to an abort;
// a trigger during ordinary motion engages a feedhold instead of
// stopping outright.
func (c *Controller) onSwitchTrigger(reason uint8) {
	if reason == TriggerReasonHoming {
		return
	}
	if reason == TriggerReasonAbort || c.feedHold {
		c.Abort()
		return
	}
	c.SetFeedHold(true)
}

// onDDAIdle runs in timer-handler context (see core.DDA.tickHandler)
// when the run slot drains with nothing staged. It must not block.
func (c *Controller) onDDAIdle() {
	// Nothing to do here directly: ServiceMotion (called from the main
	// loop, not timer context) notices currentSegs is exhausted and
	// retires the block there. Kept as an explicit hook so a future
	// real-time requirement (e.g. latching the exact stop position)
	// has somewhere to attach without touching DDA.
}

// SubmitLine parses and executes exactly one line of G-code against
// the canonical machine. Blank lines and pure comments return
// status.NOOP.
func (c *Controller) SubmitLine(line string) (status.Code, error) {
	c.lineNo++
	cmd, err := c.parser.ParseLine(line)
	if err != nil {
		return status.ErrChecksumMismatch, err
	}
	if cmd == nil {
		return status.NOOP, nil
	}
	return c.Machine.Execute(cmd)
}

// SubmitReader drains r line by line, executing each through
// SubmitLine, stopping at the first error (other than status.NOOP
// results, which are not errors).
func (c *Controller) SubmitReader(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if _, err := c.SubmitLine(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// SetFeedHold engages or releases a feedhold (spec.md §4.1). Engaging
// lets the segment already prepped into the DDA finish, then
// reprofiles the rest of the in-flight block into a jerk-limited
// decel-to-zero ramp over its remaining length — it does not simply
// freeze ServiceMotion. Releasing rebuilds the forward plan from the
// now-stopped block so the planner's junction math doesn't assume a
// nonzero entry velocity it no longer has (the feedhold idempotence
// invariant of spec.md §8: a hold always leaves the machine, and the
// plan describing it, in a consistent stopped state).
func (c *Controller) SetFeedHold(hold bool) {
	if hold == c.feedHold {
		return
	}
	if hold {
		c.rampToHold()
	} else {
		c.Planner.Replan()
	}
	c.feedHold = hold
}

// rampToHold replaces the remainder of the currently staged block's
// segments with a synthetic decel-to-zero ramp over its remaining
// length, sampling the profile at the current segment index for the
// velocity to decelerate from. The original queued Block is left
// untouched: once a block is running it is the planner's replanning
// fence (machine.Block's State-tag invariant), so the ramp lives
// entirely in the executor-layer segment cache the controller owns.
func (c *Controller) rampToHold() {
	if c.currentBlock == nil || c.segIdx >= len(c.currentSegs) {
		return
	}

	total := len(c.currentSegs)
	elapsedFrac := float64(c.segIdx) / float64(total)
	remaining := c.currentBlock.Length * (1 - elapsedFrac)
	if remaining < 1e-9 {
		return
	}
	currentVelocityPerSec := c.currentProfile.VelocityAt(elapsedFrac * c.currentProfile.TotalTime())
	currentVelocity := currentVelocityPerSec * 60 // back to units/min, Plan's native unit

	ramp := *c.currentBlock
	ramp.Length = remaining
	ramp.RequestedEntryVelocity = currentVelocity
	ramp.RequestedCruiseVelocity = currentVelocity
	ramp.RequestedExitVelocity = 0
	ramp.PlannedEntryVelocity = currentVelocity
	ramp.PlannedCruiseVelocity = currentVelocity
	ramp.PlannedExitVelocity = 0
	ramp.ExactStop = true

	profile := executor.Plan(&ramp)
	c.currentProfile = profile
	c.currentSegs = executor.Segments(&ramp, profile, c.params)
	c.segIdx = 0
}

// Abort immediately clears the planner queue and DDA state (M2/M30 and
// host-initiated abort both route through here).
func (c *Controller) Abort() {
	c.Planner.ClearQueue()
	c.DDA.Stop()
	c.currentBlock = nil
	c.currentSegs = nil
	c.segIdx = 0
	c.dwellBlock = nil
	c.feedHold = false
}

// ServiceMotion keeps the DDA fed: it pulls segments from the
// currently running block, and once that block is exhausted, pops the
// next one from the planner and profiles it via machine/executor. It
// is safe and cheap to call every main-loop tick (spec.md §5's
// "DDA/executor service" step).
func (c *Controller) ServiceMotion() {
	if c.feedHold {
		// Keep feeding the decel ramp rampToHold staged; pop and retire
		// nothing until the hold is released.
		for c.DDA.PrepReady() && c.currentBlock != nil && c.segIdx < len(c.currentSegs) {
			seg := c.currentSegs[c.segIdx]
			if err := c.DDA.Prep(&seg); err != nil {
				return
			}
			c.segIdx++
		}
		return
	}

	if c.dwellBlock != nil {
		if int32(core.GetTime()-c.dwellWakeTime) < 0 {
			return
		}
		c.dwellBlock.State = machine.BlockEmpty
		c.dwellBlock = nil
		c.Planner.ExecDone()
	}

	for c.DDA.PrepReady() {
		if c.currentBlock == nil {
			block := c.Planner.ExecPop()
			if block == nil {
				return
			}
			if block.Kind == machine.MoveKindDwell {
				c.runDwell(block)
				return
			}
			profile := executor.Plan(block)
			c.currentProfile = profile
			c.currentBlock = block
			c.currentSegs = executor.Segments(block, profile, c.params)
			c.segIdx = 0
		}

		if c.segIdx >= len(c.currentSegs) {
			c.Planner.ExecDone()
			c.currentBlock = nil
			c.currentSegs = nil
			c.segIdx = 0
			continue
		}

		seg := c.currentSegs[c.segIdx]
		if err := c.DDA.Prep(&seg); err != nil {
			return
		}
		c.segIdx++
	}
}

// runDwell is handled directly rather than through the DDA: a dwell
// carries no step motion, only a timed pause, so the executor's
// segment decomposition would have nothing to decompose. It honors
// Block.DwellMicros by arming a wake time that ServiceMotion checks on
// every subsequent call before it does anything else (spec.md §4.4:
// "loads a second timer... for the requested microsecond count,
// emits no pulses, and triggers the same load-request on completion").
func (c *Controller) runDwell(block *machine.Block) {
	c.dwellBlock = block
	c.dwellWakeTime = core.GetTime() + core.TimerFromUS(block.DwellMicros)
}

// Report builds a point-in-time status snapshot.
func (c *Controller) Report() status.Report {
	st := c.Machine.State()
	pos := c.Planner.PlannerPosition()

	cycle := "off"
	switch st.Cycle {
	case gcode.CycleMachining:
		cycle = "machining"
	case gcode.CycleHoming:
		cycle = "homing"
	case gcode.CycleProbing:
		cycle = "probe"
	case gcode.CycleJog:
		cycle = "jog"
	case gcode.CycleHold:
		cycle = "hold"
	}

	return status.Report{
		Code:     status.OK,
		Cycle:    cycle,
		Position: [6]float64(pos),
		Feed:     st.Feed,
		Line:     c.lineNo,
	}
}

// History returns the compressed status-report history ring.
func (c *Controller) History() *status.History {
	return c.history
}

// PushReport records the current status into the compressed history.
func (c *Controller) PushReport() error {
	return c.history.Push(c.Report())
}
