package core

// SwitchDebounce is the pure leading-edge / N-sample-confirm decision
// logic shared by the OID endstop handlers (endstopEvent,
// endstopOversampleEvent) and machine/homing's switch reader. It holds
// no GPIO or timer state of its own — callers sample a raw pin level
// and get back a debounced, polarity-corrected trigger decision.
//
// A switch is considered triggered only after SampleCount consecutive
// samples agree with the expected polarity (ExpectHigh); any
// disagreeing sample resets the count. Once triggered, Sample keeps
// returning true until Reset is called, giving the leading-edge latch
// spec.md §4.6 requires: a switch that bounces back open after firing
// must not un-trigger the cycle watching it.
type SwitchDebounce struct {
	// ExpectHigh selects NO/NC polarity: true means the switch reads
	// pin-high when triggered (ESF_PIN_HIGH's sense in endstop.go);
	// false means triggered is pin-low.
	ExpectHigh bool
	// SampleCount is how many consecutive agreeing samples are
	// required before Sample reports a trigger.
	SampleCount uint8

	pending uint8
	latched bool
}

// NewSwitchDebounce builds a debounce tracker for one switch input.
func NewSwitchDebounce(expectHigh bool, sampleCount uint8) *SwitchDebounce {
	if sampleCount == 0 {
		sampleCount = 1
	}
	return &SwitchDebounce{ExpectHigh: expectHigh, SampleCount: sampleCount, pending: sampleCount}
}

// Sample records one raw pin reading and returns the debounced trigger
// state. Once latched it ignores further samples until Reset.
func (d *SwitchDebounce) Sample(pinHigh bool) bool {
	if d.latched {
		return true
	}

	agrees := pinHigh == d.ExpectHigh
	if !agrees {
		d.pending = d.SampleCount
		return false
	}

	d.pending--
	if d.pending == 0 {
		d.latched = true
		return true
	}
	return false
}

// Reset clears the latch and the partial sample count, re-arming the
// debounce for the next search leg (spec.md §4.6's "re-read on
// expiry": a cycle that times out without triggering must be able to
// retry from a clean count rather than inherit a stale partial match).
func (d *SwitchDebounce) Reset() {
	d.latched = false
	d.pending = d.SampleCount
}

// Triggered reports the latch without consuming a sample.
func (d *SwitchDebounce) Triggered() bool {
	return d.latched
}

// Armed reports whether no partial confirmation is in progress, i.e.
// the last sample either hasn't run yet or disagreed with the
// expected polarity and reset the count.
func (d *SwitchDebounce) Armed() bool {
	return d.pending == d.SampleCount
}
