package homing

import (
	"tinygfw/core"
	"tinygfw/machine"
)

// RawSwitchReader reads the unfiltered pin level of one configured
// switch: true means the pin is physically high, independent of
// whether that means "triggered" (an NO/NC decision the polarity
// table below owns, not the hardware read itself).
type RawSwitchReader interface {
	ReadPin(axis machine.AxisID, role Role) (pinHigh bool, err error)
}

type switchKey struct {
	axis machine.AxisID
	role Role
}

// Debouncer adapts a RawSwitchReader into a SwitchReader, applying the
// leading-edge latch and N-sample confirm of core.SwitchDebounce and
// the NO/NC polarity table of spec.md §4.6 per (axis, role) switch —
// exactly the decision logic core/endstop.go's endstopEvent /
// endstopOversampleEvent apply for the OID binary-protocol path,
// reused here for the ASCII/domain path instead of being duplicated.
type Debouncer struct {
	raw         RawSwitchReader
	sampleCount uint8
	polarity    map[switchKey]bool // true => triggered means pin-high (NO wiring is the common default: pulled up, shorts low when closed, so most entries here are false)
	debounces   map[switchKey]*core.SwitchDebounce

	defaultExpectHigh bool // triggered pin level for switches with no SetPolarity override
}

// NewDebouncer builds a Debouncer with a default NO/NC polarity
// (expectHigh) applied to every switch that isn't given an explicit
// override via SetPolarity.
func NewDebouncer(raw RawSwitchReader, sampleCount uint8, defaultExpectHigh bool) *Debouncer {
	return &Debouncer{
		raw:         raw,
		sampleCount: sampleCount,
		polarity:    map[switchKey]bool{},
		debounces:   map[switchKey]*core.SwitchDebounce{},

		defaultExpectHigh: defaultExpectHigh,
	}
}

// SetPolarity overrides the expected triggered-pin-level for one
// switch, e.g. a normally-closed switch wired so triggering pulls the
// pin low (expectHigh=false) while a normally-open one pulls it high.
func (d *Debouncer) SetPolarity(axis machine.AxisID, role Role, expectHigh bool) {
	d.polarity[switchKey{axis, role}] = expectHigh
}

func (d *Debouncer) debounceFor(axis machine.AxisID, role Role) *core.SwitchDebounce {
	key := switchKey{axis, role}
	sd, ok := d.debounces[key]
	if ok {
		return sd
	}
	expectHigh, overridden := d.polarity[key]
	if !overridden {
		expectHigh = d.defaultExpectHigh
	}
	sd = core.NewSwitchDebounce(expectHigh, d.sampleCount)
	d.debounces[key] = sd
	return sd
}

// Read samples the raw pin and returns the debounced, latched trigger
// state for one switch.
func (d *Debouncer) Read(axis machine.AxisID, role Role) (bool, error) {
	pinHigh, err := d.raw.ReadPin(axis, role)
	if err != nil {
		return false, err
	}
	return d.debounceFor(axis, role).Sample(pinHigh), nil
}

// Reset re-arms one switch's debounce, discarding its latch and any
// partial confirmation count (spec.md §4.6's "re-read on expiry").
func (d *Debouncer) Reset(axis machine.AxisID, role Role) {
	d.debounceFor(axis, role).Reset()
}
