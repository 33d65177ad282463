package core

import "testing"

func TestSwitchDebounceLatchesAfterConfirmCount(t *testing.T) {
	d := NewSwitchDebounce(true, 3)

	if d.Triggered() {
		t.Fatal("expected a fresh debounce to start untriggered")
	}
	if d.Sample(true) || d.Sample(true) {
		t.Fatal("expected the first two agreeing samples to stay unlatched")
	}
	if !d.Sample(true) {
		t.Fatal("expected the third agreeing sample to latch")
	}
	if !d.Triggered() {
		t.Fatal("expected Triggered to report true once latched")
	}
}

func TestSwitchDebounceDisagreementResetsCount(t *testing.T) {
	d := NewSwitchDebounce(true, 3)

	d.Sample(true)
	d.Sample(true)
	if d.Sample(false) {
		t.Fatal("a disagreeing sample must not latch")
	}
	if d.Sample(true) || d.Sample(true) {
		t.Fatal("expected the confirm count to restart after a disagreement")
	}
	if !d.Sample(true) {
		t.Fatal("expected three more agreeing samples after the reset to latch")
	}
}

func TestSwitchDebounceStaysLatchedUntilReset(t *testing.T) {
	d := NewSwitchDebounce(false, 1)

	if !d.Sample(false) {
		t.Fatal("expected a single-sample debounce to latch immediately")
	}
	if !d.Sample(true) {
		t.Fatal("expected a latched debounce to keep reporting triggered regardless of new samples")
	}

	d.Reset()
	if d.Triggered() {
		t.Fatal("expected Reset to clear the latch")
	}
	if !d.Armed() {
		t.Fatal("expected Reset to leave the debounce freshly armed")
	}
}

func TestSwitchDebounceZeroSampleCountDefaultsToOne(t *testing.T) {
	d := NewSwitchDebounce(true, 0)
	if !d.Sample(true) {
		t.Fatal("expected a zero sample count to behave as a single-sample debounce")
	}
}

func TestSwitchDebounceExpectLowPolarity(t *testing.T) {
	d := NewSwitchDebounce(false, 1)
	if d.Sample(true) {
		t.Fatal("a pin-high sample should not agree with an expect-low (normally-open) switch")
	}
	if !d.Sample(false) {
		t.Fatal("expected a pin-low sample to latch an expect-low switch")
	}
}
