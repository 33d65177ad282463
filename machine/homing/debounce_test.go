package homing

import (
	"tinygfw/machine"

	"testing"
)

// fakeRawSwitch reports a fixed pin level per (axis, role) key until
// told otherwise, standing in for a real GPIO read.
type fakeRawSwitch struct {
	high map[switchKey]bool
}

func newFakeRawSwitch() *fakeRawSwitch {
	return &fakeRawSwitch{high: map[switchKey]bool{}}
}

func (f *fakeRawSwitch) set(axis machine.AxisID, role Role, high bool) {
	f.high[switchKey{axis, role}] = high
}

func (f *fakeRawSwitch) ReadPin(axis machine.AxisID, role Role) (bool, error) {
	return f.high[switchKey{axis, role}], nil
}

func TestDebouncerDefaultPolarityIsNormallyOpen(t *testing.T) {
	raw := newFakeRawSwitch()
	d := NewDebouncer(raw, 1, false)

	// Default wiring: pin reads high when open, low when the switch
	// closes. A single-sample debounce should latch on the low read.
	raw.set(machine.AxisX, RoleMin, false)
	triggered, err := d.Read(machine.AxisX, RoleMin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !triggered {
		t.Fatal("expected a pin-low read to trigger the default NO polarity")
	}
}

func TestDebouncerPolarityOverridePerSwitch(t *testing.T) {
	raw := newFakeRawSwitch()
	d := NewDebouncer(raw, 1, false)
	d.SetPolarity(machine.AxisY, RoleMax, true)

	raw.set(machine.AxisY, RoleMax, true)
	triggered, err := d.Read(machine.AxisY, RoleMax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !triggered {
		t.Fatal("expected a pin-high read to trigger once polarity is overridden to expect-high")
	}

	// A different switch's default polarity is unaffected by the
	// override on this one.
	raw.set(machine.AxisX, RoleMin, true)
	if triggered, _ := d.Read(machine.AxisX, RoleMin); triggered {
		t.Fatal("expected the default-polarity switch to stay untriggered on a pin-high read")
	}
}

func TestDebouncerSwitchesAreIndependentlyDebounced(t *testing.T) {
	raw := newFakeRawSwitch()
	d := NewDebouncer(raw, 2, false)

	raw.set(machine.AxisX, RoleMin, false)
	if triggered, _ := d.Read(machine.AxisX, RoleMin); triggered {
		t.Fatal("expected the first of two confirm samples to stay unlatched")
	}

	// A different (axis, role) key starts its own debounce from
	// scratch rather than inheriting AxisX/RoleMin's partial count.
	raw.set(machine.AxisZ, RoleMax, false)
	if triggered, _ := d.Read(machine.AxisZ, RoleMax); triggered {
		t.Fatal("expected a fresh switch key to need its own confirm count")
	}

	if triggered, _ := d.Read(machine.AxisX, RoleMin); !triggered {
		t.Fatal("expected the second agreeing sample to latch AxisX/RoleMin")
	}
}

func TestDebouncerResetClearsLatch(t *testing.T) {
	raw := newFakeRawSwitch()
	d := NewDebouncer(raw, 1, false)

	raw.set(machine.AxisX, RoleMin, false)
	if triggered, _ := d.Read(machine.AxisX, RoleMin); !triggered {
		t.Fatal("expected the switch to latch")
	}

	raw.set(machine.AxisX, RoleMin, true)
	if triggered, _ := d.Read(machine.AxisX, RoleMin); !triggered {
		t.Fatal("expected the latch to hold even after the pin returns to its open level")
	}

	d.Reset(machine.AxisX, RoleMin)
	if triggered, _ := d.Read(machine.AxisX, RoleMin); triggered {
		t.Fatal("expected Reset to re-arm the debounce so the open pin reads untriggered")
	}
}
