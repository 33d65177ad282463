//go:build tinygo

package core

// Non-contact and vibration Z-probe backends, adapted from
// examples/drivers/vl53l1x_example.go and
// examples/drivers/adxl345_example.go's driver-registry wiring into
// implementations of machine/homing.SwitchReader's single method:
// instead of polling the sensor through the binary dictionary
// protocol's driver_poll_data command, the canonical machine's homing
// cycle reads these directly in-process during a probe move
// (spec.md §4.7).

import (
	"tinygfw/machine"
	"tinygfw/machine/homing"

	"tinygo.org/x/drivers/adxl345"
	"tinygo.org/x/drivers/vl53l1x"
)

// VL53L1XProbe treats a time-of-flight distance reading below
// ThresholdMM as a triggered switch: the tool is ThresholdMM or closer
// to the surface beneath the sensor. Suited to non-contact Z
// referencing (tool-length or surface-height probing) where a
// mechanical touch probe isn't wanted.
type VL53L1XProbe struct {
	sensor      vl53l1x.Device
	ThresholdMM uint16
}

// NewVL53L1XProbe configures the sensor on the given I2C bus and
// returns a ready-to-read probe. use2v8Mode and timingBudgetUs mirror
// the example's Attributes map.
func NewVL53L1XProbe(bus I2CBusID, use2v8Mode bool, timingBudgetUs uint32, thresholdMM uint16) (*VL53L1XProbe, error) {
	i2c, err := GetMachineI2C(bus)
	if err != nil {
		return nil, err
	}
	if err := MustI2C().ConfigureBus(bus, 400000); err != nil {
		return nil, err
	}

	sensor := vl53l1x.New(i2c)
	sensor.Configure(use2v8Mode)
	sensor.SetMeasurementTimingBudget(timingBudgetUs)

	return &VL53L1XProbe{sensor: sensor, ThresholdMM: thresholdMM}, nil
}

// Read implements homing.SwitchReader. axis is ignored: a distance
// probe is mounted once per machine, not per axis, matching spec.md
// §4.7's single shared RoleProbe switch.
func (p *VL53L1XProbe) Read(axis machine.AxisID, role homing.Role) (bool, error) {
	if role != homing.RoleProbe {
		return false, nil
	}
	distance := p.sensor.Read(true)
	if distance >= 8190 {
		distance = 8190 // out of range, same clamp the example driver applies
	}
	return distance <= p.ThresholdMM, nil
}

// ADXL345Probe treats a spike in acceleration magnitude above
// ThresholdCounts as a touch-probe trigger: a toolsetter or workpiece
// contact produces a momentary shock the steady machine vibration
// floor doesn't, the same signal this accelerometer is normally read
// for input-shaping resonance measurement (examples/drivers's
// adxl345_example.go), repurposed here as an edge detector instead of
// a frequency-domain input.
type ADXL345Probe struct {
	sensor         adxl345.Device
	baseline       int32
	ThresholdCounts int32
}

// NewADXL345Probe configures the sensor and samples a baseline reading
// the first Read call compares future samples against.
func NewADXL345Probe(bus I2CBusID, addr I2CAddress, thresholdCounts int32) (*ADXL345Probe, error) {
	i2c, err := GetMachineI2C(bus)
	if err != nil {
		return nil, err
	}
	if err := MustI2C().ConfigureBus(bus, 400000); err != nil {
		return nil, err
	}

	sensor := adxl345.New(i2c)
	sensor.Configure()
	sensor.SetRange(adxl345.RANGE_16G)
	sensor.SetRate(adxl345.RATE_0_78HZ)

	p := &ADXL345Probe{sensor: sensor, ThresholdCounts: thresholdCounts}
	x, y, z := sensor.ReadRawAcceleration()
	p.baseline = magnitude(x, y, z)
	return p, nil
}

func (p *ADXL345Probe) Read(axis machine.AxisID, role homing.Role) (bool, error) {
	if role != homing.RoleProbe {
		return false, nil
	}
	x, y, z := p.sensor.ReadRawAcceleration()
	mag := magnitude(x, y, z)
	delta := mag - p.baseline
	if delta < 0 {
		delta = -delta
	}
	return delta >= p.ThresholdCounts, nil
}

func magnitude(x, y, z int16) int32 {
	ax, ay, az := int32(x), int32(y), int32(z)
	sum := ax*ax + ay*ay + az*az
	return isqrt(sum)
}

// isqrt is an integer square root (Newton's method), avoiding a math
// import for a single approximate magnitude comparison.
func isqrt(n int32) int32 {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
