// Package config loads the axis/motor/switch configuration table that
// the canonical machine, planner and DDA runtime are parameterized by.
//
// Loading is layered the way nasa-jpl-golaborate/cmd/andorhttp2 loads
// its camera config: a struct of hard defaults is loaded first via
// koanf's structs provider, then an optional on-disk YAML file is
// merged on top, so a missing config file degrades to sane defaults
// rather than failing.
package config

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"tinygfw/machine"
)

// SwitchConfig describes one min/max limit switch.
type SwitchConfig struct {
	Pin          string `yaml:"Pin"`
	NormallyOpen bool   `yaml:"NormallyOpen"`
}

// MachineConfig is the full machine configuration table (spec.md §3).
type MachineConfig struct {
	Axes  map[string]machine.AxisConfig  `yaml:"Axes"`
	Motors map[string]machine.MotorConfig `yaml:"Motors"`

	MinSwitches map[string]SwitchConfig `yaml:"MinSwitches"`
	MaxSwitches map[string]SwitchConfig `yaml:"MaxSwitches"`
	ProbeSwitch *SwitchConfig           `yaml:"ProbeSwitch,omitempty"`

	// CoolantSharedPin: see spec.md §9 open question on flood/mist
	// sharing a GPIO. Off (independent pins) by default.
	CoolantSharedPin bool `yaml:"CoolantSharedPin"`

	DefaultVelocity float64 `yaml:"DefaultVelocity"` // mm/min
	JunctionDeviation float64 `yaml:"JunctionDeviation"`

	SegmentTimeMillis float64 `yaml:"SegmentTimeMillis"` // T_seg, spec.md §4.3
	DDAFrequencyHz    uint32  `yaml:"DDAFrequencyHz"`    // F_DDA, spec.md §4.4

	HomingOrder    []string `yaml:"HomingOrder"`
	HomingWaypoint machine.Position `yaml:"-"`
}

func axisName(id machine.AxisID) string {
	return strings.ToLower(id.String())
}

func axisIDFromName(name string) (machine.AxisID, bool) {
	for id := machine.AxisX; id < machine.NumAxes; id++ {
		if axisName(id) == strings.ToLower(name) {
			return id, true
		}
	}
	return 0, false
}

// AxesByID re-keys the Axes table from the config's lowercase axis
// names to machine.AxisID, as kinematics.New and planner.New require.
func (c *MachineConfig) AxesByID() map[machine.AxisID]machine.AxisConfig {
	out := make(map[machine.AxisID]machine.AxisConfig, len(c.Axes))
	for name, cfg := range c.Axes {
		if id, ok := axisIDFromName(name); ok {
			out[id] = cfg
		}
	}
	return out
}

// MotorsByID re-keys the Motors table from the config's lowercase axis
// names to machine.AxisID.
func (c *MachineConfig) MotorsByID() map[machine.AxisID]machine.MotorConfig {
	out := make(map[machine.AxisID]machine.MotorConfig, len(c.Motors))
	for name, cfg := range c.Motors {
		if id, ok := axisIDFromName(name); ok {
			out[id] = cfg
		}
	}
	return out
}

// HomingOrderIDs resolves HomingOrder's axis-name list to AxisIDs,
// skipping any name that isn't a configured axis.
func (c *MachineConfig) HomingOrderIDs() []machine.AxisID {
	out := make([]machine.AxisID, 0, len(c.HomingOrder))
	for _, name := range c.HomingOrder {
		if id, ok := axisIDFromName(name); ok {
			out = append(out, id)
		}
	}
	return out
}

// Default returns a MachineConfig for a generic 3-axis mill with
// reasonable jerk-limited defaults, matching the teacher's
// DefaultCartesianConfig but in TinyG's jerk-limited parameter set.
func Default() *MachineConfig {
	axes := map[string]machine.AxisConfig{}
	motors := map[string]machine.MotorConfig{}

	linear := []machine.AxisID{machine.AxisX, machine.AxisY, machine.AxisZ}
	for _, id := range linear {
		axes[axisName(id)] = machine.AxisConfig{
			Mode:                 machine.AxisModeStandard,
			MaxVelocity:          6000,
			MaxFeedrate:          6000,
			TravelMin:            0,
			TravelMax:            300,
			MaxJerk:              5e7,
			JunctionDeviation:    0.05,
			HomingSearchVelocity: 1000,
			HomingLatchVelocity:  100,
			HomingZeroBackoff:    2,
			HomingJerk:           5e7,
		}
		motors[axisName(id)] = machine.MotorConfig{
			Axis:         id,
			Microsteps:   8,
			StepAngleDeg: 1.8,
			TravelPerRev: 5,
			Power:        machine.MotorPowerOnInCycle,
		}
	}

	return &MachineConfig{
		Axes:   axes,
		Motors: motors,
		MinSwitches: map[string]SwitchConfig{
			"x": {Pin: "gpio20", NormallyOpen: true},
			"y": {Pin: "gpio21", NormallyOpen: true},
			"z": {Pin: "gpio22", NormallyOpen: true},
		},
		DefaultVelocity:   3000,
		JunctionDeviation: 0.05,
		SegmentTimeMillis: 5,
		DDAFrequencyHz:    50000,
		HomingOrder:       []string{"z", "x", "y"},
	}
}

// Load reads a YAML config file over the hard defaults. A missing file
// is not an error — the defaults are used as-is, matching the
// teacher's koanf-ancestor pattern of tolerating "no such file".
func Load(path string) (*MachineConfig, error) {
	k := koanf.New(".")
	def := Default()

	if err := k.Load(structs.Provider(def, "yaml"), nil); err != nil {
		return nil, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !strings.Contains(err.Error(), "no such file") {
				return nil, err
			}
		}
	}

	var cfg MachineConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
