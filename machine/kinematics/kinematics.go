// Package kinematics holds the configured axis set: it checks targets
// against soft travel limits and applies rotary axis substitution
// (RADIUS / SLAVE_*) as described in spec.md §4.1. Unit conversion and
// coordinate offsets are applied by the gcode package before a target
// reaches it.
package kinematics

import (
	"errors"
	"math"

	"tinygfw/machine"
)

// ErrAxisOutOfRange is returned by CheckLimits.
var ErrAxisOutOfRange = errors.New("kinematics: axis position exceeds travel limits")

// AxisMapper resolves targets for the configured set of axes. Unlike
// the teacher's Cartesian kinematics (a fixed 1:1 XYZ+E map), this
// generalizes to any subset of the six logical axes, including rotary
// substitution modes.
type AxisMapper struct {
	axes map[machine.AxisID]machine.AxisConfig
}

// New builds an AxisMapper from the configured axes. At least one
// linear axis must be present.
func New(axes map[machine.AxisID]machine.AxisConfig) (*AxisMapper, error) {
	hasLinear := false
	for id := range axes {
		if !id.IsRotary() {
			hasLinear = true
		}
	}
	if !hasLinear {
		return nil, errors.New("kinematics: at least one linear axis must be configured")
	}
	return &AxisMapper{axes: axes}, nil
}

// AxisConfig returns the configuration for one axis, if configured.
func (k *AxisMapper) AxisConfig(id machine.AxisID) (machine.AxisConfig, bool) {
	cfg, ok := k.axes[id]
	return cfg, ok
}

// Axes returns the configured axis IDs in canonical X..C order.
func (k *AxisMapper) Axes() []machine.AxisID {
	out := make([]machine.AxisID, 0, len(k.axes))
	for id := machine.AxisX; id < machine.NumAxes; id++ {
		if _, ok := k.axes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// CheckLimits validates a position against each configured axis's
// travel extent, when that axis has soft-limit enforcement enabled
// (spec.md §9: off by default).
func (k *AxisMapper) CheckLimits(pos machine.Position) error {
	for id, cfg := range k.axes {
		if !cfg.SoftLimitEnabled {
			continue
		}
		v := pos[id]
		if v < cfg.TravelMin || v > cfg.TravelMax {
			return ErrAxisOutOfRange
		}
	}
	return nil
}

// ResolveRotary applies RADIUS/SLAVE_* substitution for rotary axes in
// target, given the linear path length actually commanded (computed by
// the caller from the subspace named by the slave mode). It mutates
// and returns target.
func (k *AxisMapper) ResolveRotary(target machine.Position, subspaceLength func(machine.AxisMode) float64) machine.Position {
	for id := machine.AxisA; id < machine.NumAxes; id++ {
		cfg, ok := k.axes[id]
		if !ok {
			continue
		}
		switch cfg.Mode {
		case machine.AxisModeRadius:
			if cfg.RotaryRadius > 0 {
				// linear mm -> degrees: arc length = radius * theta
				target[id] = (target[id] / cfg.RotaryRadius) * (180.0 / math.Pi)
			}
		case machine.AxisModeSlaveX, machine.AxisModeSlaveY, machine.AxisModeSlaveZ,
			machine.AxisModeSlaveXY, machine.AxisModeSlaveXZ, machine.AxisModeSlaveYZ, machine.AxisModeSlaveXYZ:
			if subspaceLength != nil {
				length := subspaceLength(cfg.Mode)
				if cfg.RotaryRadius > 0 {
					target[id] = (length / cfg.RotaryRadius) * (180.0 / math.Pi)
				} else {
					target[id] = length
				}
			}
		}
	}
	return target
}
