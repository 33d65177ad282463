//go:build rp2040 || rp2350

package main

import (
	hwmachine "machine"
	"time"

	"tinygfw/controller"
	"tinygfw/core"
	cncmachine "tinygfw/machine"
	"tinygfw/machine/config"
	"tinygfw/machine/executor"
	"tinygfw/machine/gcode"
	"tinygfw/machine/homing"
	"tinygfw/machine/kinematics"
	"tinygfw/machine/planner"
	"tinygfw/protocol/lineproto"
)

// axisPins assigns a step/direction GPIO pair to each logical axis on
// this board, extending the teacher's four-motor "gpio0/gpio1, ..."
// wiring convention to six axes, one PIO state machine each (RP2040
// has 8 state machines across its two PIO blocks).
var axisPins = [int(cncmachine.NumAxes)]struct {
	stepPin, dirPin uint8
	pioNum, smNum   uint8
}{
	cncmachine.AxisX: {stepPin: 0, dirPin: 1, pioNum: 0, smNum: 0},
	cncmachine.AxisY: {stepPin: 2, dirPin: 3, pioNum: 0, smNum: 1},
	cncmachine.AxisZ: {stepPin: 4, dirPin: 5, pioNum: 0, smNum: 2},
	cncmachine.AxisA: {stepPin: 6, dirPin: 7, pioNum: 0, smNum: 3},
	cncmachine.AxisB: {stepPin: 9, dirPin: 10, pioNum: 1, smNum: 0},
	cncmachine.AxisC: {stepPin: 11, dirPin: 12, pioNum: 1, smNum: 1},
}

// gpioSwitchReader reads limit/probe switches directly off GPIO input
// pins. Unlike the binary dictionary protocol's core.Endstop (which
// debounces in the timer-interrupt domain for the MCU-authoritative
// homing command), the canonical machine's homing.Cycle already
// software-polls at homing.PollInterval, so a plain digital read here
// is enough; a second debounce layer underneath it would just be
// redundant filtering.
type gpioSwitchReader struct {
	min, max, probe map[cncmachine.AxisID]hwmachine.Pin
}

func newGPIOSwitchReader(cfg *config.MachineConfig) *gpioSwitchReader {
	r := &gpioSwitchReader{
		min: make(map[cncmachine.AxisID]hwmachine.Pin),
		max: make(map[cncmachine.AxisID]hwmachine.Pin),
	}
	for name, sw := range cfg.MinSwitches {
		if id, ok := axisIDFromName(name); ok {
			pin := configurePin(sw.Pin)
			r.min[id] = pin
		}
	}
	for name, sw := range cfg.MaxSwitches {
		if id, ok := axisIDFromName(name); ok {
			pin := configurePin(sw.Pin)
			r.max[id] = pin
		}
	}
	if cfg.ProbeSwitch != nil {
		r.probe = map[cncmachine.AxisID]hwmachine.Pin{0: configurePin(cfg.ProbeSwitch.Pin)}
	}
	return r
}

func (r *gpioSwitchReader) Read(axis cncmachine.AxisID, role homing.Role) (bool, error) {
	var pin hwmachine.Pin
	var ok bool
	switch role {
	case homing.RoleMax:
		pin, ok = r.max[axis]
	case homing.RoleProbe:
		pin, ok = r.probe[0]
	default:
		pin, ok = r.min[axis]
	}
	if !ok {
		return false, nil
	}
	return pin.Get(), nil
}

func configurePin(name string) hwmachine.Pin {
	pin := hwmachine.Pin(parseGPIONumber(name))
	pin.Configure(hwmachine.PinConfig{Mode: hwmachine.PinInputPullup})
	return pin
}

// parseGPIONumber extracts the numeric suffix of a "gpioNN" config
// string (machine/config.SwitchConfig.Pin), e.g. "gpio20" -> 20.
func parseGPIONumber(name string) uint8 {
	n := uint8(0)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '0' || c > '9' {
			continue
		}
		n = n*10 + (c - '0')
	}
	return n
}

// axisIDFromName mirrors machine/config's own (unexported) helper; the
// firmware target has no access to it across the package boundary, so
// it is duplicated here against the same AxisID.String() convention.
func axisIDFromName(name string) (cncmachine.AxisID, bool) {
	for id := cncmachine.AxisX; id < cncmachine.NumAxes; id++ {
		if toLower(id.String()) == toLower(name) {
			return id, true
		}
	}
	return 0, false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// RunGCodeMode boots the canonical machine / planner / executor / DDA
// stack against real PIO-driven stepper hardware and speaks the ASCII
// G-code line protocol (spec.md §6) over USB CDC, instead of the
// binary command-dictionary protocol main() otherwise runs.
func RunGCodeMode() {
	cfg, err := config.Load("")
	if err != nil {
		blinkError()
	}

	axes := cfg.AxesByID()
	mapper, err := kinematics.New(axes)
	if err != nil {
		blinkError()
	}

	p := planner.New(planner.DefaultRingSize, axes)
	dda := core.NewDDA()

	var params executor.Params
	segMillis := cfg.SegmentTimeMillis
	if segMillis <= 0 {
		segMillis = 5
	}
	params.SegmentSeconds = segMillis / 1000
	params.DDAFrequencyHz = cfg.DDAFrequencyHz
	if params.DDAFrequencyHz == 0 {
		params.DDAFrequencyHz = 50000
	}

	motors := cfg.MotorsByID()
	for id, mc := range motors {
		pins := axisPins[id]
		backend := NewPIOStepperBackend(pins.pioNum, pins.smNum)
		if err := backend.Init(pins.stepPin, pins.dirPin, mc.PolarityInvStep, mc.PolarityInvDir); err != nil {
			blinkError()
		}
		dda.AttachMotor(id, &core.DDAMotor{
			Backend: backend,
			Power:   core.MotorPowerState(mc.Power),
		})
		mcCopy := mc
		params.StepsPerUnit[id] = mcCopy.StepsPerUnit()
		params.PowerFlag[id] = true
	}

	switches := newGPIOSwitchReader(cfg)
	ctl := controller.New(nil, p, dda, params)
	tick := func() {
		ctl.ServiceMotion()
		UpdateSystemTime()
		core.ProcessTimers()
	}
	homingCycle := homing.New(axes, p, switches, cfg.HomingOrderIDs(), cfg.HomingWaypoint, tick)
	machineState := gcode.NewMachine(mapper, p, homingCycle)
	ctl.Machine = machineState

	blinkReady()

	scanner := lineproto.NewScanner(usbLineReader{}, nil)
	for {
		func() {
			defer func() { recover() }()

			line, err := scanner.ReadLine()
			if err == nil && line != "" {
				code, execErr := ctl.SubmitLine(line)
				for ctl.DDA.PrepReady() {
					ctl.ServiceMotion()
					if p.IsIdle() && !dda.IsActive() {
						break
					}
				}
				resp := lineproto.Response{OK: execErr == nil && !code.IsError()}
				if !resp.OK {
					resp.Error = code.String()
					if execErr != nil {
						resp.Error = execErr.Error()
					}
				}
				enc := lineproto.Encoder{Format: lineproto.FormatText}
				USBWriteBytes([]byte(enc.Encode(resp) + "\n"))
			}

			checkSafetySwitches(ctl, machineState, switches, axes)
			UpdateSystemTime()
			core.ProcessTimers()
		}()
		time.Sleep(100 * time.Microsecond)
	}
}

// checkSafetySwitches trips the controller's feedhold/abort TriggerSync
// when a limit switch reads triggered outside of a homing or probing
// cycle — those cycles poll the same switches through homing.Cycle
// (reading this gpioSwitchReader) and expect the trigger, so an
// equally-real read here would otherwise double-report it as a safety
// event. This is the one real caller of core.TriggerSyncDoTrigger on
// the ASCII/domain path; host-side tgctl has no physical switches to
// drive it from.
func checkSafetySwitches(ctl *controller.Controller, m *gcode.Machine, switches *gpioSwitchReader, axes map[cncmachine.AxisID]cncmachine.AxisConfig) {
	cycle := m.State().Cycle
	if cycle == gcode.CycleHoming || cycle == gcode.CycleProbing {
		return
	}
	for axis := range axes {
		if triggered, _ := switches.Read(axis, homing.RoleMin); triggered {
			core.TriggerSyncDoTrigger(ctl.TriggerSync(), controller.TriggerReasonFeedHold)
			return
		}
		if triggered, _ := switches.Read(axis, homing.RoleMax); triggered {
			core.TriggerSyncDoTrigger(ctl.TriggerSync(), controller.TriggerReasonFeedHold)
			return
		}
	}
}

// usbLineReader adapts the board's byte-at-a-time USBRead into the
// io.Reader lineproto.Scanner expects.
type usbLineReader struct{}

func (usbLineReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if USBAvailable() == 0 {
		return 0, nil
	}
	b, err := USBRead()
	if err != nil {
		return 0, err
	}
	p[0] = b
	return 1, nil
}

func blinkError() {
	led := hwmachine.LED
	led.Configure(hwmachine.PinConfig{Mode: hwmachine.PinOutput})
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}

func blinkReady() {
	led := hwmachine.LED
	led.Configure(hwmachine.PinConfig{Mode: hwmachine.PinOutput})
	for i := 0; i < 3; i++ {
		led.High()
		time.Sleep(200 * time.Millisecond)
		led.Low()
		time.Sleep(200 * time.Millisecond)
	}
}
