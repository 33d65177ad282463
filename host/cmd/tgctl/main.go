// Command tgctl is the host-side control CLI, replacing the teacher's
// gopper-host. It keeps gopper-host's MCU-dictionary debug REPL as the
// "mcu" subcommand, and adds a default G-code REPL that drives the
// canonical machine / planner / executor / DDA stack in-process, for
// exercising a machine configuration without real hardware attached.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/shlex"
	"github.com/theckman/yacspin"

	"tinygfw/controller"
	"tinygfw/core"
	"tinygfw/host/mcu"
	"tinygfw/machine"
	"tinygfw/machine/config"
	"tinygfw/machine/executor"
	"tinygfw/machine/gcode"
	"tinygfw/machine/homing"
	"tinygfw/machine/kinematics"
	"tinygfw/machine/planner"
	"tinygfw/protocol"
)

var (
	device     = flag.String("device", "/dev/ttyACM0", "Serial device path (mcu subcommand)")
	configPath = flag.String("config", "", "Machine config YAML path (sim subcommand)")
)

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 && args[0] == "mcu" {
		runMCU()
		return
	}
	runSim()
}

// --- sim: in-process G-code REPL over the canonical machine stack ---

// alwaysTriggered is a SwitchReader stub for a REPL with no real
// switches attached: every homing/probe move "hits" immediately, so
// `home` completes fast enough to exercise the cycle's state machine.
type alwaysTriggered struct{}

func (alwaysTriggered) Read(axis machine.AxisID, role homing.Role) (bool, error) {
	return true, nil
}

// nullBackend is a no-op StepperBackend: tgctl has no real motor
// driver attached, so stepping is only observed through DDAMotor's
// own Position counter.
type nullBackend struct{ name string }

func (nullBackend) Init(stepPin, dirPin uint8, invertStep, invertDir bool) error { return nil }
func (nullBackend) Step()                                                       {}
func (nullBackend) SetDirection(dir bool)                                       {}
func (nullBackend) Stop()                                                       {}
func (nullBackend) Enable()                                                     {}
func (nullBackend) Disable()                                                    {}
func (n nullBackend) GetName() string                                           { return n.name }

func runSim() {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	axes := cfg.AxesByID()
	mapper, err := kinematics.New(axes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kinematics: %v\n", err)
		os.Exit(1)
	}

	p := planner.New(planner.DefaultRingSize, axes)

	dda := core.NewDDA()
	motors := cfg.MotorsByID()
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
	for id, mc := range motors {
		mcCopy := mc
		dda.AttachMotor(id, &core.DDAMotor{
			Backend: nullBackend{name: "sim:" + id.String()},
			Power:   core.MotorPowerState(mcCopy.Power),
		})
		params.StepsPerUnit[id] = mcCopy.StepsPerUnit()
		params.PowerFlag[id] = true
	}

	ctl := controller.New(nil, p, dda, params)
	homingCycle := homing.New(axes, p, alwaysTriggered{}, cfg.HomingOrderIDs(), cfg.HomingWaypoint, func() { oneTick(ctl) })
	machineState := gcode.NewMachine(mapper, p, homingCycle)
	ctl.Machine = machineState

	printBanner()
	okColor := color.New(color.FgGreen)
	errColor := color.New(color.FgRed, color.Bold)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("tgctl> ")
		if !scanner.Scan() {
			break
		}
		raw := scanner.Text()
		tokens, err := shlex.Split(raw)
		if err != nil || len(tokens) == 0 {
			continue
		}

		if tokens[0] == "quit" || tokens[0] == "exit" {
			okColor.Println("bye")
			return
		}

		line := strings.Join(tokens, " ")

		isHoming := strings.Contains(strings.ToUpper(line), "G28")
		var spinner *yacspin.Spinner
		if isHoming {
			spinner, _ = yacspin.New(yacspin.Config{
				Frequency:       100 * time.Millisecond,
				CharSet:         yacspin.CharSets[11],
				Suffix:          " homing",
				SuffixAutoColon: true,
			})
			if spinner != nil {
				_ = spinner.Start()
			}
		}

		code, execErr := ctl.SubmitLine(line)
		drainMotion(ctl, dda)

		if spinner != nil {
			_ = spinner.Stop()
		}

		if execErr != nil || code.IsError() {
			msg := code.String()
			if execErr != nil {
				msg = execErr.Error()
			}
			errColor.Printf("error: %s\n", msg)
			continue
		}
		okColor.Println("ok")
	}
}

// drainMotion pumps ServiceMotion and the timer scheduler until the
// planner and DDA both go idle, so the REPL's "ok" reflects a fully
// executed move rather than just an accepted one.
func drainMotion(ctl *controller.Controller, dda *core.DDA) {
	const maxIterations = 1_000_000
	for i := 0; i < maxIterations; i++ {
		if ctl.Planner.IsIdle() && !dda.IsActive() {
			return
		}
		oneTick(ctl)
	}
}

// oneTick advances the simulated clock by one DDA period and runs
// whatever timer callbacks fall due. There is no real hardware clock
// backing core.GetTime on host, so the homing cycle's wait-for-switch
// loop and the REPL's drainMotion both drive progress through this
// same single-tick primitive rather than sleeping.
func oneTick(ctl *controller.Controller) {
	ctl.ServiceMotion()
	core.SetTime(core.GetTime() + 240) // one 50kHz DDA tick at 12MHz timer clock
	core.ProcessTimers()
}

func printBanner() {
	fmt.Println("tgctl - jerk-limited CNC controller simulation shell")
	fmt.Println("type G-code directly, or 'quit' to exit")
}

// --- mcu: Klipper binary dictionary debug REPL (kept from gopper-host) ---

func runMCU() {
	fmt.Println("tgctl mcu - Klipper protocol dictionary debug shell")

	mcuConn := mcu.NewMCU()
	fmt.Printf("Connecting to MCU on %s...\n", *device)
	if err := mcuConn.Connect(*device); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer mcuConn.Close()

	if err := mcuConn.RetrieveDictionary(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to retrieve dictionary: %v\n", err)
		os.Exit(1)
	}
	mcuConn.PrintDictionary()

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		tokens, err := shlex.Split(scanner.Text())
		if err != nil || len(tokens) == 0 {
			continue
		}

		switch tokens[0] {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return
		case "help", "?":
			printMCUHelp()
		case "dict":
			mcuConn.PrintDictionary()
		case "raw":
			raw := mcuConn.GetDictionaryRaw()
			fmt.Printf("Raw dictionary data (%d bytes):\n%s\n", len(raw), string(raw))
		case "get_uptime", "get_clock", "get_config":
			if err := sendSimpleCommand(mcuConn, tokens[0]); err != nil {
				color.Red("Error: %v\n", err)
			}
		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", tokens[0])
		}
	}
}

func sendSimpleCommand(mcuConn *mcu.MCU, name string) error {
	fmt.Printf("Sending %s command...\n", name)
	if err := mcuConn.SendCommand(name, nil); err != nil {
		return fmt.Errorf("failed to send %s: %w", name, err)
	}
	time.Sleep(100 * time.Millisecond)
	fmt.Println("(Note: response handling not yet implemented - check MCU logs)")
	return nil
}

func printMCUHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help           - Show this help message")
	fmt.Println("  dict           - Print dictionary summary")
	fmt.Println("  raw            - Print raw dictionary data")
	fmt.Println("  get_uptime     - Get MCU uptime")
	fmt.Println("  get_clock      - Get MCU clock")
	fmt.Println("  get_config     - Get MCU configuration")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}

// decodeResponse decodes a response message payload; kept for the mcu
// subcommand's future response-dispatch work.
func decodeResponse(payload []byte) (cmdID uint16, data []byte, err error) {
	cmdIDUint, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to decode command ID: %w", err)
	}
	return uint16(cmdIDUint), payload, nil
}
