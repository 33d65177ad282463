//go:build rp2040 || rp2350

package main

// ModeConfig selects which host-facing protocol this firmware speaks.
type ModeConfig struct {
	// ASCIIMode runs the ASCII G-code line protocol (protocol/lineproto)
	// against the in-process canonical-machine/planner/DDA stack. When
	// false, the firmware speaks the binary Klipper-style command
	// dictionary protocol instead, for bench debugging with host/mcu's
	// dictionary REPL.
	ASCIIMode bool
}

// GetMode returns the current mode configuration. ASCIIMode is true, so
// the firmware boots straight into the G-code line protocol; set it to
// false to boot into the binary dictionary debug channel instead.
func GetMode() ModeConfig {
	return ModeConfig{
		ASCIIMode: true,
	}
}
