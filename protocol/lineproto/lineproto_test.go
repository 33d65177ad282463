package lineproto

import (
	"bufio"
	"strings"
	"testing"
)

func newTestReader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestDecodeGCode(t *testing.T) {
	line, err := Decode("  G1 X10 Y20 F500  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != LineGCode {
		t.Fatalf("expected LineGCode, got %v", line.Kind)
	}
	if line.GCode != "G1 X10 Y20 F500" {
		t.Fatalf("unexpected gcode text: %q", line.GCode)
	}
}

func TestDecodeConfigSet(t *testing.T) {
	line, err := Decode("$100=250.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != LineConfigSet {
		t.Fatalf("expected LineConfigSet, got %v", line.Kind)
	}
	if line.ConfigToken != "100" {
		t.Fatalf("unexpected token: %q", line.ConfigToken)
	}
	v, err := line.ConfigFloat()
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if v != 250.5 {
		t.Fatalf("expected 250.5, got %v", v)
	}
}

func TestDecodeConfigQuery(t *testing.T) {
	line, err := Decode("$100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != LineConfigQuery {
		t.Fatalf("expected LineConfigQuery, got %v", line.Kind)
	}
	if line.ConfigToken != "100" {
		t.Fatalf("unexpected token: %q", line.ConfigToken)
	}
}

func TestDecodeJSON(t *testing.T) {
	line, err := Decode(`{"set":{"100":250.5}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != LineJSON {
		t.Fatalf("expected LineJSON, got %v", line.Kind)
	}
	if _, ok := line.JSON["set"]; !ok {
		t.Fatalf("expected top-level 'set' key, got %v", line.JSON)
	}
}

func TestDecodeEmpty(t *testing.T) {
	line, err := Decode("   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.Kind != LineEmpty {
		t.Fatalf("expected LineEmpty, got %v", line.Kind)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := Decode("{not json}"); err == nil {
		t.Fatalf("expected an error for malformed JSON line")
	}
}

func TestIsControlByte(t *testing.T) {
	for _, b := range []byte{ControlFeedHold, ControlResume, ControlReset, ControlSoftReset} {
		if !IsControlByte(b) {
			t.Errorf("expected %q to be a control byte", b)
		}
	}
	if IsControlByte('G') {
		t.Errorf("did not expect 'G' to be a control byte")
	}
}

func TestEncodeTextOK(t *testing.T) {
	enc := Encoder{Format: FormatText}
	got := enc.Encode(Response{OK: true})
	if got != "ok" {
		t.Fatalf("expected %q, got %q", "ok", got)
	}
}

func TestEncodeTextError(t *testing.T) {
	enc := Encoder{Format: FormatText}
	got := enc.Encode(Response{Error: "queue full"})
	if got != "error:queue full" {
		t.Fatalf("expected %q, got %q", "error:queue full", got)
	}
}

func TestEncodeJSONOK(t *testing.T) {
	enc := Encoder{Format: FormatJSON}
	got := enc.Encode(Response{OK: true})
	if got != `{"r":{"ok":true}}` {
		t.Fatalf("unexpected JSON encoding: %q", got)
	}
}

func TestScannerStripsControlBytes(t *testing.T) {
	var seen []byte
	r := newTestReader("G1 X1\x18\nG1 X2!\n~\n")
	s := NewScanner(r, func(b byte) { seen = append(seen, b) })

	line1, err := s.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line1 != "G1 X1" {
		t.Fatalf("unexpected line: %q", line1)
	}

	line2, err := s.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line2 != "G1 X2" {
		t.Fatalf("unexpected line: %q", line2)
	}

	line3, err := s.ReadLine()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line3 != "" {
		t.Fatalf("expected empty line after lone control byte, got %q", line3)
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 control bytes observed, got %d: %v", len(seen), seen)
	}
}
