package gcode

import "testing"

func TestParseLineBasicMove(t *testing.T) {
	p := NewParser()
	cmd, err := p.ParseLine("G1 X10 Y-5.5 F500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd == nil {
		t.Fatal("expected a command, got nil")
	}
	if cmd.Type != 'G' || cmd.Number != 1 {
		t.Fatalf("expected G1, got %c%v", cmd.Type, cmd.Number)
	}
	if cmd.Parameters['X'] != 10 {
		t.Errorf("expected X=10, got %v", cmd.Parameters['X'])
	}
	if cmd.Parameters['Y'] != -5.5 {
		t.Errorf("expected Y=-5.5, got %v", cmd.Parameters['Y'])
	}
	if cmd.Parameters['F'] != 500 {
		t.Errorf("expected F=500, got %v", cmd.Parameters['F'])
	}
}

func TestParseLineDottedGCode(t *testing.T) {
	p := NewParser()
	cmd, err := p.ParseLine("G61.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Number != 61.1 {
		t.Fatalf("expected 61.1, got %v", cmd.Number)
	}
}

func TestParseLineBlankAndComment(t *testing.T) {
	p := NewParser()

	cmd, err := p.ParseLine("   ")
	if err != nil || cmd != nil {
		t.Fatalf("expected (nil, nil) for blank line, got (%v, %v)", cmd, err)
	}

	cmd, err = p.ParseLine("; a full line comment")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd == nil || cmd.Comment == "" {
		t.Fatalf("expected a comment-only command, got %v", cmd)
	}
}

func TestParseLineChecksum(t *testing.T) {
	p := NewParser()

	line := "N10 G1 X1"
	sum := 0
	for i := 0; i < len(line); i++ {
		sum ^= int(line[i])
	}

	ok := line + "*" + itoa(sum)
	cmd, err := p.ParseLine(ok)
	if err != nil {
		t.Fatalf("unexpected error on valid checksum: %v", err)
	}
	if cmd.LineNumber != 10 {
		t.Fatalf("expected line number 10, got %d", cmd.LineNumber)
	}

	bad := line + "*" + itoa(sum+1)
	if _, err := p.ParseLine(bad); err != ErrChecksumMismatch {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestHasAndGetParameter(t *testing.T) {
	p := NewParser()
	cmd, _ := p.ParseLine("G1 X5")
	if !cmd.HasParameter('X') {
		t.Error("expected HasParameter('X') to be true")
	}
	if cmd.HasParameter('Z') {
		t.Error("expected HasParameter('Z') to be false")
	}
	if v := cmd.GetParameter('Z', 99); v != 99 {
		t.Errorf("expected default 99 for missing Z, got %v", v)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
