// Package lineproto implements the ASCII command/response line
// protocol of spec.md §6, distinct from the teacher's protocol
// package (Klipper's binary VLQ/CRC16 MCU link, kept wholesale in
// protocol/ for host/mcu). Built in the teacher's manner: a small
// scanner state machine like machine/gcode/parser.go's byte-at-a-time
// parseInt/parseFloat, rather than a general-purpose parser library.
package lineproto

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Control bytes are real-time single-byte commands that act
// immediately, out of band from the line-buffered G-code stream —
// grbl's convention, reused here because it is already what a G-code
// sender expects to be able to fire at any time, including mid-line.
const (
	ControlFeedHold  byte = '!'
	ControlResume    byte = '~'
	ControlReset     byte = '%'
	ControlSoftReset byte = 0x18 // ^X
)

// IsControlByte reports whether b is one of the real-time control
// bytes rather than ordinary line content.
func IsControlByte(b byte) bool {
	switch b {
	case ControlFeedHold, ControlResume, ControlReset, ControlSoftReset:
		return true
	default:
		return false
	}
}

// LineKind classifies a decoded input line.
type LineKind int

const (
	LineGCode LineKind = iota
	LineConfigSet
	LineConfigQuery
	LineJSON
	LineEmpty
)

// Line is one decoded unit of input, ready to hand to the controller.
type Line struct {
	Kind LineKind

	GCode string // LineGCode: the raw (trimmed) G-code text

	ConfigToken string      // LineConfigSet/LineConfigQuery: the $-token name
	ConfigValue string      // LineConfigSet: the raw value text

	JSON map[string]interface{} // LineJSON: decoded object
}

// Scanner splits a byte stream into lines, pulling out real-time
// control bytes as they're seen rather than waiting for a newline.
type Scanner struct {
	r        *bufio.Reader
	onControl func(byte)
}

// NewScanner wraps r. onControl, if non-nil, is invoked synchronously
// for every control byte encountered while reading, before the line
// containing (or following) it is returned.
func NewScanner(r *bufio.Reader, onControl func(byte)) *Scanner {
	return &Scanner{r: r, onControl: onControl}
}

// ReadLine returns the next newline-terminated line with control
// bytes stripped out (and reported via onControl), or an error from
// the underlying reader (including io.EOF).
func (s *Scanner) ReadLine() (string, error) {
	var sb strings.Builder
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return sb.String(), err
		}
		if IsControlByte(b) {
			if s.onControl != nil {
				s.onControl(b)
			}
			continue
		}
		if b == '\n' {
			return strings.TrimRight(sb.String(), "\r"), nil
		}
		sb.WriteByte(b)
	}
}

// Decode classifies one already-line-split, already-trimmed input
// line.
func Decode(raw string) (Line, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Line{Kind: LineEmpty}, nil
	}

	switch line[0] {
	case '{':
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			return Line{}, fmt.Errorf("lineproto: invalid JSON line: %w", err)
		}
		return Line{Kind: LineJSON, JSON: obj}, nil

	case '$':
		body := line[1:]
		if eq := strings.IndexByte(body, '='); eq >= 0 {
			return Line{
				Kind:        LineConfigSet,
				ConfigToken: strings.TrimSpace(body[:eq]),
				ConfigValue: strings.TrimSpace(body[eq+1:]),
			}, nil
		}
		return Line{Kind: LineConfigQuery, ConfigToken: strings.TrimSpace(body)}, nil

	default:
		return Line{Kind: LineGCode, GCode: line}, nil
	}
}

// ConfigFloat parses a LineConfigSet value as a float64.
func (l Line) ConfigFloat() (float64, error) {
	return strconv.ParseFloat(l.ConfigValue, 64)
}

// ResponseFormat selects how Encoder renders outbound responses.
type ResponseFormat int

const (
	FormatText ResponseFormat = iota
	FormatJSON
)

// Response is one outbound reply: either a plain "ok"/error text line,
// or a status-report field set, or both.
type Response struct {
	OK     bool
	Error  string
	Report map[string]float64 // status-report field list, §6
}

// Encoder renders Responses in the negotiated format. A sender selects
// JSON mode with "$json=1" (wired by the caller into a LineConfigSet
// handler); text mode is the default so a human typing into a terminal
// gets grbl-style "ok"/"error:<code>" lines.
type Encoder struct {
	Format ResponseFormat
}

// Encode renders one response line (without trailing newline).
func (e Encoder) Encode(r Response) string {
	if e.Format == FormatJSON {
		return e.encodeJSON(r)
	}
	return e.encodeText(r)
}

func (e Encoder) encodeText(r Response) string {
	var sb strings.Builder
	if len(r.Report) > 0 {
		sb.WriteByte('<')
		first := true
		for k, v := range r.Report {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			fmt.Fprintf(&sb, "%s:%g", k, v)
		}
		sb.WriteByte('>')
	}
	if r.Error != "" {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "error:%s", r.Error)
		return sb.String()
	}
	if sb.Len() > 0 {
		sb.WriteByte('\n')
	}
	sb.WriteString("ok")
	return sb.String()
}

// jsonResponse mirrors spec.md §6's "{"r":{...},"f":[...]}" envelope:
// "r" carries the result/error, "f" carries the status-report fields.
type jsonResponse struct {
	R map[string]interface{} `json:"r"`
	F map[string]float64     `json:"f,omitempty"`
}

func (e Encoder) encodeJSON(r Response) string {
	resp := jsonResponse{R: map[string]interface{}{}, F: r.Report}
	if r.Error != "" {
		resp.R["error"] = r.Error
	} else {
		resp.R["ok"] = true
	}
	buf, err := json.Marshal(resp)
	if err != nil {
		return `{"r":{"error":"encode failure"}}`
	}
	return string(buf)
}
