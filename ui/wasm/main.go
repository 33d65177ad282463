//go:build js && wasm
// +build js,wasm

package main

import (
	"syscall/js"

	"tinygfw/protocol/lineproto"
)

func main() {
	js.Global().Set("tinygfwWasm", js.ValueOf(map[string]interface{}{
		"decodeLine":       js.FuncOf(decodeLineWrapper),
		"isControlByte":    js.FuncOf(isControlByteWrapper),
		"encodeTextOK":     js.FuncOf(encodeTextOKWrapper),
		"encodeTextError":  js.FuncOf(encodeTextErrorWrapper),
		"encodeJSONOK":     js.FuncOf(encodeJSONOKWrapper),
		"encodeJSONError":  js.FuncOf(encodeJSONErrorWrapper),
	}))

	select {}
}

// decodeLineWrapper classifies one line of console input the same way
// the controller would, so a browser-based console preview can show
// "this will be parsed as G-code / a $-token / JSON" before sending.
// Args: line (string)
// Returns: {kind: string, gcode, token, value: string, json: object, error: string}
func decodeLineWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeDecodeResult(lineproto.Line{}, "missing line argument")
	}
	line, err := lineproto.Decode(args[0].String())
	if err != nil {
		return makeDecodeResult(lineproto.Line{}, err.Error())
	}
	return makeDecodeResult(line, "")
}

func makeDecodeResult(line lineproto.Line, errMsg string) js.Value {
	result := map[string]interface{}{
		"kind":  kindName(line.Kind),
		"gcode": line.GCode,
		"token": line.ConfigToken,
		"value": line.ConfigValue,
	}
	if line.JSON != nil {
		obj := make(map[string]interface{}, len(line.JSON))
		for k, v := range line.JSON {
			obj[k] = v
		}
		result["json"] = obj
	}
	if errMsg != "" {
		result["error"] = errMsg
	}
	return js.ValueOf(result)
}

func kindName(k lineproto.LineKind) string {
	switch k {
	case lineproto.LineGCode:
		return "gcode"
	case lineproto.LineConfigSet:
		return "config_set"
	case lineproto.LineConfigQuery:
		return "config_query"
	case lineproto.LineJSON:
		return "json"
	default:
		return "empty"
	}
}

// isControlByteWrapper reports whether a character code is a real-time
// control byte (!, ~, %, ^X).
// Args: code (number)
func isControlByteWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(false)
	}
	return js.ValueOf(lineproto.IsControlByte(byte(args[0].Int())))
}

func encodeTextOKWrapper(this js.Value, args []js.Value) interface{} {
	enc := lineproto.Encoder{Format: lineproto.FormatText}
	return js.ValueOf(enc.Encode(lineproto.Response{OK: true}))
}

// Args: message (string)
func encodeTextErrorWrapper(this js.Value, args []js.Value) interface{} {
	msg := ""
	if len(args) > 0 {
		msg = args[0].String()
	}
	enc := lineproto.Encoder{Format: lineproto.FormatText}
	return js.ValueOf(enc.Encode(lineproto.Response{Error: msg}))
}

func encodeJSONOKWrapper(this js.Value, args []js.Value) interface{} {
	enc := lineproto.Encoder{Format: lineproto.FormatJSON}
	return js.ValueOf(enc.Encode(lineproto.Response{OK: true}))
}

// Args: message (string)
func encodeJSONErrorWrapper(this js.Value, args []js.Value) interface{} {
	msg := ""
	if len(args) > 0 {
		msg = args[0].String()
	}
	enc := lineproto.Encoder{Format: lineproto.FormatJSON}
	return js.ValueOf(enc.Encode(lineproto.Response{Error: msg}))
}
