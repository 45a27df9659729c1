package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	apperrors "github.com/doorward/broker/internal/errors"
)

// TestParseDeviceCommandDefaults verifies absent fields take their defaults.
func TestParseDeviceCommandDefaults(t *testing.T) {
	cmd, verr := ParseDeviceCommand([]byte(`{}`))
	if verr != nil {
		t.Fatalf("parse failed: %v", verr)
	}
	if cmd.Cmd != CmdUnlock {
		t.Errorf("expected cmd %q, got %q", CmdUnlock, cmd.Cmd)
	}
	if cmd.Duration != DefaultUnlockDuration {
		t.Errorf("expected default duration %d, got %d", DefaultUnlockDuration, cmd.Duration)
	}
}

// TestParseDeviceCommandFullForm verifies the fully tagged wire form parses.
func TestParseDeviceCommandFullForm(t *testing.T) {
	cmd, verr := ParseDeviceCommand([]byte(`{"type":"device.cmd","cmd":"unlock","duration":12}`))
	if verr != nil {
		t.Fatalf("parse failed: %v", verr)
	}
	if cmd.Duration != 12 {
		t.Errorf("expected duration 12, got %d", cmd.Duration)
	}
}

// TestParseDeviceCommandDurationBounds verifies out-of-range durations are
// rejected at parse time with an out_of_range field error.
func TestParseDeviceCommandDurationBounds(t *testing.T) {
	for _, duration := range []string{"0", "-1", "31", "1000"} {
		_, verr := ParseDeviceCommand([]byte(`{"duration":` + duration + `}`))
		if verr == nil {
			t.Fatalf("expected validation error for duration %s", duration)
		}
		if len(verr.Problems) != 1 {
			t.Fatalf("expected one problem, got %d", len(verr.Problems))
		}
		p := verr.Problems[0]
		if p.Field != "duration" || p.Code != apperrors.CodeProtocolOutOfRange {
			t.Errorf("duration %s: unexpected problem %+v", duration, p)
		}
	}

	// Boundary values are accepted.
	for _, duration := range []int{MinUnlockDuration, MaxUnlockDuration} {
		data, _ := json.Marshal(map[string]int{"duration": duration})
		if _, verr := ParseDeviceCommand(data); verr != nil {
			t.Errorf("duration %d should be valid: %v", duration, verr)
		}
	}
}

// TestParseDeviceCommandWrongTags verifies mismatched type/cmd tags fail.
func TestParseDeviceCommandWrongTags(t *testing.T) {
	_, verr := ParseDeviceCommand([]byte(`{"type":"device.status","cmd":"lock"}`))
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if len(verr.Problems) != 2 {
		t.Fatalf("expected two problems, got %d: %v", len(verr.Problems), verr)
	}
}

// TestParseDeviceStatusVariants verifies each status kind parses.
func TestParseDeviceStatusVariants(t *testing.T) {
	status, verr := ParseDeviceStatus([]byte(`{"type":"device.status","status":"disconnected"}`))
	if verr != nil {
		t.Fatalf("disconnected parse failed: %v", verr)
	}
	if status.Status != StatusDisconnected {
		t.Errorf("expected disconnected, got %q", status.Status)
	}

	status, verr = ParseDeviceStatus([]byte(`{"status":"connected","rough_time":173}`))
	if verr != nil {
		t.Fatalf("connected parse failed: %v", verr)
	}
	if status.RoughTime == nil || *status.RoughTime != 173 {
		t.Errorf("expected rough_time 173, got %v", status.RoughTime)
	}

	status, verr = ParseDeviceStatus([]byte(`{"status":"connected","rough_time":null}`))
	if verr != nil {
		t.Fatalf("connected null rough_time parse failed: %v", verr)
	}
	if status.RoughTime != nil {
		t.Errorf("expected nil rough_time, got %v", *status.RoughTime)
	}

	status, verr = ParseDeviceStatus([]byte(`{"status":"last_command","last_command":{"cmd":"unlock","duration":7}}`))
	if verr != nil {
		t.Fatalf("last_command parse failed: %v", verr)
	}
	if status.LastCommand == nil || status.LastCommand.Duration != 7 {
		t.Errorf("unexpected last_command: %+v", status.LastCommand)
	}
}

// TestParseDeviceStatusMissingStatus verifies the status sub-tag is required.
func TestParseDeviceStatusMissingStatus(t *testing.T) {
	_, verr := ParseDeviceStatus([]byte(`{"type":"device.status"}`))
	if verr == nil {
		t.Fatal("expected validation error")
	}
	p := verr.Problems[0]
	if p.Field != "status" || p.Code != apperrors.CodeProtocolMissingField {
		t.Errorf("unexpected problem %+v", p)
	}
}

// TestParseDeviceStatusUnknownStatus verifies unknown sub-tags are rejected.
func TestParseDeviceStatusUnknownStatus(t *testing.T) {
	_, verr := ParseDeviceStatus([]byte(`{"status":"rebooting"}`))
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if verr.Problems[0].Code != apperrors.CodeProtocolUnknownType {
		t.Errorf("unexpected problem %+v", verr.Problems[0])
	}
}

// TestParseDeviceStatusNestedCommandError verifies problems inside the
// echoed command carry a dotted field path.
func TestParseDeviceStatusNestedCommandError(t *testing.T) {
	_, verr := ParseDeviceStatus([]byte(`{"status":"last_command","last_command":{"duration":99}}`))
	if verr == nil {
		t.Fatal("expected validation error")
	}
	p := verr.Problems[0]
	if p.Field != "last_command.duration" {
		t.Errorf("expected field last_command.duration, got %q", p.Field)
	}
}

// TestParseDeviceStatusMalformedJSON verifies garbage input yields a
// payload-level problem, never a panic or a raw decoder error.
func TestParseDeviceStatusMalformedJSON(t *testing.T) {
	for _, input := range []string{"not json", "", "[1,2,3]", `"string"`} {
		_, verr := ParseDeviceStatus([]byte(input))
		if verr == nil {
			t.Fatalf("expected validation error for %q", input)
		}
		if verr.Problems[0].Code != apperrors.CodeProtocolInvalidJSON {
			t.Errorf("input %q: unexpected problem %+v", input, verr.Problems[0])
		}
	}
}

// TestParseClientRequestHistory verifies history requests and the
// max_entries default.
func TestParseClientRequestHistory(t *testing.T) {
	req, verr := ParseClientRequest([]byte(`{"type":"client.request_history"}`))
	if verr != nil {
		t.Fatalf("parse failed: %v", verr)
	}
	hist, ok := req.(RequestHistory)
	if !ok {
		t.Fatalf("expected RequestHistory, got %T", req)
	}
	if hist.MaxEntries != DefaultHistoryEntries {
		t.Errorf("expected default max_entries %d, got %d", DefaultHistoryEntries, hist.MaxEntries)
	}

	req, verr = ParseClientRequest([]byte(`{"type":"client.request_history","max_entries":2}`))
	if verr != nil {
		t.Fatalf("parse failed: %v", verr)
	}
	if req.(RequestHistory).MaxEntries != 2 {
		t.Errorf("expected max_entries 2, got %d", req.(RequestHistory).MaxEntries)
	}
}

// TestParseClientRequestSendCommand verifies command relay requests.
func TestParseClientRequestSendCommand(t *testing.T) {
	req, verr := ParseClientRequest([]byte(`{"type":"client.send_command","command":{"type":"device.cmd","cmd":"unlock","duration":5}}`))
	if verr != nil {
		t.Fatalf("parse failed: %v", verr)
	}
	send, ok := req.(SendCommand)
	if !ok {
		t.Fatalf("expected SendCommand, got %T", req)
	}
	if send.Command.Duration != 5 {
		t.Errorf("expected duration 5, got %d", send.Command.Duration)
	}

	// Missing command is a field error.
	_, verr = ParseClientRequest([]byte(`{"type":"client.send_command"}`))
	if verr == nil {
		t.Fatal("expected validation error for missing command")
	}
	if verr.Problems[0].Field != "command" {
		t.Errorf("unexpected problem %+v", verr.Problems[0])
	}

	// Out-of-range duration inside the command carries a dotted path.
	_, verr = ParseClientRequest([]byte(`{"type":"client.send_command","command":{"duration":31}}`))
	if verr == nil {
		t.Fatal("expected validation error for bad duration")
	}
	if verr.Problems[0].Field != "command.duration" {
		t.Errorf("expected field command.duration, got %q", verr.Problems[0].Field)
	}
}

// TestParseClientRequestUnknownType verifies unknown request types fail.
func TestParseClientRequestUnknownType(t *testing.T) {
	_, verr := ParseClientRequest([]byte(`{"type":"client.reboot"}`))
	if verr == nil {
		t.Fatal("expected validation error")
	}
	if verr.Problems[0].Code != apperrors.CodeProtocolUnknownType {
		t.Errorf("unexpected problem %+v", verr.Problems[0])
	}

	_, verr = ParseClientRequest([]byte(`{"max_entries":3}`))
	if verr == nil {
		t.Fatal("expected validation error for missing type")
	}
	if verr.Problems[0].Code != apperrors.CodeProtocolMissingField {
		t.Errorf("unexpected problem %+v", verr.Problems[0])
	}
}

// TestMarshalDeviceStatusWireForms verifies each status serializes to its
// exact wire shape.
func TestMarshalDeviceStatusWireForms(t *testing.T) {
	cases := []struct {
		status DeviceStatus
		want   string
	}{
		{Disconnected(), `{"type":"device.status","status":"disconnected"}`},
		{Connected(), `{"type":"device.status","status":"connected","rough_time":null}`},
		{LastCommand(DeviceCommand{Cmd: CmdUnlock, Duration: 5}),
			`{"type":"device.status","status":"last_command","last_command":{"type":"device.cmd","cmd":"unlock","duration":5}}`},
	}
	for _, tc := range cases {
		data, err := json.Marshal(tc.status)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(data) != tc.want {
			t.Errorf("status %q:\n got %s\nwant %s", tc.status.Status, data, tc.want)
		}
	}

	rough := int64(99)
	data, _ := json.Marshal(DeviceStatus{Status: StatusConnected, RoughTime: &rough})
	if !strings.Contains(string(data), `"rough_time":99`) {
		t.Errorf("expected rough_time 99 in %s", data)
	}
}

// TestMarshalHistoryEntry verifies entries serialize as [timestamp, message]
// pairs and that the timestamp round-trips.
func TestMarshalHistoryEntry(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	entry := HistoryEntry{At: at, Message: Disconnected()}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded []json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected a two-element array, got %d elements", len(decoded))
	}

	var ts time.Time
	if err := json.Unmarshal(decoded[0], &ts); err != nil {
		t.Fatalf("timestamp unmarshal failed: %v", err)
	}
	if !ts.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, ts)
	}

	status, verr := ParseDeviceStatus(decoded[1])
	if verr != nil {
		t.Fatalf("message reparse failed: %v", verr)
	}
	if status.Status != StatusDisconnected {
		t.Errorf("expected disconnected message, got %q", status.Status)
	}
}

// TestMarshalResponseHistory verifies the reply envelope and that an empty
// history serializes as [] rather than null.
func TestMarshalResponseHistory(t *testing.T) {
	data, err := json.Marshal(ResponseHistory{})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"type":"client.response_history","history":[]}` {
		t.Errorf("unexpected empty reply: %s", data)
	}

	reply := ResponseHistory{History: []HistoryEntry{
		{At: time.Unix(100, 0).UTC(), Message: Connected()},
	}}
	data, err = json.Marshal(reply)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"type":"client.response_history","history":[[`) {
		t.Errorf("unexpected reply shape: %s", data)
	}
}

// TestErrorFrameShape verifies the parse-failure frame matches the wire
// contract consumed by the device firmware and client apps.
func TestErrorFrameShape(t *testing.T) {
	_, verr := ParseDeviceStatus([]byte(`{"status":"bogus"}`))
	if verr == nil {
		t.Fatal("expected validation error")
	}

	data, err := json.Marshal(NewErrorFrame(verr))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var frame struct {
		Error  string       `json:"error"`
		Errors []FieldError `json:"errors"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if frame.Error != "unable to parse request" {
		t.Errorf("unexpected error text %q", frame.Error)
	}
	if len(frame.Errors) != 1 || frame.Errors[0].Field != "status" {
		t.Errorf("unexpected errors list: %+v", frame.Errors)
	}
}
