// Package protocol defines the JSON messages exchanged between the broker,
// the lock device, and observing clients.
//
// Every message is a JSON object discriminated by a "type" tag (and a
// sub-tag for device statuses and commands). Parsing validates structure
// and numeric bounds up front and returns a ValidationError listing every
// field-level problem, so malformed input never reaches the registry or
// the device.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire type tags. These are stable identifiers shared with the device
// firmware and the client apps.
const (
	// TypeDeviceCommand tags commands sent to the device.
	TypeDeviceCommand = "device.cmd"

	// TypeDeviceStatus tags status reports originating from the device
	// (or synthesized by the broker, e.g. on connect/disconnect).
	TypeDeviceStatus = "device.status"

	// TypeRequestHistory tags a client's request for recent history.
	TypeRequestHistory = "client.request_history"

	// TypeSendCommand tags a client's request to relay a command.
	TypeSendCommand = "client.send_command"

	// TypeResponseHistory tags the broker's history reply to a client.
	TypeResponseHistory = "client.response_history"
)

// Device command kinds. Currently only unlock; the cmd sub-tag leaves room
// for further kinds without changing the envelope.
const (
	CmdUnlock = "unlock"
)

// Device status kinds.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusLastCommand  = "last_command"
)

// Bounds for the unlock duration, enforced at parse time.
const (
	// DefaultUnlockDuration is used when the duration field is absent.
	DefaultUnlockDuration = 5

	// MinUnlockDuration is the shortest permitted unlock, in seconds.
	MinUnlockDuration = 1

	// MaxUnlockDuration is the longest permitted unlock, in seconds.
	MaxUnlockDuration = 30
)

// DefaultHistoryEntries is used when a history request omits max_entries.
const DefaultHistoryEntries = 8

// DeviceMessage is the unit type stored in history: either a DeviceStatus
// or a DeviceCommand. The marker method keeps the set closed.
type DeviceMessage interface {
	json.Marshaler
	deviceMessage()
}

// DeviceCommand is a command relayed to the device.
// The only kind today is unlock with a bounded duration.
type DeviceCommand struct {
	// Cmd is the command kind sub-tag. Currently always CmdUnlock.
	Cmd string

	// Duration is how long to hold the latch open, in seconds.
	// Valid range is [MinUnlockDuration, MaxUnlockDuration].
	Duration int
}

func (DeviceCommand) deviceMessage() {}

// MarshalJSON serializes the command in its wire form:
//
//	{"type":"device.cmd","cmd":"unlock","duration":5}
func (c DeviceCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		Cmd      string `json:"cmd"`
		Duration int    `json:"duration"`
	}{
		Type:     TypeDeviceCommand,
		Cmd:      c.Cmd,
		Duration: c.Duration,
	})
}

// DeviceStatus is the device's most recently known state as perceived by
// the broker. The Status sub-tag selects which optional fields apply:
// RoughTime is only meaningful for StatusConnected, LastCommand only for
// StatusLastCommand.
type DeviceStatus struct {
	// Status is one of StatusConnected, StatusDisconnected, StatusLastCommand.
	Status string

	// RoughTime is the device's own clock reading (seconds since boot or
	// epoch, device-defined). Only reported on connected statuses; nil
	// when the device did not include it.
	RoughTime *int64

	// LastCommand is the command echoed back on last_command statuses.
	LastCommand *DeviceCommand
}

func (DeviceStatus) deviceMessage() {}

// Connected returns a connected status without a rough_time reading.
func Connected() DeviceStatus {
	return DeviceStatus{Status: StatusConnected}
}

// Disconnected returns a disconnected status.
func Disconnected() DeviceStatus {
	return DeviceStatus{Status: StatusDisconnected}
}

// LastCommand returns a last_command status echoing the given command.
func LastCommand(cmd DeviceCommand) DeviceStatus {
	return DeviceStatus{Status: StatusLastCommand, LastCommand: &cmd}
}

// MarshalJSON serializes the status in its wire form. Each status kind has
// its own field set, mirroring what the device firmware produces:
//
//	{"type":"device.status","status":"disconnected"}
//	{"type":"device.status","status":"connected","rough_time":173}
//	{"type":"device.status","status":"last_command","last_command":{...}}
func (s DeviceStatus) MarshalJSON() ([]byte, error) {
	switch s.Status {
	case StatusConnected:
		return json.Marshal(struct {
			Type      string `json:"type"`
			Status    string `json:"status"`
			RoughTime *int64 `json:"rough_time"`
		}{
			Type:      TypeDeviceStatus,
			Status:    s.Status,
			RoughTime: s.RoughTime,
		})
	case StatusLastCommand:
		return json.Marshal(struct {
			Type        string         `json:"type"`
			Status      string         `json:"status"`
			LastCommand *DeviceCommand `json:"last_command"`
		}{
			Type:        TypeDeviceStatus,
			Status:      s.Status,
			LastCommand: s.LastCommand,
		})
	default:
		// disconnected (and any future bare status)
		return json.Marshal(struct {
			Type   string `json:"type"`
			Status string `json:"status"`
		}{
			Type:   TypeDeviceStatus,
			Status: s.Status,
		})
	}
}

// ClientRequest is a request from an observing client: either a history
// request or a command relay. The marker method keeps the set closed so
// handlers can switch exhaustively.
type ClientRequest interface {
	clientRequest()
}

// RequestHistory asks the broker for the most recent history entries.
type RequestHistory struct {
	// MaxEntries is the maximum number of entries to return.
	// Defaults to DefaultHistoryEntries when absent from the wire.
	MaxEntries int
}

func (RequestHistory) clientRequest() {}

// SendCommand asks the broker to relay a command to the device.
type SendCommand struct {
	Command DeviceCommand
}

func (SendCommand) clientRequest() {}

// HistoryEntry is one record in the broker's history log: a timestamp and
// the message observed at that time. On the wire it is a two-element array
// [timestamp, message], matching what the client apps consume.
type HistoryEntry struct {
	At      time.Time
	Message DeviceMessage
}

// MarshalJSON serializes the entry as [timestamp, message].
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.At, e.Message})
}

// ResponseHistory is the broker's reply to a RequestHistory, carrying
// entries in chronologically ascending order (oldest first).
type ResponseHistory struct {
	History []HistoryEntry
}

// MarshalJSON serializes the reply in its wire form:
//
//	{"type":"client.response_history","history":[[ts,msg],...]}
//
// An empty history serializes as [] rather than null.
func (r ResponseHistory) MarshalJSON() ([]byte, error) {
	history := r.History
	if history == nil {
		history = []HistoryEntry{}
	}
	return json.Marshal(struct {
		Type    string         `json:"type"`
		History []HistoryEntry `json:"history"`
	}{
		Type:    TypeResponseHistory,
		History: history,
	})
}

// ErrorFrame is the structured error object sent back to a peer whose
// payload failed validation. The connection stays open; this frame is
// informational.
type ErrorFrame struct {
	Error  string       `json:"error"`
	Errors []FieldError `json:"errors"`
}

// NewErrorFrame builds the standard parse-failure frame from a
// ValidationError.
func NewErrorFrame(ve *ValidationError) ErrorFrame {
	return ErrorFrame{
		Error:  "unable to parse request",
		Errors: ve.Problems,
	}
}

// MustMarshal serializes a message, panicking on failure. All protocol
// types marshal from plain fields, so a failure here is a programming
// error, not an input error.
func MustMarshal(v json.Marshaler) []byte {
	data, err := v.MarshalJSON()
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal failed: %v", err))
	}
	return data
}
