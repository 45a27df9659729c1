package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/doorward/broker/internal/errors"
)

// FieldError describes a single problem with an inbound payload field.
// Field is a dotted path from the payload root (e.g. "command.duration");
// empty for problems with the payload as a whole.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError is the result of a failed parse. It collects every
// field-level problem found rather than stopping at the first, so a peer
// can fix its payload in one round trip.
type ValidationError struct {
	Problems []FieldError
}

// Error implements the error interface with a compact summary.
func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		if p.Field == "" {
			parts[i] = p.Message
		} else {
			parts[i] = fmt.Sprintf("%s: %s", p.Field, p.Message)
		}
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// invalidJSON builds the ValidationError for a payload that is not valid
// JSON or whose top-level shape is wrong. A type mismatch on a known field
// is attributed to that field; anything else is a payload-level problem.
func invalidJSON(err error, prefix string) *ValidationError {
	if typeErr, ok := err.(*json.UnmarshalTypeError); ok && typeErr.Field != "" {
		return &ValidationError{Problems: []FieldError{{
			Field:   prefix + typeErr.Field,
			Code:    apperrors.CodeProtocolBadField,
			Message: fmt.Sprintf("expected %s", typeErr.Type),
		}}}
	}
	return &ValidationError{Problems: []FieldError{{
		Code:    apperrors.CodeProtocolInvalidJSON,
		Message: "payload is not a valid JSON object",
	}}}
}

// ParseDeviceCommand parses and validates a device command payload.
// The "type" and "cmd" tags may be omitted (they default to device.cmd
// and unlock) but must match when present. Duration defaults to
// DefaultUnlockDuration and must lie in [MinUnlockDuration, MaxUnlockDuration].
func ParseDeviceCommand(data []byte) (DeviceCommand, *ValidationError) {
	cmd, problems := parseCommandFields(data, "")
	if len(problems) > 0 {
		return DeviceCommand{}, &ValidationError{Problems: problems}
	}
	return cmd, nil
}

// parseCommandFields does the command validation shared by
// ParseDeviceCommand and the nested command inside client.send_command and
// last_command statuses. The prefix is prepended to field paths so nested
// problems read as "command.duration" rather than "duration".
func parseCommandFields(data []byte, prefix string) (DeviceCommand, []FieldError) {
	var raw struct {
		Type     *string `json:"type"`
		Cmd      *string `json:"cmd"`
		Duration *int    `json:"duration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return DeviceCommand{}, invalidJSON(err, prefix).Problems
	}

	var problems []FieldError

	if raw.Type != nil && *raw.Type != TypeDeviceCommand {
		problems = append(problems, FieldError{
			Field:   prefix + "type",
			Code:    apperrors.CodeProtocolUnknownType,
			Message: fmt.Sprintf("expected %q", TypeDeviceCommand),
		})
	}
	if raw.Cmd != nil && *raw.Cmd != CmdUnlock {
		problems = append(problems, FieldError{
			Field:   prefix + "cmd",
			Code:    apperrors.CodeProtocolUnknownType,
			Message: fmt.Sprintf("unknown command %q", *raw.Cmd),
		})
	}

	duration := DefaultUnlockDuration
	if raw.Duration != nil {
		duration = *raw.Duration
		if duration < MinUnlockDuration || duration > MaxUnlockDuration {
			problems = append(problems, FieldError{
				Field:   prefix + "duration",
				Code:    apperrors.CodeProtocolOutOfRange,
				Message: fmt.Sprintf("duration must be between %d and %d", MinUnlockDuration, MaxUnlockDuration),
			})
		}
	}

	if len(problems) > 0 {
		return DeviceCommand{}, problems
	}
	return DeviceCommand{Cmd: CmdUnlock, Duration: duration}, nil
}

// ParseDeviceStatus parses and validates a status report from the device.
// Discrimination is on the "status" sub-tag; the "type" tag may be omitted
// but must be device.status when present.
func ParseDeviceStatus(data []byte) (DeviceStatus, *ValidationError) {
	var raw struct {
		Type        *string         `json:"type"`
		Status      *string         `json:"status"`
		RoughTime   *int64          `json:"rough_time"`
		LastCommand json.RawMessage `json:"last_command"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return DeviceStatus{}, invalidJSON(err, "")
	}

	var problems []FieldError

	if raw.Type != nil && *raw.Type != TypeDeviceStatus {
		problems = append(problems, FieldError{
			Field:   "type",
			Code:    apperrors.CodeProtocolUnknownType,
			Message: fmt.Sprintf("expected %q", TypeDeviceStatus),
		})
	}

	if raw.Status == nil {
		problems = append(problems, FieldError{
			Field:   "status",
			Code:    apperrors.CodeProtocolMissingField,
			Message: "status is required",
		})
		return DeviceStatus{}, &ValidationError{Problems: problems}
	}

	status := DeviceStatus{Status: *raw.Status}

	switch *raw.Status {
	case StatusDisconnected:
		// No additional fields.

	case StatusConnected:
		status.RoughTime = raw.RoughTime

	case StatusLastCommand:
		if raw.LastCommand == nil {
			problems = append(problems, FieldError{
				Field:   "last_command",
				Code:    apperrors.CodeProtocolMissingField,
				Message: "last_command is required",
			})
			break
		}
		cmd, cmdProblems := parseCommandFields(raw.LastCommand, "last_command.")
		if len(cmdProblems) > 0 {
			problems = append(problems, cmdProblems...)
			break
		}
		status.LastCommand = &cmd

	default:
		problems = append(problems, FieldError{
			Field:   "status",
			Code:    apperrors.CodeProtocolUnknownType,
			Message: fmt.Sprintf("unknown status %q", *raw.Status),
		})
	}

	if len(problems) > 0 {
		return DeviceStatus{}, &ValidationError{Problems: problems}
	}
	return status, nil
}

// ParseClientRequest parses and validates a request from an observing
// client. Discrimination is on the "type" tag, which is required.
func ParseClientRequest(data []byte) (ClientRequest, *ValidationError) {
	var raw struct {
		Type       *string         `json:"type"`
		MaxEntries *int            `json:"max_entries"`
		Command    json.RawMessage `json:"command"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, invalidJSON(err, "")
	}

	if raw.Type == nil {
		return nil, &ValidationError{Problems: []FieldError{{
			Field:   "type",
			Code:    apperrors.CodeProtocolMissingField,
			Message: "type is required",
		}}}
	}

	switch *raw.Type {
	case TypeRequestHistory:
		req := RequestHistory{MaxEntries: DefaultHistoryEntries}
		if raw.MaxEntries != nil {
			req.MaxEntries = *raw.MaxEntries
		}
		return req, nil

	case TypeSendCommand:
		if raw.Command == nil {
			return nil, &ValidationError{Problems: []FieldError{{
				Field:   "command",
				Code:    apperrors.CodeProtocolMissingField,
				Message: "command is required",
			}}}
		}
		cmd, problems := parseCommandFields(raw.Command, "command.")
		if len(problems) > 0 {
			return nil, &ValidationError{Problems: problems}
		}
		return SendCommand{Command: cmd}, nil

	default:
		return nil, &ValidationError{Problems: []FieldError{{
			Field:   "type",
			Code:    apperrors.CodeProtocolUnknownType,
			Message: fmt.Sprintf("unknown request type %q", *raw.Type),
		}}}
	}
}
