// Package errors provides standardized error codes for the broker.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (protocol, auth, session, registry, server, storage)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by connected peers for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
// These are stable identifiers that clients and devices can rely on.
const (
	// Protocol domain - message parsing and validation errors
	CodeProtocolInvalidJSON  = "protocol.invalid_json"  // Payload is not valid JSON
	CodeProtocolUnknownType  = "protocol.unknown_type"  // Unrecognized type tag
	CodeProtocolMissingField = "protocol.missing_field" // Required field absent
	CodeProtocolOutOfRange   = "protocol.out_of_range"  // Numeric field outside allowed bounds
	CodeProtocolBadField     = "protocol.bad_field"     // Field has the wrong shape or value

	// Auth domain - authentication and authorization
	CodeAuthRequired = "auth.required" // Credentials or session required
	CodeAuthInvalid  = "auth.invalid"  // Invalid credentials or session token
	CodeAuthExpired  = "auth.expired"  // Session token expired

	// Session domain - session store errors
	CodeSessionRateLimited = "session.rate_limited" // Too many login attempts

	// Registry domain - connection registry conditions
	CodeRegistryNoDevice = "registry.no_device" // Command sent with no device connected

	// Server domain - WebSocket and network errors
	CodeServerUpgradeFailed = "server.upgrade_failed" // WebSocket upgrade failed
	CodeServerSendFailed    = "server.send_failed"    // Failed to deliver a message
	CodeServerConnLost      = "server.connection_lost" // Connection unexpectedly closed

	// Storage domain - audit log persistence
	CodeStorageOpenFailed = "storage.open_failed" // Database open failed
	CodeStorageSaveFailed = "storage.save_failed" // Failed to save data

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "auth.invalid")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// If the error is a CodedError, returns its code.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to peer responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}
