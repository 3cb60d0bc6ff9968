package protocol

import "net/http"

// Error is a protocol-level error carrying the wire error code and the HTTP
// status it maps to (spec.md §7).
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

func newError(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Validation errors (400).
func ErrInvalidPayload(message string) *Error {
	return newError("INVALID_PAYLOAD", http.StatusBadRequest, message)
}

func ErrUnknownEndpoint(message string) *Error {
	return newError("UNKNOWN_ENDPOINT", http.StatusBadRequest, message)
}

// Envelope errors (401).
func ErrInvalidSignature(message string) *Error {
	return newError("INVALID_SIGNATURE", http.StatusUnauthorized, message)
}

func ErrUnsignedEnvelopeRequired(message string) *Error {
	return newError("UNSIGNED_ENVELOPE_REQUIRED", http.StatusUnauthorized, message)
}

func ErrSourceNodeMismatch(message string) *Error {
	return newError("SOURCE_NODE_MISMATCH", http.StatusUnauthorized, message)
}

func ErrTargetNodeMismatch(message string) *Error {
	return newError("TARGET_NODE_MISMATCH", http.StatusUnauthorized, message)
}

func ErrSourceKeyRIDMismatch(message string) *Error {
	return newError("SOURCE_KEY_RID_MISMATCH", http.StatusUnauthorized, message)
}
