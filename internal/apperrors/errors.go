// Package apperrors defines the bridge's error taxonomy: the nine semantic
// kinds from the spec, their MCP JSON-RPC numeric codes, and a structured
// error type carrying enough context for a tool-call error response.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a semantic error category.
type Kind string

const (
	KindInvalidParams    Kind = "InvalidParams"
	KindMethodNotFound   Kind = "MethodNotFound"
	KindInvalidState     Kind = "InvalidState"
	KindTimeout          Kind = "Timeout"
	KindDapError         Kind = "DapError"
	KindTransportError   Kind = "TransportError"
	KindBuildError       Kind = "BuildError"
	KindAdapterSpawnError Kind = "AdapterSpawnError"
	KindNotFound         Kind = "NotFound"
)

// code maps each Kind to its MCP JSON-RPC error code.
var code = map[Kind]int{
	KindInvalidParams:     -32602,
	KindMethodNotFound:    -32601,
	KindInvalidState:      -32005,
	KindTimeout:           -32001,
	KindDapError:          -32002,
	KindTransportError:    -32003,
	KindBuildError:        -32004,
	KindAdapterSpawnError: -32006,
	KindNotFound:          -32000,
}

// Error is the structured error type propagated from the session/dapclient
// layers up through the MCP tool dispatch boundary.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]interface{}
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the MCP JSON-RPC error code for this error's Kind.
func (e *Error) Code() int { return code[e.Kind] }

// WithData attaches a detail key/value pair, returning the same error for
// chaining.
func (e *Error) WithData(key string, value interface{}) *Error {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// InvalidState builds the InvalidState error the spec requires to name
// both the expected state set and the observed state.
func InvalidState(op string, expected []string, actual string) *Error {
	return New(KindInvalidState, "%s requires state in %v, session is %s", op, expected, actual).
		WithData("expected", expected).
		WithData("actual", actual)
}

func NotFound(sessionID string) *Error {
	return New(KindNotFound, "unknown session %q", sessionID).WithData("sessionId", sessionID)
}

func MissingParam(name string) *Error {
	return New(KindInvalidParams, "missing required parameter %q", name)
}

func InvalidParam(name, reason string) *Error {
	return New(KindInvalidParams, "invalid parameter %q: %s", name, reason)
}

func MethodNotFound(method string) *Error {
	return New(KindMethodNotFound, "unknown method %q", method)
}

func Timeout(op string, budget string) *Error {
	return New(KindTimeout, "%s exceeded its %s deadline", op, budget)
}

func DapFailure(op, adapterMessage string) *Error {
	return New(KindDapError, "%s failed: %s", op, adapterMessage)
}

func Transport(cause error) *Error {
	return Wrap(KindTransportError, cause, "transport I/O failure")
}

func Build(stderr string) *Error {
	return New(KindBuildError, "compilation failed").WithData("stderr", stderr)
}

func AdapterSpawn(language string, cause error) *Error {
	return Wrap(KindAdapterSpawnError, cause, "failed to spawn %s debug adapter", language)
}

// As is a thin re-export of errors.As so callers in this module don't need
// to also import the standard errors package for the common case.
func As(err error, target any) bool { return errors.As(err, target) }
