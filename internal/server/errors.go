package server

import (
	"errors"

	"github.com/ArcadeAI/arcade-mcp-go/internal/protocol"
)

// Sentinel errors for request handling. Handlers wrap these with %w so
// the error middleware can map them onto JSON-RPC codes.
var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("duplicate")
	ErrValidation       = errors.New("validation failed")
	ErrTool             = errors.New("tool error")
	ErrResource         = errors.New("resource error")
	ErrResourceNotFound = errors.New("resource not found")
	ErrPrompt           = errors.New("prompt error")
	ErrAuthorization    = errors.New("authorization error")
	ErrSession          = errors.New("session error")
	ErrProtocol         = errors.New("protocol error")
	ErrConfiguration    = errors.New("configuration error")
	ErrTimeout          = errors.New("timed out")
	ErrDisabled         = errors.New("disabled")
	ErrTransport        = errors.New("transport error")
)

// mapError converts an error into a JSON-RPC error. Errors outside the
// taxonomy become -32603; with mask set their detail is replaced by a
// generic message so internals never leak to clients.
func mapError(err error, mask bool) *protocol.Error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return perr
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return &protocol.Error{Code: protocol.CodeMethodNotFound, Message: err.Error()}
	case errors.Is(err, ErrResourceNotFound):
		return &protocol.Error{Code: protocol.CodeResourceNotFound, Message: err.Error()}
	case errors.Is(err, ErrValidation):
		return &protocol.Error{Code: protocol.CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrTool), errors.Is(err, ErrResource),
		errors.Is(err, ErrPrompt), errors.Is(err, ErrAuthorization), errors.Is(err, ErrSession),
		errors.Is(err, ErrProtocol), errors.Is(err, ErrConfiguration), errors.Is(err, ErrTimeout),
		errors.Is(err, ErrDisabled), errors.Is(err, ErrTransport):
		return &protocol.Error{Code: protocol.CodeInternalError, Message: err.Error()}
	default:
		msg := err.Error()
		if mask {
			msg = "Internal server error"
		}
		return &protocol.Error{Code: protocol.CodeInternalError, Message: msg}
	}
}
