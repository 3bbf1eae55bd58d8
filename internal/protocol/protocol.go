// Package protocol defines the JSON-RPC 2.0 envelopes and MCP message
// types exchanged with clients. Every transport parses inbound bytes into
// a Message and serializes outbound traffic from the Request, Response,
// and Notification shapes defined here.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version sent on every envelope.
const Version = "2.0"

// LatestProtocolVersion is the MCP revision this server speaks.
const LatestProtocolVersion = "2025-06-18"

// SupportedProtocolVersions lists MCP revisions accepted from clients,
// newest first.
var SupportedProtocolVersions = []string{
	"2025-06-18",
	"2025-03-26",
	"2024-11-05",
}

// JSON-RPC error codes. JSON-RPC 2.0 reserves the -32000 range; -32002
// is the MCP resource-not-found code.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeResourceNotFound = -32002
)

// Message is the inbound wire union. A single JSON object is decoded into
// it and then classified by field presence: a request carries method and
// id, a notification carries method without id, and a response carries
// result or error. Params and Result stay raw so handlers can decode them
// into their own typed structs.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && m.ID != nil
}

// IsNotification reports whether the message is fire-and-forget.
// An explicit "id": null counts as absent; null is not a usable id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && m.ID == nil
}

// IsResponse reports whether the message answers an earlier request.
// A literal "result": null decodes to the raw bytes "null", so presence
// detection still works for null results.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// Request is an outbound JSON-RPC request (server to client).
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an outbound JSON-RPC response. ID has no omitempty: error
// responses to unparseable requests carry an explicit null id.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Notification is an outbound JSON-RPC notification. It never carries an id.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Error is the JSON-RPC error member.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface so protocol errors can flow
// through normal Go error returns.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds an outbound request envelope.
func NewRequest(id any, method string, params any) *Request {
	return &Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// NewResponse builds a success response. A nil result is sent as an empty
// object so the envelope always carries a result member.
func NewResponse(id any, result any) *Response {
	if result == nil {
		result = map[string]any{}
	}
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse builds an error response. Pass a nil id for errors
// that answer unparseable or malformed requests.
func NewErrorResponse(id any, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

// NewNotification builds an outbound notification envelope.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: Version, Method: method, Params: params}
}
