// Package wireformat defines the JSON documents exchanged between the host and
// a guest module through the kube_outbound_http host module. These types are
// the guest-facing ABI and must stay backward compatible.
package wireformat

import (
	"fmt"
	"time"
)

// Error types reported to the guest in ErrorDetail.Type.
const (
	ErrorTypeCapability = "capability"
	ErrorTypeConfig     = "config"
	ErrorTypeNetwork    = "network"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeInternal   = "internal"
)

// ContextWireFormat carries the guest's request context.
type ContextWireFormat struct {
	Deadline  *time.Time `json:"deadline,omitempty"`
	TimeoutMs int64      `json:"timeout_ms,omitempty"`
	RequestID string     `json:"request_id,omitempty"` // For log correlation
	Cancelled bool       `json:"cancelled,omitempty"`  // True if the guest already gave up
}

// HTTPRequestWire is an outbound request from guest to host.
type HTTPRequestWire struct {
	Context ContextWireFormat   `json:"context"`
	Method  string              `json:"method"`
	URL     string              `json:"url"`
	Headers map[string][]string `json:"headers,omitempty"`
	Body    string              `json:"body,omitempty"` // base64
}

// HTTPResponseWire is the host's answer to an HTTPRequestWire.
type HTTPResponseWire struct {
	Headers       map[string][]string `json:"headers,omitempty"`
	Error         *ErrorDetail        `json:"error,omitempty"`
	Body          string              `json:"body,omitempty"` // base64
	StatusCode    int                 `json:"status_code"`
	BodyTruncated bool                `json:"body_truncated,omitempty"`
}

// ErrorDetail is a structured error returned to the guest instead of a trap.
type ErrorDetail struct {
	Wrapped *ErrorDetail `json:"wrapped,omitempty"`
	Message string       `json:"message"`
	Type    string       `json:"type"`           // one of the ErrorType constants
	Code    string       `json:"code,omitempty"` // "ECONNREFUSED", "ETIMEDOUT", etc.
}

// Error implements the error interface for ErrorDetail.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Type != "" && e.Type != ErrorTypeInternal {
		msg = fmt.Sprintf("%s: %s", e.Type, msg)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped.Error())
	}
	return msg
}
