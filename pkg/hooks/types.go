// Package hooks performs the outbound HTTP calls made by dialog actions.
// Calls are checked against the SSRF guard, authenticated, bounded in time
// and response size, and short-circuited per host when a host keeps
// failing.
package hooks

import (
	"errors"
	"time"
)

// ErrCircuitOpen is returned without calling the host while its circuit
// breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// MaxResponseBytes bounds how much of a response body is read.
const MaxResponseBytes = 1 << 20

// Auth types.
const (
	AuthNone   = ""
	AuthBearer = "bearer"
	AuthHMAC   = "hmac"
)

// Auth describes how a request is authenticated.
type Auth struct {
	Type   string `yaml:"type"   json:"type,omitempty"`   // "bearer", "hmac" or empty
	Secret string `yaml:"secret" json:"secret,omitempty"` // token or HMAC key
}

// Request is one outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Auth    Auth
	// Timeout overrides the executor's default when positive.
	Timeout time.Duration
	// ConversationID tags the events emitted for the call.
	ConversationID string
}

// Response is the outcome of a call that reached the host. Non-2xx
// statuses are responses, not errors.
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
