package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Request describes one outbound API call. Path is resolved against the
// gateway's base URL and may carry a query string.
type Request struct {
	Method string
	Path   string
	// Body is sent as-is when it is []byte, json.RawMessage or string and
	// JSON-encoded otherwise.
	Body   any
	Header http.Header
	// Public requests carry no bearer token and skip refresh handling.
	Public bool
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

type Outcome int

const (
	// OutcomeOK carries whatever response the backend returned, including
	// non-2xx statuses and the response of a post-refresh retry.
	OutcomeOK Outcome = iota
	// OutcomeUnauthenticated means the session could not be recovered and
	// the stored credentials were cleared.
	OutcomeUnauthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Result struct {
	Outcome Outcome
	// Response is the original 401 when Outcome is OutcomeUnauthenticated.
	Response *Response
	// Refreshed is set when Response comes from the retry after a refresh.
	Refreshed bool
	// LoginRoute is where the caller should send the user on
	// OutcomeUnauthenticated.
	LoginRoute string
}

func (r Result) Unauthenticated() bool {
	return r.Outcome == OutcomeUnauthenticated
}

// TransportError reports a call that produced no HTTP response at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
