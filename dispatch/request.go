package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request describes one call to the REST API.
type Request struct {
	// Action names the operation in camelCase, e.g. "ideaVoteUpdate". It is
	// used in user facing messages, logs and metrics.
	Action string
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON encoded by the transport when not nil.
	Body any
	// ReadOnly marks requests that do not change server state even though
	// their method is not GET, such as searches taking a JSON body.
	ReadOnly bool
}

// IsRead reports whether the request is safe to cache and coalesce.
func (r *Request) IsRead() bool {
	return r.ReadOnly || r.Method == http.MethodGet || r.Method == http.MethodHead
}

// Clone returns a copy with its own header and query maps.
func (r *Request) Clone() *Request {
	out := *r
	out.Header = r.Header.Clone()
	if r.Query != nil {
		out.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	return &out
}

// Response is a transport response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Body) == 0 || v == nil {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Transport performs requests. It returns a *ResponseError for responses
// outside the 2xx range and a plain error when no response was received.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f.
func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// ResponseError is a failure that carries a server response.
type ResponseError struct {
	Response *Response
	Err      error
}

func (e *ResponseError) Error() string {
	status := 0
	if e.Response != nil {
		status = e.Response.Status
	}
	if e.Err != nil {
		return fmt.Sprintf("response status %d: %v", status, e.Err)
	}
	return fmt.Sprintf("unexpected response status %d", status)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// CheckStatus returns a *ResponseError for responses outside the 2xx range.
func CheckStatus(resp *Response) error {
	if resp.Status < 200 || resp.Status > 299 {
		return &ResponseError{Response: resp}
	}
	return nil
}
