package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
)

// User facing messages with fixed wording.
const (
	MessageForbidden            = "Action not allowed, please refresh and try again"
	MessageNotImplemented       = "This feature is not yet available"
	MessageUnknown              = "Unknown error occurred, please try again"
	MessageChallengeUnavailable = "Failed to show captcha challenge"
)

var (
	// ErrNoChallengeHandler marks a challenge that could not be presented.
	ErrNoChallengeHandler = errors.New("dispatch: no challenge handler registered")
	// ErrChallengeAbandoned marks a challenge the handler did not solve.
	ErrChallengeAbandoned = errors.New("dispatch: challenge abandoned")
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindForbidden            ErrorKind = "forbidden"
	KindNotImplemented       ErrorKind = "not_implemented"
	KindServerMessage        ErrorKind = "server_message"
	KindUnexpectedStatus     ErrorKind = "unexpected_status"
	KindStatus               ErrorKind = "status"
	KindConnection           ErrorKind = "connection"
	KindUnknown              ErrorKind = "unknown"
	KindChallengeUnavailable ErrorKind = "challenge_unavailable"
	KindChallengeAbandoned   ErrorKind = "challenge_abandoned"
)

// Message is what error subscribers receive.
type Message struct {
	Action     string
	Kind       ErrorKind
	Text       string
	UserFacing bool
}

// Error is returned by the pipeline for every failed request. It unwraps to
// the transport failure.
type Error struct {
	Action     string
	Status     int
	Kind       ErrorKind
	Message    string
	UserFacing bool
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Action, e.Status, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) message() Message {
	return Message{Action: e.Action, Kind: e.Kind, Text: e.Message, UserFacing: e.UserFacing}
}

// StatusOf returns the response status carried by err, or 0.
func StatusOf(err error) int {
	var dispatchErr *Error
	if errors.As(err, &dispatchErr) && dispatchErr.Status != 0 {
		return dispatchErr.Status
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.Status
	}
	return 0
}

// errorBody is the structured error body the API returns.
type errorBody struct {
	UserFacingMessage string `json:"userFacingMessage"`
}

// classify maps a transport failure onto the error taxonomy. A server
// provided message wins over any status based classification. Failures while
// classifying, panics included, fall back to the unknown error message.
func classify(action string, err error) (out *Error) {
	status := 0
	var respErr *ResponseError
	if errors.As(err, &respErr) && respErr.Response != nil {
		status = respErr.Response.Status
	}

	defer func() {
		if r := recover(); r != nil {
			out = unknownError(action, status, err)
		}
	}()

	out = &Error{Action: action, Status: status, Err: err}

	if respErr != nil && respErr.Response != nil && status >= 300 {
		msg, perr := serverMessage(respErr.Response)
		if perr != nil {
			return unknownError(action, status, err)
		}
		if msg != "" {
			out.Kind, out.Message, out.UserFacing = KindServerMessage, msg, true
			return out
		}
	}

	name := humanize(action)
	switch {
	case status == http.StatusForbidden:
		out.Kind, out.Message, out.UserFacing = KindForbidden, MessageForbidden, true
	case status == http.StatusNotImplemented:
		out.Kind, out.Message, out.UserFacing = KindNotImplemented, MessageNotImplemented, true
	case status >= 100 && status < 300:
		out.Kind, out.Message, out.UserFacing = KindUnexpectedStatus, "Failed "+name, false
	case status >= 300 && status < 600:
		out.Kind, out.Message, out.UserFacing = KindStatus, fmt.Sprintf("%d failed %s", status, name), true
	default:
		out.Kind, out.Message, out.UserFacing = KindConnection, "Connection failure processing "+name, true
	}
	return out
}

func unknownError(action string, status int, err error) *Error {
	return &Error{
		Action:     action,
		Status:     status,
		Kind:       KindUnknown,
		Message:    MessageUnknown,
		UserFacing: true,
		Err:        err,
	}
}

// serverMessage extracts userFacingMessage from a JSON error body. Bodies
// declared as something other than JSON are ignored, and so are undeclared
// bodies that do not parse as JSON.
func serverMessage(resp *Response) (string, error) {
	if len(resp.Body) == 0 {
		return "", nil
	}
	declared := false
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err == nil && mediaType != "application/json" {
			return "", nil
		}
		declared = err == nil
	}

	var body errorBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		if !declared {
			return "", nil
		}
		return "", fmt.Errorf("malformed error body: %w", err)
	}
	return body.UserFacingMessage, nil
}
