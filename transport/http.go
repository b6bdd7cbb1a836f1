// Package transport implements dispatch.Transport over HTTP with JSON bodies.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-entity-cache/dispatch"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBodySize caps how much of a response body is read.
const DefaultMaxBodySize = 10 << 20

// ErrBodyTooLarge is returned when a response body exceeds the configured
// limit.
var ErrBodyTooLarge = errors.New("transport: response body exceeds limit")

var _ dispatch.Transport = (*HTTP)(nil)

// HTTP sends requests to a REST API rooted at a base URL. It is safe for
// concurrent use.
type HTTP struct {
	baseURL    *url.URL
	httpClient *http.Client
	header     http.Header
	maxBody    int64
	logger     logrus.FieldLogger
}

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTP) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithTimeout sets the timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(t *HTTP) {
		if d > 0 {
			t.httpClient.Timeout = d
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(t *HTTP) {
		t.header.Add(key, value)
	}
}

// WithMaxBodySize sets the largest response body accepted.
func WithMaxBodySize(n int64) Option {
	return func(t *HTTP) {
		if n > 0 {
			t.maxBody = n
		}
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(t *HTTP) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New returns a transport for the API at baseURL.
func New(baseURL string, opts ...Option) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	t := &HTTP{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		header:     http.Header{},
		maxBody:    DefaultMaxBodySize,
		logger:     discard,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Do sends req. Responses outside the 2xx range are returned together with a
// *dispatch.ResponseError carrying the status, headers and body.
func (t *HTTP) Do(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, t.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > t.maxBody {
		// status and headers stay visible so the failure classifies by status
		return nil, &dispatch.ResponseError{
			Response: &dispatch.Response{Status: httpResp.StatusCode, Header: httpResp.Header},
			Err:      fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, t.maxBody),
		}
	}

	resp := &dispatch.Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   body,
	}

	t.logger.WithFields(logrus.Fields{
		"action":  req.Action,
		"method":  httpReq.Method,
		"path":    httpReq.URL.Path,
		"status":  resp.Status,
		"elapsed": time.Since(started),
	}).Debug("http exchange")

	if err := dispatch.CheckStatus(resp); err != nil {
		return resp, err
	}
	return resp, nil
}

func (t *HTTP) newRequest(ctx context.Context, req *dispatch.Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := t.baseURL.JoinPath(strings.TrimPrefix(req.Path, "/"))
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, values := range t.header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	for k, values := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}
