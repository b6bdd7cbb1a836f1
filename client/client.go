package client

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/goliatone/go-entity-cache/dispatch"
	"github.com/goliatone/go-entity-cache/internal/telemetry"
	"github.com/goliatone/go-entity-cache/optimistic"
	"github.com/goliatone/go-entity-cache/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Client is safe for concurrent use.
type Client struct {
	store     *store.Store
	engine    *optimistic.Engine
	pipeline  *dispatch.Pipeline
	logger    logrus.FieldLogger
	metrics   *telemetry.Metrics
	projectID string

	coalesce bool
	flight   singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithProjectID scopes every request to a project.
func WithProjectID(id string) Option {
	return func(c *Client) {
		c.projectID = id
	}
}

// WithCoalescing shares one request between concurrent identical reads.
func WithCoalescing(enabled bool) Option {
	return func(c *Client) {
		c.coalesce = enabled
	}
}

// New composes a client. engine must write to s.
func New(s *store.Store, pipeline *dispatch.Pipeline, engine *optimistic.Engine, opts ...Option) *Client {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Client{
		store:    s,
		engine:   engine,
		pipeline: pipeline,
		logger:   discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying store.
func (c *Client) Store() *store.Store {
	return c.store
}

// Snapshot returns the current immutable state.
func (c *Client) Snapshot() *store.Snapshot {
	return c.store.Snapshot()
}

// Subscribe registers fn for every store change.
func (c *Client) Subscribe(fn store.Listener) func() {
	return c.store.Subscribe(fn)
}

// OnError registers an error subscriber.
func (c *Client) OnError(fn dispatch.ErrorHandler) func() {
	return c.pipeline.OnError(fn)
}

// OnChallenge registers a challenge handler. Only the earliest registered
// handler is consulted.
func (c *Client) OnChallenge(fn dispatch.ChallengeHandler) func() {
	return c.pipeline.OnChallenge(fn)
}

// OnEvent registers a request lifecycle subscriber.
func (c *Client) OnEvent(fn dispatch.EventHandler) func() {
	return c.pipeline.OnEvent(fn)
}

func (c *Client) request(action, method, path string, body any) *dispatch.Request {
	req := &dispatch.Request{
		Action: action,
		Method: method,
		Path:   path,
		Body:   body,
	}
	if c.projectID != "" {
		req.Query = url.Values{"projectId": {c.projectID}}
	}
	return req
}

func (c *Client) readRequest(action, path string, body any) *dispatch.Request {
	if body == nil {
		return c.request(action, http.MethodGet, path, nil)
	}
	req := c.request(action, http.MethodPost, path, body)
	req.ReadOnly = true
	return req
}

// share runs fn once per key among concurrent callers when coalescing is
// enabled.
func (c *Client) share(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if !c.coalesce {
		return fn(ctx)
	}
	v, err, shared := c.flight.Do(key, func() (any, error) {
		return fn(ctx)
	})
	if shared {
		c.logger.WithField("key", key).Debug("joined in-flight request")
	}
	return v, err
}
