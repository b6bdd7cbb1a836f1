package di

import (
	"fmt"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/client"
	"github.com/goliatone/go-entity-cache/dispatch"
	"github.com/goliatone/go-entity-cache/internal/telemetry"
	"github.com/goliatone/go-entity-cache/optimistic"
	"github.com/goliatone/go-entity-cache/store"
	"github.com/goliatone/go-entity-cache/transport"
	"github.com/goliatone/go-entity-cache/transportcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Container wires the entity cache from a client.Config. Every component is
// built once and shared: one store, one pipeline and one engine per
// container.
type Container struct {
	config        client.Config
	logger        *logrus.Logger
	registerer    prometheus.Registerer
	metrics       *telemetry.Metrics
	keySerializer cache.KeySerializer
	cacheService  cache.CacheService
	transport     dispatch.Transport
	store         *store.Store
	pipeline      *dispatch.Pipeline
	engine        *optimistic.Engine
	client        *client.Client
}

// Option customizes a Container before it is wired.
type Option func(*Container)

// WithTransport replaces the HTTP transport, typically with a fake in tests.
// The response cache, when enabled, still wraps it.
func WithTransport(t dispatch.Transport) Option {
	return func(c *Container) {
		c.transport = t
	}
}

// WithLogger replaces the logger built from the configured level.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithRegisterer enables metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) {
		c.registerer = reg
	}
}

// NewContainer validates config and wires every component.
func NewContainer(config client.Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{config: config}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		level, _ := logrus.ParseLevel(config.LogLevel)
		c.logger = logrus.New()
		c.logger.SetLevel(level)
	}
	c.metrics = telemetry.New(c.registerer, config.MetricsNamespace)
	c.keySerializer = cache.NewDefaultKeySerializer()

	if c.transport == nil {
		httpTransport, err := transport.New(config.BaseURL,
			transport.WithTimeout(config.RequestTimeout),
			transport.WithLogger(c.logger.WithField("component", "transport")),
		)
		if err != nil {
			return nil, err
		}
		c.transport = httpTransport
	}

	if config.ResponseCache.Enabled {
		cacheService, err := cache.NewCacheService(config.ResponseCache)
		if err != nil {
			return nil, err
		}
		c.cacheService = cacheService
		c.transport = transportcache.New(c.transport, cacheService, c.keySerializer,
			transportcache.WithLogger(c.logger.WithField("component", "transportcache")),
			transportcache.WithMetrics(c.metrics),
		)
	}

	c.store = store.New(store.WithLogger(c.logger.WithField("component", "store")))
	c.pipeline = dispatch.New(c.transport,
		dispatch.WithLogger(c.logger.WithField("component", "dispatch")),
		dispatch.WithMetrics(c.metrics),
		dispatch.WithChallengeTimeout(config.ChallengeTimeout),
	)
	c.engine = optimistic.NewEngine(c.store,
		optimistic.WithLogger(c.logger.WithField("component", "optimistic")),
		optimistic.WithMetrics(c.metrics),
	)
	c.client = client.New(c.store, c.pipeline, c.engine,
		client.WithLogger(c.logger.WithField("component", "client")),
		client.WithMetrics(c.metrics),
		client.WithProjectID(config.ProjectID),
		client.WithCoalescing(config.CoalesceSearches),
	)

	return c, nil
}

// NewContainerFromFile loads the configuration with client.LoadConfig and
// wires a container from it.
func NewContainerFromFile(path string, opts ...Option) (*Container, error) {
	config, err := client.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewContainer(config, opts...)
}

// Client returns the wired client.
func (c *Container) Client() *client.Client {
	return c.client
}

// Store returns the shared store.
func (c *Container) Store() *store.Store {
	return c.store
}

// Pipeline returns the shared dispatch pipeline.
func (c *Container) Pipeline() *dispatch.Pipeline {
	return c.pipeline
}

// Engine returns the shared optimistic engine.
func (c *Container) Engine() *optimistic.Engine {
	return c.engine
}

// Transport returns the transport requests go through, the cached one when
// the response cache is enabled.
func (c *Container) Transport() dispatch.Transport {
	return c.transport
}

// CacheService returns the response cache, or nil when it is disabled.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the key serializer used by the response cache.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Logger returns the root logger.
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() client.Config {
	return c.config
}
