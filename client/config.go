package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-entity-cache/cache"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "ENTITYCACHE_"

// Config configures a Client and everything it is built from.
type Config struct {
	BaseURL   string `yaml:"base_url" env:"BASE_URL"`
	ProjectID string `yaml:"project_id" env:"PROJECT_ID"`
	// RequestTimeout bounds a single HTTP exchange.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// ChallengeTimeout bounds the wait for a challenge solution. Zero waits
	// for as long as the request context allows.
	ChallengeTimeout time.Duration `yaml:"challenge_timeout" env:"CHALLENGE_TIMEOUT"`
	// CoalesceSearches shares one request between concurrent identical
	// searches and entity fetches. Off by default: each call reaches the
	// network.
	CoalesceSearches bool         `yaml:"coalesce_searches" env:"COALESCE_SEARCHES"`
	LogLevel         string       `yaml:"log_level" env:"LOG_LEVEL"`
	MetricsNamespace string       `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
	ResponseCache    cache.Config `yaml:"response_cache" envPrefix:"RESPONSE_CACHE_"`
}

// DefaultConfig returns a Config populated with defaults. BaseURL has no
// default.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:   30 * time.Second,
		ChallengeTimeout: 5 * time.Minute,
		LogLevel:         "info",
		MetricsNamespace: "entitycache",
		ResponseCache:    cache.DefaultConfig(),
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.BaseURL == "" {
		result = multierror.Append(result, errors.New("base_url is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("base_url %q must be an absolute URL", c.BaseURL))
	}
	if c.RequestTimeout < 0 {
		result = multierror.Append(result, errors.New("request_timeout must not be negative"))
	}
	if c.ChallengeTimeout < 0 {
		result = multierror.Append(result, errors.New("challenge_timeout must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("log_level: %w", err))
	}
	if err := c.ResponseCache.Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("response_cache: %w", err))
	}

	return result.ErrorOrNil()
}

// LoadConfig builds a Config from the defaults, then the YAML file at path
// when path is not empty, then environment variables prefixed with
// EnvPrefix. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
