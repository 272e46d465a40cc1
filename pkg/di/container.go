// Package di provides dependency injection container
package di

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ssargent/rowbench/pkg/api"
	"github.com/ssargent/rowbench/pkg/binding"
	"github.com/ssargent/rowbench/pkg/config"
	"github.com/ssargent/rowbench/pkg/procedure"
	"github.com/ssargent/rowbench/pkg/rowstore"
	"github.com/ssargent/rowbench/pkg/scatter"
)

// SessionFactory opens a procedure session for one client
type SessionFactory func() (procedure.Session, error)

// Container holds all the dependencies for the application
type Container struct {
	config   *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	sessionFactory SessionFactory

	mu      sync.Mutex
	store   *rowstore.Store
	metrics *binding.Metrics
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, logger *zap.Logger) *Container {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	c.sessionFactory = c.defaultSession
	return c
}

// Config returns the effective configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the application logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Registry returns the Prometheus registry binding metrics are registered with
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// SetSessionFactory allows overriding how sessions are opened (for testing)
func (c *Container) SetSessionFactory(factory SessionFactory) {
	c.sessionFactory = factory
}

// Store opens the embedded row store on first use. All embedded sessions share it.
func (c *Container) Store() (*rowstore.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return c.store, nil
	}
	store, err := rowstore.Open(rowstore.Config{
		DataDir:    c.config.DataDir,
		Partitions: c.config.Partitions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open row store: %w", err)
	}
	c.store = store
	return store, nil
}

// NewSession opens a session using the configured factory
func (c *Container) NewSession() (procedure.Session, error) {
	return c.sessionFactory()
}

func (c *Container) defaultSession() (procedure.Session, error) {
	if c.config.Embedded {
		store, err := c.Store()
		if err != nil {
			return nil, err
		}
		return procedure.NewLocalSession(store), nil
	}

	apiKey := ""
	if c.config.User != "" {
		apiKey = c.config.Password
	}
	return api.NewClient(api.ClientConfig{
		Servers: c.config.ServerList(),
		APIKey:  apiKey,
	})
}

// NewDB opens a session and wraps it in a binding DB with its own encoder
func (c *Container) NewDB() (*binding.DB, error) {
	policy, err := scatter.ParsePolicy(c.config.Scan.Policy)
	if err != nil {
		return nil, err
	}
	session, err := c.NewSession()
	if err != nil {
		return nil, err
	}
	return binding.New(session, binding.Options{
		BufferSize:  c.config.Encoder.BufferSize,
		RateLimit:   c.config.RateLimit,
		MaxAttempts: c.config.Retry.MaxAttempts,
		BaseDelay:   c.config.Retry.BaseDelay,
		MaxDelay:    c.config.Retry.MaxDelay,
		ScanPolicy:  policy,
		Logger:      c.logger,
		Metrics:     c.bindingMetrics(),
	}), nil
}

func (c *Container) bindingMetrics() *binding.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metrics == nil {
		c.metrics = binding.NewMetrics(c.registry)
	}
	return c.metrics
}

// Close releases the embedded store if one was opened
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}
