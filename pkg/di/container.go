package di

import (
	"log/slog"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/internal/telemetry"
	"github.com/goliatone/go-query-cache/jobs"
	"github.com/goliatone/go-query-cache/mutation"
	"github.com/goliatone/go-query-cache/notify"
	"github.com/goliatone/go-query-cache/workbench"
	"github.com/prometheus/client_golang/prometheus"
)

// Container is the composition root of one client session. It owns the
// store, the mutation coordinator, the job monitor and the notification
// sinks, and wires the workbench fetchers and mutations on top of them.
// Nothing here is a package-level singleton: tests build as many as they need.
type Container struct {
	config        Config
	logger        *slog.Logger
	store         *cache.Store
	coordinator   *mutation.Coordinator
	monitor       *jobs.Monitor
	notifications *notify.Recorder
	metrics       *telemetry.Metrics
	mutations     *workbench.Mutations
}

// Option customizes a Container.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	download   workbench.DownloadFunc
	sinks      []notify.Sink
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegisterer registers the container metrics with reg. Without it the
// metrics are collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithDownload sets how files of finished export jobs are retrieved.
func WithDownload(download workbench.DownloadFunc) Option {
	return func(o *options) {
		o.download = download
	}
}

// WithSink adds a sink that receives every notification next to the
// built-in recorder.
func WithSink(sink notify.Sink) Option {
	return func(o *options) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// NewContainer creates a session container serving reads from api and
// job statuses from status. The configuration is validated first.
func NewContainer(config Config, api workbench.API, status jobs.StatusFunc, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	metrics, err := telemetry.NewMetrics(o.registerer)
	if err != nil {
		return nil, err
	}

	store, err := cache.NewStore(config.Cache,
		cache.WithLogger(o.logger),
		cache.WithObserver(metrics.Store()),
	)
	if err != nil {
		return nil, err
	}
	workbench.RegisterFetchers(store, api)

	recorder := notify.NewRecorder(config.NotifyLimit)
	sink := notify.Multi(append([]notify.Sink{recorder, notify.NewSlogSink(o.logger)}, o.sinks...)...)

	coordinator := mutation.NewCoordinator(store,
		mutation.WithSink(sink),
		mutation.WithLogger(o.logger),
		mutation.WithObserver(metrics.Mutations()),
	)

	rules, err := workbench.JobRules(o.download)
	if err != nil {
		store.Close()
		return nil, err
	}
	monitor, err := jobs.NewMonitor(store, status, rules, config.Jobs,
		jobs.WithSink(sink),
		jobs.WithLogger(o.logger),
		jobs.WithObserver(metrics.Jobs()),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Container{
		config:        config,
		logger:        o.logger,
		store:         store,
		coordinator:   coordinator,
		monitor:       monitor,
		notifications: recorder,
		metrics:       metrics,
		mutations:     workbench.NewMutations(coordinator, api),
	}, nil
}

// NewContainerWithDefaults creates a container using DefaultConfig.
func NewContainerWithDefaults(api workbench.API, status jobs.StatusFunc, opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), api, status, opts...)
}

// NewRepositoryContainer creates a container whose reads and writes go
// straight to go-repository-bun repositories.
func NewRepositoryContainer(config Config, repos workbench.Repositories, status jobs.StatusFunc, opts ...Option) (*Container, error) {
	return NewContainer(config, workbench.NewRepositoryAPI(repos), status, opts...)
}

// Store returns the keyed cache store.
func (c *Container) Store() *cache.Store {
	return c.store
}

// Coordinator returns the mutation coordinator, for mutations beyond the
// workbench set.
func (c *Container) Coordinator() *mutation.Coordinator {
	return c.coordinator
}

// Monitor returns the job monitor.
func (c *Container) Monitor() *jobs.Monitor {
	return c.monitor
}

// Mutations returns the workbench mutations.
func (c *Container) Mutations() *workbench.Mutations {
	return c.mutations
}

// Notifications returns the recorder holding the latest user-facing events.
func (c *Container) Notifications() *notify.Recorder {
	return c.notifications
}

// Metrics returns the Prometheus collectors fed by the container.
func (c *Container) Metrics() *telemetry.Metrics {
	return c.metrics
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Teardown drops every cached entry and pending notification so nothing
// leaks into the next session. Subscriptions and running pollers survive.
func (c *Container) Teardown() {
	c.store.Clear()
	c.notifications.Drain()
	c.logger.Info("session state cleared")
}

// Close stops every poller and shuts the store down.
func (c *Container) Close() {
	c.monitor.Stop()
	c.store.Close()
}
