package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/notify"
	"github.com/puzpuzpuz/xsync/v3"
)

// StatusFunc is the Job Status Read collaborator.
type StatusFunc func(ctx context.Context, id string) (Descriptor, error)

// SubmitFunc is the Job Submit collaborator. It returns the initial descriptor.
type SubmitFunc func(ctx context.Context) (Descriptor, error)

// Monitor owns the pollers of one session. Poller instances are private per job;
// the store is the only state they share.
type Monitor struct {
	store    *cache.Store
	rules    *RuleSet
	cfg      Config
	sink     notify.Sink
	logger   *slog.Logger
	observer Observer

	pollers *xsync.MapOf[string, *Poller]
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithSink sets where job notifications go.
func WithSink(sink notify.Sink) Option {
	return func(m *Monitor) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithObserver installs poller hooks.
func WithObserver(observer Observer) Option {
	return func(m *Monitor) {
		if observer != nil {
			m.observer = observer
		}
	}
}

// NewMonitor registers the job status fetcher on store and returns a monitor
// applying rules on terminal transitions.
func NewMonitor(store *cache.Store, status StatusFunc, rules *RuleSet, cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if status == nil {
		return nil, fmt.Errorf("jobs: status reader is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		store:    store,
		rules:    rules,
		cfg:      cfg,
		sink:     notify.Discard,
		logger:   slog.Default(),
		observer: NopObserver{},
		pollers:  xsync.NewMapOf[string, *Poller](),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	store.Register(KeyCategory, cache.TypedFetcher(func(ctx context.Context, key cache.Key) (Descriptor, error) {
		id, ok := key.Part(0).(string)
		if !ok {
			return Descriptor{}, fmt.Errorf("jobs: malformed job key %s", key)
		}
		d, err := status(ctx, id)
		if err != nil {
			return Descriptor{}, err
		}
		if d.ID == "" {
			d.ID = id
		}
		return d, nil
	}))
	return m, nil
}

// Submit starts a job through submit and begins polling it.
func (m *Monitor) Submit(ctx context.Context, submit SubmitFunc) (*Poller, error) {
	d, err := submit(ctx)
	if err != nil {
		m.logger.Warn("job submission failed", "error", err)
		return nil, err
	}
	if d.ID == "" {
		return nil, fmt.Errorf("jobs: submitted job has no id")
	}
	return m.Watch(d), nil
}

// Watch seeds the store with initial and starts polling it. Watching a job that
// already has a poller returns that poller, so terminal side effects never run twice.
func (m *Monitor) Watch(initial Descriptor) *Poller {
	p, loaded := m.pollers.LoadOrCompute(initial.ID, func() *Poller {
		ctx, cancel := context.WithCancel(m.ctx)
		return &Poller{
			id:       initial.ID,
			category: initial.Category,
			key:      Key(initial.ID),
			store:    m.store,
			rules:    m.rules,
			sink:     m.sink,
			logger:   m.logger.With("job_id", initial.ID),
			observer: m.observer,
			cfg:      m.cfg,
			runCtx:   ctx,
			cancel:   cancel,
			done:     make(chan struct{}),
		}
	})
	if loaded {
		return p
	}

	// The job key must outlive idle expiry for as long as the job is polled;
	// only Abort removes it.
	p.unpin = m.store.Pin(p.key)
	m.store.CancelInFlight(p.key)
	m.store.Write(p.key, initial)
	go p.run(p.runCtx, initial)
	return p
}

// Get returns the poller of job id.
func (m *Monitor) Get(id string) (*Poller, bool) {
	return m.pollers.Load(id)
}

// Abort is the explicit user abort: it removes the job key, so its poller
// stops on the next scheduled tick.
func (m *Monitor) Abort(id string) {
	m.store.Remove(Key(id))
}

// Forget drops a finished poller so the job can be watched again.
// It reports false while the poller is still running.
func (m *Monitor) Forget(id string) bool {
	p, ok := m.pollers.Load(id)
	if !ok {
		return true
	}
	select {
	case <-p.done:
		m.pollers.Delete(id)
		return true
	default:
		return false
	}
}

// Active returns the number of pollers still reading.
func (m *Monitor) Active() int {
	n := 0
	m.pollers.Range(func(_ string, p *Poller) bool {
		select {
		case <-p.done:
		default:
			n++
		}
		return true
	})
	return n
}

// Stop ends every poller and waits for them.
func (m *Monitor) Stop() {
	m.cancel()
	m.pollers.Range(func(_ string, p *Poller) bool {
		<-p.done
		return true
	})
}
