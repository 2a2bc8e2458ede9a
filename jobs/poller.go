package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/notify"
	"github.com/sethvargo/go-retry"
)

// State is the lifecycle position of a Poller.
type State int

const (
	StateUnsubscribed State = iota
	StatePolling
	StateTerminal
	StateHalted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateTerminal:
		return "terminal"
	case StateHalted:
		return "halted"
	case StateStopped:
		return "stopped"
	default:
		return "unsubscribed"
	}
}

// Observer receives poller events.
type Observer interface {
	StatusRead(category string, status Status, err error)
	StateChanged(category string, state State)
	RulesFired(category string, status Status, rules int)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StatusRead(string, Status, error) {}
func (NopObserver) StateChanged(string, State)       {}
func (NopObserver) RulesFired(string, Status, int)   {}

// Poller follows one job until it reaches a terminal status, halts on a read
// error, or its key disappears. Terminal side effects fire at most once.
type Poller struct {
	id       string
	category string
	key      cache.Key

	store    *cache.Store
	rules    *RuleSet
	sink     notify.Sink
	logger   *slog.Logger
	observer Observer
	cfg      Config

	mu    sync.Mutex
	state State
	last  Descriptor
	seen  Status
	fired bool
	err   error

	runCtx context.Context
	cancel context.CancelFunc
	unpin  func()
	done   chan struct{}
}

// ID returns the job id.
func (p *Poller) ID() string { return p.id }

// Done is closed once the poller stops reading.
func (p *Poller) Done() <-chan struct{} { return p.done }

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the read error that halted the poller.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Last returns the most recently observed descriptor.
func (p *Poller) Last() Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Stop ends polling and waits for the loop to exit. Safe to call repeatedly.
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}

// Wait blocks until the poller is done or ctx ends.
func (p *Poller) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	p.observer.StateChanged(p.category, state)
}

func (p *Poller) run(ctx context.Context, initial Descriptor) {
	defer close(p.done)
	defer p.unpin()

	p.setState(StatePolling)
	if p.observe(ctx, initial) {
		return
	}

	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.setState(StateStopped)
			return
		case <-timer.C:
		}

		present, err := p.read(ctx)
		if ctx.Err() != nil {
			p.setState(StateStopped)
			return
		}
		if !present {
			p.logger.Debug("job key removed, stopping poller", "job_id", p.id)
			p.setState(StateStopped)
			return
		}
		if err != nil {
			p.halt(ctx, err)
			return
		}

		d, ok := cache.ValueOf[Descriptor](p.store.Peek(p.key))
		if !ok {
			p.halt(ctx, fmt.Errorf("jobs: %s: %w", p.id, cache.ErrInvalidResultType))
			return
		}
		if d.Category == "" {
			d.Category = p.category
		}
		if p.observe(ctx, d) {
			return
		}
		timer.Reset(p.cfg.Interval)
	}
}

// read refreshes the job key, retrying transient errors when configured.
func (p *Poller) read(ctx context.Context) (bool, error) {
	present := true
	attempt := func(ctx context.Context) error {
		entry, ok, err := p.store.RefreshIfPresent(ctx, p.key)
		if !ok {
			present = false
			return nil
		}
		status := Status("")
		if d, isDesc := cache.ValueOf[Descriptor](entry); isDesc {
			status = d.Status
		}
		p.observer.StatusRead(p.category, status, err)
		if err != nil && p.cfg.TransientRetries > 0 && cache.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	}

	if p.cfg.TransientRetries == 0 {
		err := attempt(ctx)
		return present, err
	}
	backoff := retry.WithMaxRetries(p.cfg.TransientRetries, retry.NewConstant(p.cfg.RetryBackoff))
	err := retry.Do(ctx, backoff, attempt)
	return present, err
}

func (p *Poller) halt(ctx context.Context, err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.setState(StateHalted)

	p.logger.Warn("job polling halted", "job_id", p.id, "category", p.category, "error", err)
	notify.Send(ctx, p.sink, notify.Event{
		Outcome: notify.Failure,
		Message: fmt.Sprintf("Could not read the status of job %s", p.id),
		Source:  "job:" + p.category,
		Err:     err,
	})
}

// observe records d and reports whether polling is over. Side effects fire on
// the first terminal status only, gated on the last observed status.
func (p *Poller) observe(ctx context.Context, d Descriptor) bool {
	p.mu.Lock()
	p.last = d
	previous := p.seen
	p.seen = d.Status
	fire := d.Status.Terminal() && previous != d.Status && !p.fired
	if fire {
		p.fired = true
	}
	p.mu.Unlock()

	if !d.Status.Terminal() {
		return false
	}
	if fire {
		p.fire(ctx, d)
	}
	p.setState(StateTerminal)
	return true
}

func (p *Poller) fire(ctx context.Context, d Descriptor) {
	matched, err := p.rules.Match(d)
	if err != nil {
		p.logger.Error("job rule evaluation failed", "job_id", d.ID, "category", d.Category, "error", err)
	}
	p.observer.RulesFired(d.Category, d.Status, len(matched))

	var stale []cache.Key
	for _, r := range matched {
		if r.Keys != nil {
			stale = append(stale, r.Keys(d)...)
		}
	}
	if len(stale) > 0 {
		p.store.Invalidate(cache.UniqueKeys(stale)...)
	}

	for _, r := range matched {
		if r.Then != nil {
			if err := r.Then(ctx, d); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("job side effect failed", "job_id", d.ID, "rule", r.Name, "error", err)
				notify.Send(ctx, p.sink, notify.Event{
					Outcome: notify.Failure,
					Message: fmt.Sprintf("Job %s finished, but %s failed", d.ID, r.Name),
					Source:  "job:" + d.Category,
					Err:     err,
				})
			}
		}
		if r.Notify != nil {
			outcome, text := r.Notify(d)
			notify.Send(ctx, p.sink, notify.Event{
				Outcome: outcome,
				Message: text,
				Source:  "job:" + d.Category,
			})
		}
	}

	p.logger.Debug("job reached terminal status",
		"job_id", d.ID,
		"category", d.Category,
		"status", d.Status.String(),
		"rules", len(matched),
	)
}
