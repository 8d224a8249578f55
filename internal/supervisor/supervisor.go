package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/model"
	"github.com/seantiz/nodekeeper/internal/notifier"
)

// Resolver maps a backend tag to its implementation.
type Resolver interface {
	Resolve(tag string) (backend.Backend, error)
}

// Notifier is told about every committed transition.
type Notifier interface {
	Notify(ctx context.Context, o notifier.Outcome)
}

// Recorder persists transition attempts.
type Recorder interface {
	RecordTransition(ctx context.Context, r *model.TransitionRecord) error
}

// Status is a snapshot of the slot.
type Status struct {
	Active   bool         `json:"active"`
	Kind     backend.Kind `json:"kind,omitempty"`
	Endpoint string       `json:"endpoint,omitempty"`
	Since    *time.Time   `json:"since,omitempty"`
}

// slot is the single active backend instance.
type slot struct {
	kind     backend.Kind
	backend  backend.Backend
	instance backend.Instance
	opts     backend.Options
	since    time.Time

	// cancel ends the activation context handed to the notifier, which
	// skips a cache warm still waiting on its delay.
	cancel context.CancelFunc
}

// Supervisor guarantees at most one active node instance.
type Supervisor struct {
	resolver Resolver
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger

	// transition is held for the whole of a startup or teardown, so state
	// checks and commits never interleave with another transition.
	transition *semaphore.Weighted

	mu     sync.RWMutex
	active *slot

	wg sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRecorder persists every transition attempt through r.
func WithRecorder(r Recorder) Option {
	return func(s *Supervisor) { s.recorder = r }
}

// New creates a supervisor with an empty slot.
func New(resolver Resolver, n Notifier, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		resolver:   resolver,
		notifier:   n,
		logger:     logger,
		transition: semaphore.NewWeighted(1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EnsureActive makes sure a node is running and returns its instance. If one
// is already active it is returned as is, whatever opts say; switching
// backends requires EnsureInactive first. Alias tags are stored under their
// canonical kind.
//
// Dependents are told about the new node asynchronously after EnsureActive
// returns, and those reloads are not ordered against a later EnsureInactive:
// an "available" reload may land after the matching "unavailable" one. Use
// Wait to observe delivery.
//
// Unsupported kinds and backend startup failures leave the slot empty. ctx
// only bounds the wait for a concurrent transition: once the backend's Init
// is called it runs to completion.
func (s *Supervisor) EnsureActive(ctx context.Context, opts backend.Options) (backend.Instance, error) {
	if err := s.transition.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for lifecycle transition: %w", err)
	}
	defer s.transition.Release(1)

	if cur := s.current(); cur != nil {
		s.logger.Debug("node already active", "kind", cur.kind, "requested_kind", opts.Kind)
		return cur.instance, nil
	}

	kind, err := backend.ParseKind(string(opts.Kind))
	var b backend.Backend
	if err == nil {
		b, err = s.resolver.Resolve(string(kind))
	}
	if err != nil {
		transitionsTotal.WithLabelValues(string(model.TransitionAvailable), model.ResultFailed).Inc()
		s.logger.Error("resolve backend", "kind", opts.Kind, "error", err)
		return nil, err
	}
	opts.Kind = kind

	s.logger.Info("starting node", "kind", opts.Kind)
	start := time.Now()
	initCtx := context.WithoutCancel(ctx)

	inst, err := b.Init(initCtx, opts)
	if err == nil && inst == nil {
		err = errors.New("backend returned no instance")
	}
	elapsed := time.Since(start)
	if err != nil {
		initErr := &backend.InitError{Kind: opts.Kind, Err: err}
		transitionsTotal.WithLabelValues(string(model.TransitionAvailable), model.ResultFailed).Inc()
		s.logger.Error("start node", "kind", opts.Kind, "duration_ms", elapsed.Milliseconds(), "error", err)
		s.record(initCtx, opts.Kind, model.TransitionAvailable, "", elapsed, initErr)
		return nil, initErr
	}

	activation, cancel := context.WithCancel(context.Background())
	s.setActive(&slot{
		kind:     opts.Kind,
		backend:  b,
		instance: inst,
		opts:     opts,
		since:    time.Now().UTC(),
		cancel:   cancel,
	})

	initDuration.WithLabelValues(string(opts.Kind)).Observe(elapsed.Seconds())
	transitionsTotal.WithLabelValues(string(model.TransitionAvailable), model.ResultOK).Inc()
	activeNode.WithLabelValues(string(opts.Kind)).Set(1)
	s.logger.Info("node active", "kind", opts.Kind, "endpoint", inst.Endpoint(), "duration_ms", elapsed.Milliseconds())
	s.record(initCtx, opts.Kind, model.TransitionAvailable, inst.Endpoint(), elapsed, nil)

	// Dispatched only after the slot is committed; not awaited.
	outcome := notifier.Outcome{
		Transition: model.TransitionAvailable,
		Instance:   inst,
		Options:    opts,
	}
	s.wg.Go(func() {
		s.notifier.Notify(activation, outcome)
	})

	return inst, nil
}

// EnsureInactive tears down the active node, if any. Whether or not the
// backend's Destroy succeeds, dependents are notified and the slot is
// cleared before returning; a Destroy failure is then reported as a
// *backend.DestroyError.
func (s *Supervisor) EnsureInactive(ctx context.Context) error {
	if err := s.transition.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for lifecycle transition: %w", err)
	}
	defer s.transition.Release(1)

	cur := s.current()
	if cur == nil {
		return nil
	}

	s.logger.Info("stopping node", "kind", cur.kind, "endpoint", cur.instance.Endpoint())
	start := time.Now()
	destroyCtx := context.WithoutCancel(ctx)

	destroyErr := cur.backend.Destroy(destroyCtx)
	elapsed := time.Since(start)

	cur.cancel()
	s.notifier.Notify(destroyCtx, notifier.Outcome{
		Transition: model.TransitionUnavailable,
		Options:    cur.opts,
	})
	s.setActive(nil)
	activeNode.WithLabelValues(string(cur.kind)).Set(0)

	if destroyErr != nil {
		err := &backend.DestroyError{Kind: cur.kind, Err: destroyErr}
		transitionsTotal.WithLabelValues(string(model.TransitionUnavailable), model.ResultFailed).Inc()
		s.logger.Error("stop node", "kind", cur.kind, "duration_ms", elapsed.Milliseconds(), "error", destroyErr)
		s.record(destroyCtx, cur.kind, model.TransitionUnavailable, cur.instance.Endpoint(), elapsed, err)
		return err
	}

	transitionsTotal.WithLabelValues(string(model.TransitionUnavailable), model.ResultOK).Inc()
	s.logger.Info("node stopped", "kind", cur.kind, "duration_ms", elapsed.Milliseconds())
	s.record(destroyCtx, cur.kind, model.TransitionUnavailable, cur.instance.Endpoint(), elapsed, nil)
	return nil
}

// Status returns a snapshot of the slot. It does not wait for an in-flight
// transition.
func (s *Supervisor) Status() Status {
	cur := s.current()
	if cur == nil {
		return Status{}
	}
	since := cur.since
	return Status{
		Active:   true,
		Kind:     cur.kind,
		Endpoint: cur.instance.Endpoint(),
		Since:    &since,
	}
}

// Wait blocks until every dispatched availability notification has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) current() *slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Supervisor) setActive(sl *slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = sl
}

// record persists a transition attempt. Failures are logged, never returned.
func (s *Supervisor) record(ctx context.Context, kind backend.Kind, tr model.Transition, endpoint string, elapsed time.Duration, err error) {
	if s.recorder == nil {
		return
	}

	now := time.Now().UTC()
	rec := &model.TransitionRecord{
		ID:         model.NewIDAt(now),
		Kind:       string(kind),
		Transition: tr,
		Result:     model.ResultOK,
		Endpoint:   endpoint,
		DurationMS: int(elapsed.Milliseconds()),
		CreatedAt:  now,
	}
	if err != nil {
		rec.Result = model.ResultFailed
		rec.Error = err.Error()
	}

	if recErr := s.recorder.RecordTransition(ctx, rec); recErr != nil {
		s.logger.Error("record transition", "kind", kind, "transition", tr, "error", recErr)
	}
}
