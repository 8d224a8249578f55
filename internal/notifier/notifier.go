package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/model"
)

// DefaultWarmDelay is how long after a node becomes available the cache warm
// runs.
const DefaultWarmDelay = 5 * time.Second

// Management UI URL markers.
const (
	// BundledUIMarker identifies the UI bundled with the application. Only
	// matched on non-http URLs.
	BundledUIMarker = "/webui/index.html#/"

	// CanonicalUIMarker identifies the UI at its canonical remote alias.
	CanonicalUIMarker = "/webui.ipfs.io/#/"
)

// Dependent is a consumer that may need to be reloaded on a transition.
type Dependent struct {
	ID  string
	URL string
}

// Outcome describes a transition. Instance is nil for TransitionUnavailable.
type Outcome struct {
	Transition model.Transition
	Instance   backend.Instance
	Options    backend.Options
}

// Host enumerates dependents and reloads them.
type Host interface {
	Dependents(ctx context.Context) ([]Dependent, error)
	Reload(ctx context.Context, id string) error
}

// Warmer pre-loads data into a freshly started node.
type Warmer interface {
	Warm(ctx context.Context, inst backend.Instance, opts backend.Options) error
}

// WarmerFunc adapts a function to the Warmer interface.
type WarmerFunc func(ctx context.Context, inst backend.Instance, opts backend.Options) error

// Warm implements Warmer.
func (f WarmerFunc) Warm(ctx context.Context, inst backend.Instance, opts backend.Options) error {
	return f(ctx, inst, opts)
}

// Notifier applies the notification policy for node transitions.
type Notifier struct {
	host      Host
	warmer    Warmer
	warmDelay time.Duration
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithWarmDelay overrides DefaultWarmDelay.
func WithWarmDelay(d time.Duration) Option {
	return func(n *Notifier) { n.warmDelay = d }
}

// New creates a notifier. warmer may be nil, in which case no cache warm is
// scheduled.
func New(host Host, warmer Warmer, logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		host:      host,
		warmer:    warmer,
		warmDelay: DefaultWarmDelay,
		logger:    logger,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// IsManagementSurface reports whether url points at the management UI: either
// the bundled copy (non-http URL) or its canonical remote alias.
func IsManagementSurface(url string) bool {
	bundled := !strings.HasPrefix(url, "http") && strings.Contains(url, BundledUIMarker)
	canonical := strings.HasPrefix(url, "http") && strings.Contains(url, CanonicalUIMarker)
	return bundled || canonical
}

// Notify reloads affected dependents and, for TransitionAvailable, schedules
// the cache warm. ctx bounds the lifetime of the scheduled warm: cancelling it
// before the delay elapses skips the warm. Reloads are not cancelled by ctx.
func (n *Notifier) Notify(ctx context.Context, o Outcome) {
	n.reloadDependents(context.WithoutCancel(ctx), o.Transition)

	if o.Transition == model.TransitionAvailable {
		n.scheduleWarm(ctx, o)
	}
}

// Wait blocks until every scheduled warm has run or been skipped.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) reloadDependents(ctx context.Context, tr model.Transition) {
	deps, err := n.host.Dependents(ctx)
	if err != nil {
		n.logger.Error("enumerate dependents", "transition", tr, "error", err)
		return
	}

	for _, d := range deps {
		if !IsManagementSurface(d.URL) {
			continue
		}
		if err := n.host.Reload(ctx, d.ID); err != nil {
			reloadsTotal.WithLabelValues(string(tr), resultFailed).Inc()
			n.logger.Error("reload dependent", "dependent_id", d.ID, "url", d.URL, "error", err)
			continue
		}
		reloadsTotal.WithLabelValues(string(tr), resultOK).Inc()
		n.logger.Info("reloaded management surface", "dependent_id", d.ID, "url", d.URL, "transition", tr)
	}
}

func (n *Notifier) scheduleWarm(ctx context.Context, o Outcome) {
	if n.warmer == nil || o.Instance == nil {
		return
	}

	n.wg.Go(func() {
		timer := time.NewTimer(n.warmDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			warmsTotal.WithLabelValues(warmCancelled).Inc()
			n.logger.Info("cache warm cancelled", "endpoint", o.Instance.Endpoint())
			return
		}

		if err := n.warm(ctx, o); err != nil {
			warmsTotal.WithLabelValues(resultFailed).Inc()
			n.logger.Error("cache warm", "endpoint", o.Instance.Endpoint(), "error", err)
			return
		}
		warmsTotal.WithLabelValues(resultOK).Inc()
		n.logger.Info("cache warm complete", "endpoint", o.Instance.Endpoint())
	})
}

// warm runs the warmer, turning a panic into an error so a faulty warmer
// cannot take the process down.
func (n *Notifier) warm(ctx context.Context, o Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("warmer panicked: %v", r)
		}
	}()
	return n.warmer.Warm(ctx, o.Instance, o.Options)
}
