package host

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/nodekeeper/internal/model"
	"github.com/seantiz/nodekeeper/internal/notifier"
)

// DependentStore is the subset of the store the host reads dependents from.
type DependentStore interface {
	GetDependent(ctx context.Context, id string) (*model.Dependent, error)
	ListDependents(ctx context.Context) ([]*model.Dependent, error)
}

// Compile-time interface satisfaction check.
var _ notifier.Host = (*Host)(nil)

// Host implements notifier.Host on top of the dependent store and a Broker.
type Host struct {
	store  DependentStore
	broker *Broker
	logger *slog.Logger
}

// New creates a host.
func New(store DependentStore, broker *Broker, logger *slog.Logger) *Host {
	return &Host{store: store, broker: broker, logger: logger}
}

// Broker returns the broker reload events are published on.
func (h *Host) Broker() *Broker {
	return h.broker
}

// Dependents lists every registered dependent.
func (h *Host) Dependents(ctx context.Context) ([]notifier.Dependent, error) {
	deps, err := h.store.ListDependents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}

	out := make([]notifier.Dependent, 0, len(deps))
	for _, d := range deps {
		out = append(out, notifier.Dependent{ID: d.ID, URL: d.URL})
	}
	return out, nil
}

// Reload publishes a reload event to the dependent's subscribers. A dependent
// with no connected subscriber is not an error; the event is simply lost.
func (h *Host) Reload(ctx context.Context, id string) error {
	if _, err := h.store.GetDependent(ctx, id); err != nil {
		return fmt.Errorf("reload dependent %s: %w", id, err)
	}

	n := h.broker.Publish(id, Event{
		Type:        EventReload,
		DependentID: id,
		At:          time.Now().UTC(),
	})
	h.logger.Debug("reload published", "dependent_id", id, "subscribers", n)
	return nil
}

// Forget ends every subscription of a removed dependent.
func (h *Host) Forget(id string) {
	h.broker.Close(id)
}
