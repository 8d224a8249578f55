package store

import (
	"context"

	"github.com/seantiz/nodekeeper/internal/model"
)

// Store defines the persistence operations for dependents and transition
// history.
type Store interface {
	CreateDependent(ctx context.Context, d *model.Dependent) error
	GetDependent(ctx context.Context, id string) (*model.Dependent, error)
	ListDependents(ctx context.Context) ([]*model.Dependent, error)
	DeleteDependent(ctx context.Context, id string) error
	RecordTransition(ctx context.Context, r *model.TransitionRecord) error
	ListTransitions(ctx context.Context, limit, offset int) ([]*model.TransitionRecord, int, error)
	Close() error
}
