package precache

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/notifier"
)

//go:embed assets
var bundled embed.FS

// Compile-time interface satisfaction check.
var _ notifier.Warmer = (*Warmer)(nil)

// Asset is one file written into the node by a warm.
type Asset struct {
	Name string
	Data []byte
}

// Warmer writes every asset into a node and pins it.
type Warmer struct {
	assets []Asset
	logger *slog.Logger
}

// New creates a warmer for the bundled assets.
func New(logger *slog.Logger) (*Warmer, error) {
	sub, err := fs.Sub(bundled, "assets")
	if err != nil {
		return nil, fmt.Errorf("open bundled assets: %w", err)
	}
	return NewFromFS(sub, logger)
}

// NewFromFS creates a warmer for every non-empty regular file in fsys, in
// lexical path order. Empty files are skipped since nodes reject empty blocks.
func NewFromFS(fsys fs.FS, logger *slog.Logger) (*Warmer, error) {
	var assets []Asset
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		assets = append(assets, Asset{Name: path, Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load assets: %w", err)
	}
	return &Warmer{assets: assets, logger: logger}, nil
}

// Assets returns the assets a warm writes.
func (w *Warmer) Assets() []Asset {
	return w.assets
}

// Warm writes and pins every asset. It stops at the first failure or when ctx
// is cancelled.
func (w *Warmer) Warm(ctx context.Context, inst backend.Instance, opts backend.Options) error {
	for _, a := range w.assets {
		if err := ctx.Err(); err != nil {
			return err
		}

		key, err := inst.BlockPut(ctx, a.Data)
		if err != nil {
			return fmt.Errorf("put %s: %w", a.Name, err)
		}
		if err := inst.PinAdd(ctx, key); err != nil {
			return fmt.Errorf("pin %s: %w", a.Name, err)
		}
		w.logger.Debug("asset cached", "kind", opts.Kind, "asset", a.Name, "key", key)
	}
	return nil
}
