package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/seantiz/nodekeeper/internal/api"
	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/backend/embedded"
	"github.com/seantiz/nodekeeper/internal/backend/external"
	"github.com/seantiz/nodekeeper/internal/backend/sockets"
	"github.com/seantiz/nodekeeper/internal/backend/vendornode"
	"github.com/seantiz/nodekeeper/internal/config"
	"github.com/seantiz/nodekeeper/internal/host"
	"github.com/seantiz/nodekeeper/internal/notifier"
	"github.com/seantiz/nodekeeper/internal/precache"
	"github.com/seantiz/nodekeeper/internal/store"
	"github.com/seantiz/nodekeeper/internal/supervisor"
)

const teardownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("nodekeeper: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"node_kind", cfg.Node.Kind,
		"autostart", cfg.Autostart,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg, err := backend.NewRegistry(map[backend.Kind]backend.Backend{
		backend.KindExternal:        external.New(logger),
		backend.KindEmbedded:        embedded.New(logger),
		backend.KindEmbeddedSockets: sockets.New(logger),
		backend.KindExternalVendor:  vendornode.New(logger),
	})
	if err != nil {
		log.Fatalf("failed to build backend registry: %v", err)
	}

	warmer, err := precache.New(logger)
	if err != nil {
		log.Fatalf("failed to load cache assets: %v", err)
	}

	h := host.New(db, host.NewBroker(), logger)
	n := notifier.New(h, warmer, logger, notifier.WithWarmDelay(cfg.WarmDelay))
	sup := supervisor.New(reg, n, logger, supervisor.WithRecorder(db))

	if cfg.Autostart {
		if _, err := sup.EnsureActive(context.Background(), cfg.Node); err != nil {
			// The node can still be started through the API.
			logger.Error("autostart node", "kind", cfg.Node.Kind, "error", err)
		}
	}

	srv := api.NewServer(cfg.ListenAddr, db, reg, sup, h, logger,
		api.WithAllowedOrigins(cfg.CORSAllowedOrigins))

	runErr := srv.Run()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	var destroyErr *backend.DestroyError
	if err := sup.EnsureInactive(ctx); err != nil && !errors.As(err, &destroyErr) {
		logger.Error("stop node", "error", err)
	}
	sup.Wait()
	n.Wait()

	if runErr != nil {
		log.Fatalf("server error: %v", runErr)
	}
}
