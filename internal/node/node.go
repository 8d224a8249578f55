package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// AgentVersion is reported by /api/v0/id and /api/v0/version.
	AgentVersion = "nodekeeper-embedded/0.1.0"

	repoVersion       = "1"
	maxBlockSize      = 2 << 20 // 2 MB
	readHeaderTimeout = 10 * time.Second
)

// Node is an in-process node serving the /api/v0 HTTP API.
type Node struct {
	repo   *Repo
	router *chi.Mux
	logger *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	serveErr chan error
}

// Open opens the repo at repoPath and prepares the API router. The node does
// not accept connections until Start is called.
func Open(repoPath string, logger *slog.Logger) (*Node, error) {
	repo, err := OpenRepo(repoPath)
	if err != nil {
		return nil, err
	}

	n := &Node{
		repo:   repo,
		router: chi.NewRouter(),
		logger: logger.With("peer_id", repo.PeerID()),
	}
	n.router.Use(middleware.Recoverer)
	n.routes()
	return n, nil
}

// routes registers the node API. Every command is POST-only.
func (n *Node) routes() {
	n.router.Route("/api/v0", func(r chi.Router) {
		r.Post("/id", n.handleID)
		r.Post("/version", n.handleVersion)
		r.Post("/block/put", n.handleBlockPut)
		r.Post("/block/get", n.handleBlockGet)
		r.Post("/pin/add", n.handlePinAdd)
		r.Post("/pin/ls", n.handlePinList)
	})
}

// Handler returns the node API handler.
func (n *Node) Handler() http.Handler {
	return n.router
}

// PeerID returns the node identity.
func (n *Node) PeerID() string {
	return n.repo.PeerID()
}

// Start serves the API on l in a background goroutine.
func (n *Node) Start(l net.Listener) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.server != nil {
		return errors.New("node already serving")
	}

	n.server = &http.Server{
		Handler:           n.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	n.listener = l
	n.serveErr = make(chan error, 1)

	srv := n.server
	errCh := n.serveErr
	go func() {
		n.logger.Info("node api listening", "network", l.Addr().Network(), "addr", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return nil
}

// Shutdown stops serving and closes the repo. The repo is closed even when
// the HTTP shutdown fails; both errors are reported.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	srv, errCh := n.server, n.serveErr
	n.server, n.listener, n.serveErr = nil, nil, nil
	n.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown api server: %w", err))
		}
		if err := <-errCh; err != nil {
			errs = append(errs, fmt.Errorf("serve api: %w", err))
		}
	}
	if err := n.repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close repo: %w", err))
	}

	n.logger.Info("node api stopped")
	return errors.Join(errs...)
}

func (n *Node) handleID(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	var addrs []string
	if n.listener != nil {
		addrs = []string{n.listener.Addr().Network() + "://" + n.listener.Addr().String()}
	}
	n.mu.Unlock()

	n.writeJSON(w, http.StatusOK, map[string]any{
		"ID":           n.repo.PeerID(),
		"AgentVersion": AgentVersion,
		"Addresses":    addrs,
	})
}

func (n *Node) handleVersion(w http.ResponseWriter, _ *http.Request) {
	n.writeJSON(w, http.StatusOK, map[string]string{
		"Version": AgentVersion,
		"Repo":    repoVersion,
		"System":  runtime.GOARCH + "/" + runtime.GOOS,
	})
}

func (n *Node) handleBlockPut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBlockSize))
	if err != nil {
		n.writeError(w, http.StatusBadRequest, fmt.Sprintf("read block: %v", err))
		return
	}
	if len(data) == 0 {
		n.writeError(w, http.StatusBadRequest, "empty block")
		return
	}

	key, err := n.repo.PutBlock(r.Context(), data)
	if err != nil {
		n.logger.Error("put block", "error", err)
		n.writeError(w, http.StatusInternalServerError, "failed to store block")
		return
	}
	n.writeJSON(w, http.StatusOK, map[string]any{"Key": key, "Size": len(data)})
}

func (n *Node) handleBlockGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("arg")
	if key == "" {
		n.writeError(w, http.StatusBadRequest, "argument \"key\" is required")
		return
	}

	data, err := n.repo.GetBlock(r.Context(), key)
	if errors.Is(err, ErrBlockNotFound) {
		n.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		n.logger.Error("get block", "key", key, "error", err)
		n.writeError(w, http.StatusInternalServerError, "failed to read block")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		n.logger.Error("write block", "key", key, "error", err)
	}
}

func (n *Node) handlePinAdd(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("arg")
	if key == "" {
		n.writeError(w, http.StatusBadRequest, "argument \"key\" is required")
		return
	}

	if err := n.repo.Pin(r.Context(), key); err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			n.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		n.logger.Error("pin block", "key", key, "error", err)
		n.writeError(w, http.StatusInternalServerError, "failed to pin block")
		return
	}
	n.writeJSON(w, http.StatusOK, map[string][]string{"Pins": {key}})
}

func (n *Node) handlePinList(w http.ResponseWriter, r *http.Request) {
	keys, err := n.repo.Pins(r.Context())
	if err != nil {
		n.logger.Error("list pins", "error", err)
		n.writeError(w, http.StatusInternalServerError, "failed to list pins")
		return
	}

	pins := make(map[string]map[string]string, len(keys))
	for _, k := range keys {
		pins[k] = map[string]string{"Type": "recursive"}
	}
	n.writeJSON(w, http.StatusOK, map[string]any{"Keys": pins})
}

// writeJSON writes a JSON response with the given status code.
func (n *Node) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		n.logger.Error("encode response", "error", err)
	}
}

// writeError writes an error body in the node API's error shape.
func (n *Node) writeError(w http.ResponseWriter, status int, message string) {
	n.writeJSON(w, status, map[string]any{"Message": message, "Code": 0, "Type": "error"})
}
