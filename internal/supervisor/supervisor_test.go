package supervisor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seantiz/nodekeeper/internal/backend"
	"github.com/seantiz/nodekeeper/internal/model"
	"github.com/seantiz/nodekeeper/internal/notifier"
	"github.com/seantiz/nodekeeper/internal/supervisor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeInstance is an inert backend.Instance.
type fakeInstance struct{ endpoint string }

func (f *fakeInstance) Endpoint() string { return f.endpoint }
func (f *fakeInstance) PeerID(_ context.Context) (string, error) { return "peer", nil }
func (f *fakeInstance) BlockPut(_ context.Context, _ []byte) (string, error) { return "key", nil }
func (f *fakeInstance) PinAdd(_ context.Context, _ string) error { return nil }

// liveNodes counts instances alive across every fakeBackend in a test.
type liveNodes struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (l *liveNodes) up() {
	n := l.current.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (l *liveNodes) down() { l.current.Add(-1) }

// fakeBackend counts calls and can be made to fail or block.
type fakeBackend struct {
	name       string
	live       *liveNodes
	initErr    error
	destroyErr error
	initDelay  time.Duration
	gate       chan struct{}

	initCalls    atomic.Int32
	destroyCalls atomic.Int32

	mu       sync.Mutex
	instance *fakeInstance
}

func (f *fakeBackend) Init(_ context.Context, _ backend.Options) (backend.Instance, error) {
	f.initCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.initDelay > 0 {
		time.Sleep(f.initDelay)
	}
	if f.initErr != nil {
		return nil, f.initErr
	}
	if f.live != nil {
		f.live.up()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instance = &fakeInstance{endpoint: f.name + "://" + time.Now().String()}
	return f.instance, nil
}

func (f *fakeBackend) Destroy(_ context.Context) error {
	f.destroyCalls.Add(1)
	if f.live != nil {
		f.live.down()
	}
	f.mu.Lock()
	f.instance = nil
	f.mu.Unlock()
	return f.destroyErr
}

// recordingNotifier records outcomes and the slot state seen at notify time.
type recordingNotifier struct {
	mu         sync.Mutex
	outcomes   []notifier.Outcome
	sawActive  []bool
	supervisor *supervisor.Supervisor
}

func (r *recordingNotifier) Notify(_ context.Context, o notifier.Outcome) {
	active := false
	if r.supervisor != nil {
		active = r.supervisor.Status().Active
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
	r.sawActive = append(r.sawActive, active)
}

func (r *recordingNotifier) Outcomes() []notifier.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifier.Outcome(nil), r.outcomes...)
}

// memoryRecorder keeps transition records in memory.
type memoryRecorder struct {
	mu      sync.Mutex
	records []*model.TransitionRecord
}

func (m *memoryRecorder) RecordTransition(_ context.Context, r *model.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func newRegistry(t *testing.T, backends map[backend.Kind]backend.Backend) *backend.Registry {
	t.Helper()
	reg, err := backend.NewRegistry(backends)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func newTestSupervisor(t *testing.T, backends map[backend.Kind]backend.Backend, opts ...supervisor.Option) (*supervisor.Supervisor, *recordingNotifier) {
	t.Helper()
	n := &recordingNotifier{}
	s := supervisor.New(newRegistry(t, backends), n, discardLogger(), opts...)
	n.supervisor = s
	return s, n
}

func embeddedOpts() backend.Options {
	return backend.Options{Kind: "embedded-node"}
}

func TestEnsureActiveAndInactiveEndToEnd(t *testing.T) {
	fb := &fakeBackend{name: "embedded"}
	s, n := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})
	ctx := context.Background()

	i1, err := s.EnsureActive(ctx, embeddedOpts())
	if err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}

	i2, err := s.EnsureActive(ctx, embeddedOpts())
	if err != nil {
		t.Fatalf("second EnsureActive: %v", err)
	}
	if i1 != i2 {
		t.Error("second EnsureActive returned a different instance")
	}
	if got := fb.initCalls.Load(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}

	if err := s.EnsureInactive(ctx); err != nil {
		t.Fatalf("EnsureInactive: %v", err)
	}
	if got := fb.destroyCalls.Load(); got != 1 {
		t.Errorf("Destroy called %d times, want 1", got)
	}
	if s.Status().Active {
		t.Error("slot still active after EnsureInactive")
	}

	s.Wait()
	outcomes := n.Outcomes()
	if len(outcomes) != 2 {
		t.Fatalf("notified %d times, want 2", len(outcomes))
	}
	if outcomes[0].Transition != model.TransitionAvailable || outcomes[0].Instance != i1 {
		t.Errorf("first outcome = %+v, want available with I1", outcomes[0])
	}
	if outcomes[1].Transition != model.TransitionUnavailable || outcomes[1].Instance != nil {
		t.Errorf("second outcome = %+v, want unavailable without instance", outcomes[1])
	}
}

func TestEnsureActiveCanonicalizesAliasTag(t *testing.T) {
	fb := &fakeBackend{name: "embedded"}
	s, n := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})
	ctx := context.Background()

	if _, err := s.EnsureActive(ctx, backend.Options{Kind: "embedded"}); err != nil {
		t.Fatalf("EnsureActive(embedded): %v", err)
	}
	if got := s.Status().Kind; got != backend.KindEmbedded {
		t.Errorf("Status().Kind = %q, want %q", got, backend.KindEmbedded)
	}

	s.Wait()
	outcomes := n.Outcomes()
	if len(outcomes) != 1 || outcomes[0].Options.Kind != backend.KindEmbedded {
		t.Errorf("outcomes = %+v, want one with kind %q", outcomes, backend.KindEmbedded)
	}
	if err := s.EnsureInactive(ctx); err != nil {
		t.Fatalf("EnsureInactive: %v", err)
	}
}

func TestEnsureActiveWhenActiveIgnoresRequestedKind(t *testing.T) {
	emb := &fakeBackend{name: "embedded"}
	ext := &fakeBackend{name: "external"}
	s, _ := newTestSupervisor(t, map[backend.Kind]backend.Backend{
		backend.KindEmbedded: emb,
		backend.KindExternal: ext,
	})
	ctx := context.Background()

	first, err := s.EnsureActive(ctx, embeddedOpts())
	if err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	got, err := s.EnsureActive(ctx, backend.Options{Kind: backend.KindExternal})
	if err != nil {
		t.Fatalf("EnsureActive(external): %v", err)
	}
	if got != first {
		t.Error("EnsureActive with another kind replaced the active instance")
	}
	if ext.initCalls.Load() != 0 {
		t.Error("external backend initialised while embedded was active")
	}
	if s.Status().Kind != backend.KindEmbedded {
		t.Errorf("Status().Kind = %q, want embedded", s.Status().Kind)
	}
	s.Wait()
}

func TestEnsureInactiveWhenEmptyIsNoop(t *testing.T) {
	fb := &fakeBackend{name: "embedded"}
	s, n := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})

	if err := s.EnsureInactive(context.Background()); err != nil {
		t.Fatalf("EnsureInactive: %v", err)
	}
	if got := fb.destroyCalls.Load(); got != 0 {
		t.Errorf("Destroy called %d times on empty slot, want 0", got)
	}
	if len(n.Outcomes()) != 0 {
		t.Errorf("notified %d times on empty slot, want 0", len(n.Outcomes()))
	}
}

func TestUnsupportedKindNeverInitialises(t *testing.T) {
	fb := &fakeBackend{name: "embedded"}
	s, n := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})

	_, err := s.EnsureActive(context.Background(), backend.Options{Kind: "unknown-kind"})
	if !errors.Is(err, backend.ErrUnsupportedBackendKind) {
		t.Fatalf("error = %v, want ErrUnsupportedBackendKind", err)
	}
	if fb.initCalls.Load() != 0 {
		t.Error("Init called for unsupported kind")
	}
	if s.Status().Active {
		t.Error("slot active after unsupported kind")
	}
	if len(n.Outcomes()) != 0 {
		t.Error("dependents notified after unsupported kind")
	}
}

func TestInitFailureLeavesSlotEmptyAndRetryable(t *testing.T) {
	cause := errors.New("port already in use")
	fb := &fakeBackend{name: "embedded", initErr: cause}
	s, n := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})
	ctx := context.Background()

	_, err := s.EnsureActive(ctx, embeddedOpts())
	var initErr *backend.InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, want *backend.InitError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not wrap backend cause: %v", err)
	}
	if initErr.Kind != backend.KindEmbedded {
		t.Errorf("InitError.Kind = %q, want embedded", initErr.Kind)
	}
	if s.Status().Active {
		t.Error("slot active after failed init")
	}
	if len(n.Outcomes()) != 0 {
		t.Error("dependents notified after failed init")
	}

	fb.initErr = nil
	if _, err := s.EnsureActive(ctx, embeddedOpts()); err != nil {
		t.Fatalf("retry EnsureActive: %v", err)
	}
	if got := fb.initCalls.Load(); got != 2 {
		t.Errorf("Init called %d times, want 2", got)
	}
	s.Wait()
}

// nilBackend claims success without producing an instance.
type nilBackend struct{}

func (nilBackend) Init(_ context.Context, _ backend.Options) (backend.Instance, error) {
	return nil, nil
}

func (nilBackend) Destroy(_ context.Context) error { return nil }

func TestInitWithoutInstanceIsAnError(t *testing.T) {
	s, _ := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: nilBackend{}})

	_, err := s.EnsureActive(context.Background(), embeddedOpts())
	var initErr *backend.InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, want *backend.InitError", err)
	}
	if s.Status().Active {
		t.Error("slot active without an instance")
	}
}

func TestDestroyFailureStillClearsSlotAndNotifies(t *testing.T) {
	cause := errors.New("repo lock stuck")
	fb := &fakeBackend{name: "embedded", destroyErr: cause}
	s, n := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})
	ctx := context.Background()

	if _, err := s.EnsureActive(ctx, embeddedOpts()); err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	s.Wait()

	err := s.EnsureInactive(ctx)
	var destroyErr *backend.DestroyError
	if !errors.As(err, &destroyErr) {
		t.Fatalf("error = %v, want *backend.DestroyError", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not wrap backend cause: %v", err)
	}
	if s.Status().Active {
		t.Error("slot still active after failed destroy")
	}

	outcomes := n.Outcomes()
	if len(outcomes) != 2 || outcomes[1].Transition != model.TransitionUnavailable {
		t.Errorf("outcomes = %+v, want unavailable notification after failed destroy", outcomes)
	}

	// The slot is usable again.
	if err := s.EnsureInactive(ctx); err != nil {
		t.Errorf("second EnsureInactive: %v", err)
	}
	if got := fb.destroyCalls.Load(); got != 1 {
		t.Errorf("Destroy called %d times, want 1", got)
	}
	fb.destroyErr = nil
	if _, err := s.EnsureActive(ctx, embeddedOpts()); err != nil {
		t.Fatalf("EnsureActive after failed destroy: %v", err)
	}
	s.Wait()
}

func TestAvailabilityNotifiedAfterCommit(t *testing.T) {
	fb := &fakeBackend{name: "embedded"}
	s, n := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})

	if _, err := s.EnsureActive(context.Background(), embeddedOpts()); err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	s.Wait()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sawActive) != 1 || !n.sawActive[0] {
		t.Errorf("notifier saw active=%v, want slot committed before notification", n.sawActive)
	}
}

func TestConcurrentEnsureActiveInitialisesOnce(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{name: "embedded", gate: gate}
	s, _ := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})

	const callers = 8
	results := make([]backend.Instance, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Go(func() {
			results[i], errs[i] = s.EnsureActive(context.Background(), embeddedOpts())
		})
	}

	// Let the first Init block long enough for the others to queue up.
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d got a different instance", i)
		}
	}
	if got := fb.initCalls.Load(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}
	s.Wait()
}

func TestInterleavedTransitionsKeepMutualExclusion(t *testing.T) {
	live := &liveNodes{}
	emb := &fakeBackend{name: "embedded", live: live, initDelay: time.Millisecond}
	ext := &fakeBackend{name: "external", live: live, initDelay: time.Millisecond}
	s, _ := newTestSupervisor(t, map[backend.Kind]backend.Backend{
		backend.KindEmbedded: emb,
		backend.KindExternal: ext,
	})

	kinds := []backend.Kind{backend.KindEmbedded, backend.KindExternal}
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(uint64(w), 42))
			for range 25 {
				if rng.IntN(2) == 0 {
					kind := kinds[rng.IntN(len(kinds))]
					if _, err := s.EnsureActive(context.Background(), backend.Options{Kind: kind}); err != nil {
						t.Errorf("EnsureActive(%s): %v", kind, err)
					}
				} else if err := s.EnsureInactive(context.Background()); err != nil {
					t.Errorf("EnsureInactive: %v", err)
				}
			}
		})
	}
	wg.Wait()
	s.Wait()

	if peak := live.peak.Load(); peak > 1 {
		t.Errorf("peak live instances = %d, want at most 1", peak)
	}

	if err := s.EnsureInactive(context.Background()); err != nil {
		t.Fatalf("final EnsureInactive: %v", err)
	}
	if cur := live.current.Load(); cur != 0 {
		t.Errorf("live instances after final teardown = %d, want 0", cur)
	}
	inits := emb.initCalls.Load() + ext.initCalls.Load()
	destroys := emb.destroyCalls.Load() + ext.destroyCalls.Load()
	if inits != destroys {
		t.Errorf("Init calls = %d, Destroy calls = %d, want equal", inits, destroys)
	}
}

func TestEnsureActiveHonoursContextWhileWaiting(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{name: "embedded", gate: gate}
	s, _ := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.EnsureActive(context.Background(), embeddedOpts()); err != nil {
			t.Errorf("first EnsureActive: %v", err)
		}
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.EnsureActive(ctx, embeddedOpts()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiting EnsureActive error = %v, want DeadlineExceeded", err)
	}
	if err := s.EnsureInactive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiting EnsureInactive error = %v, want DeadlineExceeded", err)
	}

	close(gate)
	<-done
	if got := fb.initCalls.Load(); got != 1 {
		t.Errorf("Init called %d times, want 1", got)
	}
	s.Wait()
}

func TestInitNotCancelledByCallerContext(t *testing.T) {
	var sawCancel atomic.Bool
	b := &ctxBackend{sawCancel: &sawCancel}
	s, _ := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: b})

	ctx, cancel := context.WithCancel(context.Background())
	b.onInit = cancel

	if _, err := s.EnsureActive(ctx, embeddedOpts()); err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	if sawCancel.Load() {
		t.Error("backend Init observed the caller's cancellation")
	}
	s.Wait()
}

// ctxBackend reports whether the context handed to Init was cancelled.
type ctxBackend struct {
	onInit    func()
	sawCancel *atomic.Bool
}

func (c *ctxBackend) Init(ctx context.Context, _ backend.Options) (backend.Instance, error) {
	c.onInit()
	c.sawCancel.Store(ctx.Err() != nil)
	return &fakeInstance{endpoint: "ctx"}, nil
}

func (c *ctxBackend) Destroy(_ context.Context) error { return nil }

func TestStatus(t *testing.T) {
	fb := &fakeBackend{name: "embedded"}
	s, _ := newTestSupervisor(t, map[backend.Kind]backend.Backend{backend.KindEmbedded: fb})

	if st := s.Status(); st.Active || st.Since != nil {
		t.Errorf("initial Status = %+v, want empty", st)
	}

	inst, err := s.EnsureActive(context.Background(), embeddedOpts())
	if err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	st := s.Status()
	if !st.Active || st.Kind != backend.KindEmbedded || st.Endpoint != inst.Endpoint() || st.Since == nil {
		t.Errorf("Status = %+v, want active embedded at %s", st, inst.Endpoint())
	}
	s.Wait()
}

func TestRecorderReceivesTransitions(t *testing.T) {
	fb := &fakeBackend{name: "embedded", destroyErr: errors.New("stuck")}
	rec := &memoryRecorder{}
	s, _ := newTestSupervisor(t,
		map[backend.Kind]backend.Backend{backend.KindEmbedded: fb},
		supervisor.WithRecorder(rec),
	)
	ctx := context.Background()

	if _, err := s.EnsureActive(ctx, embeddedOpts()); err != nil {
		t.Fatalf("EnsureActive: %v", err)
	}
	_ = s.EnsureInactive(ctx)
	s.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.records) != 2 {
		t.Fatalf("recorded %d transitions, want 2", len(rec.records))
	}
	if r := rec.records[0]; r.Transition != model.TransitionAvailable || r.Failed() || r.Kind != "embedded-node" {
		t.Errorf("first record = %+v, want ok available embedded", r)
	}
	if r := rec.records[1]; r.Transition != model.TransitionUnavailable || !r.Failed() || r.Error == "" {
		t.Errorf("second record = %+v, want failed unavailable with error", r)
	}
}
