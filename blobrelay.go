package blobrelay

import (
	"context"
	_ "embed"
	"errors"
	"io"
	"log/slog"

	"github.com/aretw0/blobrelay/internal/runtime"
	"github.com/aretw0/blobrelay/pkg/adapters/memory"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/ports"
	"github.com/aretw0/blobrelay/pkg/retry"
	"github.com/aretw0/blobrelay/pkg/session"
)

// Version is the release of this module.
//
//go:embed VERSION
var Version string

// Engine is the high-level entry point for embedding blobrelay as a library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime   *runtime.Engine
	store     ports.StateStore
	locker    ports.DistributedLocker
	fetcher   ports.ContentFetcher
	deliverer ports.Deliverer
	hooks     domain.LifecycleHooks
	logger    *slog.Logger

	runtimeOpts []runtime.EngineOption
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithFetcher sets where object content is read from. Required.
func WithFetcher(f ports.ContentFetcher) Option {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// WithDeliverer sets where content is written to. Required.
func WithDeliverer(d ports.Deliverer) Option {
	return func(e *Engine) {
		e.deliverer = d
	}
}

// WithStateStore sets where checkpoints are kept (default: in memory).
func WithStateStore(s ports.StateStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithDistributedLocker serialises instances across processes sharing a store.
func WithDistributedLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithRetryPolicy sets the policy used by both steps.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithPolicy(p))
	}
}

// WithStepPolicies sets separate policies for the fetch and deliver steps.
func WithStepPolicies(fetch, deliver retry.Policy) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithFetchPolicy(fetch), runtime.WithDeliverPolicy(deliver))
	}
}

// WithSleeper replaces the wait between retries.
func WithSleeper(s retry.Sleeper) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithSleeper(s))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New initializes a new Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.fetcher == nil {
		return nil, errors.New("a content fetcher is required")
	}
	if eng.deliverer == nil {
		return nil, errors.New("a deliverer is required")
	}
	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	// Never hand a nil logger to the runtime, it would replace its default.
	if eng.logger == nil {
		eng.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)

	rt, err := runtime.NewEngine(session.NewManager(eng.store, sessionOpts...), eng.fetcher, eng.deliverer, runtimeOpts...)
	if err != nil {
		return nil, err
	}
	eng.runtime = rt
	return eng, nil
}

// Transfer moves objectID to the remote and returns the terminal output:
// the delivered message on success, the failure detail otherwise.
func (e *Engine) Transfer(ctx context.Context, objectID string) (string, error) {
	inst, err := e.runtime.Execute(ctx, objectID)
	if err != nil {
		return "", err
	}
	return inst.Output, nil
}

// Start checkpoints a new pending instance without running it.
func (e *Engine) Start(ctx context.Context, objectID string) (*domain.Instance, error) {
	return e.runtime.Start(ctx, objectID)
}

// StartRequest is Start with a caller-chosen correlation id.
func (e *Engine) StartRequest(ctx context.Context, req domain.TransferRequest) (*domain.Instance, error) {
	return e.runtime.StartRequest(ctx, req)
}

// Run drives an instance to a terminal phase.
func (e *Engine) Run(ctx context.Context, instanceID string) (*domain.Instance, error) {
	return e.runtime.Run(ctx, instanceID)
}

// Status returns the last checkpoint of an instance.
func (e *Engine) Status(ctx context.Context, instanceID string) (*domain.Instance, error) {
	return e.runtime.Status(ctx, instanceID)
}

// List returns the ids of all stored instances.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	return e.runtime.List(ctx)
}

// Purge deletes an instance and its history.
func (e *Engine) Purge(ctx context.Context, instanceID string) error {
	return e.runtime.Purge(ctx, instanceID)
}

// ResumePending drives every non-terminal instance in the store and
// reports how many were resumed.
func (e *Engine) ResumePending(ctx context.Context) (int, error) {
	return e.runtime.ResumePending(ctx)
}
