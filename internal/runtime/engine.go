// Package runtime implements the transfer orchestrator: a checkpointed state
// machine that fetches an object and delivers it, each step under a retry policy.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/blobrelay/internal/logging"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/ports"
	"github.com/aretw0/blobrelay/pkg/retry"
	"github.com/aretw0/blobrelay/pkg/session"
	"golang.org/x/sync/errgroup"
)

// checkpointTimeout bounds a checkpoint write that outlives a canceled caller.
const checkpointTimeout = 10 * time.Second

// DefaultResumeConcurrency caps how many instances ResumePending drives at once.
const DefaultResumeConcurrency = 4

// Engine drives transfer instances through fetch and deliver, persisting
// every transition so an interrupted instance can resume where it stopped.
type Engine struct {
	sessions  *session.Manager
	fetcher   ports.ContentFetcher
	deliverer ports.Deliverer

	fetchPolicy   retry.Policy
	deliverPolicy retry.Policy

	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	sleep       retry.Sleeper
	now         func() time.Time
	concurrency int
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithPolicy sets the retry policy of both steps.
func WithPolicy(p retry.Policy) EngineOption {
	return func(e *Engine) {
		e.fetchPolicy = p
		e.deliverPolicy = p
	}
}

// WithFetchPolicy overrides the retry policy of the fetch step.
func WithFetchPolicy(p retry.Policy) EngineOption {
	return func(e *Engine) {
		e.fetchPolicy = p
	}
}

// WithDeliverPolicy overrides the retry policy of the deliver step.
func WithDeliverPolicy(p retry.Policy) EngineOption {
	return func(e *Engine) {
		e.deliverPolicy = p
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithSleeper replaces the retry wait, mostly for tests.
func WithSleeper(s retry.Sleeper) EngineOption {
	return func(e *Engine) {
		e.sleep = s
	}
}

// WithClock sets the time source for checkpoints and events.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithResumeConcurrency caps parallel runs in ResumePending.
func WithResumeConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates an engine over the given session manager and step adapters.
func NewEngine(sessions *session.Manager, fetcher ports.ContentFetcher, deliverer ports.Deliverer, opts ...EngineOption) (*Engine, error) {
	if sessions == nil || fetcher == nil || deliverer == nil {
		return nil, errors.New("session manager, fetcher and deliverer are required")
	}
	e := &Engine{
		sessions:      sessions,
		fetcher:       fetcher,
		deliverer:     deliverer,
		fetchPolicy:   retry.DefaultPolicy(),
		deliverPolicy: retry.DefaultPolicy(),
		logger:        logging.NewNop(),
		sleep:         retry.SleepContext,
		now:           time.Now,
		concurrency:   DefaultResumeConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.fetchPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("fetch policy: %w", err)
	}
	if err := e.deliverPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("deliver policy: %w", err)
	}
	return e, nil
}

// Start validates objectID and checkpoints a new pending instance.
func (e *Engine) Start(ctx context.Context, objectID string) (*domain.Instance, error) {
	req, err := domain.NewTransferRequest(objectID)
	if err != nil {
		return nil, err
	}
	return e.StartRequest(ctx, req)
}

// StartRequest is Start with a caller-chosen correlation id. Starting the
// same id and object twice returns the existing instance.
func (e *Engine) StartRequest(ctx context.Context, req domain.TransferRequest) (*domain.Instance, error) {
	if err := domain.ValidateObjectID(req.ObjectID); err != nil {
		return nil, err
	}
	if err := domain.ValidateInstanceID(req.InstanceID); err != nil {
		return nil, err
	}

	inst, created, err := e.sessions.LoadOrCreate(ctx, req, e.now().UTC())
	if err != nil {
		return nil, err
	}
	if created {
		e.logger.Info("Transfer started", "instance_id", inst.ID, "object_id", inst.ObjectID)
	}
	return inst, nil
}

// Run drives the instance to a terminal phase and returns its final state.
// When ctx ends first, Run returns the context error together with the
// last checkpointed state, which remains resumable.
func (e *Engine) Run(ctx context.Context, instanceID string) (*domain.Instance, error) {
	var result *domain.Instance
	err := e.sessions.WithLock(ctx, instanceID, func(ctx context.Context) error {
		inst, err := e.sessions.Store().Load(ctx, instanceID)
		if err != nil {
			return err
		}
		err = e.drive(ctx, inst)
		result = inst.Snapshot()
		return err
	})
	return result, err
}

// Execute starts a transfer for objectID and runs it to completion.
func (e *Engine) Execute(ctx context.Context, objectID string) (*domain.Instance, error) {
	inst, err := e.Start(ctx, objectID)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, inst.ID)
}

// Status returns the last checkpoint without waiting for a running instance.
func (e *Engine) Status(ctx context.Context, instanceID string) (*domain.Instance, error) {
	return e.sessions.Store().Load(ctx, instanceID)
}

// List returns the ids of all stored instances.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Purge removes the stored record of an instance.
func (e *Engine) Purge(ctx context.Context, instanceID string) error {
	if err := e.sessions.Delete(ctx, instanceID); err != nil {
		return err
	}
	e.logger.Info("Transfer purged", "instance_id", instanceID)
	return nil
}

// ResumePending runs every stored instance that has not reached a terminal
// phase, as a host does after a restart. It returns how many were resumed.
func (e *Engine) ResumePending(ctx context.Context) (int, error) {
	ids, err := e.sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list instances: %w", err)
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		errs    []error
		resumed int
	)
	g.SetLimit(e.concurrency)

	for _, id := range ids {
		id := id
		inst, err := e.sessions.Store().Load(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrInstanceNotFound) {
				continue
			}
			mu.Lock()
			errs = append(errs, fmt.Errorf("load %s: %w", id, err))
			mu.Unlock()
			continue
		}
		if inst.Phase.Terminal() {
			continue
		}

		resumed++
		g.Go(func() error {
			e.logger.Info("Resuming transfer", "instance_id", id, "phase", inst.Phase)
			if _, err := e.Run(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("resume %s: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return resumed, errors.Join(errs...)
}

// checkpoint persists inst. The write is detached from ctx so a transition
// that already happened is recorded even if the caller gives up.
func (e *Engine) checkpoint(ctx context.Context, inst *domain.Instance) error {
	// A holder whose lease was lost must not overwrite the new holder's progress.
	if cause := context.Cause(ctx); errors.Is(cause, domain.ErrLockLost) {
		return &CheckpointError{InstanceID: inst.ID, Err: cause}
	}
	inst.UpdatedAt = e.now().UTC()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()
	if err := e.sessions.Store().Save(saveCtx, inst.ID, inst); err != nil {
		return &CheckpointError{InstanceID: inst.ID, Err: err}
	}
	return nil
}
