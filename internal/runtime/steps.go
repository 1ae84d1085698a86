package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/retry"
)

// drive advances inst until it is terminal or an error stops it.
func (e *Engine) drive(ctx context.Context, inst *domain.Instance) error {
	for !inst.Phase.Terminal() {
		var err error
		switch inst.Phase {
		case domain.PhasePending:
			err = e.transition(ctx, inst, domain.PhaseFetching)
		case domain.PhaseFetching:
			err = e.fetch(ctx, inst)
		case domain.PhaseDelivering:
			err = e.deliver(ctx, inst)
		default:
			return fmt.Errorf("instance %s is in unknown phase %q", inst.ID, inst.Phase)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context, inst *domain.Instance) error {
	if _, done := inst.Completed(domain.StepFetch); done {
		inst.StepIndex = 1
		inst.Attempt = 0
		return e.transition(ctx, inst, domain.PhaseDelivering)
	}

	started := e.now()
	content, attempts, err := runStep(ctx, e, inst, domain.StepFetch, e.fetchPolicy, func(ctx context.Context) ([]byte, error) {
		return e.fetcher.Fetch(ctx, inst.ObjectID)
	})
	if err != nil {
		return e.stepFailed(ctx, inst, domain.StepFetch, attempts, e.now().Sub(started), err)
	}

	inst.History = append(inst.History, domain.StepRecord{
		Step:        domain.StepFetch,
		Attempts:    attempts,
		Result:      domain.Success(content),
		CompletedAt: e.now().UTC(),
	})
	inst.StepIndex = 1
	inst.Attempt = 0
	e.emitStepResult(ctx, inst, domain.StepFetch, attempts, e.now().Sub(started), nil)
	return e.transition(ctx, inst, domain.PhaseDelivering)
}

func (e *Engine) deliver(ctx context.Context, inst *domain.Instance) error {
	fetched, ok := inst.Completed(domain.StepFetch)
	if !ok {
		// A delivering checkpoint without fetched content cannot be delivered; fetch again.
		e.logger.Warn("Fetched content missing from checkpoint, refetching", "instance_id", inst.ID)
		inst.StepIndex = 0
		inst.Attempt = 0
		return e.transition(ctx, inst, domain.PhaseFetching)
	}

	started := e.now()
	receipt, attempts, err := runStep(ctx, e, inst, domain.StepDeliver, e.deliverPolicy, func(ctx context.Context) (domain.DeliveryReceipt, error) {
		return e.deliverer.Deliver(ctx, inst.ObjectID, fetched.Result.Payload)
	})
	if err != nil {
		return e.stepFailed(ctx, inst, domain.StepDeliver, attempts, e.now().Sub(started), err)
	}

	message := domain.DeliveredMessage(inst.ObjectID)
	inst.History = append(inst.History, domain.StepRecord{
		Step:        domain.StepDeliver,
		Attempts:    attempts,
		Result:      domain.Success([]byte(message)),
		Receipt:     &receipt,
		CompletedAt: e.now().UTC(),
	})
	inst.StepIndex = len(domain.Steps)
	inst.Attempt = 0
	inst.Output = message
	e.emitStepResult(ctx, inst, domain.StepDeliver, attempts, e.now().Sub(started), nil)
	if err := e.transition(ctx, inst, domain.PhaseSucceeded); err != nil {
		return err
	}
	e.logger.Info("Transfer succeeded", "instance_id", inst.ID, "object_id", inst.ObjectID, "path", receipt.Path, "bytes", receipt.Bytes)
	return nil
}

// stepFailed records a terminal step failure. Context errors leave the
// instance untouched so it can resume.
func (e *Engine) stepFailed(ctx context.Context, inst *domain.Instance, step domain.StepName, attempts int, elapsed time.Duration, err error) error {
	if domain.IsCanceled(err) && ctx.Err() != nil {
		e.logger.Info("Transfer interrupted", "instance_id", inst.ID, "step", step, "attempt", inst.Attempt)
		return err
	}
	var cpErr *CheckpointError
	if errors.As(err, &cpErr) || errors.Is(err, domain.ErrInvalidPolicy) {
		return err
	}

	failure := domain.FailureFrom(err)
	inst.History = append(inst.History, domain.StepRecord{
		Step:        step,
		Attempts:    attempts,
		Result:      domain.StepResult{Err: failure},
		CompletedAt: e.now().UTC(),
	})
	inst.Attempt = 0
	inst.Error = failure
	inst.Output = failure.Detail
	e.emitStepResult(ctx, inst, step, attempts, elapsed, failure)
	if err := e.transition(ctx, inst, domain.PhaseFailed); err != nil {
		return err
	}
	e.logger.Warn("Transfer failed",
		"instance_id", inst.ID,
		"object_id", inst.ObjectID,
		"step", step,
		"attempts", attempts,
		"kind", failure.Kind,
		"err", failure.Detail,
	)
	return nil
}

// transition moves inst to phase and checkpoints it before announcing the change.
func (e *Engine) transition(ctx context.Context, inst *domain.Instance, to domain.Phase) error {
	from := inst.Phase
	inst.Phase = to
	if err := e.checkpoint(ctx, inst); err != nil {
		inst.Phase = from
		return err
	}
	e.logger.Debug("Transition", "instance_id", inst.ID, "from", from, "to", to)
	e.emitTransition(ctx, inst, from, to)
	return nil
}

// runStep runs one step under its retry policy. The attempt number is
// checkpointed before each attempt, and a resumed step continues counting
// from the attempt that was interrupted.
func runStep[T any](ctx context.Context, e *Engine, inst *domain.Instance, step domain.StepName, policy retry.Policy, fn func(context.Context) (T, error)) (T, int, error) {
	return retry.Do(ctx, policy,
		func(ctx context.Context, attempt int) (T, error) {
			e.emitStepAttempt(ctx, inst, step, attempt)
			start := time.Now()
			val, err := fn(ctx)
			if err != nil {
				e.logger.Debug("Step attempt failed",
					"instance_id", inst.ID,
					"step", step,
					"attempt", attempt,
					"duration", time.Since(start),
					"err", err,
				)
			}
			return val, err
		},
		retry.StartAt(inst.Attempt),
		retry.WithSleeper(e.sleep),
		retry.BeforeAttempt(func(attempt int) error {
			inst.Attempt = attempt
			return e.checkpoint(ctx, inst)
		}),
		retry.OnRetry(func(attempt int, err error, delay time.Duration) {
			e.logger.Warn("Step failed, retrying",
				"instance_id", inst.ID,
				"step", step,
				"attempt", attempt,
				"delay", delay,
				"err", err,
			)
			e.emitStepRetry(ctx, inst, step, attempt, delay, err)
		}),
	)
}
