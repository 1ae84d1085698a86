package runtime

import (
	"context"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
)

func (e *Engine) base(inst *domain.Instance, t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp:  e.now().UTC(),
		Type:       t,
		InstanceID: inst.ID,
		ObjectID:   inst.ObjectID,
	}
}

func (e *Engine) emitTransition(ctx context.Context, inst *domain.Instance, from, to domain.Phase) {
	if e.hooks.OnTransition == nil {
		return
	}
	e.hooks.OnTransition(ctx, &domain.TransitionEvent{
		EventBase: e.base(inst, domain.EventTransition),
		From:      from,
		To:        to,
	})
}

func (e *Engine) emitStepAttempt(ctx context.Context, inst *domain.Instance, step domain.StepName, attempt int) {
	if e.hooks.OnStepAttempt == nil {
		return
	}
	e.hooks.OnStepAttempt(ctx, &domain.StepEvent{
		EventBase: e.base(inst, domain.EventStepAttempt),
		Step:      step,
		Attempt:   attempt,
	})
}

func (e *Engine) emitStepRetry(ctx context.Context, inst *domain.Instance, step domain.StepName, attempt int, delay time.Duration, err error) {
	if e.hooks.OnStepRetry == nil {
		return
	}
	e.hooks.OnStepRetry(ctx, &domain.StepEvent{
		EventBase: e.base(inst, domain.EventStepRetry),
		Step:      step,
		Attempt:   attempt,
		Delay:     delay,
		Err:       domain.FailureFrom(err),
	})
}

func (e *Engine) emitStepResult(ctx context.Context, inst *domain.Instance, step domain.StepName, attempts int, duration time.Duration, failure *domain.Failure) {
	if e.hooks.OnStepResult == nil {
		return
	}
	e.hooks.OnStepResult(ctx, &domain.StepEvent{
		EventBase: e.base(inst, domain.EventStepResult),
		Step:      step,
		Attempt:   attempts,
		Duration:  duration,
		Err:       failure,
	})
}
