package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTransition  EventType = "transition"
	EventStepAttempt EventType = "step_attempt"
	EventStepRetry   EventType = "step_retry"
	EventStepResult  EventType = "step_result"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	InstanceID string    `json:"instance_id"`
	ObjectID   string    `json:"object_id"`
}

// TransitionEvent is emitted after a phase change has been checkpointed.
type TransitionEvent struct {
	EventBase
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// StepEvent describes one attempt of a step, or its final outcome.
type StepEvent struct {
	EventBase
	Step     StepName      `json:"step"`
	Attempt  int           `json:"attempt"`
	Duration time.Duration `json:"duration,omitempty"`
	Delay    time.Duration `json:"delay,omitempty"`
	Err      *Failure      `json:"error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnTransition  func(context.Context, *TransitionEvent)
	OnStepAttempt func(context.Context, *StepEvent)
	OnStepRetry   func(context.Context, *StepEvent)
	OnStepResult  func(context.Context, *StepEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTransition:  chain(h.OnTransition, other.OnTransition),
		OnStepAttempt: chain(h.OnStepAttempt, other.OnStepAttempt),
		OnStepRetry:   chain(h.OnStepRetry, other.OnStepRetry),
		OnStepResult:  chain(h.OnStepResult, other.OnStepResult),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
