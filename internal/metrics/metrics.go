// Package metrics exposes engine lifecycle events as Prometheus collectors.
package metrics

import (
	"context"

	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the transfer metrics.
type Collectors struct {
	transitions *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	retries     *prometheus.CounterVec
	results     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobrelay_transitions_total",
				Help: "Phase transitions of transfer instances",
			},
			[]string{"to"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobrelay_step_attempts_total",
				Help: "Step attempts started",
			},
			[]string{"step"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobrelay_step_retries_total",
				Help: "Step attempts that failed and were scheduled for retry",
			},
			[]string{"step", "kind"},
		),
		results: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobrelay_step_results_total",
				Help: "Final step outcomes",
			},
			[]string{"step", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blobrelay_step_duration_seconds",
				Help:    "Duration of a step including retries",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"step"},
		),
	}
	for _, col := range []prometheus.Collector{c.transitions, c.attempts, c.retries, c.results, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Hooks returns lifecycle hooks that record into the collectors.
func (c *Collectors) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			c.transitions.WithLabelValues(string(e.To)).Inc()
		},
		OnStepAttempt: func(ctx context.Context, e *domain.StepEvent) {
			c.attempts.WithLabelValues(string(e.Step)).Inc()
		},
		OnStepRetry: func(ctx context.Context, e *domain.StepEvent) {
			kind := string(domain.KindTransient)
			if e.Err != nil {
				kind = string(e.Err.Kind)
			}
			c.retries.WithLabelValues(string(e.Step), kind).Inc()
		},
		OnStepResult: func(ctx context.Context, e *domain.StepEvent) {
			outcome := "success"
			if e.Err != nil {
				outcome = string(e.Err.Kind)
			}
			c.results.WithLabelValues(string(e.Step), outcome).Inc()
			c.duration.WithLabelValues(string(e.Step)).Observe(e.Duration.Seconds())
		},
	}
}
