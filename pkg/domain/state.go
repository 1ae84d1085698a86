package domain

import "time"

// Phase is the position of an orchestration instance in the transfer state machine.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseFetching   Phase = "fetching_content"
	PhaseDelivering Phase = "delivering_content"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether no further transition can leave the phase.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// Status is the coarse, externally visible state of an instance.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

// Instance is the durable record of one orchestration, keyed by its correlation id.
type Instance struct {
	// ID is the correlation id.
	ID string `json:"id"`

	// ObjectID names the object being transferred.
	ObjectID string `json:"object_id"`

	Phase Phase `json:"phase"`

	// StepIndex is the zero-based index of the step currently in progress
	// (len(Steps) once the instance is terminal).
	StepIndex int `json:"step_index"`

	// Attempt is the attempt number of the step in progress (1-based, 0 when idle).
	// It is checkpointed before each attempt so a resumed step keeps its count.
	Attempt int `json:"attempt"`

	// History holds the outcome of every step that has finished.
	History []StepRecord `json:"history"`

	// Output is the terminal message: the success message or the failure detail.
	Output string `json:"output,omitempty"`

	// Error is the failure that moved the instance to PhaseFailed.
	Error *Failure `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Sealed carries the encrypted form of the instance when a store
	// encrypts at rest. It is empty on every instance handed to the engine.
	Sealed []byte `json:"sealed,omitempty"`
}

// NewInstance creates a pending instance for the request.
func NewInstance(req TransferRequest, now time.Time) *Instance {
	return &Instance{
		ID:        req.InstanceID,
		ObjectID:  req.ObjectID,
		Phase:     PhasePending,
		History:   []StepRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Status derives the coarse status from the phase.
func (i *Instance) Status() Status {
	switch i.Phase {
	case PhasePending:
		return StatusPending
	case PhaseSucceeded:
		return StatusSucceeded
	case PhaseFailed:
		return StatusFailed
	default:
		return StatusRunning
	}
}

// Completed returns the successful record for step, if one exists.
func (i *Instance) Completed(step StepName) (StepRecord, bool) {
	for _, rec := range i.History {
		if rec.Step == step && rec.Result.OK() {
			return rec, true
		}
	}
	return StepRecord{}, false
}

// Snapshot returns a deep copy so callers can mutate it without touching the original.
func (i *Instance) Snapshot() *Instance {
	if i == nil {
		return nil
	}
	clone := *i
	clone.History = make([]StepRecord, len(i.History))
	for idx, rec := range i.History {
		clone.History[idx] = rec.clone()
	}
	if i.Error != nil {
		f := *i.Error
		clone.Error = &f
	}
	if i.Sealed != nil {
		clone.Sealed = append([]byte(nil), i.Sealed...)
	}
	return &clone
}
