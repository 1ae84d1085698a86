package runtime

import "fmt"

// CheckpointError reports that the engine could not persist an instance.
// It is an infrastructure failure and never becomes a step outcome.
type CheckpointError struct {
	InstanceID string
	Err        error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("failed to checkpoint instance %s: %v", e.InstanceID, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}
