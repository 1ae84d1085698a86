package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstance_Status(t *testing.T) {
	cases := map[Phase]Status{
		PhasePending:    StatusPending,
		PhaseFetching:   StatusRunning,
		PhaseDelivering: StatusRunning,
		PhaseSucceeded:  StatusSucceeded,
		PhaseFailed:     StatusFailed,
	}
	for phase, want := range cases {
		inst := &Instance{Phase: phase}
		assert.Equal(t, want, inst.Status(), phase)
		assert.Equal(t, want == StatusSucceeded || want == StatusFailed, phase.Terminal(), phase)
	}
}

func TestInstance_Completed(t *testing.T) {
	inst := NewInstance(TransferRequest{ObjectID: "a", InstanceID: "1"}, time.Now())
	_, ok := inst.Completed(StepFetch)
	assert.False(t, ok)

	inst.History = append(inst.History,
		StepRecord{Step: StepFetch, Result: Failed(Errorf(KindTransient, "boom"))},
	)
	_, ok = inst.Completed(StepFetch)
	assert.False(t, ok, "a failed record is not a completion")

	inst.History = append(inst.History, StepRecord{Step: StepFetch, Result: Success([]byte("x"))})
	rec, ok := inst.Completed(StepFetch)
	require.True(t, ok)
	assert.Equal(t, []byte("x"), rec.Result.Payload)
}

func TestInstance_SnapshotIsDeep(t *testing.T) {
	inst := NewInstance(TransferRequest{ObjectID: "a", InstanceID: "1"}, time.Now())
	inst.History = append(inst.History, StepRecord{
		Step:    StepDeliver,
		Result:  Success([]byte("payload")),
		Receipt: &DeliveryReceipt{Path: "/incoming/a"},
	})
	inst.Error = &Failure{Kind: KindNotFound, Detail: "gone"}

	snap := inst.Snapshot()
	snap.History[0].Result.Payload[0] = 'X'
	snap.History[0].Receipt.Path = "/elsewhere"
	snap.Error.Detail = "changed"
	snap.History = append(snap.History, StepRecord{})

	assert.Equal(t, "payload", string(inst.History[0].Result.Payload))
	assert.Equal(t, "/incoming/a", inst.History[0].Receipt.Path)
	assert.Equal(t, "gone", inst.Error.Detail)
	assert.Len(t, inst.History, 1)

	var nilInst *Instance
	assert.Nil(t, nilInst.Snapshot())
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("step: %w", Errorf(KindAccessDenied, "forbidden"))
	assert.Equal(t, KindAccessDenied, KindOf(err))
	assert.Equal(t, KindTransient, KindOf(errors.New("unclassified")))

	assert.True(t, KindTransient.Retryable())
	assert.True(t, KindConnectionError.Retryable())
	for _, k := range []ErrorKind{KindNotFound, KindAccessDenied, KindCredentialError, KindRemoteWriteError} {
		assert.False(t, k.Retryable(), k)
	}
}

func TestFailureFrom(t *testing.T) {
	f := FailureFrom(Errorf(KindNotFound, "object %q does not exist", "x"))
	assert.Equal(t, KindNotFound, f.Kind)
	assert.Equal(t, `NotFound: object "x" does not exist`, f.Detail)
	assert.Equal(t, f.Detail, f.Error())
}
