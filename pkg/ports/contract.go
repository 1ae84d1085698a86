package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	instanceID := "contract-test-instance-" + time.Now().Format("20060102150405")
	now := time.Now().UTC().Truncate(time.Second)

	newInstance := func(id string) *domain.Instance {
		return domain.NewInstance(domain.TransferRequest{ObjectID: "report.csv", InstanceID: id}, now)
	}

	t.Run("Save and Load", func(t *testing.T) {
		inst := newInstance(instanceID)
		inst.Phase = domain.PhaseDelivering
		inst.StepIndex = 1
		inst.Attempt = 2
		inst.History = append(inst.History, domain.StepRecord{
			Step:        domain.StepFetch,
			Attempts:    1,
			Result:      domain.Success([]byte("a,b,c\n1,2,3")),
			CompletedAt: now,
		})

		err := store.Save(ctx, instanceID, inst)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, instanceID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, inst.ID, loaded.ID)
		assert.Equal(t, "report.csv", loaded.ObjectID)
		assert.Equal(t, domain.PhaseDelivering, loaded.Phase)
		assert.Equal(t, 1, loaded.StepIndex)
		assert.Equal(t, 2, loaded.Attempt)

		rec, ok := loaded.Completed(domain.StepFetch)
		require.True(t, ok, "completed fetch must survive persistence")
		assert.Equal(t, []byte("a,b,c\n1,2,3"), rec.Result.Payload)
		assert.True(t, loaded.CreatedAt.Equal(now))
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		inst := newInstance(instanceID)
		inst.Phase = domain.PhaseFailed
		inst.Error = &domain.Failure{Kind: domain.KindNotFound, Detail: "no such object"}
		require.NoError(t, store.Save(ctx, instanceID, inst))

		loaded, err := store.Load(ctx, instanceID)
		require.NoError(t, err)
		assert.Equal(t, domain.PhaseFailed, loaded.Phase)
		require.NotNil(t, loaded.Error)
		assert.Equal(t, domain.KindNotFound, loaded.Error.Kind)
	})

	t.Run("Load Returns Isolated Copy", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, instanceID, newInstance(instanceID)))

		first, err := store.Load(ctx, instanceID)
		require.NoError(t, err)
		first.Phase = domain.PhaseSucceeded

		second, err := store.Load(ctx, instanceID)
		require.NoError(t, err)
		assert.Equal(t, domain.PhasePending, second.Phase, "mutating a loaded instance must not change the store")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+instanceID)
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, instanceID, newInstance(instanceID))
		require.NoError(t, err)

		err = store.Delete(ctx, instanceID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, instanceID)
		assert.ErrorIs(t, err, domain.ErrInstanceNotFound, "Load after Delete should return ErrInstanceNotFound")

		assert.NoError(t, store.Delete(ctx, instanceID), "Deleting twice should be a no-op")
	})

	t.Run("List", func(t *testing.T) {
		id1 := instanceID + "-1"
		id2 := instanceID + "-2"
		_ = store.Save(ctx, id1, newInstance(id1))
		_ = store.Save(ctx, id2, newInstance(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
