package blobrelay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/blobrelay"
	"github.com/aretw0/blobrelay/pkg/adapters/file"
	"github.com/aretw0/blobrelay/pkg/adapters/memory"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyRemote struct {
	*memory.Remote
	failures int
}

func (r *flakyRemote) Deliver(ctx context.Context, name string, content []byte) (domain.DeliveryReceipt, error) {
	if r.failures > 0 {
		r.failures--
		return domain.DeliveryReceipt{}, domain.Errorf(domain.KindConnectionError, "connection reset")
	}
	return r.Remote.Deliver(ctx, name, content)
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func TestNew_RequiresAdapters(t *testing.T) {
	_, err := blobrelay.New(blobrelay.WithDeliverer(memory.NewRemote("/")))
	assert.Error(t, err)

	_, err = blobrelay.New(blobrelay.WithFetcher(memory.NewBucket()))
	assert.Error(t, err)
}

func TestEngine_TransferRetriesDelivery(t *testing.T) {
	bucket := memory.NewBucket()
	bucket.Put("data/report.csv", []byte("x"))
	remote := &flakyRemote{Remote: memory.NewRemote("/incoming"), failures: 2}

	var retries int
	eng, err := blobrelay.New(
		blobrelay.WithFetcher(bucket),
		blobrelay.WithDeliverer(remote),
		blobrelay.WithSleeper(noSleep),
		blobrelay.WithLifecycleHooks(domain.LifecycleHooks{
			OnStepRetry: func(ctx context.Context, e *domain.StepEvent) { retries++ },
		}),
	)
	require.NoError(t, err)

	out, err := eng.Transfer(context.Background(), "data/report.csv")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveredMessage("data/report.csv"), out)
	assert.Equal(t, 2, retries)
	assert.Equal(t, 1, bucket.Fetches("data/report.csv"))

	content, ok := remote.ReadFile("/incoming/data/report.csv")
	require.True(t, ok)
	assert.Equal(t, "x", string(content))
}

func TestEngine_TransferRejectsUnsafeObjectID(t *testing.T) {
	eng, err := blobrelay.New(
		blobrelay.WithFetcher(memory.NewBucket()),
		blobrelay.WithDeliverer(memory.NewRemote("/incoming")),
	)
	require.NoError(t, err)

	_, err = eng.Transfer(context.Background(), "../../etc/shadow")
	assert.True(t, errors.Is(err, domain.ErrInvalidObjectID))
}

func TestEngine_StepPoliciesAndPersistence(t *testing.T) {
	ctx := context.Background()
	store := file.New(t.TempDir())
	bucket := memory.NewBucket()
	bucket.Put("a.bin", []byte{1, 2, 3})
	remote := &flakyRemote{Remote: memory.NewRemote("/out"), failures: 5}

	eng, err := blobrelay.New(
		blobrelay.WithFetcher(bucket),
		blobrelay.WithDeliverer(remote),
		blobrelay.WithStateStore(store),
		blobrelay.WithSleeper(noSleep),
		blobrelay.WithStepPolicies(
			retry.Policy{FirstRetryInterval: time.Second, MaxAttempts: 1},
			retry.Policy{FirstRetryInterval: time.Second, MaxAttempts: 2},
		),
	)
	require.NoError(t, err)

	inst, err := eng.Start(ctx, "a.bin")
	require.NoError(t, err)

	final, err := eng.Run(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFailed, final.Phase)
	assert.Equal(t, domain.KindConnectionError, final.Error.Kind)
	assert.Equal(t, 3, remote.failures)

	ids, err := eng.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{inst.ID}, ids)

	status, err := eng.Status(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, status.Status())

	n, err := eng.ResumePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, eng.Purge(ctx, inst.ID))
	_, err = eng.Status(ctx, inst.ID)
	assert.ErrorIs(t, err, domain.ErrInstanceNotFound)
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, blobrelay.Version)
}
