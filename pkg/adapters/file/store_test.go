package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/blobrelay/pkg/adapters/file"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/aretw0/blobrelay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure Store implements StateStore
var _ ports.StateStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunStateStoreContract(t, store)
}

func TestFileStore_AtomicSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	inst := domain.NewInstance(domain.TransferRequest{ObjectID: "a.txt", InstanceID: "inst-1"}, time.Now())
	for i := 0; i < 3; i++ {
		inst.Attempt = i
		require.NoError(t, store.Save(ctx, "inst-1", inst))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "inst-1.json", entries[0].Name())

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"inst-1"}, ids)
}

func TestFileStore_ListMissingDirectory(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "never-created"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()
	inst := domain.NewInstance(domain.TransferRequest{ObjectID: "a.txt", InstanceID: "x"}, time.Now())

	for _, id := range []string{"", "../escape", `a\b`, "..", "bad\nid"} {
		assert.ErrorIs(t, store.Save(ctx, id, inst), domain.ErrInvalidInstanceID, "id %q", id)
		_, err := store.Load(ctx, id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestFileStore_CorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	_, err := store.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInstanceNotFound)
}

func TestFileStore_ListsIDsThatLookLikeTempFiles(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"tmp-job-1", ".hidden-job", "job-2.tmp"} {
		inst := domain.NewInstance(domain.TransferRequest{ObjectID: "a.txt", InstanceID: id}, time.Now())
		require.NoError(t, store.Save(ctx, id, inst))
	}

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tmp-job-1", ".hidden-job", "job-2.tmp"}, ids)
}

func TestFileStore_OverwriteReplacesCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	inst := domain.NewInstance(domain.TransferRequest{ObjectID: "a.txt", InstanceID: "inst-1"}, time.Now())
	require.NoError(t, store.Save(ctx, "inst-1", inst))

	inst.Phase = domain.PhaseDelivering
	inst.Attempt = 2
	require.NoError(t, store.Save(ctx, "inst-1", inst))

	loaded, err := store.Load(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDelivering, loaded.Phase)
	assert.Equal(t, 2, loaded.Attempt)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
