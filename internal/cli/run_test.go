package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/aretw0/blobrelay/internal/logging"
	"github.com/aretw0/blobrelay/pkg/adapters/memory"
	"github.com/aretw0/blobrelay/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRunTransfers(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(), WithLogger(logging.NewNop()), WithDeliverer(memory.NewRemote("/incoming")))
	require.NoError(t, err)
	defer app.Close()
	app.Bucket.Put("one.txt", []byte("1"))
	app.Bucket.Put("two.txt", []byte("2"))

	instances, err := RunTransfers(ctx, app.Engine, RunOptions{
		ObjectIDs:   []string{"one.txt", "missing.txt", "two.txt"},
		Concurrency: 2,
		Logger:      logging.NewNop(),
	})
	require.NoError(t, err)
	require.Len(t, instances, 3)

	assert.Equal(t, "one.txt", instances[0].ObjectID)
	assert.Equal(t, domain.PhaseSucceeded, instances[0].Phase)
	assert.Equal(t, domain.PhaseFailed, instances[1].Phase)
	assert.Equal(t, domain.KindNotFound, instances[1].Error.Kind)
	assert.Equal(t, domain.PhaseSucceeded, instances[2].Phase)
	assert.False(t, AllSucceeded(instances))
	assert.True(t, AllSucceeded(instances[2:]))
}

func TestRunTransfers_RequiresObjects(t *testing.T) {
	_, err := RunTransfers(context.Background(), nil, RunOptions{})
	assert.Error(t, err)
}

func TestRunTransfers_RejectsUnsafeID(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, testConfig(), WithLogger(logging.NewNop()), WithDeliverer(memory.NewRemote("/incoming")))
	require.NoError(t, err)
	defer app.Close()

	_, err = RunTransfers(ctx, app.Engine, RunOptions{ObjectIDs: []string{"../etc/passwd"}})
	assert.ErrorIs(t, err, domain.ErrInvalidObjectID)
}

func TestRenderInstances(t *testing.T) {
	inst := &domain.Instance{
		ID:       "abc",
		ObjectID: "report.csv",
		Phase:    domain.PhaseSucceeded,
		Output:   domain.DeliveredMessage("report.csv"),
	}

	var jsonOut bytes.Buffer
	require.NoError(t, RenderInstances(&jsonOut, FormatJSON, inst))
	assert.Contains(t, jsonOut.String(), `"runtime_status": "Succeeded"`)
	assert.Contains(t, jsonOut.String(), `"object_id": "report.csv"`)

	var yamlOut bytes.Buffer
	require.NoError(t, RenderInstances(&yamlOut, FormatYAML, inst))
	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(yamlOut.Bytes(), &decoded))
	assert.Equal(t, "abc", decoded["id"])
	assert.Equal(t, "succeeded", decoded["phase"])

	var listOut bytes.Buffer
	require.NoError(t, RenderInstances(&listOut, FormatYAML, inst, inst))
	var list []map[string]any
	require.NoError(t, yaml.Unmarshal(listOut.Bytes(), &list))
	assert.Len(t, list, 2)

	assert.Error(t, RenderInstances(&bytes.Buffer{}, "xml", inst))
}
