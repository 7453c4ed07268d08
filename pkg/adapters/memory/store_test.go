package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwindow/realtime/pkg/adapters/memory"
	"github.com/kwindow/realtime/pkg/envelope"
	"github.com/kwindow/realtime/pkg/ports"
)

func TestWorkflowStore_SaveLoadDelete(t *testing.T) {
	store := memory.NewWorkflowStore()
	ctx := context.Background()

	rec := &ports.WorkflowRecord{
		ID:    "wf1",
		Name:  "demo",
		Nodes: []envelope.Node{{ID: "n1", Type: "url"}},
		Edges: []envelope.Edge{{ID: "e1", SourceID: "n1", TargetID: "n1"}},
	}
	require.NoError(t, store.Save(ctx, rec))

	loaded, err := store.Load(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "demo", loaded.Name)
	assert.Len(t, loaded.Nodes, 1)

	// Mutating the loaded copy must not leak back into the store.
	loaded.Nodes[0].ID = "mutated"
	again, err := store.Load(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, "n1", again.Nodes[0].ID)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf1"}, ids)

	require.NoError(t, store.Delete(ctx, "wf1"))
	_, err = store.Load(ctx, "wf1")
	assert.ErrorIs(t, err, ports.ErrWorkflowNotFound)
}

func TestDocumentStore_ListPreservesInsertionOrder(t *testing.T) {
	store := memory.NewDocumentStore()
	ctx := context.Background()

	for _, id := range []string{"d1", "d2", "d3"} {
		require.NoError(t, store.Save(ctx, &ports.DocumentRecord{ID: id, Title: id}))
	}

	docs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "d1", docs[0].ID)
	assert.Equal(t, "d3", docs[2].ID)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrDocumentNotFound)
}
