package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kcexplore/pkg/kconfig"
	"kcexplore/pkg/kgraph"
	"kcexplore/pkg/persistence"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := persistence.Open(persistence.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleKG(t *testing.T) *kgraph.CustomKG {
	t.Helper()
	tree, err := kconfig.Load("../kconfig/testdata/sample.yaml")
	require.NoError(t, err)
	return kgraph.Build(tree, "Kconfig")
}

func TestInsertCustomKGAndStats(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	kg := sampleKG(t)

	require.NoError(t, store.InsertCustomKG(ctx, kg))

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(kg.Entities), st.Entities)
	assert.Equal(t, len(kg.Relationships), st.Relationships)
	assert.Zero(t, st.Statements)

	// Re-inserting the same document changes nothing.
	require.NoError(t, store.InsertCustomKG(ctx, kg))
	st2, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, st, st2)
}

func TestInsertCustomKGRejectsDanglingEdges(t *testing.T) {
	store := setupStore(t)
	err := store.InsertCustomKG(context.Background(), &kgraph.CustomKG{
		Entities:      []kgraph.Entity{{Name: "A", Type: kgraph.EntityConfig}},
		Relationships: []kgraph.Relationship{{SrcName: "A", TgtName: "B"}},
	})
	assert.Error(t, err)
	assert.Error(t, store.InsertCustomKG(context.Background(), nil))
}

func TestDuplicateEntitiesAreMerged(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.InsertCustomKG(ctx, &kgraph.CustomKG{
		Entities: []kgraph.Entity{
			{Name: "NR_CPUS", Type: kgraph.EntityConfig, Description: "Maximum number of CPUs"},
			{Name: "NR_CPUS", Type: kgraph.EntityHelpText, Description: "Maximum number of CPUs"},
			{Name: "NR_CPUS", Type: kgraph.EntityConfig, Description: "Used on SMP systems"},
			{Name: "NR_CPUS", Type: kgraph.EntityConfig},
		},
	}))

	g, err := store.LoadGraph(ctx)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	n := g.Nodes["NR_CPUS"]
	assert.Equal(t, kgraph.EntityConfig, n.Type, "first type wins")
	assert.Equal(t, "Maximum number of CPUs\nUsed on SMP systems", n.Description)
}

func TestRetrieveFindsEntitiesWithNeighbours(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	require.NoError(t, store.InsertCustomKG(ctx, sampleKG(t)))

	res, err := store.Retrieve(ctx, RetrievalOptions{Terms: "FRAME_WARN", Depth: 1})
	require.NoError(t, err)

	assert.Contains(t, res.Subgraph.Nodes, "FRAME_WARN")
	assert.Contains(t, res.Subgraph.Nodes, "Kernel hacking", "parent is a depth-1 neighbour")
	assert.Contains(t, res.Text, "FRAME_WARN: Warn for stack frames larger than")
	assert.Contains(t, res.Text, "Kernel hacking -> FRAME_WARN (parent of)")
	assert.Equal(t, len(res.Subgraph.Nodes), res.Count)

	res, err = store.Retrieve(ctx, RetrievalOptions{Terms: "FRAME_WARN", Depth: 0})
	require.NoError(t, err)
	assert.NotContains(t, res.Subgraph.Nodes, "Kernel hacking")
}

func TestRetrieveStatements(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	statements, err := ReadStatements(strings.NewReader(`
# comment line
Disabling SWAP reduces memory overhead for benchmarks.

Larger LOG_BUF_SHIFT values increase boot memory usage.
`))
	require.NoError(t, err)
	require.Len(t, statements, 2)

	n, err := store.InsertStatements(ctx, "notes.txt", append(statements, "   "))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := store.Retrieve(ctx, RetrievalOptions{Terms: "swap"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Disabling SWAP reduces memory overhead for benchmarks."}, res.Statements)
	assert.True(t, strings.HasPrefix(res.Text, "Disabling SWAP"))
}

func TestRetrieveEmptyTermsAndSpecialCharacters(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	require.NoError(t, store.InsertCustomKG(ctx, sampleKG(t)))

	res, err := store.Retrieve(ctx, RetrievalOptions{Terms: "   "})
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Count)

	// FTS operators and quotes must not break the query.
	_, err = store.Retrieve(ctx, RetrievalOptions{Terms: `NOT AND "quoted" high-mem`})
	assert.NoError(t, err)
}

func TestLoadGraphCacheIsInvalidated(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	g, err := store.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Empty(t, g.Nodes)

	require.NoError(t, store.InsertCustomKG(ctx, &kgraph.CustomKG{
		Entities: []kgraph.Entity{{Name: "A", Type: kgraph.EntityConfig}},
	}))
	g, err = store.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 1)
}
