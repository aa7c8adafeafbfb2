package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

func TestAdapter_RecordsPerViewer(t *testing.T) {
	a := New()
	in := []core.Intent{core.Create("root", core.IdentityTransform)}

	require.NoError(t, a.Apply("alice", "v1", in))
	require.NoError(t, a.Apply("alice", "v2", []core.Intent{core.Remove("root")}))
	require.NoError(t, a.Apply("alice", "v1", nil))

	in[0].Bone = "mutated"
	batches := a.Batches("alice")
	require.Len(t, batches, 2)
	assert.Equal(t, "root", batches[0].Intents[0].Bone, "intents are copied")

	assert.Len(t, a.Intents("alice", "v1"), 1)
	assert.Empty(t, a.Batches("bob"))

	a.Reset()
	assert.Empty(t, a.Batches("alice"))
}

func TestAdapter_Fail(t *testing.T) {
	a := New()
	a.Fail("bob")
	assert.Error(t, a.Apply("bob", "v1", []core.Intent{core.Remove("root")}))
	assert.NoError(t, a.Apply("alice", "v1", nil))
	assert.Equal(t, "memory", a.Version())
}
