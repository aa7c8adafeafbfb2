package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephaestus-engine/hephaestus/internal/model"
	"github.com/hephaestus-engine/hephaestus/internal/view"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

func testModel(t *testing.T, name string) *model.Model {
	t.Helper()
	m, err := model.NewBuilder(name).
		AddBone(model.BoneSpec{Name: "root", Bind: core.IdentityTransform}).
		Build()
	require.NoError(t, err)
	return m
}

func TestRegisterModel(t *testing.T) {
	r := New()
	m := testModel(t, "golem")

	require.NoError(t, r.RegisterModel("golem", m))
	assert.ErrorIs(t, r.RegisterModel("golem", m), ErrDuplicateModel)

	got, ok := r.Model("golem")
	require.True(t, ok)
	assert.Same(t, m, got)

	_, ok = r.Model("dragon")
	assert.False(t, ok)

	require.NoError(t, r.RegisterModel("anvil", testModel(t, "anvil")))
	assert.Equal(t, []string{"anvil", "golem"}, r.Models())
}

func TestViews(t *testing.T) {
	r := New()
	m := testModel(t, "golem")

	b := view.New("b", m)
	a := view.New("a", m)
	require.NoError(t, r.RegisterView(b))
	require.NoError(t, r.RegisterView(a))
	assert.ErrorIs(t, r.RegisterView(view.New("a", m)), ErrDuplicateView)

	got, ok := r.View("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	views := r.Views()
	require.Len(t, views, 2)
	assert.Equal(t, core.ViewID("a"), views[0].ID())
	assert.Same(t, views[0].Model(), views[1].Model(), "views share one model")

	removed, ok := r.RemoveView("a")
	assert.True(t, ok)
	assert.Same(t, a, removed)
	_, ok = r.RemoveView("a")
	assert.False(t, ok)
	_, ok = r.View("a")
	assert.False(t, ok)
}

func TestGenerateViewID_Unique(t *testing.T) {
	r := New()
	const goroutines, perGoroutine = 8, 500

	var mu sync.Mutex
	seen := make(map[core.ViewID]bool, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]core.ViewID, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				local = append(local, r.GenerateViewID())
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}

func TestGenerateViewID_Format(t *testing.T) {
	r := New()
	a, b := r.GenerateViewID(), r.GenerateViewID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[0-9a-f]+$`, string(a))
	assert.LessOrEqual(t, len(a), 16)
}
