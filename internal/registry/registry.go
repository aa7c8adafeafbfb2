// Package registry stores the loaded models and the live views spawned from
// them. Models are read-mostly; views come and go with every spawn.
package registry

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hephaestus-engine/hephaestus/internal/model"
	"github.com/hephaestus-engine/hephaestus/internal/view"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

var (
	// ErrDuplicateModel is returned when registering a model name twice.
	ErrDuplicateModel = errors.New("model already registered")
	// ErrDuplicateView is returned when registering a view id twice.
	ErrDuplicateView = errors.New("view already registered")
)

// Registry maps model names to models and view ids to views.
type Registry struct {
	modelsMu sync.RWMutex
	models   map[string]*model.Model

	viewsMu sync.RWMutex
	views   map[core.ViewID]*view.View

	epoch  time.Time
	lastID atomic.Uint64
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		models: make(map[string]*model.Model),
		views:  make(map[core.ViewID]*view.View),
		epoch:  time.Now(),
	}
}

// RegisterModel stores m under name.
func (r *Registry) RegisterModel(name string, m *model.Model) error {
	r.modelsMu.Lock()
	defer r.modelsMu.Unlock()

	if _, ok := r.models[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateModel, name)
	}
	r.models[name] = m
	return nil
}

// Model returns the model registered under name.
func (r *Registry) Model(name string) (*model.Model, bool) {
	r.modelsMu.RLock()
	defer r.modelsMu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// Models returns the registered model names, sorted.
func (r *Registry) Models() []string {
	r.modelsMu.RLock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	r.modelsMu.RUnlock()

	slices.Sort(names)
	return names
}

// RegisterView stores v under its id.
func (r *Registry) RegisterView(v *view.View) error {
	r.viewsMu.Lock()
	defer r.viewsMu.Unlock()

	if _, ok := r.views[v.ID()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateView, v.ID())
	}
	r.views[v.ID()] = v
	return nil
}

// View returns the view with the given id.
func (r *Registry) View(id core.ViewID) (*view.View, bool) {
	r.viewsMu.RLock()
	defer r.viewsMu.RUnlock()
	v, ok := r.views[id]
	return v, ok
}

// Views returns every registered view ordered by id.
func (r *Registry) Views() []*view.View {
	r.viewsMu.RLock()
	out := make([]*view.View, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, v)
	}
	r.viewsMu.RUnlock()

	slices.SortFunc(out, func(a, b *view.View) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return out
}

// RemoveView forgets the view with the given id and returns it.
func (r *Registry) RemoveView(id core.ViewID) (*view.View, bool) {
	r.viewsMu.Lock()
	defer r.viewsMu.Unlock()
	v, ok := r.views[id]
	if ok {
		delete(r.views, id)
	}
	return v, ok
}

// GenerateViewID returns a new opaque view id: the hex form of a strictly
// increasing nanosecond counter with its bytes reversed, so consecutive ids
// share no visible prefix.
func (r *Registry) GenerateViewID() core.ViewID {
	now := uint64(r.epoch.UnixNano()) + uint64(time.Since(r.epoch))
	for {
		last := r.lastID.Load()
		n := now
		if n <= last {
			n = last + 1
		}
		if r.lastID.CompareAndSwap(last, n) {
			return core.ViewID(strconv.FormatUint(bits.ReverseBytes64(n), 16))
		}
	}
}
