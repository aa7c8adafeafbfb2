// Package viewer tracks which viewers observe which views and stages the
// intents each of them must receive.
//
// Every view has its own entry lock, so delivering one view never waits on
// another. Locks are taken in the order view entry, then viewer entry, and a
// viewer entry lock is never held while acquiring a view entry lock.
package viewer

import (
	"errors"
	"slices"
	"sync"

	"github.com/hephaestus-engine/hephaestus/internal/pose"
	"github.com/hephaestus-engine/hephaestus/internal/posesync"
	"github.com/hephaestus-engine/hephaestus/internal/queue"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// ErrUnknownView is returned when subscribing to a view that was never added
// or has been removed.
var ErrUnknownView = errors.New("unknown view")

// SendFunc delivers intents for one view to one viewer.
type SendFunc func(viewer core.ViewerID, view core.ViewID, intents []core.Intent) error

// subscription is the delivery state of one (view, viewer) pair.
type subscription struct {
	needsFull bool
	pending   queue.Queue[core.Intent]
}

type viewEntry struct {
	mu      sync.Mutex
	subs    map[core.ViewerID]*subscription
	removed bool
}

type viewerEntry struct {
	mu      sync.Mutex
	views   map[core.ViewID]struct{}
	removed bool
}

// Registry is the many-to-many subscription table between views and viewers.
type Registry struct {
	syncer  *posesync.Synchronizer
	views   sync.Map // core.ViewID -> *viewEntry
	viewers sync.Map // core.ViewerID -> *viewerEntry
}

// New returns an empty registry that builds full-state and teardown
// sequences with s.
func New(s *posesync.Synchronizer) *Registry {
	return &Registry{syncer: s}
}

// AddView makes view available for subscriptions. Adding it twice is a no-op.
func (r *Registry) AddView(view core.ViewID) {
	r.views.LoadOrStore(view, &viewEntry{subs: make(map[core.ViewerID]*subscription)})
}

// Subscribe attaches viewer to view. It returns true if the pair is new, in
// which case the viewer's next delivery is the full current pose instead of a
// diff. Subscribing an existing pair changes nothing.
func (r *Registry) Subscribe(view core.ViewID, viewer core.ViewerID) (bool, error) {
	ve, ok := r.viewEntry(view)
	if !ok {
		return false, ErrUnknownView
	}

	ve.mu.Lock()
	defer ve.mu.Unlock()

	if ve.removed {
		return false, ErrUnknownView
	}
	if _, ok := ve.subs[viewer]; ok {
		return false, nil
	}
	ve.subs[viewer] = &subscription{needsFull: true}
	r.link(viewer, view)
	return true, nil
}

// Unsubscribe detaches viewer from view and drops anything still pending for
// the pair. It returns false if the pair was not subscribed.
func (r *Registry) Unsubscribe(view core.ViewID, viewer core.ViewerID) bool {
	ve, ok := r.viewEntry(view)
	if !ok {
		return false
	}

	ve.mu.Lock()
	defer ve.mu.Unlock()

	sub, ok := ve.subs[viewer]
	if !ok {
		return false
	}
	sub.pending.Clear()
	delete(ve.subs, viewer)
	r.unlink(viewer, view)
	return true
}

// ViewersOf returns the viewers subscribed to view, sorted.
func (r *Registry) ViewersOf(view core.ViewID) []core.ViewerID {
	ve, ok := r.viewEntry(view)
	if !ok {
		return nil
	}

	ve.mu.Lock()
	out := make([]core.ViewerID, 0, len(ve.subs))
	for id := range ve.subs {
		out = append(out, id)
	}
	ve.mu.Unlock()

	slices.Sort(out)
	return out
}

// ViewsObservedBy returns the views viewer is subscribed to, sorted.
func (r *Registry) ViewsObservedBy(viewer core.ViewerID) []core.ViewID {
	v, ok := r.viewers.Load(viewer)
	if !ok {
		return nil
	}
	we := v.(*viewerEntry)

	we.mu.Lock()
	out := make([]core.ViewID, 0, len(we.views))
	for id := range we.views {
		out = append(out, id)
	}
	we.mu.Unlock()

	slices.Sort(out)
	return out
}

// Stage queues the intents produced by one tick of view: the diff for
// viewers already in sync, the full state of next for viewers that just
// subscribed.
func (r *Registry) Stage(view core.ViewID, next *pose.Snapshot, diff []core.Intent) {
	ve, ok := r.viewEntry(view)
	if !ok {
		return
	}

	ve.mu.Lock()
	defer ve.mu.Unlock()

	if ve.removed {
		return
	}
	var full []core.Intent
	for _, sub := range ve.subs {
		if sub.needsFull {
			if full == nil {
				full = r.syncer.FullState(next)
			}
			sub.pending.Push(full...)
			sub.needsFull = false
			continue
		}
		sub.pending.Push(diff...)
	}
}

// Flush sends every pending intent of view. A viewer whose send fails is
// unsubscribed from view on the spot and returned, so the caller can drop it
// everywhere else; the remaining viewers are still served.
func (r *Registry) Flush(view core.ViewID, send SendFunc) []core.ViewerID {
	ve, ok := r.viewEntry(view)
	if !ok {
		return nil
	}

	ve.mu.Lock()
	defer ve.mu.Unlock()

	var failed []core.ViewerID
	for id, sub := range ve.subs {
		intents := sub.pending.Drain()
		if len(intents) == 0 {
			continue
		}
		if err := send(id, view, intents); err != nil {
			delete(ve.subs, id)
			r.unlink(id, view)
			failed = append(failed, id)
		}
	}
	slices.Sort(failed)
	return failed
}

// RemoveView drops view and all its subscriptions. Viewers that already
// received a pose of the view are sent a Remove for every bone of last,
// children first. Viewers still waiting for their first delivery are dropped
// silently. Viewers whose teardown send fails are returned.
func (r *Registry) RemoveView(view core.ViewID, last *pose.Snapshot, send SendFunc) []core.ViewerID {
	v, ok := r.views.LoadAndDelete(view)
	if !ok {
		return nil
	}
	ve := v.(*viewEntry)

	ve.mu.Lock()
	defer ve.mu.Unlock()

	ve.removed = true
	teardown := r.syncer.Teardown(last)

	var failed []core.ViewerID
	for id, sub := range ve.subs {
		sub.pending.Clear()
		r.unlink(id, view)
		if sub.needsFull || len(teardown) == 0 || send == nil {
			continue
		}
		if err := send(id, view, teardown); err != nil {
			failed = append(failed, id)
		}
	}
	clear(ve.subs)
	slices.Sort(failed)
	return failed
}

// RemoveViewer unsubscribes viewer from every view and forgets it. It returns
// the views it was observing.
func (r *Registry) RemoveViewer(viewer core.ViewerID) []core.ViewID {
	v, ok := r.viewers.LoadAndDelete(viewer)
	if !ok {
		return nil
	}
	we := v.(*viewerEntry)

	we.mu.Lock()
	we.removed = true
	views := make([]core.ViewID, 0, len(we.views))
	for id := range we.views {
		views = append(views, id)
	}
	clear(we.views)
	we.mu.Unlock()

	for _, id := range views {
		ve, ok := r.viewEntry(id)
		if !ok {
			continue
		}
		ve.mu.Lock()
		if sub, ok := ve.subs[viewer]; ok {
			sub.pending.Clear()
			delete(ve.subs, viewer)
		}
		ve.mu.Unlock()
	}

	slices.Sort(views)
	return views
}

// Stats is a point-in-time count of registry contents. Viewers only counts
// viewers with at least one subscription.
type Stats struct {
	Views         int
	Viewers       int
	Subscriptions int
}

// Stats counts views, viewers and subscriptions.
func (r *Registry) Stats() Stats {
	var st Stats
	r.views.Range(func(_, v any) bool {
		ve := v.(*viewEntry)
		ve.mu.Lock()
		st.Views++
		st.Subscriptions += len(ve.subs)
		ve.mu.Unlock()
		return true
	})
	r.viewers.Range(func(_, _ any) bool {
		st.Viewers++
		return true
	})
	return st
}

func (r *Registry) viewEntry(view core.ViewID) (*viewEntry, bool) {
	v, ok := r.views.Load(view)
	if !ok {
		return nil, false
	}
	return v.(*viewEntry), true
}

// link records view under viewer. Callers hold the view entry lock.
func (r *Registry) link(viewer core.ViewerID, view core.ViewID) {
	for {
		v, _ := r.viewers.LoadOrStore(viewer, &viewerEntry{views: make(map[core.ViewID]struct{})})
		we := v.(*viewerEntry)

		we.mu.Lock()
		if we.removed {
			// Lost a race with removal; retry with a fresh entry.
			we.mu.Unlock()
			r.viewers.CompareAndDelete(viewer, we)
			continue
		}
		we.views[view] = struct{}{}
		we.mu.Unlock()
		return
	}
}

// unlink removes view from viewer. Callers hold the view entry lock.
func (r *Registry) unlink(viewer core.ViewerID, view core.ViewID) {
	v, ok := r.viewers.Load(viewer)
	if !ok {
		return
	}
	we := v.(*viewerEntry)

	we.mu.Lock()
	delete(we.views, view)
	empty := len(we.views) == 0 && !we.removed
	if empty {
		we.removed = true
	}
	we.mu.Unlock()

	if empty {
		r.viewers.CompareAndDelete(viewer, we)
	}
}
