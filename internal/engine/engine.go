// Package engine drives every live view once per tick and delivers the
// resulting intents to subscribed viewers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/hephaestus-engine/hephaestus/internal/adapter"
	"github.com/hephaestus-engine/hephaestus/internal/model"
	"github.com/hephaestus-engine/hephaestus/internal/pose"
	"github.com/hephaestus-engine/hephaestus/internal/posesync"
	"github.com/hephaestus-engine/hephaestus/internal/registry"
	"github.com/hephaestus-engine/hephaestus/internal/view"
	"github.com/hephaestus-engine/hephaestus/internal/viewer"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

var (
	// ErrUnknownModel is returned when spawning a model that is not registered.
	ErrUnknownModel = errors.New("unknown model")
	// ErrUnknownView is returned for operations on a view that does not exist.
	ErrUnknownView = errors.New("unknown view")
)

// Recorder persists the diff of every view that changed in a tick.
// storage.Backend satisfies it.
type Recorder interface {
	RecordFrame(f *core.Frame) error
}

// Config tunes the engine.
type Config struct {
	// Workers caps how many views are ticked concurrently. <= 0 means GOMAXPROCS.
	Workers int
	// Epsilon is the per-component tolerance below which a bone is not updated.
	Epsilon float64
	// MeterProvider receives the engine metrics. nil means the global provider.
	MeterProvider metric.MeterProvider
}

// Engine owns the view lifecycle and the per-tick pipeline:
// sample, propagate, diff, stage, deliver.
type Engine struct {
	cfg      Config
	reg      *registry.Registry
	viewers  *viewer.Registry
	syncer   *posesync.Synchronizer
	adapter  adapter.Adapter
	recorder Recorder
	logger   *slog.Logger

	tick     atomic.Uint64
	lastTick atomic.Int64 // duration of the last tick in nanoseconds

	// OTEL metrics
	ticks        metric.Int64Counter
	intentsSent  metric.Int64Counter
	dropped      metric.Int64Counter
	tickDuration metric.Float64Histogram
	liveViews    metric.Int64ObservableGauge
	viewsReg     metric.Registration
	closeOnce    sync.Once
}

// New creates an engine over reg, delivering through a. rec may be nil.
// Metrics go to cfg.MeterProvider or the global one. Close releases the
// live-views gauge callback.
func New(cfg Config, reg *registry.Registry, a adapter.Adapter, rec Recorder, logger *slog.Logger) (*Engine, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	syncer := posesync.New(cfg.Epsilon)

	e := &Engine{
		cfg:      cfg,
		reg:      reg,
		viewers:  viewer.New(syncer),
		syncer:   syncer,
		adapter:  a,
		recorder: rec,
		logger:   logger,
	}

	m := meter(cfg.MeterProvider)
	var err error

	e.ticks, err = m.Int64Counter(
		"engine.ticks",
		metric.WithDescription("Total ticks processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	e.intentsSent, err = m.Int64Counter(
		"engine.intents.sent",
		metric.WithDescription("Total bone intents delivered to viewers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating intents counter: %w", err)
	}

	e.dropped, err = m.Int64Counter(
		"engine.viewers.dropped",
		metric.WithDescription("Viewers unsubscribed after a failed delivery"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	e.tickDuration, err = m.Float64Histogram(
		"engine.tick.duration",
		metric.WithDescription("Wall time spent in one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	e.liveViews, err = m.Int64ObservableGauge(
		"engine.views",
		metric.WithDescription("Current number of live views"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating views gauge: %w", err)
	}
	e.viewsReg, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(e.liveViews, int64(len(e.reg.Views())))
			return nil
		},
		e.liveViews,
	)
	if err != nil {
		return nil, fmt.Errorf("registering views callback: %w", err)
	}

	return e, nil
}

// Close unregisters the engine's metric callbacks. It does not touch views or
// viewers. Calling Close more than once is a no-op.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if err = e.viewsReg.Unregister(); err != nil {
			err = fmt.Errorf("unregistering views callback: %w", err)
		}
	})
	return err
}

// RegisterModel makes m available for Spawn under name.
func (e *Engine) RegisterModel(name string, m *model.Model) error {
	return e.reg.RegisterModel(name, m)
}

// Models lists registered model names in lexical order.
func (e *Engine) Models() []string {
	return e.reg.Models()
}

// Spawn creates an idle view of the named model and returns its id.
func (e *Engine) Spawn(modelName string) (core.ViewID, error) {
	m, ok := e.reg.Model(modelName)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, modelName)
	}

	id := e.reg.GenerateViewID()
	v := view.New(id, m)
	e.viewers.AddView(id)
	if err := e.reg.RegisterView(v); err != nil {
		e.viewers.RemoveView(id, nil, nil)
		return "", err
	}

	e.logger.Debug("View spawned", "view", id, "model", modelName)
	return id, nil
}

// Despawn tears the view down. Viewers that have seen it receive a Remove for
// every bone, children first, and nothing for that view afterwards.
func (e *Engine) Despawn(id core.ViewID) error {
	v, ok := e.reg.RemoveView(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, id)
	}

	var failed []core.ViewerID
	err := v.Despawn(func(last *pose.Snapshot) {
		failed = e.viewers.RemoveView(id, last, e.send(nil))
	})
	e.dropViewers(failed)
	if err != nil {
		return err
	}

	e.logger.Debug("View despawned", "view", id)
	return nil
}

// View returns the live view with the given id.
func (e *Engine) View(id core.ViewID) (*view.View, error) {
	v, ok := e.reg.View(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, id)
	}
	return v, nil
}

// Play starts the named animation on a view from t=0.
func (e *Engine) Play(id core.ViewID, animation string) error {
	v, err := e.View(id)
	if err != nil {
		return err
	}
	return v.Play(animation)
}

// PlayBlended starts the named animation and cross-fades into it over
// blendSeconds.
func (e *Engine) PlayBlended(id core.ViewID, animation string, blendSeconds float64) error {
	v, err := e.View(id)
	if err != nil {
		return err
	}
	return v.PlayBlended(animation, blendSeconds)
}

// Stop returns a view to its bind pose.
func (e *Engine) Stop(id core.ViewID) error {
	v, err := e.View(id)
	if err != nil {
		return err
	}
	return v.Stop()
}

// SetSpeed changes the playback speed of a view.
func (e *Engine) SetSpeed(id core.ViewID, speed float64) error {
	v, err := e.View(id)
	if err != nil {
		return err
	}
	return v.SetSpeed(speed)
}

// SetVisible shows or hides a bone of a view.
func (e *Engine) SetVisible(id core.ViewID, bone string, visible bool) error {
	v, err := e.View(id)
	if err != nil {
		return err
	}
	return v.SetVisible(bone, visible)
}

// Subscribe attaches a viewer to a view. The viewer's first delivery on the
// next tick is the view's full pose.
func (e *Engine) Subscribe(id core.ViewID, viewerID core.ViewerID) error {
	fresh, err := e.viewers.Subscribe(id, viewerID)
	if errors.Is(err, viewer.ErrUnknownView) {
		return fmt.Errorf("%w: %s", ErrUnknownView, id)
	}
	if err != nil {
		return err
	}
	if fresh {
		e.logger.Debug("Viewer subscribed", "view", id, "viewer", viewerID)
	}
	return nil
}

// Unsubscribe detaches a viewer from a view. Unsubscribing a pair that is not
// subscribed is not an error.
func (e *Engine) Unsubscribe(id core.ViewID, viewerID core.ViewerID) error {
	if _, ok := e.reg.View(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownView, id)
	}
	if e.viewers.Unsubscribe(id, viewerID) {
		e.logger.Debug("Viewer unsubscribed", "view", id, "viewer", viewerID)
	}
	return nil
}

// DropViewer removes a viewer from every view it observes.
func (e *Engine) DropViewer(viewerID core.ViewerID) {
	if views := e.viewers.RemoveViewer(viewerID); len(views) > 0 {
		e.logger.Debug("Viewer removed", "viewer", viewerID, "views", len(views))
	}
}

// ViewersOf returns the viewers subscribed to a view.
func (e *Engine) ViewersOf(id core.ViewID) []core.ViewerID {
	return e.viewers.ViewersOf(id)
}

// ViewsObservedBy returns the views a viewer is subscribed to.
func (e *Engine) ViewsObservedBy(viewerID core.ViewerID) []core.ViewID {
	return e.viewers.ViewsObservedBy(viewerID)
}

// CurrentTick returns the number of ticks started so far.
func (e *Engine) CurrentTick() uint64 {
	return e.tick.Load()
}

// Tick advances every live view by dt seconds and delivers the changes.
// Views are processed concurrently, at most Config.Workers at a time. A
// viewer whose delivery fails is dropped without affecting anyone else.
func (e *Engine) Tick(ctx context.Context, dt float64) error {
	start := time.Now()
	n := e.tick.Add(1)

	var (
		mu     sync.Mutex
		failed []core.ViewerID
		sent   atomic.Int64
	)
	send := e.send(&sent)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for _, v := range e.reg.Views() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := v.Tick(dt, func(prev, next *pose.Snapshot) {
				diff := e.syncer.Diff(prev, next)
				e.record(v, n, diff)
				e.viewers.Stage(v.ID(), next, diff)
				if f := e.viewers.Flush(v.ID(), send); len(f) > 0 {
					mu.Lock()
					failed = append(failed, f...)
					mu.Unlock()
				}
			})
			if errors.Is(err, view.ErrDespawned) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()

	e.dropViewers(failed)

	elapsed := time.Since(start)
	e.lastTick.Store(int64(elapsed))
	bg := context.Background()
	e.ticks.Add(bg, 1)
	e.intentsSent.Add(bg, sent.Load())
	e.tickDuration.Record(bg, float64(elapsed)/float64(time.Millisecond))

	return err
}

// Run ticks at a fixed cadence, passing interval as dt, until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid tick interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dt := interval.Seconds()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.Tick(ctx, dt); err != nil && ctx.Err() == nil {
				e.logger.Error("Tick failed", "tick", e.CurrentTick(), "error", err)
			}
		}
	}
}

// Status is a point-in-time summary of the engine.
type Status struct {
	Tick          uint64
	LastTick      time.Duration
	Models        []string
	Views         []view.Status
	Viewers       int
	Subscriptions int
}

// Status returns a summary of models, views and subscriptions.
func (e *Engine) Status() Status {
	views := e.reg.Views()
	st := Status{
		Tick:     e.tick.Load(),
		LastTick: time.Duration(e.lastTick.Load()),
		Models:   e.reg.Models(),
		Views:    make([]view.Status, 0, len(views)),
	}
	for _, v := range views {
		st.Views = append(st.Views, v.Status())
	}
	vs := e.viewers.Stats()
	st.Viewers, st.Subscriptions = vs.Viewers, vs.Subscriptions
	return st
}

// send adapts the protocol adapter to the viewer registry, counting
// delivered intents into sent when it is not nil.
func (e *Engine) send(sent *atomic.Int64) viewer.SendFunc {
	return func(viewerID core.ViewerID, id core.ViewID, intents []core.Intent) error {
		if err := e.adapter.Apply(viewerID, id, intents); err != nil {
			e.logger.Warn("Delivery failed, dropping viewer", "viewer", viewerID, "view", id, "error", err)
			return err
		}
		if sent != nil {
			sent.Add(int64(len(intents)))
		}
		return nil
	}
}

func (e *Engine) dropViewers(ids []core.ViewerID) {
	for _, id := range ids {
		e.viewers.RemoveViewer(id)
		e.dropped.Add(context.Background(), 1)
	}
}

func (e *Engine) record(v *view.View, tick uint64, diff []core.Intent) {
	if e.recorder == nil || len(diff) == 0 {
		return
	}
	f := &core.Frame{
		View:    v.ID(),
		Model:   v.Model().Name(),
		Tick:    tick,
		Time:    time.Now(),
		Intents: diff,
	}
	if err := e.recorder.RecordFrame(f); err != nil {
		e.logger.Warn("Failed to record frame", "view", v.ID(), "error", err)
	}
}
