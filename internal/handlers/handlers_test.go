package handlers

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephaestus-engine/hephaestus/internal/adapter/memory"
	"github.com/hephaestus-engine/hephaestus/internal/dispatcher"
	"github.com/hephaestus-engine/hephaestus/internal/engine"
	"github.com/hephaestus-engine/hephaestus/internal/model"
	"github.com/hephaestus-engine/hephaestus/internal/registry"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
	"github.com/hephaestus-engine/hephaestus/pkg/mathutil"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestService(t *testing.T) (*Service, *dispatcher.Dispatcher, *engine.Engine) {
	t.Helper()

	arm := core.IdentityTransform
	arm.Position = mathutil.Vec3{Y: 1}
	m, err := model.NewBuilder("crane").
		AddBone(model.BoneSpec{Name: "base", Bind: core.IdentityTransform}).
		AddBone(model.BoneSpec{Name: "arm", Parent: "base", Bind: arm}).
		AddAnimation(&model.Animation{Name: "swing", Duration: 1, Loop: true, Timeline: model.Timeline{
			"arm": {Rotation: model.Track[mathutil.Quaternion]{
				{Time: 0, Value: mathutil.Identity},
				{Time: 1, Value: mathutil.FromAxisAngle(mathutil.Vec3{Y: 1}, math.Pi)},
			}},
		}}).
		Build()
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, reg.RegisterModel("crane", m))
	e, err := engine.New(engine.Config{Workers: 2}, reg, memory.New(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)

	s := NewService(e, nil)
	s.Register(d)
	return s, d, e
}

func dispatch(t *testing.T, d *dispatcher.Dispatcher, cmd string, args ...string) (any, error) {
	t.Helper()
	return d.Dispatch(dispatcher.Event{Command: cmd, Args: args})
}

func spawn(t *testing.T, d *dispatcher.Dispatcher) string {
	t.Helper()
	res, err := dispatch(t, d, CmdSpawn, `"crane"`)
	require.NoError(t, err)
	id, ok := res.(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	return id
}

func TestRegister_AllCommands(t *testing.T) {
	_, d, _ := newTestService(t)

	assert.Equal(t, []string{
		CmdBlend, CmdDespawn, CmdModels, CmdPlay, CmdSpawn,
		CmdSpeed, CmdStatus, CmdStop, CmdTick, CmdVisible,
	}, d.Commands())
}

func TestSpawnAndDespawn(t *testing.T) {
	_, d, e := newTestService(t)

	id := spawn(t, d)
	_, err := e.View(core.ViewID(id))
	require.NoError(t, err)

	res, err := dispatch(t, d, CmdDespawn, id)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)

	_, err = e.View(core.ViewID(id))
	assert.ErrorIs(t, err, engine.ErrUnknownView)

	_, err = dispatch(t, d, CmdDespawn, id)
	assert.ErrorIs(t, err, engine.ErrUnknownView)
}

func TestSpawn_UnknownModel(t *testing.T) {
	_, d, _ := newTestService(t)

	_, err := dispatch(t, d, CmdSpawn, "dragon")
	assert.ErrorIs(t, err, engine.ErrUnknownModel)
}

func TestArgCount(t *testing.T) {
	_, d, _ := newTestService(t)

	tests := []struct {
		cmd  string
		args []string
	}{
		{CmdSpawn, nil},
		{CmdDespawn, []string{"a", "b"}},
		{CmdPlay, []string{"a"}},
		{CmdBlend, []string{"a", "b"}},
		{CmdStop, nil},
		{CmdSpeed, []string{"a"}},
		{CmdVisible, []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			_, err := dispatch(t, d, tt.cmd, tt.args...)
			assert.ErrorIs(t, err, ErrArgCount)
		})
	}
}

func TestPlaybackCommands(t *testing.T) {
	_, d, e := newTestService(t)
	id := spawn(t, d)
	v, err := e.View(core.ViewID(id))
	require.NoError(t, err)

	_, err = dispatch(t, d, CmdPlay, id, "swing")
	require.NoError(t, err)
	assert.Equal(t, "playing", v.Status().State.String())
	assert.Equal(t, "swing", v.Status().Animation)

	_, err = dispatch(t, d, CmdSpeed, id, "0.5")
	require.NoError(t, err)
	assert.Equal(t, 0.5, v.Status().Speed)

	_, err = dispatch(t, d, CmdBlend, id, "swing", "0.2")
	require.NoError(t, err)
	assert.True(t, v.Status().Blending)

	_, err = dispatch(t, d, CmdStop, id)
	require.NoError(t, err)
	assert.Equal(t, "idle", v.Status().State.String())

	_, err = dispatch(t, d, CmdPlay, id, "fly")
	assert.Error(t, err)
}

func TestInvalidNumbers(t *testing.T) {
	_, d, _ := newTestService(t)
	id := spawn(t, d)

	_, err := dispatch(t, d, CmdSpeed, id, "-1")
	assert.Error(t, err)
	_, err = dispatch(t, d, CmdSpeed, id, "fast")
	assert.Error(t, err)
	_, err = dispatch(t, d, CmdBlend, id, "swing", "NaN")
	assert.Error(t, err)
	_, err = dispatch(t, d, CmdVisible, id, "arm", "maybe")
	assert.Error(t, err)
}

func TestVisible(t *testing.T) {
	_, d, e := newTestService(t)
	id := spawn(t, d)

	_, err := dispatch(t, d, CmdVisible, id, "arm", "false")
	require.NoError(t, err)
	_, err = dispatch(t, d, CmdVisible, id, "tail", "false")
	assert.ErrorIs(t, err, model.ErrUnknownBone)

	v, err := e.View(core.ViewID(id))
	require.NoError(t, err)
	_, ok := dispatchTick(t, d, e, "0.1")
	require.True(t, ok)

	_, visible := v.Snapshot().Get("arm")
	assert.False(t, visible)
}

func dispatchTick(t *testing.T, d *dispatcher.Dispatcher, e *engine.Engine, dt string) (any, bool) {
	t.Helper()
	before := e.CurrentTick()
	res, err := dispatch(t, d, CmdTick, dt)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return e.CurrentTick() > before }, timeout, tick)
	return res, res == "queued"
}

func TestTick_Queued(t *testing.T) {
	_, d, e := newTestService(t)

	res, ok := dispatchTick(t, d, e, "0.05")
	assert.True(t, ok, "got %v", res)
	assert.EqualValues(t, 1, e.CurrentTick())
}

func TestStatus(t *testing.T) {
	s, d, e := newTestService(t)
	id := spawn(t, d)
	require.NoError(t, e.Subscribe(core.ViewID(id), "viewer-1"))
	_, err := dispatch(t, d, CmdPlay, id, "swing")
	require.NoError(t, err)

	res, err := dispatch(t, d, CmdStatus)
	require.NoError(t, err)

	var rep StatusReport
	require.NoError(t, json.Unmarshal([]byte(res.(string)), &rep))
	assert.Equal(t, []string{"crane"}, rep.Models)
	require.Len(t, rep.Views, 1)
	assert.Equal(t, id, rep.Views[0].ID)
	assert.Equal(t, "playing", rep.Views[0].State)
	assert.Equal(t, "swing", rep.Views[0].Animation)
	assert.Equal(t, []string{"viewer-1"}, rep.Views[0].Viewers)
	assert.Equal(t, 1, rep.Viewers)
	assert.Equal(t, 1, rep.Subscriptions)
	assert.Equal(t, rep, s.Status())
}

func TestModels(t *testing.T) {
	_, d, _ := newTestService(t)

	res, err := dispatch(t, d, CmdModels)
	require.NoError(t, err)
	assert.JSONEq(t, `["crane"]`, res.(string))
}
