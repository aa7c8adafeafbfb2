// Package handlers binds host commands to engine operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hephaestus-engine/hephaestus/internal/dispatcher"
	"github.com/hephaestus-engine/hephaestus/internal/engine"
	"github.com/hephaestus-engine/hephaestus/internal/util"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
)

// Host commands.
const (
	CmdSpawn   = ":SPAWN:"
	CmdDespawn = ":DESPAWN:"
	CmdPlay    = ":PLAY:"
	CmdBlend   = ":BLEND:"
	CmdStop    = ":STOP:"
	CmdSpeed   = ":SPEED:"
	CmdVisible = ":VISIBLE:"
	CmdTick    = ":TICK:"
	CmdStatus  = ":STATUS:"
	CmdModels  = ":MODELS:"
)

// ErrArgCount is returned when a command receives the wrong number of arguments.
var ErrArgCount = errors.New("wrong number of arguments")

// Service provides handler methods for host commands.
type Service struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewService creates a new handler service over e.
func NewService(e *engine.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: e, logger: logger}
}

// Register binds every host command to d. :TICK: is queued so a burst of
// manual steps from the host never blocks the reader.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdSpawn, s.handleSpawn, dispatcher.Logged())
	d.Register(CmdDespawn, s.handleDespawn, dispatcher.Logged())
	d.Register(CmdPlay, s.handlePlay, dispatcher.Logged())
	d.Register(CmdBlend, s.handleBlend, dispatcher.Logged())
	d.Register(CmdStop, s.handleStop, dispatcher.Logged())
	d.Register(CmdSpeed, s.handleSpeed, dispatcher.Logged())
	d.Register(CmdVisible, s.handleVisible, dispatcher.Logged())
	d.Register(CmdTick, s.handleTick, dispatcher.Buffered(64), dispatcher.Blocking())
	d.Register(CmdStatus, s.handleStatus)
	d.Register(CmdModels, s.handleModels)
}

func args(e dispatcher.Event, n int) ([]string, error) {
	if len(e.Args) != n {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrArgCount, e.Command, n, len(e.Args))
	}
	return util.CleanArgs(append([]string(nil), e.Args...)), nil
}

// Spawn creates a view of the named model. Args: model.
func (s *Service) Spawn(data []string) (core.ViewID, error) {
	id, err := s.engine.Spawn(data[0])
	if err != nil {
		return "", err
	}
	s.logger.Info("Spawned view", "view", id, "model", data[0])
	return id, nil
}

func (s *Service) handleSpawn(e dispatcher.Event) (any, error) {
	data, err := args(e, 1)
	if err != nil {
		return nil, err
	}
	id, err := s.Spawn(data)
	if err != nil {
		return nil, err
	}
	return string(id), nil
}

func (s *Service) handleDespawn(e dispatcher.Event) (any, error) {
	data, err := args(e, 1)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Despawn(core.ViewID(data[0])); err != nil {
		return nil, err
	}
	s.logger.Info("Despawned view", "view", data[0])
	return "ok", nil
}

func (s *Service) handlePlay(e dispatcher.Event) (any, error) {
	data, err := args(e, 2)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Play(core.ViewID(data[0]), data[1]); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Service) handleBlend(e dispatcher.Event) (any, error) {
	data, err := args(e, 3)
	if err != nil {
		return nil, err
	}
	seconds, err := util.ParseNonNegative(data[2])
	if err != nil {
		return nil, fmt.Errorf("blend duration: %w", err)
	}
	if err := s.engine.PlayBlended(core.ViewID(data[0]), data[1], seconds); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Service) handleStop(e dispatcher.Event) (any, error) {
	data, err := args(e, 1)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Stop(core.ViewID(data[0])); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Service) handleSpeed(e dispatcher.Event) (any, error) {
	data, err := args(e, 2)
	if err != nil {
		return nil, err
	}
	speed, err := util.ParseNonNegative(data[1])
	if err != nil {
		return nil, fmt.Errorf("speed: %w", err)
	}
	if err := s.engine.SetSpeed(core.ViewID(data[0]), speed); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Service) handleVisible(e dispatcher.Event) (any, error) {
	data, err := args(e, 3)
	if err != nil {
		return nil, err
	}
	visible, err := strconv.ParseBool(data[2])
	if err != nil {
		return nil, fmt.Errorf("visible flag: %w", err)
	}
	if err := s.engine.SetVisible(core.ViewID(data[0]), data[1], visible); err != nil {
		return nil, err
	}
	return "ok", nil
}

// handleTick steps the engine once. Args: dt in seconds.
func (s *Service) handleTick(e dispatcher.Event) (any, error) {
	data, err := args(e, 1)
	if err != nil {
		s.logger.Error("Rejected tick", "error", err)
		return nil, err
	}
	dt, err := util.ParseNonNegative(data[0])
	if err != nil {
		s.logger.Error("Rejected tick", "dt", data[0], "error", err)
		return nil, fmt.Errorf("tick delta: %w", err)
	}
	if err := s.engine.Tick(context.Background(), dt); err != nil {
		s.logger.Error("Manual tick failed", "error", err)
		return nil, err
	}
	return s.engine.CurrentTick(), nil
}

// StatusReport is the JSON answer to :STATUS:.
type StatusReport struct {
	Tick          uint64       `json:"tick"`
	LastTickMs    float64      `json:"lastTickMs"`
	Models        []string     `json:"models"`
	Views         []ViewReport `json:"views"`
	Viewers       int          `json:"viewers"`
	Subscriptions int          `json:"subscriptions"`
}

// ViewReport describes one view in a StatusReport.
type ViewReport struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	State     string   `json:"state"`
	Animation string   `json:"animation,omitempty"`
	Elapsed   float64  `json:"elapsed"`
	Speed     float64  `json:"speed"`
	Blending  bool     `json:"blending,omitempty"`
	Viewers   []string `json:"viewers"`
}

// Status builds a StatusReport from the engine.
func (s *Service) Status() StatusReport {
	st := s.engine.Status()
	rep := StatusReport{
		Tick:          st.Tick,
		LastTickMs:    float64(st.LastTick.Microseconds()) / 1000,
		Models:        st.Models,
		Views:         make([]ViewReport, 0, len(st.Views)),
		Viewers:       st.Viewers,
		Subscriptions: st.Subscriptions,
	}
	for _, v := range st.Views {
		vr := ViewReport{
			ID:        string(v.ID),
			Model:     v.Model,
			State:     v.State.String(),
			Animation: v.Animation,
			Elapsed:   v.Elapsed,
			Speed:     v.Speed,
			Blending:  v.Blending,
			Viewers:   []string{},
		}
		for _, id := range s.engine.ViewersOf(v.ID) {
			vr.Viewers = append(vr.Viewers, string(id))
		}
		rep.Views = append(rep.Views, vr)
	}
	return rep
}

func (s *Service) handleStatus(e dispatcher.Event) (any, error) {
	out, err := json.Marshal(s.Status())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(out), nil
}

func (s *Service) handleModels(e dispatcher.Event) (any, error) {
	out, err := json.Marshal(s.engine.Models())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal models: %w", err)
	}
	return string(out), nil
}
