// Package loader reads JSON model descriptors (*.model.json) and builds
// validated models from them.
//
// Rotations are authored as Euler angles in degrees. Animation keyframe
// values are deltas on the bind pose.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hephaestus-engine/hephaestus/internal/model"
	"github.com/hephaestus-engine/hephaestus/pkg/core"
	"github.com/hephaestus-engine/hephaestus/pkg/mathutil"
)

// Suffix marks model descriptor files.
const Suffix = ".model.json"

// Descriptor is the on-disk form of a model.
type Descriptor struct {
	Name       string                `json:"name"`
	Bones      []BoneDescriptor      `json:"bones"`
	Animations []AnimationDescriptor `json:"animations"`
}

// BoneDescriptor is a bone and its bind pose. Missing fields default to the
// identity transform.
type BoneDescriptor struct {
	Name     string      `json:"name"`
	Parent   string      `json:"parent,omitempty"`
	Position *[3]float64 `json:"position,omitempty"`
	Rotation *[3]float64 `json:"rotation,omitempty"`
	Scale    *[3]float64 `json:"scale,omitempty"`
}

// AnimationDescriptor is a named animation. A zero length means the time of
// the last keyframe.
type AnimationDescriptor struct {
	Name      string                        `json:"name"`
	Length    float64                       `json:"length"`
	Loop      bool                          `json:"loop"`
	Timelines map[string]TimelineDescriptor `json:"timelines"`
}

// TimelineDescriptor holds the keyframes of one bone.
type TimelineDescriptor struct {
	Position []KeyframeDescriptor `json:"position,omitempty"`
	Rotation []KeyframeDescriptor `json:"rotation,omitempty"`
	Scale    []KeyframeDescriptor `json:"scale,omitempty"`
}

// KeyframeDescriptor is a value at a time in seconds.
type KeyframeDescriptor struct {
	Time  float64    `json:"time"`
	Value [3]float64 `json:"value"`
}

// Parse decodes a descriptor. Unknown fields are rejected.
func Parse(r io.Reader) (*Descriptor, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var d Descriptor
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode model descriptor: %w", err)
	}
	return &d, nil
}

// Build converts the descriptor to a validated model.
func (d *Descriptor) Build() (*model.Model, error) {
	b := model.NewBuilder(d.Name)
	for _, bone := range d.Bones {
		b.AddBone(model.BoneSpec{
			Name:   bone.Name,
			Parent: bone.Parent,
			Bind:   bindTransform(bone),
		})
	}
	for _, a := range d.Animations {
		b.AddAnimation(a.animation())
	}
	return b.Build()
}

func bindTransform(bone BoneDescriptor) core.Transform {
	t := core.IdentityTransform
	if bone.Position != nil {
		t.Position = mathutil.Vec3From(*bone.Position)
	}
	if bone.Rotation != nil {
		t.Rotation = mathutil.FromEuler(mathutil.Vec3From(*bone.Rotation))
	}
	if bone.Scale != nil {
		t.Scale = mathutil.Vec3From(*bone.Scale)
	}
	return t
}

func (a AnimationDescriptor) animation() *model.Animation {
	tl := make(model.Timeline, len(a.Timelines))
	for bone, td := range a.Timelines {
		tl[bone] = &model.BoneTimeline{
			Position: vectorTrack(td.Position),
			Rotation: rotationTrack(td.Rotation),
			Scale:    vectorTrack(td.Scale),
		}
	}
	return &model.Animation{Name: a.Name, Duration: a.Length, Loop: a.Loop, Timeline: tl}
}

func vectorTrack(kfs []KeyframeDescriptor) model.Track[mathutil.Vec3] {
	if len(kfs) == 0 {
		return nil
	}
	tr := make(model.Track[mathutil.Vec3], len(kfs))
	for i, kf := range kfs {
		tr[i] = model.Keyframe[mathutil.Vec3]{Time: kf.Time, Value: mathutil.Vec3From(kf.Value)}
	}
	return tr
}

func rotationTrack(kfs []KeyframeDescriptor) model.Track[mathutil.Quaternion] {
	if len(kfs) == 0 {
		return nil
	}
	tr := make(model.Track[mathutil.Quaternion], len(kfs))
	for i, kf := range kfs {
		tr[i] = model.Keyframe[mathutil.Quaternion]{Time: kf.Time, Value: mathutil.FromEuler(mathutil.Vec3From(kf.Value))}
	}
	return tr
}

// LoadFile parses and builds the model at path. A descriptor without a name
// is named after its file.
func LoadFile(path string) (*model.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), Suffix)
	}
	m, err := d.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadDir loads every descriptor in dir, in file name order. Models that fail
// to load are skipped and their errors joined into the returned error.
func LoadDir(dir string) ([]*model.Model, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		models []*model.Model
		errs   []error
	)
	for _, name := range names {
		m, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		models = append(models, m)
	}
	return models, errors.Join(errs...)
}
