package model

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyModel is returned when a model has no bones.
	ErrEmptyModel = errors.New("model has no bones")
	// ErrDuplicateBone is returned when two bones share a name.
	ErrDuplicateBone = errors.New("duplicate bone name")
	// ErrUnknownBone is returned when a parent or timeline references a bone that does not exist.
	ErrUnknownBone = errors.New("unknown bone")
	// ErrCycle is returned when the parent links do not form a tree.
	ErrCycle = errors.New("bone hierarchy contains a cycle")
	// ErrUnorderedKeyframes is returned when keyframe times are not strictly increasing.
	ErrUnorderedKeyframes = errors.New("keyframe times must be strictly increasing")
	// ErrDuplicateAnimation is returned when two animations share a name.
	ErrDuplicateAnimation = errors.New("duplicate animation name")
)

// IntegrityError reports a structural problem found while building a model.
// Bone is the offending bone and Reference the name it conflicts with
// (a parent, an animation or a keyframe track).
type IntegrityError struct {
	Model     string
	Bone      string
	Reference string
	Err       error
}

func (e *IntegrityError) Error() string {
	if e.Reference == "" {
		return fmt.Sprintf("model %q: bone %q: %v", e.Model, e.Bone, e.Err)
	}
	return fmt.Sprintf("model %q: bone %q (ref %q): %v", e.Model, e.Bone, e.Reference, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}
