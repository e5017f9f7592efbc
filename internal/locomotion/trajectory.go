package locomotion

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/predict"
)

var (
	ErrUnsupportedBone = errors.New("locomotion: trajectory features exist only for the head")
	ErrUnknownFeature  = errors.New("locomotion: unknown trajectory feature")
	ErrHorizonRange    = errors.New("locomotion: horizon index out of range")
)

// FeatureType selects a trajectory feature.
type FeatureType int

const (
	FeaturePosition FeatureType = iota
	FeatureDirection
)

func (f FeatureType) String() string {
	switch f {
	case FeaturePosition:
		return "position"
	case FeatureDirection:
		return "direction"
	default:
		return fmt.Sprintf("feature(%d)", int(f))
	}
}

// BodyPart names a tracked body part.
type BodyPart int

const (
	Head BodyPart = iota
	LeftHand
	RightHand
	Hip
)

// Trajectory is the forecast of one tick.
type Trajectory struct {
	predict.Prediction
}

// Len returns the number of horizons.
func (t Trajectory) Len() int { return len(t.Frames) }

// Feature returns a ground plane feature of the forecast at horizon index.
// Position has its height zeroed; Direction is the horizontal unit forward
// of the predicted rotation.
func (t Trajectory) Feature(f FeatureType, part BodyPart, index int) (r3.Vec, error) {
	if part != Head {
		return r3.Vec{}, ErrUnsupportedBone
	}
	if index < 0 || index >= t.Len() {
		return r3.Vec{}, fmt.Errorf("%w: %d of %d", ErrHorizonRange, index, t.Len())
	}
	switch f {
	case FeaturePosition:
		return geom.Flatten(t.Positions[index]), nil
	case FeatureDirection:
		fwd := geom.Rotate(geom.NormalizeQuat(t.Rotations[index]), geom.Forward)
		return geom.Normalize(geom.Flatten(fwd)), nil
	default:
		return r3.Vec{}, fmt.Errorf("%w: %s", ErrUnknownFeature, f)
	}
}
