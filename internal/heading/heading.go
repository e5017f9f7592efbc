// Package heading chooses the desired facing direction that steers the
// trajectory prediction.
package heading

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/config"
	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/pose"
	"github.com/banshee-data/locomotion.vr/internal/spring"
)

// Mode is the source of the desired heading.
type Mode string

const (
	HMDForward       Mode = "raw-heading"       // headset rotation as is
	PredictForward   Mode = "predicted-heading" // DirectionPredictor output
	PoseEstimForward Mode = "pose-hip-heading"  // smoothed hip line of the aligned pose
	HipTracker       Mode = "hip-tracker"       // external hip tracker rotation
)

var (
	ErrUnsupportedMode       = errors.New("heading: unsupported mode")
	ErrHipTrackerUnavailable = errors.New("heading: hip tracker pose unavailable")
	ErrNoLandmarks           = errors.New("heading: no aligned landmarks")
)

// Modes lists every supported mode.
var Modes = []Mode{HMDForward, PredictForward, PoseEstimForward, HipTracker}

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
}

// Input is everything the selector may consult on one tick.
type Input struct {
	HeadRotation     quat.Number
	SmoothedVelocity r3.Vec
	// Landmarks is the aligned landmark set, nil until the first pose has
	// arrived.
	Landmarks *pose.LandmarkSet
	// HipTracker is nil when no external hip tracker is present.
	HipTracker *pose.Anchor
	Dt         float64
}

// DirectionPredictor supplies the desired rotation in PredictForward mode.
type DirectionPredictor interface {
	PredictedRotation(in Input) quat.Number
}

// Config holds the selector tuning.
type Config struct {
	Mode            Mode
	PoseHipHalfLife float64
	MinSpeed        float64 // used by the default VelocityHeading predictor
}

// ConfigFromLocomotion builds a Config from a loaded Locomotion config. The
// mode is not validated here; NewSelector does that.
func ConfigFromLocomotion(cfg *config.Locomotion) Config {
	return Config{
		Mode:            Mode(cfg.GetMode()),
		PoseHipHalfLife: cfg.GetPoseHipHalfLife(),
		MinSpeed:        cfg.GetVelocityHeadingMinSpeed(),
	}
}

// Option configures a Selector.
type Option func(*Selector)

// WithPredictor replaces the default VelocityHeading predictor.
func WithPredictor(p DirectionPredictor) Option {
	return func(s *Selector) { s.predictor = p }
}

// Selector produces the desired rotation for the active mode. It keeps the
// hip direction spring state between ticks and is not safe for concurrent
// use.
type Selector struct {
	mode      Mode
	halflife  float64
	predictor DirectionPredictor

	hipSeeded bool
	hipDir    r3.Vec
	hipDirVel r3.Vec
}

// NewSelector returns a Selector for cfg. An unsupported mode is an error.
func NewSelector(cfg Config, opts ...Option) (*Selector, error) {
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	s := &Selector{
		mode:      mode,
		halflife:  cfg.PoseHipHalfLife,
		predictor: NewVelocityHeading(cfg.MinSpeed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mode returns the active mode.
func (s *Selector) Mode() Mode { return s.mode }

// SetMode switches the active mode at runtime.
func (s *Selector) SetMode(m Mode) error {
	mode, err := ParseMode(string(m))
	if err != nil {
		return err
	}
	s.mode = mode
	return nil
}

// Desired returns the desired rotation for this tick. On error the caller
// should keep the previous desired rotation.
func (s *Selector) Desired(in Input) (quat.Number, error) {
	switch s.mode {
	case HMDForward:
		return geom.NormalizeQuat(in.HeadRotation), nil
	case PredictForward:
		return geom.NormalizeQuat(s.predictor.PredictedRotation(in)), nil
	case PoseEstimForward:
		return s.hipHeading(in)
	case HipTracker:
		if in.HipTracker == nil {
			return geom.Identity, ErrHipTrackerUnavailable
		}
		return geom.NormalizeQuat(in.HipTracker.Rotation), nil
	default:
		return geom.Identity, fmt.Errorf("%w: %q", ErrUnsupportedMode, s.mode)
	}
}

// hipHeading smooths the left to right hip vector and faces perpendicular
// to it on the ground plane.
func (s *Selector) hipHeading(in Input) (quat.Number, error) {
	if in.Landmarks == nil {
		return geom.Identity, ErrNoLandmarks
	}
	l2r := r3.Sub(in.Landmarks.At(pose.RightHip), in.Landmarks.At(pose.LeftHip))
	if !s.hipSeeded {
		s.hipDir = l2r
		s.hipSeeded = true
	}
	s.hipDir, s.hipDirVel = spring.SimpleSpringDamperVec(s.hipDir, s.hipDirVel, l2r, s.halflife, in.Dt)

	fwd := geom.Flatten(r3.Cross(s.hipDir, geom.Up))
	return geom.LookRotation(fwd, geom.Up), nil
}

// VelocityHeading faces the direction of horizontal travel once the user
// moves faster than MinSpeed, and the headset's yaw otherwise.
type VelocityHeading struct {
	MinSpeed float64
	last     quat.Number
}

// NewVelocityHeading returns a VelocityHeading with the given speed floor.
func NewVelocityHeading(minSpeed float64) *VelocityHeading {
	return &VelocityHeading{MinSpeed: minSpeed, last: geom.Identity}
}

// PredictedRotation implements DirectionPredictor.
func (v *VelocityHeading) PredictedRotation(in Input) quat.Number {
	travel := geom.Flatten(in.SmoothedVelocity)
	if r3.Norm(travel) > v.MinSpeed && r3.Norm(travel) > geom.Epsilon {
		v.last = geom.LookRotation(travel, geom.Up)
		return v.last
	}
	look := geom.Flatten(geom.ForwardOf(geom.NormalizeQuat(in.HeadRotation)))
	if r3.Norm(look) > geom.Epsilon {
		v.last = geom.LookRotation(look, geom.Up)
	}
	return v.last
}
