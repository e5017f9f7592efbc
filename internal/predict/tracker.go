// Package predict forecasts where the tracked headset will be over a fixed
// set of future horizons.
//
// One Tracker exists per tracked device and lives for the whole session. It
// is not safe for concurrent use; the locomotion tick owns it exclusively.
package predict

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/config"
	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/spring"
)

var (
	ErrHorizonMismatch  = errors.New("predict: position and rotation horizons differ")
	ErrInvalidHorizons  = errors.New("predict: horizons must be positive and strictly ascending")
	ErrInvalidHistory   = errors.New("predict: velocity history must hold at least one sample")
	ErrInvalidDeltaTime = errors.New("predict: database delta time must be positive")
)

// Config holds the tracker tuning.
type Config struct {
	ResponsivenessPositions  float64 // [0,1], spring halflife is 1-r
	ResponsivenessDirections float64 // [0,1]
	PositionFrames           []int   // prediction horizons in database frames
	RotationFrames           []int   // must equal PositionFrames
	HistoryLength            int     // velocity smoothing window
	DatabaseDeltaTime        float64 // seconds per database frame
}

// DefaultConfig returns tracker configuration loaded from the canonical
// defaults file (config/locomotion.defaults.json).
// Panics if the file cannot be found; intended for tests.
func DefaultConfig() Config {
	return ConfigFromLocomotion(config.MustLoadDefaultConfig())
}

// ConfigFromLocomotion builds a Config from a loaded Locomotion config.
func ConfigFromLocomotion(cfg *config.Locomotion) Config {
	return Config{
		ResponsivenessPositions:  cfg.GetResponsivenessPositions(),
		ResponsivenessDirections: cfg.GetResponsivenessDirections(),
		PositionFrames:           cfg.GetPositionFrames(),
		RotationFrames:           cfg.GetRotationFrames(),
		HistoryLength:            cfg.GetHistoryLength(),
		DatabaseDeltaTime:        cfg.GetDatabaseDeltaTime(),
	}
}

// Tracker holds the motion state of one device and its predictions.
type Tracker struct {
	cfg     Config
	frames  []int
	history *VelocityHistory
	prevPos r3.Vec

	// DesiredRotation is the heading the trajectory is steered towards. It
	// is set by the caller every tick.
	DesiredRotation quat.Number
	AngularVelocity r3.Vec
	Velocity        r3.Vec
	Acceleration    r3.Vec

	positions         []r3.Vec
	velocities        []r3.Vec
	accelerations     []r3.Vec
	rotations         []quat.Number
	angularVelocities []r3.Vec
}

// NewTracker validates cfg and returns a Tracker whose velocity estimate
// starts from initialPos.
func NewTracker(cfg Config, initialPos r3.Vec) (*Tracker, error) {
	if len(cfg.PositionFrames) != len(cfg.RotationFrames) {
		return nil, fmt.Errorf("%w: %d position vs %d rotation horizons",
			ErrHorizonMismatch, len(cfg.PositionFrames), len(cfg.RotationFrames))
	}
	for i := range cfg.PositionFrames {
		if cfg.PositionFrames[i] != cfg.RotationFrames[i] {
			return nil, fmt.Errorf("%w: horizon %d is %d vs %d",
				ErrHorizonMismatch, i, cfg.PositionFrames[i], cfg.RotationFrames[i])
		}
	}
	if len(cfg.PositionFrames) == 0 {
		return nil, fmt.Errorf("%w: no horizons", ErrInvalidHorizons)
	}
	last := 0
	for i, f := range cfg.PositionFrames {
		if f <= last {
			return nil, fmt.Errorf("%w: horizon %d is %d after %d", ErrInvalidHorizons, i, f, last)
		}
		last = f
	}
	if cfg.HistoryLength < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHistory, cfg.HistoryLength)
	}
	if !(cfg.DatabaseDeltaTime > 0) {
		return nil, fmt.Errorf("%w: got %f", ErrInvalidDeltaTime, cfg.DatabaseDeltaTime)
	}

	cfg.ResponsivenessPositions = math.Max(0, math.Min(1, cfg.ResponsivenessPositions))
	cfg.ResponsivenessDirections = math.Max(0, math.Min(1, cfg.ResponsivenessDirections))

	n := len(cfg.PositionFrames)
	t := &Tracker{
		cfg:               cfg,
		frames:            append([]int(nil), cfg.PositionFrames...),
		history:           NewVelocityHistory(cfg.HistoryLength),
		prevPos:           initialPos,
		DesiredRotation:   geom.Identity,
		positions:         make([]r3.Vec, n),
		velocities:        make([]r3.Vec, n),
		accelerations:     make([]r3.Vec, n),
		rotations:         make([]quat.Number, n),
		angularVelocities: make([]r3.Vec, n),
	}
	for i := range t.rotations {
		t.rotations[i] = geom.Identity
		t.positions[i] = initialPos
	}
	return t, nil
}

func (t *Tracker) positionHalflife() float64  { return 1 - t.cfg.ResponsivenessPositions }
func (t *Tracker) directionHalflife() float64 { return 1 - t.cfg.ResponsivenessDirections }

// Horizons returns the number of prediction horizons.
func (t *Tracker) Horizons() int { return len(t.frames) }

// Frames returns a copy of the horizon frame counts.
func (t *Tracker) Frames() []int { return append([]int(nil), t.frames...) }

// DatabaseDeltaTime returns the fixed frame period used for prediction.
func (t *Tracker) DatabaseDeltaTime() float64 { return t.cfg.DatabaseDeltaTime }

// PredictRotations predicts the rotation at every horizon. Each horizon
// starts from the current rotation and angular velocity and runs the spring
// for the whole horizon in one step; horizons do not build on each other.
func (t *Tracker) PredictRotations(current, desired quat.Number, avgDt float64) {
	for i, frames := range t.frames {
		t.rotations[i], t.angularVelocities[i] = spring.SimpleSpringDamperQuat(
			current, t.AngularVelocity, desired, t.directionHalflife(), float64(frames)*avgDt)
	}
}

// PredictPositions predicts position, velocity and acceleration at every
// horizon. Horizon 0 starts from the current state; each later horizon
// continues from the previous one over the frames between them.
func (t *Tracker) PredictPositions(current, desiredVelocity r3.Vec, avgDt float64) {
	pos, vel, acc := current, t.Velocity, t.Acceleration
	lastFrames := 0
	for i, frames := range t.frames {
		slice := float64(frames-lastFrames) * avgDt
		lastFrames = frames
		pos, vel, acc = spring.CharacterPositionUpdate(pos, vel, acc, desiredVelocity, t.positionHalflife(), slice)
		t.positions[i], t.velocities[i], t.accelerations[i] = pos, vel, acc
	}
}

// SmoothedVelocity measures the velocity since the previous call assuming
// a fixed DatabaseDeltaTime tick, records it and returns the mean of the
// history window.
func (t *Tracker) SmoothedVelocity(currentPos r3.Vec) r3.Vec {
	v := r3.Scale(1/t.cfg.DatabaseDeltaTime, r3.Sub(currentPos, t.prevPos))
	t.prevPos = currentPos
	t.history.Push(v)
	return t.history.Mean()
}

// ComputeNewRotation advances the tracker's own rotation one tick of dt
// seconds towards desired and returns it. The tracker's AngularVelocity is
// updated.
func (t *Tracker) ComputeNewRotation(current, desired quat.Number, dt float64) quat.Number {
	var next quat.Number
	next, t.AngularVelocity = spring.SimpleSpringDamperQuat(current, t.AngularVelocity, desired, t.directionHalflife(), dt)
	return next
}

// AdvanceKinematics advances the tracker's current velocity and
// acceleration one tick of dt seconds towards desiredVelocity, so position
// prediction starts from a moving state instead of rest.
func (t *Tracker) AdvanceKinematics(desiredVelocity r3.Vec, dt float64) {
	_, t.Velocity, t.Acceleration = spring.CharacterPositionUpdate(
		r3.Vec{}, t.Velocity, t.Acceleration, desiredVelocity, t.positionHalflife(), dt)
}

// Reset discards the motion state and history and restarts the velocity
// estimate from pos. Used when playback loops or the feed jumps.
func (t *Tracker) Reset(pos r3.Vec) {
	t.history.Reset()
	t.prevPos = pos
	t.AngularVelocity = r3.Vec{}
	t.Velocity = r3.Vec{}
	t.Acceleration = r3.Vec{}
}

// Prediction is a copy of the per-horizon forecasts, index aligned with
// Frames.
type Prediction struct {
	Frames            []int
	Positions         []r3.Vec
	Velocities        []r3.Vec
	Accelerations     []r3.Vec
	Rotations         []quat.Number
	AngularVelocities []r3.Vec
}

// Prediction returns a copy of the latest forecasts.
func (t *Tracker) Prediction() Prediction {
	return Prediction{
		Frames:            append([]int(nil), t.frames...),
		Positions:         append([]r3.Vec(nil), t.positions...),
		Velocities:        append([]r3.Vec(nil), t.velocities...),
		Accelerations:     append([]r3.Vec(nil), t.accelerations...),
		Rotations:         append([]quat.Number(nil), t.rotations...),
		AngularVelocities: append([]r3.Vec(nil), t.angularVelocities...),
	}
}
