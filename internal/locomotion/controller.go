// Package locomotion runs the per-tick pipeline that turns tracked device
// poses and an estimated body pose into a predicted trajectory and a
// corrected simulation bone.
//
// Each tick aligns the newest landmark set to the play space, picks the
// desired heading, forecasts the headset trajectory and pulls the
// simulation bone back towards the headset. A Controller is single
// threaded; Tick must not be called concurrently.
package locomotion

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/adjust"
	"github.com/banshee-data/locomotion.vr/internal/align"
	"github.com/banshee-data/locomotion.vr/internal/config"
	"github.com/banshee-data/locomotion.vr/internal/feed"
	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/heading"
	"github.com/banshee-data/locomotion.vr/internal/monitoring"
	"github.com/banshee-data/locomotion.vr/internal/pose"
	"github.com/banshee-data/locomotion.vr/internal/predict"
)

// ErrNoInput is returned by Tick until the source has published anything.
var ErrNoInput = errors.New("locomotion: no input yet")

// Input is one tick's worth of feed data.
type Input struct {
	Snapshot feed.Snapshot
	// Fresh is set when Snapshot differs from the previous tick's.
	Fresh bool
	// Dt is the real time since the previous tick, seconds.
	Dt float64
}

// Output is what one tick produced.
type Output struct {
	// Alignment is the transform applied to the newest landmark set. Aligned
	// is false when no fresh landmarks arrived this tick.
	Alignment align.Result
	Aligned   bool
	AlignErr  error
	// Landmarks is a copy of the most recent aligned landmark set, nil
	// until the first successful alignment.
	Landmarks *pose.LandmarkSet

	Trajectory Trajectory

	// DesiredRotation is the heading the trajectory is steered towards.
	DesiredRotation quat.Number
	HeadingErr      error

	// Position and Rotation are the simulation object after this tick.
	Position         r3.Vec
	Rotation         quat.Number
	SmoothedVelocity r3.Vec

	Adjustment adjust.Delta

	// InputChangedQuickly is raised when the squared smoothed speed grew by
	// more than the configured threshold squared since the previous tick.
	InputChangedQuickly bool
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	rotations align.RotationSolver
	predictor heading.DirectionPredictor
	logger    *zap.Logger
}

// WithRotationSolver replaces the SVD rotation fit used by alignment.
func WithRotationSolver(rs align.RotationSolver) Option {
	return func(o *options) { o.rotations = rs }
}

// WithDirectionPredictor replaces the predicted-heading source.
func WithDirectionPredictor(p heading.DirectionPredictor) Option {
	return func(o *options) { o.predictor = p }
}

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Controller owns all per-session pipeline state.
type Controller struct {
	log *zap.Logger

	solver   *align.Solver
	selector *heading.Selector
	tracker  *predict.Tracker
	adjuster *adjust.Controller

	cameraRotation  quat.Number
	scaleFactor     float64
	headOffset      r3.Vec
	leftHandOffset  r3.Vec
	rightHandOffset r3.Vec
	threshold       float64
	kinematics      bool

	seeded      bool
	epoch       int
	position    r3.Vec
	rotation    quat.Number
	prevSpeedSq float64

	aligned    pose.LandmarkSet
	hasAligned bool

	lastHeadingErr error
}

// New builds a Controller from cfg. Invalid modes and horizon settings are
// reported here.
func New(cfg *config.Locomotion, opts ...Option) (*Controller, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = monitoring.Named("locomotion")
	}

	var selOpts []heading.Option
	if o.predictor != nil {
		selOpts = append(selOpts, heading.WithPredictor(o.predictor))
	}
	selector, err := heading.NewSelector(heading.ConfigFromLocomotion(cfg), selOpts...)
	if err != nil {
		return nil, err
	}
	tracker, err := predict.NewTracker(predict.ConfigFromLocomotion(cfg), r3.Vec{})
	if err != nil {
		return nil, err
	}

	return &Controller{
		log:             o.logger,
		solver:          align.NewSolver(o.rotations),
		selector:        selector,
		tracker:         tracker,
		adjuster:        adjust.New(adjust.ConfigFromLocomotion(cfg)),
		cameraRotation:  cfg.GetCameraRotation(),
		scaleFactor:     cfg.GetScaleFactor(),
		headOffset:      cfg.GetHeadOffset(),
		leftHandOffset:  cfg.GetLeftHandOffset(),
		rightHandOffset: cfg.GetRightHandOffset(),
		threshold:       cfg.GetThresholdNotifyVelocityChange(),
		kinematics:      cfg.GetAdvanceKinematics(),
		rotation:        geom.Identity,
	}, nil
}

// Mode returns the active heading mode.
func (c *Controller) Mode() heading.Mode { return c.selector.Mode() }

// SetMode switches the heading mode.
func (c *Controller) SetMode(m heading.Mode) error {
	if err := c.selector.SetMode(m); err != nil {
		return err
	}
	c.log.Info("heading mode changed", zap.String("mode", string(m)))
	return nil
}

// Trajectory returns the latest forecast.
func (c *Controller) Trajectory() Trajectory {
	return Trajectory{Prediction: c.tracker.Prediction()}
}

// HipDirection returns the rotation the character's hips are steered
// towards.
func (c *Controller) HipDirection() quat.Number { return c.tracker.DesiredRotation }

// seed restarts the simulation object at the headset.
func (c *Controller) seed(head pose.Anchor) {
	c.position = head.Position
	c.rotation = geom.NormalizeQuat(head.Rotation)
	c.tracker.Reset(head.Position)
	c.prevSpeedSq = 0
	c.seeded = true
}

// Tick runs one pipeline step. bone may be nil, in which case no
// adjustment is applied. The only error is ErrNoInput; per-stage failures
// are reported in Output.
func (c *Controller) Tick(in Input, bone adjust.Bone) (Output, error) {
	snap := &in.Snapshot
	if snap.Seq == 0 {
		return Output{}, ErrNoInput
	}
	head := snap.Head
	if !c.seeded || snap.Epoch != c.epoch {
		if c.seeded {
			c.log.Info("session restarted", zap.Int("epoch", snap.Epoch))
		}
		c.epoch = snap.Epoch
		c.seed(head)
	}

	var out Output

	if in.Fresh && snap.HasLandmarks {
		set := snap.Landmarks
		res, err := c.solver.Align(align.Problem{
			Landmarks:       &set,
			CameraRotation:  c.cameraRotation,
			ScaleFactor:     c.scaleFactor,
			Head:            head,
			LeftController:  snap.LeftHand,
			RightController: snap.RightHand,
			HeadOffset:      c.headOffset,
			LeftHandOffset:  c.leftHandOffset,
			RightHandOffset: c.rightHandOffset,
		})
		if err != nil {
			out.AlignErr = fmt.Errorf("locomotion: align: %w", err)
			c.log.Warn("alignment failed, keeping previous pose", zap.Error(err))
		} else {
			c.aligned = set
			c.hasAligned = true
			out.Alignment = res
			out.Aligned = true
		}
	}
	if c.hasAligned {
		set := c.aligned
		out.Landmarks = &set
	}

	desiredVelocity := c.tracker.SmoothedVelocity(head.Position)
	speedSq := r3.Norm2(desiredVelocity)
	out.InputChangedQuickly = speedSq-c.prevSpeedSq > c.threshold*c.threshold
	c.prevSpeedSq = speedSq
	out.SmoothedVelocity = desiredVelocity

	desired, err := c.selector.Desired(heading.Input{
		HeadRotation:     head.Rotation,
		SmoothedVelocity: desiredVelocity,
		Landmarks:        out.Landmarks,
		HipTracker:       snap.Hip,
		Dt:               in.Dt,
	})
	if err != nil {
		out.HeadingErr = err
		if !errors.Is(err, c.lastHeadingErr) {
			c.log.Warn("desired heading unavailable, keeping previous",
				zap.String("mode", string(c.selector.Mode())), zap.Error(err))
		}
		desired = c.tracker.DesiredRotation
	} else {
		c.tracker.DesiredRotation = desired
	}
	c.lastHeadingErr = err
	out.DesiredRotation = desired

	dbDt := c.tracker.DatabaseDeltaTime()
	c.tracker.PredictRotations(c.rotation, desired, dbDt)
	c.tracker.PredictPositions(c.position, desiredVelocity, dbDt)
	if c.kinematics {
		c.tracker.AdvanceKinematics(desiredVelocity, in.Dt)
	}

	c.position = head.Position
	c.rotation = c.tracker.ComputeNewRotation(c.rotation, desired, in.Dt)
	out.Position = c.position
	out.Rotation = c.rotation
	out.Trajectory = c.Trajectory()

	if bone != nil {
		out.Adjustment = c.adjuster.Apply(bone, adjust.Target{
			Position: head.Position,
			Rotation: head.Rotation,
		}, in.Dt)
	} else {
		out.Adjustment = adjust.Delta{Rotation: geom.Identity}
	}
	return out, nil
}
