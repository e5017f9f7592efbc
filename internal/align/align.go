// Package align maps an externally estimated body pose into the tracked
// play space.
//
// The pose estimator reports landmarks relative to its camera, in its own
// scale and with Y pointing down. Align fixes scale, chirality and camera
// orientation, drops the pose onto the floor and then fits a yaw rotation
// and horizontal translation that best line up the nose and wrists with the
// headset and hand controllers.
package align

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/kabsch"
	"github.com/banshee-data/locomotion.vr/internal/pose"
)

// RotationSolver finds the rotation best mapping the centred set p onto the
// centred set q.
type RotationSolver interface {
	Solve(p, q []r3.Vec) (quat.Number, error)
}

// Problem bundles everything needed to align one landmark set. It is built
// fresh every tick.
type Problem struct {
	// Landmarks is overwritten in place with the aligned positions.
	Landmarks *pose.LandmarkSet

	CameraRotation quat.Number
	ScaleFactor    float64 // 0 is treated as 1

	Head            pose.Anchor
	LeftController  pose.Anchor
	RightController pose.Anchor

	// Local offsets from each device to the body point it corresponds to.
	HeadOffset      r3.Vec
	LeftHandOffset  r3.Vec
	RightHandOffset r3.Vec
}

// Result is the rigid transform applied by Align: a rotation about Up and a
// horizontal translation.
type Result struct {
	Rotation    quat.Number
	Translation r3.Vec
}

// Solver performs the alignment.
type Solver struct {
	rotations RotationSolver
}

// NewSolver returns a Solver using rs for the rotation fit. A nil rs uses
// the SVD based kabsch solver.
func NewSolver(rs RotationSolver) *Solver {
	if rs == nil {
		rs = kabsch.Solver{}
	}
	return &Solver{rotations: rs}
}

// Align aligns p.Landmarks in place and returns the yaw-only transform that
// was applied after the ground correction. Input geometry is not validated;
// the only error comes from the rotation solver.
func (s *Solver) Align(p Problem) (Result, error) {
	lm := &p.Landmarks.Positions

	scale := p.ScaleFactor
	if scale == 0 {
		scale = 1
	}

	// Camera space to world space: scale, flip Y, rotate.
	camera := geom.NormalizeQuat(p.CameraRotation)
	for i := range lm {
		v := r3.Scale(scale, lm[i])
		v.Y = -v.Y
		lm[i] = geom.Rotate(camera, v)
	}

	GroundAlign(p.Landmarks)

	src := []r3.Vec{
		lm[pose.Nose],
		lm[pose.LeftWrist],
		lm[pose.RightWrist],
	}
	ref := []r3.Vec{
		offsetPoint(p.Head, p.HeadOffset),
		offsetPoint(p.LeftController, p.LeftHandOffset),
		offsetPoint(p.RightController, p.RightHandOffset),
	}

	srcCentroid := geom.Centroid(src)
	refCentroid := geom.Centroid(ref)
	for i := range src {
		src[i] = r3.Sub(src[i], srcCentroid)
		ref[i] = r3.Sub(ref[i], refCentroid)
	}

	full, err := s.rotations.Solve(src, ref)
	if err != nil {
		return Result{Rotation: geom.Identity}, fmt.Errorf("solve anchor rotation: %w", err)
	}
	rotation := YawOnly(full)

	// No vertical translation.
	refCentroid.Y = srcCentroid.Y
	translation := r3.Sub(refCentroid, srcCentroid)

	for i := range lm {
		lm[i] = r3.Add(refCentroid, geom.Rotate(rotation, r3.Sub(lm[i], srcCentroid)))
	}

	return Result{Rotation: rotation, Translation: translation}, nil
}

// offsetPoint returns the world position of a point fixed at local offset
// from the device.
func offsetPoint(a pose.Anchor, offset r3.Vec) r3.Vec {
	return r3.Add(a.Position, geom.Rotate(geom.NormalizeQuat(a.Rotation), offset))
}

// GroundAlign shifts every landmark vertically so the lowest one rests at
// Y=0.
func GroundAlign(set *pose.LandmarkSet) {
	lowest := math.MaxFloat64
	for _, v := range set.Positions {
		if v.Y < lowest {
			lowest = v.Y
		}
	}
	for i := range set.Positions {
		set.Positions[i].Y -= lowest
	}
}

// YawOnly projects q onto a rotation about Up by discarding the horizontal
// components of its axis and keeping its angle. When the axis has no
// vertical component left the result is Identity.
func YawOnly(q quat.Number) quat.Number {
	angle, axis := geom.ToAngleAxis(q)
	axis.X = 0
	axis.Z = 0
	if math.Abs(axis.Y) < 1e-6 {
		return geom.Identity
	}
	return geom.FromAngleAxis(angle, axis)
}
