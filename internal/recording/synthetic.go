package recording

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/pose"
)

// Body dimensions used by Walk, metres.
const (
	walkHeadHeight     = 1.7
	walkHipHeight      = 1.0
	walkShoulderHeight = 1.45
	walkHipHalfWidth   = 0.15
	walkShoulderHalf   = 0.2
)

// Walk synthesises a session of a user walking a circle while looking
// around. The hip tracker faces the direction of travel; the headset yaw
// sways about it. Landmarks are produced in camera space for a camera at
// the origin with identity rotation and unit scale, and agree exactly with
// the device poses under the default head and hand offsets.
type Walk struct {
	Radius     float64 // metres
	Speed      float64 // metres per second
	RateHz     float64 // frames per second
	SwayDeg    float64 // peak head yaw away from the hips
	SwayHz     float64
	Latency    float64 // reported landmark latency, seconds
	HeadOffset r3.Vec
	HandOffset r3.Vec

	n int
}

// NewWalk returns a Walk with a 2 m radius at 1 m/s sampled at 30 Hz.
func NewWalk() *Walk {
	return &Walk{
		Radius:     2,
		Speed:      1,
		RateHz:     30,
		SwayDeg:    20,
		SwayHz:     0.5,
		Latency:    0.03,
		HeadOffset: r3.Vec{Y: -0.08, Z: 0.1},
		HandOffset: r3.Vec{Z: -0.1},
	}
}

// HipYaw returns the hip heading at time t, radians about Up.
func (w *Walk) HipYaw(t float64) float64 {
	return w.Speed * t / w.Radius
}

// Next returns the next frame.
func (w *Walk) Next() Frame {
	t := float64(w.n) / w.RateHz
	w.n++

	theta := w.HipYaw(t)
	ground := r3.Vec{X: w.Radius * (1 - math.Cos(theta)), Z: w.Radius * math.Sin(theta)}
	hipRot := geom.FromAngleAxis(theta, geom.Up)
	sway := geom.Radians(w.SwayDeg) * math.Sin(2*math.Pi*w.SwayHz*t)
	headRot := geom.FromAngleAxis(theta+sway, geom.Up)

	at := func(rot quat.Number, height float64, local r3.Vec) r3.Vec {
		return r3.Add(r3.Add(ground, r3.Vec{Y: height}), geom.Rotate(rot, local))
	}
	head := at(headRot, walkHeadHeight, r3.Vec{})
	hip := at(hipRot, walkHipHeight, r3.Vec{})
	left := at(hipRot, walkHipHeight, r3.Vec{X: -0.25, Z: 0.15})
	right := at(hipRot, walkHipHeight, r3.Vec{X: 0.25, Z: 0.15})

	var set pose.LandmarkSet
	set.Positions[pose.Nose] = r3.Add(head, geom.Rotate(headRot, w.HeadOffset))
	set.Positions[pose.LeftWrist] = r3.Add(left, geom.Rotate(hipRot, w.HandOffset))
	set.Positions[pose.RightWrist] = r3.Add(right, geom.Rotate(hipRot, w.HandOffset))
	set.Positions[pose.LeftShoulder] = at(hipRot, walkShoulderHeight, r3.Vec{X: -walkShoulderHalf})
	set.Positions[pose.RightShoulder] = at(hipRot, walkShoulderHeight, r3.Vec{X: walkShoulderHalf})
	set.Positions[pose.LeftHip] = at(hipRot, walkHipHeight, r3.Vec{X: -walkHipHalfWidth})
	set.Positions[pose.RightHip] = at(hipRot, walkHipHeight, r3.Vec{X: walkHipHalfWidth})
	for _, lt := range []pose.LandmarkType{pose.LeftAnkle, pose.LeftHeel, pose.LeftFootIndex} {
		set.Positions[lt] = at(hipRot, 0, r3.Vec{X: -walkHipHalfWidth})
	}
	for _, lt := range []pose.LandmarkType{pose.RightAnkle, pose.RightHeel, pose.RightFootIndex} {
		set.Positions[lt] = at(hipRot, 0, r3.Vec{X: walkHipHalfWidth})
	}
	// Landmarks without a modelled position sit at the hip centre.
	for i := range set.Positions {
		if set.Positions[i] == (r3.Vec{}) {
			set.Positions[i] = hip
		}
		set.Positions[i].Y = -set.Positions[i].Y
		set.Visibility[i] = 1
	}
	set.Latency = w.Latency

	f := Frame{
		Time:         t,
		HeadPos:      VecOf(head),
		HeadRot:      QuatOf(headRot),
		LeftHandPos:  VecOf(left),
		LeftHandRot:  QuatOf(hipRot),
		RightHandPos: VecOf(right),
		RightHandRot: QuatOf(hipRot),
		TrackerPos:   VecOf(hip),
		TrackerRot:   QuatOf(hipRot),
	}
	f.SetLandmarks(&set)
	return f
}

// Frames returns the next n frames.
func (w *Walk) Frames(n int) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = w.Next()
	}
	return frames
}
