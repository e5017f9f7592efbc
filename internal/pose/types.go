// Package pose defines the body landmark and tracked device types exchanged
// between the feeds and the locomotion pipeline.
package pose

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// NumLandmarks is the fixed size of every landmark set.
const NumLandmarks = 33

// LandmarkType is the anatomical index of a landmark in a LandmarkSet.
type LandmarkType uint8

const (
	Nose LandmarkType = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex
)

var landmarkNames = [NumLandmarks]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear", "mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_pinky", "right_pinky",
	"left_index", "right_index", "left_thumb", "right_thumb",
	"left_hip", "right_hip", "left_knee", "right_knee",
	"left_ankle", "right_ankle", "left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

func (t LandmarkType) String() string {
	if int(t) < NumLandmarks {
		return landmarkNames[t]
	}
	return fmt.Sprintf("landmark(%d)", uint8(t))
}

// LandmarkSet is one pose estimate: 33 points, a visibility score per point
// and the capture latency reported by the estimator (seconds).
type LandmarkSet struct {
	Positions  [NumLandmarks]r3.Vec
	Visibility [NumLandmarks]float64
	Latency    float64
}

// At returns the position of landmark t.
func (s *LandmarkSet) At(t LandmarkType) r3.Vec {
	return s.Positions[t]
}

// Anchor is a tracked device pose in world space.
type Anchor struct {
	Position r3.Vec
	Rotation quat.Number
}

// IdentityAnchor returns an anchor at the origin with no rotation.
func IdentityAnchor() Anchor {
	return Anchor{Rotation: quat.Number{Real: 1}}
}
