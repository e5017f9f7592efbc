package locomotion

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/adjust"
	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/spring"
)

// DefaultBoneHalfLife is the follow halflife of a KinematicBone, seconds.
const DefaultBoneHalfLife = 0.2

// KinematicBone is a stand-in for an animated character's root bone. It
// springs towards the first horizon of the forecast trajectory, which
// gives the adjustment stage a bone that moves on its own and lags the
// headset the way an animation would.
type KinematicBone struct {
	HalfLife float64

	position        r3.Vec
	velocity        r3.Vec
	rotation        quat.Number
	angularVelocity r3.Vec
}

// NewKinematicBone places a bone at position facing along rotation.
func NewKinematicBone(position r3.Vec, rotation quat.Number) *KinematicBone {
	return &KinematicBone{
		HalfLife: DefaultBoneHalfLife,
		position: position,
		rotation: geom.NormalizeQuat(rotation),
	}
}

// Step advances the bone dt seconds towards the first horizon of traj. An
// empty trajectory leaves the bone coasting at rest.
func (b *KinematicBone) Step(traj Trajectory, dt float64) {
	if traj.Len() == 0 || dt <= 0 {
		b.velocity = r3.Vec{}
		b.angularVelocity = r3.Vec{}
		return
	}
	goal := traj.Positions[0]
	goal.Y = b.position.Y
	b.position, b.velocity = spring.SimpleSpringDamperVec(b.position, b.velocity, goal, b.HalfLife, dt)

	dir, err := traj.Feature(FeatureDirection, Head, 0)
	if err != nil || dir == (r3.Vec{}) {
		return
	}
	b.rotation, b.angularVelocity = spring.SimpleSpringDamperQuat(
		b.rotation, b.angularVelocity, geom.LookRotation(dir, geom.Up), b.HalfLife, dt)
}

// Position implements adjust.Bone.
func (b *KinematicBone) Position() r3.Vec { return b.position }

// Forward implements adjust.Bone.
func (b *KinematicBone) Forward() r3.Vec { return geom.Rotate(b.rotation, geom.Forward) }

// Velocity implements adjust.Bone.
func (b *KinematicBone) Velocity() r3.Vec { return b.velocity }

// AngularVelocity implements adjust.Bone.
func (b *KinematicBone) AngularVelocity() r3.Vec { return b.angularVelocity }

// Rotation returns the bone's world rotation.
func (b *KinematicBone) Rotation() quat.Number { return b.rotation }

// ApplyPositionAdjustment implements adjust.Bone.
func (b *KinematicBone) ApplyPositionAdjustment(delta r3.Vec) {
	b.position = r3.Add(b.position, delta)
}

// ApplyRotationAdjustment implements adjust.Bone.
func (b *KinematicBone) ApplyRotationAdjustment(delta quat.Number) {
	b.rotation = geom.NormalizeQuat(quat.Mul(delta, b.rotation))
}

var _ adjust.Bone = (*KinematicBone)(nil)
