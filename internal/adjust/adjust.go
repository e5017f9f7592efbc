// Package adjust pulls the animated simulation bone towards the tracked
// simulation object each tick.
//
// Two damped nudges run per tick, one for horizontal position and one for
// yaw. Each is limited to a fraction of the bone's own motion during the
// tick so the correction is never larger than what the animation could
// plausibly have done. A hard clamp then bounds the horizontal separation.
package adjust

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/config"
	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/spring"
)

// Bone is the externally animated simulation bone. Implementations apply
// adjustments immediately so that Position and Forward reflect them.
type Bone interface {
	Position() r3.Vec
	Forward() r3.Vec
	Velocity() r3.Vec
	AngularVelocity() r3.Vec // scaled angle-axis per second
	ApplyPositionAdjustment(delta r3.Vec)
	ApplyRotationAdjustment(delta quat.Number)
}

// Target is the tracked simulation object the bone is pulled towards.
type Target struct {
	Position r3.Vec
	Rotation quat.Number
	// LocalForward is the bone's forward axis expressed in the target's
	// local frame. Zero means geom.Forward.
	LocalForward r3.Vec
}

// Forward returns the target's world forward direction.
func (t Target) Forward() r3.Vec {
	local := t.LocalForward
	if local == (r3.Vec{}) {
		local = geom.Forward
	}
	return geom.Rotate(geom.NormalizeQuat(t.Rotation), local)
}

// Config holds the adjustment tuning.
type Config struct {
	DoAdjustment     bool
	PositionHalfLife float64 // seconds, [0,2]
	RotationHalfLife float64 // seconds, [0,2]
	PositionMaxRatio float64 // [0,2]
	RotationMaxRatio float64 // [0,2]

	DoClamping  bool
	MaxDistance float64 // metres, >= 0
}

// ConfigFromLocomotion builds a Config from a loaded Locomotion config.
func ConfigFromLocomotion(cfg *config.Locomotion) Config {
	return Config{
		DoAdjustment:     cfg.GetDoAdjustment(),
		PositionHalfLife: cfg.GetPositionAdjustmentHalfLife(),
		RotationHalfLife: cfg.GetRotationAdjustmentHalfLife(),
		PositionMaxRatio: cfg.GetPositionMaxAdjustmentRatio(),
		RotationMaxRatio: cfg.GetRotationMaxAdjustmentRatio(),
		DoClamping:       cfg.GetDoClamping(),
		MaxDistance:      cfg.GetMaxDistance(),
	}
}

// Delta records what Apply did to the bone during one tick.
type Delta struct {
	Position r3.Vec
	Rotation quat.Number
	Clamp    r3.Vec
	Clamped  bool
}

// AdjustPosition returns the horizontal nudge moving bonePos towards
// objectPos, with length at most ratio·|boneVel|·dt.
func AdjustPosition(objectPos, bonePos, boneVel r3.Vec, halflife, ratio, dt float64) r3.Vec {
	diff := geom.Flatten(r3.Sub(objectPos, bonePos))
	adj := spring.DampAdjustment(diff, halflife, dt)

	maxLen := ratio * r3.Norm(boneVel) * dt
	if r3.Norm(adj) > maxLen {
		adj = r3.Scale(maxLen, geom.Normalize(adj))
	}
	return adj
}

// AdjustRotation returns the yaw nudge turning boneFwd towards objectFwd,
// with angle at most ratio·|boneAngVel|·dt. Both forwards are flattened
// before comparison; a vertical forward yields Identity.
func AdjustRotation(objectFwd, boneFwd, boneAngVel r3.Vec, halflife, ratio, dt float64) quat.Number {
	obj := geom.Normalize(geom.Flatten(objectFwd))
	bone := geom.Normalize(geom.Flatten(boneFwd))
	if obj == (r3.Vec{}) || bone == (r3.Vec{}) {
		return geom.Identity
	}

	diff := geom.FromToRotation(bone, obj, geom.Up)
	adj := spring.DampAdjustmentQuat(diff, halflife, dt)

	maxLen := ratio * r3.Norm(boneAngVel) * dt
	saa := geom.ToScaledAngleAxis(adj)
	if r3.Norm(saa) > maxLen {
		adj = geom.FromScaledAngleAxis(r3.Scale(maxLen, geom.Normalize(saa)))
	}
	return adj
}

// ClampDistance returns the horizontal correction placing bonePos at most
// maxDist from objectPos along the object to bone direction, and whether a
// correction was needed.
func ClampDistance(objectPos, bonePos r3.Vec, maxDist float64) (r3.Vec, bool) {
	obj := geom.Flatten(objectPos)
	bone := geom.Flatten(bonePos)
	if r3.Norm(r3.Sub(bone, obj)) <= maxDist {
		return r3.Vec{}, false
	}
	boundary := r3.Add(r3.Scale(maxDist, geom.Normalize(r3.Sub(bone, obj))), obj)
	return r3.Sub(boundary, bone), true
}

// Controller applies the configured adjustments to a bone.
type Controller struct {
	cfg Config
}

// New returns a Controller for cfg.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config { return c.cfg }

// Apply runs the position and rotation nudges and then the hard clamp on
// bone. The clamp sees the bone after the nudges, so the horizontal
// separation afterwards never exceeds MaxDistance.
func (c *Controller) Apply(bone Bone, object Target, dt float64) Delta {
	d := Delta{Rotation: geom.Identity}

	if c.cfg.DoAdjustment {
		d.Position = AdjustPosition(object.Position, bone.Position(), bone.Velocity(),
			c.cfg.PositionHalfLife, c.cfg.PositionMaxRatio, dt)
		bone.ApplyPositionAdjustment(d.Position)

		d.Rotation = AdjustRotation(object.Forward(), bone.Forward(), bone.AngularVelocity(),
			c.cfg.RotationHalfLife, c.cfg.RotationMaxRatio, dt)
		bone.ApplyRotationAdjustment(d.Rotation)
	}

	if c.cfg.DoClamping {
		d.Clamp, d.Clamped = ClampDistance(object.Position, bone.Position(), c.cfg.MaxDistance)
		if d.Clamped {
			bone.ApplyPositionAdjustment(d.Clamp)
		}
	}
	return d
}
