// Package spring implements the critically damped springs used to smooth
// and forecast tracked motion.
//
// Springs are parameterised by halflife: the time in seconds for the
// distance to the goal to halve. A halflife of 0 snaps to the goal.
package spring

import (
	"math"

	"github.com/charmbracelet/harmonica"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/geom"
)

const (
	ln2             = 0.69314718056
	halflifeEpsilon = 1e-5
	adjustEpsilon   = 1e-8
)

// HalflifeToDamping converts a halflife to the equivalent damping
// coefficient.
func HalflifeToDamping(halflife float64) float64 {
	return (4 * ln2) / (halflife + halflifeEpsilon)
}

// DampingToHalflife is the inverse of HalflifeToDamping.
func DampingToHalflife(damping float64) float64 {
	return (4 * ln2) / (damping + halflifeEpsilon)
}

// critical returns a critically damped harmonica spring stepping dt seconds
// with the angular frequency implied by halflife.
func critical(halflife, dt float64) harmonica.Spring {
	omega := HalflifeToDamping(halflife) / 2
	return harmonica.NewSpring(math.Max(0, dt), omega, 1.0)
}

// SimpleSpringDamper advances a scalar x with velocity v one step of dt
// seconds towards goal.
func SimpleSpringDamper(x, v, goal, halflife, dt float64) (float64, float64) {
	return critical(halflife, dt).Update(x, v, goal)
}

// SimpleSpringDamperVec is SimpleSpringDamper applied per component.
func SimpleSpringDamperVec(x, v, goal r3.Vec, halflife, dt float64) (r3.Vec, r3.Vec) {
	s := critical(halflife, dt)
	var nx, nv r3.Vec
	nx.X, nv.X = s.Update(x.X, v.X, goal.X)
	nx.Y, nv.Y = s.Update(x.Y, v.Y, goal.Y)
	nx.Z, nv.Z = s.Update(x.Z, v.Z, goal.Z)
	return nx, nv
}

// SimpleSpringDamperQuat advances rotation x with angular velocity v (scaled
// angle-axis per second) towards goal. The spring runs on the scaled
// angle-axis of the shortest-arc difference x·goal⁻¹.
func SimpleSpringDamperQuat(x quat.Number, v r3.Vec, goal quat.Number, halflife, dt float64) (quat.Number, r3.Vec) {
	diff := geom.ToScaledAngleAxis(geom.Abs(quat.Mul(x, geom.Inverse(goal))))
	nd, nv := SimpleSpringDamperVec(diff, v, r3.Vec{}, halflife, dt)
	return geom.NormalizeQuat(quat.Mul(geom.FromScaledAngleAxis(nd), goal)), nv
}

// CharacterPositionUpdate integrates position x, velocity v and acceleration
// a for dt seconds while v springs towards vGoal.
func CharacterPositionUpdate(x, v, a, vGoal r3.Vec, halflife, dt float64) (r3.Vec, r3.Vec, r3.Vec) {
	y := HalflifeToDamping(halflife) / 2
	j0 := r3.Sub(v, vGoal)
	j1 := r3.Add(a, r3.Scale(y, j0))
	eydt := math.Exp(-y * dt)

	// x' = eydt*((-j1)/y² + (-j0 - j1*dt)/y) + j1/y² + j0/y + vGoal*dt + x
	inner := r3.Add(r3.Scale(-1/(y*y), j1), r3.Scale(1/y, r3.Sub(r3.Scale(-1, j0), r3.Scale(dt, j1))))
	nx := r3.Add(r3.Scale(eydt, inner), r3.Scale(1/(y*y), j1))
	nx = r3.Add(nx, r3.Scale(1/y, j0))
	nx = r3.Add(nx, r3.Scale(dt, vGoal))
	nx = r3.Add(nx, x)

	nv := r3.Add(r3.Scale(eydt, r3.Add(j0, r3.Scale(dt, j1))), vGoal)
	na := r3.Scale(eydt, r3.Sub(a, r3.Scale(y*dt, j1)))
	return nx, nv, na
}

// AdjustmentFraction is the share of a pending correction to apply over dt
// so that after halflife seconds half of it remains.
func AdjustmentFraction(halflife, dt float64) float64 {
	return 1 - math.Exp(-(ln2*dt)/(halflife+adjustEpsilon))
}

// DampAdjustment returns the part of delta to apply this step.
func DampAdjustment(delta r3.Vec, halflife, dt float64) r3.Vec {
	return r3.Scale(AdjustmentFraction(halflife, dt), delta)
}

// DampAdjustmentQuat returns the part of rotation delta to apply this step,
// interpolated along the shortest arc from identity.
func DampAdjustmentQuat(delta quat.Number, halflife, dt float64) quat.Number {
	saa := geom.ToScaledAngleAxis(geom.Abs(delta))
	return geom.FromScaledAngleAxis(r3.Scale(AdjustmentFraction(halflife, dt), saa))
}
