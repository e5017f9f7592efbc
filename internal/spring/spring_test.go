package spring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/geom"
)

func TestHalflifeDampingRoundTrip(t *testing.T) {
	t.Parallel()
	for _, h := range []float64{0.05, 0.25, 1, 2} {
		assert.InDelta(t, h, DampingToHalflife(HalflifeToDamping(h)), 1e-4, "halflife %v", h)
	}
}

func TestSimpleSpringDamper_Converges(t *testing.T) {
	t.Parallel()
	x, v := 0.0, 0.0
	for i := 0; i < 600; i++ {
		x, v = SimpleSpringDamper(x, v, 1, 0.1, 1.0/60)
	}
	assert.InDelta(t, 1, x, 1e-6)
	assert.InDelta(t, 0, v, 1e-6)
}

func TestSimpleSpringDamper_ZeroDt(t *testing.T) {
	t.Parallel()
	x, v := SimpleSpringDamper(0.3, 0.2, 1, 0.1, 0)
	assert.InDelta(t, 0.3, x, 1e-12)
	assert.InDelta(t, 0.2, v, 1e-12)
}

func TestSimpleSpringDamperVec(t *testing.T) {
	t.Parallel()
	x, v := r3.Vec{}, r3.Vec{}
	goal := r3.Vec{X: 1, Y: -2, Z: 3}
	for i := 0; i < 600; i++ {
		x, v = SimpleSpringDamperVec(x, v, goal, 0.2, 1.0/60)
	}
	assert.InDelta(t, 0, r3.Norm(r3.Sub(goal, x)), 1e-5)
	assert.InDelta(t, 0, r3.Norm(v), 1e-5)
}

func TestSimpleSpringDamperQuat(t *testing.T) {
	t.Parallel()
	x := geom.Identity
	var v r3.Vec
	goal := geom.FromAngleAxis(1.5, geom.Up)

	prev := math.Inf(1)
	for i := 0; i < 600; i++ {
		x, v = SimpleSpringDamperQuat(x, v, goal, 0.1, 1.0/60)
		dist := 1 - math.Abs(geom.Dot(x, goal))
		assert.LessOrEqual(t, dist, prev+1e-12, "critically damped springs do not overshoot")
		prev = dist
	}
	assert.InDelta(t, 1, math.Abs(geom.Dot(x, goal)), 1e-9)
	assert.InDelta(t, 0, r3.Norm(v), 1e-5)
}

func TestCharacterPositionUpdate(t *testing.T) {
	t.Parallel()
	goal := r3.Vec{Z: 1.5}

	// Integrating in one step or many gives the same state.
	x1, v1, a1 := CharacterPositionUpdate(r3.Vec{}, r3.Vec{}, r3.Vec{}, goal, 0.25, 1)
	var x2, v2, a2 r3.Vec
	for i := 0; i < 100; i++ {
		x2, v2, a2 = CharacterPositionUpdate(x2, v2, a2, goal, 0.25, 0.01)
	}
	assert.InDelta(t, x1.Z, x2.Z, 1e-9)
	assert.InDelta(t, v1.Z, v2.Z, 1e-9)
	assert.InDelta(t, a1.Z, a2.Z, 1e-9)

	// Starting at the goal velocity, motion is uniform.
	x, v, a := CharacterPositionUpdate(r3.Vec{}, goal, r3.Vec{}, goal, 0.25, 2)
	assert.InDelta(t, 3, x.Z, 1e-9)
	assert.InDelta(t, 1.5, v.Z, 1e-9)
	assert.InDelta(t, 0, a.Z, 1e-9)
}

func TestAdjustmentFraction(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.5, AdjustmentFraction(0.2, 0.2), 1e-6)
	assert.InDelta(t, 1, AdjustmentFraction(0, 0.1), 1e-6, "zero halflife applies everything")
	assert.Zero(t, AdjustmentFraction(0.2, 0))

	d := DampAdjustment(r3.Vec{X: 2}, 0.2, 0.2)
	assert.InDelta(t, 1, d.X, 1e-6)

	q := DampAdjustmentQuat(geom.FromAngleAxis(1, geom.Up), 0.2, 0.2)
	angle, _ := geom.ToAngleAxis(q)
	assert.InDelta(t, 0.5, angle, 1e-6)
}
