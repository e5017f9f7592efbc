package heading

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/config"
	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/pose"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func forwardDiff(t *testing.T, want r3.Vec, q quat.Number) {
	t.Helper()
	if diff := cmp.Diff(want, geom.ForwardOf(q), approx); diff != "" {
		t.Errorf("forward mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	for _, m := range Modes {
		got, err := ParseMode(string(m))
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	_, err := ParseMode("hmd-forward")
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestNewSelector_RejectsUnsupportedMode(t *testing.T) {
	t.Parallel()
	s, err := NewSelector(Config{Mode: "sideways"})
	assert.ErrorIs(t, err, ErrUnsupportedMode)
	assert.Nil(t, s)
}

func TestSelector_SetMode(t *testing.T) {
	t.Parallel()
	s, err := NewSelector(Config{Mode: HMDForward})
	require.NoError(t, err)

	require.NoError(t, s.SetMode(HipTracker))
	assert.Equal(t, HipTracker, s.Mode())
	assert.ErrorIs(t, s.SetMode("bogus"), ErrUnsupportedMode)
	assert.Equal(t, HipTracker, s.Mode())
}

func TestSelector_RawHeading(t *testing.T) {
	t.Parallel()
	s, err := NewSelector(Config{Mode: HMDForward})
	require.NoError(t, err)

	head := geom.FromAngleAxis(0.3, r3.Vec{X: 1, Y: 1})
	got, err := s.Desired(Input{HeadRotation: head})
	require.NoError(t, err)
	assert.InDelta(t, 1, math.Abs(geom.Dot(head, got)), 1e-12)
}

func TestSelector_HipTracker(t *testing.T) {
	t.Parallel()
	s, err := NewSelector(Config{Mode: HipTracker})
	require.NoError(t, err)

	_, err = s.Desired(Input{})
	assert.ErrorIs(t, err, ErrHipTrackerUnavailable)

	hip := pose.Anchor{Rotation: geom.FromAngleAxis(-1, geom.Up)}
	got, err := s.Desired(Input{HipTracker: &hip})
	require.NoError(t, err)
	assert.InDelta(t, 1, math.Abs(geom.Dot(hip.Rotation, got)), 1e-12)
}

func TestSelector_PoseHipHeading(t *testing.T) {
	t.Parallel()
	s, err := NewSelector(Config{Mode: PoseEstimForward, PoseHipHalfLife: 0.1})
	require.NoError(t, err)

	_, err = s.Desired(Input{Dt: 1.0 / 60})
	assert.ErrorIs(t, err, ErrNoLandmarks)

	// Hips along +X face +Z.
	set := &pose.LandmarkSet{}
	set.Positions[pose.LeftHip] = r3.Vec{X: -0.15, Y: 1, Z: 2}
	set.Positions[pose.RightHip] = r3.Vec{X: 0.15, Y: 1.05, Z: 2}
	got, err := s.Desired(Input{Landmarks: set, Dt: 1.0 / 60})
	require.NoError(t, err)
	forwardDiff(t, r3.Vec{Z: 1}, got)

	// Turn the hips a quarter to the left; the spring catches up over time.
	set.Positions[pose.LeftHip] = r3.Vec{X: 0, Y: 1, Z: -0.15}
	set.Positions[pose.RightHip] = r3.Vec{X: 0, Y: 1, Z: 0.15}
	first, err := s.Desired(Input{Landmarks: set, Dt: 1.0 / 60})
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		got, err = s.Desired(Input{Landmarks: set, Dt: 1.0 / 60})
		require.NoError(t, err)
	}
	forwardDiff(t, r3.Vec{X: -1}, got)
	assert.Greater(t, geom.AngleBetween(geom.ForwardOf(first), r3.Vec{X: -1}), 0.1)
}

func TestSelector_HeadingIsAlwaysLevel(t *testing.T) {
	t.Parallel()
	s, err := NewSelector(Config{Mode: PoseEstimForward})
	require.NoError(t, err)

	set := &pose.LandmarkSet{}
	set.Positions[pose.LeftHip] = r3.Vec{X: -0.1, Y: 0.7, Z: 0.3}
	set.Positions[pose.RightHip] = r3.Vec{X: 0.2, Y: 1.2, Z: -0.1}
	got, err := s.Desired(Input{Landmarks: set, Dt: 0.02})
	require.NoError(t, err)
	assert.InDelta(t, 0, geom.ForwardOf(got).Y, 1e-9)
}

type fixedPredictor struct{ q quat.Number }

func (f fixedPredictor) PredictedRotation(Input) quat.Number { return f.q }

func TestSelector_PredictedHeadingUsesPredictor(t *testing.T) {
	t.Parallel()
	want := geom.FromAngleAxis(2, geom.Up)
	s, err := NewSelector(Config{Mode: PredictForward}, WithPredictor(fixedPredictor{want}))
	require.NoError(t, err)

	got, err := s.Desired(Input{})
	require.NoError(t, err)
	assert.InDelta(t, 1, math.Abs(geom.Dot(want, got)), 1e-12)
}

func TestVelocityHeading(t *testing.T) {
	t.Parallel()
	v := NewVelocityHeading(0.2)

	// Slow: follow the headset yaw, ignoring pitch.
	head := quat.Mul(geom.FromAngleAxis(math.Pi/2, geom.Up), geom.FromAngleAxis(-0.4, geom.Right))
	got := v.PredictedRotation(Input{HeadRotation: head, SmoothedVelocity: r3.Vec{Z: 0.1}})
	forwardDiff(t, r3.Vec{X: 1}, got)

	// Fast: follow the direction of travel.
	got = v.PredictedRotation(Input{HeadRotation: head, SmoothedVelocity: r3.Vec{Z: -1, Y: 3}})
	forwardDiff(t, r3.Vec{Z: -1}, got)

	// Looking straight up keeps the last heading.
	up := geom.FromAngleAxis(-math.Pi/2, geom.Right)
	got = v.PredictedRotation(Input{HeadRotation: up})
	forwardDiff(t, r3.Vec{Z: -1}, got)
}

func TestConfigFromLocomotion(t *testing.T) {
	t.Parallel()
	cfg := ConfigFromLocomotion(config.MustLoadDefaultConfig())
	assert.Equal(t, PredictForward, cfg.Mode)
	assert.InDelta(t, 0.1, cfg.PoseHipHalfLife, 1e-12)

	_, err := NewSelector(cfg)
	require.NoError(t, err)
}
