package predict

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/spring"
)

const dbDt = 1.0 / 60

func testConfig() Config {
	return Config{
		ResponsivenessPositions:  0.75,
		ResponsivenessDirections: 0.75,
		PositionFrames:           []int{20, 40, 60},
		RotationFrames:           []int{20, 40, 60},
		HistoryLength:            1,
		DatabaseDeltaTime:        dbDt,
	}
}

func quatAngle(a, b quat.Number) float64 {
	d := math.Min(1, math.Abs(geom.Dot(geom.NormalizeQuat(a), geom.NormalizeQuat(b))))
	return 2 * math.Acos(d)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, []int{20, 40, 60}, cfg.PositionFrames)
	assert.Equal(t, cfg.PositionFrames, cfg.RotationFrames)
	assert.Equal(t, 1, cfg.HistoryLength)
	assert.InDelta(t, dbDt, cfg.DatabaseDeltaTime, 1e-12)
}

func TestNewTracker_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"length mismatch", func(c *Config) { c.RotationFrames = []int{20, 40} }, ErrHorizonMismatch},
		{"value mismatch", func(c *Config) { c.RotationFrames = []int{20, 45, 60} }, ErrHorizonMismatch},
		{"empty", func(c *Config) { c.PositionFrames, c.RotationFrames = nil, nil }, ErrInvalidHorizons},
		{"not ascending", func(c *Config) { c.PositionFrames, c.RotationFrames = []int{20, 20}, []int{20, 20} }, ErrInvalidHorizons},
		{"zero frames", func(c *Config) { c.PositionFrames, c.RotationFrames = []int{0, 10}, []int{0, 10} }, ErrInvalidHorizons},
		{"no history", func(c *Config) { c.HistoryLength = 0 }, ErrInvalidHistory},
		{"zero delta time", func(c *Config) { c.DatabaseDeltaTime = 0 }, ErrInvalidDeltaTime},
		{"NaN delta time", func(c *Config) { c.DatabaseDeltaTime = math.NaN() }, ErrInvalidDeltaTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tt.mutate(&cfg)
			tr, err := NewTracker(cfg, r3.Vec{})
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, 3, tr.Horizons())
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, tr)
		})
	}
}

func TestNewTracker_ClampsResponsiveness(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.ResponsivenessPositions = 3
	cfg.ResponsivenessDirections = -1
	tr, err := NewTracker(cfg, r3.Vec{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, tr.positionHalflife())
	assert.Equal(t, 1.0, tr.directionHalflife())
}

func TestPredictPositions_Chained(t *testing.T) {
	t.Parallel()
	tr, err := NewTracker(testConfig(), r3.Vec{})
	require.NoError(t, err)
	tr.Velocity = r3.Vec{X: 0.2, Z: 0.5}
	tr.Acceleration = r3.Vec{Z: -0.1}

	current := r3.Vec{X: 1, Y: 1.7, Z: -2}
	desired := r3.Vec{X: 0.8, Z: 1.2}
	tr.PredictPositions(current, desired, dbDt)
	got := tr.Prediction()

	hl := 1 - 0.75
	x, v, a := spring.CharacterPositionUpdate(current, tr.Velocity, tr.Acceleration, desired, hl, 20*dbDt)
	approx := cmpopts.EquateApprox(0, 1e-12)
	if diff := cmp.Diff(x, got.Positions[0], approx); diff != "" {
		t.Errorf("horizon 0 position (-want +got):\n%s", diff)
	}
	for i := 1; i < 3; i++ {
		x, v, a = spring.CharacterPositionUpdate(x, v, a, desired, hl, 20*dbDt)
		if diff := cmp.Diff(x, got.Positions[i], approx); diff != "" {
			t.Errorf("horizon %d position (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(v, got.Velocities[i], approx); diff != "" {
			t.Errorf("horizon %d velocity (-want +got):\n%s", i, diff)
		}
		if diff := cmp.Diff(a, got.Accelerations[i], approx); diff != "" {
			t.Errorf("horizon %d acceleration (-want +got):\n%s", i, diff)
		}
	}

	// Vertical motion never appears when nothing asks for it.
	for i, p := range got.Positions {
		assert.InDelta(t, 1.7, p.Y, 1e-12, "horizon %d", i)
	}
}

func TestPredictPositions_UnevenHorizonsUseIncrementalSlices(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.PositionFrames = []int{5, 30}
	cfg.RotationFrames = []int{5, 30}
	tr, err := NewTracker(cfg, r3.Vec{})
	require.NoError(t, err)

	desired := r3.Vec{Z: 1}
	tr.PredictPositions(r3.Vec{}, desired, dbDt)
	got := tr.Prediction()

	x, v, a := spring.CharacterPositionUpdate(r3.Vec{}, r3.Vec{}, r3.Vec{}, desired, 0.25, 5*dbDt)
	x, _, _ = spring.CharacterPositionUpdate(x, v, a, desired, 0.25, 25*dbDt)
	assert.InDelta(t, x.Z, got.Positions[1].Z, 1e-12)
}

func TestPredictRotations_IndependentHorizons(t *testing.T) {
	t.Parallel()
	tr, err := NewTracker(testConfig(), r3.Vec{})
	require.NoError(t, err)

	current := geom.Identity
	desired := geom.FromAngleAxis(math.Pi/2, geom.Up)
	tr.PredictRotations(current, desired, dbDt)
	got := tr.Prediction()

	prev := quatAngle(current, desired)
	for i, frames := range got.Frames {
		want, wantVel := spring.SimpleSpringDamperQuat(current, r3.Vec{}, desired, 0.25, float64(frames)*dbDt)
		assert.InDelta(t, 0, quatAngle(want, got.Rotations[i]), 1e-9, "horizon %d", i)
		if diff := cmp.Diff(wantVel, got.AngularVelocities[i], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("horizon %d angular velocity (-want +got):\n%s", i, diff)
		}

		remaining := quatAngle(got.Rotations[i], desired)
		assert.Less(t, remaining, prev, "horizon %d should be closer to the goal", i)
		prev = remaining
	}
}

func TestSmoothedVelocity(t *testing.T) {
	t.Parallel()

	t.Run("single sample is instantaneous", func(t *testing.T) {
		t.Parallel()
		tr, err := NewTracker(testConfig(), r3.Vec{})
		require.NoError(t, err)

		v := tr.SmoothedVelocity(r3.Vec{Z: 0.1})
		assert.InDelta(t, 6.0, v.Z, 1e-9)
		v = tr.SmoothedVelocity(r3.Vec{Z: 0.1})
		assert.Equal(t, r3.Vec{}, v)
	})

	t.Run("mean over full window", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.HistoryLength = 3
		tr, err := NewTracker(cfg, r3.Vec{})
		require.NoError(t, err)

		// Window not yet full: empty slots count as zero.
		v := tr.SmoothedVelocity(r3.Vec{X: 0.03})
		assert.InDelta(t, 0.6, v.X, 1e-9)
		tr.SmoothedVelocity(r3.Vec{X: 0.06})
		v = tr.SmoothedVelocity(r3.Vec{X: 0.09})
		assert.InDelta(t, 1.8, v.X, 1e-9)

		// Oldest sample drops out.
		v = tr.SmoothedVelocity(r3.Vec{X: 0.09})
		assert.InDelta(t, 1.2, v.X, 1e-9)
	})

	t.Run("reset clears history", func(t *testing.T) {
		t.Parallel()
		tr, err := NewTracker(testConfig(), r3.Vec{})
		require.NoError(t, err)
		tr.SmoothedVelocity(r3.Vec{X: 1})
		tr.Reset(r3.Vec{X: 10})
		assert.Equal(t, r3.Vec{}, tr.SmoothedVelocity(r3.Vec{X: 10}))
	})
}

func TestComputeNewRotation_Converges(t *testing.T) {
	t.Parallel()
	tr, err := NewTracker(testConfig(), r3.Vec{})
	require.NoError(t, err)

	rot := geom.Identity
	desired := geom.FromAngleAxis(-2, geom.Up)
	for i := 0; i < 600; i++ {
		rot = tr.ComputeNewRotation(rot, desired, dbDt)
		assert.InDelta(t, 1, quat.Abs(rot), 1e-9)
	}
	assert.Less(t, quatAngle(rot, desired), 1e-3)
	assert.Less(t, r3.Norm(tr.AngularVelocity), 1e-2)
}

func TestAdvanceKinematics_ApproachesDesiredVelocity(t *testing.T) {
	t.Parallel()
	tr, err := NewTracker(testConfig(), r3.Vec{})
	require.NoError(t, err)

	desired := r3.Vec{X: -0.5, Z: 1.5}
	for i := 0; i < 300; i++ {
		tr.AdvanceKinematics(desired, dbDt)
	}
	if diff := cmp.Diff(desired, tr.Velocity, cmpopts.EquateApprox(0, 1e-3)); diff != "" {
		t.Errorf("velocity (-want +got):\n%s", diff)
	}
}

func TestPrediction_IsACopy(t *testing.T) {
	t.Parallel()
	tr, err := NewTracker(testConfig(), r3.Vec{})
	require.NoError(t, err)
	p := tr.Prediction()
	p.Positions[0] = r3.Vec{X: 42}
	p.Frames[0] = 7
	assert.Equal(t, r3.Vec{}, tr.Prediction().Positions[0])
	assert.Equal(t, 20, tr.Frames()[0])
}
