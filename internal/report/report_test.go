package report

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/locomotion.vr/internal/metrics"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestWindow_IsExclusive(t *testing.T) {
	t.Parallel()
	in := []metrics.Sample{{Time: 2, Angle: 1}, {Time: 2.1, Angle: 2}, {Time: 49.9, Angle: 3}, {Time: 50, Angle: 4}, {Time: 60, Angle: 5}}
	got := DefaultConfig().Window(in)
	assert.Equal(t, []metrics.Sample{{Time: 2.1, Angle: 2}, {Time: 49.9, Angle: 3}}, got)
}

func TestGroundTruth(t *testing.T) {
	t.Parallel()

	_, err := NewGroundTruth(nil)
	assert.ErrorIs(t, err, ErrNoGroundTruth)

	gt, err := NewGroundTruth([]metrics.Sample{{Time: 4, Angle: 20}, {Time: 2, Angle: 10}, {Time: 2, Angle: 99}})
	require.NoError(t, err)

	tests := []struct {
		time float64
		want float64
	}{
		{2, 10},
		{3, 15},
		{4, 20},
		{1, 10},  // held before the first sample
		{10, 20}, // and after the last
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, gt.At(tt.time), 1e-9, "t=%v", tt.time)
	}

	single, err := NewGroundTruth([]metrics.Sample{{Time: 5, Angle: 7}})
	require.NoError(t, err)
	assert.Equal(t, 7.0, single.At(100))
}

func TestConfigGroundTruth_WindowsBeforeFitting(t *testing.T) {
	t.Parallel()
	samples := []metrics.Sample{{Time: 0, Angle: 100}, {Time: 3, Angle: 10}, {Time: 5, Angle: 20}, {Time: 60, Angle: 100}}

	gt, err := DefaultConfig().GroundTruth(samples)
	require.NoError(t, err)
	assert.InDelta(t, 10, gt.At(2.5), 1e-12, "held at the first windowed value")
	assert.InDelta(t, 20, gt.At(49), 1e-12, "held at the last windowed value")

	unwindowed, err := NewGroundTruth(samples)
	require.NoError(t, err)
	assert.Greater(t, unwindowed.At(2.5), 10.0)

	_, err = DefaultConfig().GroundTruth([]metrics.Sample{{Time: 1, Angle: 5}, {Time: 55, Angle: 5}})
	assert.ErrorIs(t, err, ErrNoGroundTruth)
}

func TestAnalyse(t *testing.T) {
	t.Parallel()
	gt, err := NewGroundTruth([]metrics.Sample{{Time: 0, Angle: 1}, {Time: 100, Angle: 1}})
	require.NoError(t, err)

	series := []Series{
		{Name: "a", Samples: []metrics.Sample{{Time: 1, Angle: 50}, {Time: 3, Angle: 5}, {Time: 4, Angle: 7}}},
		{Name: "empty", Samples: []metrics.Sample{{Time: 1, Angle: 3}}},
	}
	processed, summaries := DefaultConfig().Analyse(gt, series)

	want := []metrics.Sample{{Time: 3, Angle: 4}, {Time: 4, Angle: 6}}
	if diff := cmp.Diff(want, processed[0].Samples, approx); diff != "" {
		t.Errorf("corrected samples mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "a", summaries[0].Name)
	assert.Equal(t, 2, summaries[0].Count)
	assert.InDelta(t, 5, summaries[0].Mean, 1e-9)

	assert.Equal(t, 0, summaries[1].Count)
	assert.True(t, math.IsNaN(summaries[1].Mean))

	// Without ground truth only the window applies.
	_, summaries = DefaultConfig().Analyse(nil, series[:1])
	assert.InDelta(t, 6, summaries[0].Mean, 1e-9)
}

func TestPlot_WritesPNG(t *testing.T) {
	t.Parallel()
	series := []Series{
		{Name: "predicted-heading", Samples: []metrics.Sample{{Time: 2.5, Angle: 10}, {Time: 3, Angle: 12}, {Time: 3.5, Angle: 8}}},
		{Name: "raw-heading", Samples: []metrics.Sample{{Time: 2.5, Angle: 20}, {Time: 3, Angle: 25}, {Time: 3.5, Angle: 18}}},
		{Name: "nothing"},
	}
	var buf bytes.Buffer
	require.NoError(t, Plot(&buf, "hip error", series))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)
}

func TestGenerateColors_Distinct(t *testing.T) {
	t.Parallel()
	colors := generateColors(3)
	require.Len(t, colors, 3)
	assert.NotEqual(t, colors[0], colors[1])
	assert.NotEqual(t, colors[1], colors[2])
}
