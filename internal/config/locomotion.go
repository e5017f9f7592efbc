package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultConfigPath is the path to the canonical locomotion defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/locomotion.defaults.json"

// Vec3 is a JSON friendly vector.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// R3 converts v to a gonum vector.
func (v Vec3) R3() r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

// Quat is a JSON friendly rotation, stored x, y, z, w.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Number converts q to a gonum quaternion.
func (q Quat) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// Locomotion is the root configuration of the locomotion pipeline. Every
// field is optional; the Get* accessors supply defaults and clamp values
// into their documented ranges.
type Locomotion struct {
	// Heading
	Mode                    *string  `json:"mode,omitempty"`
	PoseHipHalfLife         *float64 `json:"pose_hip_half_life,omitempty"`
	VelocityHeadingMinSpeed *float64 `json:"velocity_heading_min_speed,omitempty"`

	// Alignment
	ScaleFactor     *float64 `json:"scale_factor,omitempty"`
	CameraRotation  *Quat    `json:"camera_rotation,omitempty"`
	HeadOffset      *Vec3    `json:"head_offset,omitempty"`
	LeftHandOffset  *Vec3    `json:"left_hand_offset,omitempty"`
	RightHandOffset *Vec3    `json:"right_hand_offset,omitempty"`

	// Prediction
	ResponsivenessPositions  *float64 `json:"responsiveness_positions,omitempty"`
	ResponsivenessDirections *float64 `json:"responsiveness_directions,omitempty"`
	ThresholdNotifyVelocity  *float64 `json:"threshold_notify_velocity_change,omitempty"`
	PositionFrames           []int    `json:"position_frames,omitempty"`
	RotationFrames           []int    `json:"rotation_frames,omitempty"`
	HistoryLength            *int     `json:"history_length,omitempty"`
	FrameRateHz              *float64 `json:"frame_rate_hz,omitempty"`
	AdvanceKinematics        *bool    `json:"advance_kinematics,omitempty"`

	// Adjustment and clamping
	DoAdjustment               *bool    `json:"do_adjustment,omitempty"`
	PositionAdjustmentHalfLife *float64 `json:"position_adjustment_half_life,omitempty"`
	RotationAdjustmentHalfLife *float64 `json:"rotation_adjustment_half_life,omitempty"`
	PositionMaxAdjustmentRatio *float64 `json:"position_max_adjustment_ratio,omitempty"`
	RotationMaxAdjustmentRatio *float64 `json:"rotation_max_adjustment_ratio,omitempty"`
	DoClamping                 *bool    `json:"do_clamping,omitempty"`
	MaxDistance                *float64 `json:"max_distance,omitempty"`

	// Feeds
	LandmarkListen      *string `json:"landmark_listen,omitempty"`
	HeadCorrection      *Quat   `json:"head_correction,omitempty"`
	LeftHandCorrection  *Quat   `json:"left_hand_correction,omitempty"`
	RightHandCorrection *Quat   `json:"right_hand_correction,omitempty"`
	StaleAfter          *string `json:"stale_after,omitempty"` // duration string like "500ms"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyLocomotion returns a Locomotion with all fields unset.
// Use LoadLocomotionConfig to load actual values from the defaults file.
func EmptyLocomotion() *Locomotion {
	return &Locomotion{}
}

// LoadLocomotionConfig loads a Locomotion config from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to the Get* defaults, so partial configs are safe.
func LoadLocomotionConfig(path string) (*Locomotion, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyLocomotion()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Locomotion {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadLocomotionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate rejects values that cannot be clamped into something sensible.
// Range limited values such as responsiveness are clamped by their getters
// instead. Heading mode names are checked by heading.ParseMode.
func (c *Locomotion) Validate() error {
	for name, p := range map[string]*float64{
		"pose_hip_half_life":               c.PoseHipHalfLife,
		"velocity_heading_min_speed":       c.VelocityHeadingMinSpeed,
		"scale_factor":                     c.ScaleFactor,
		"responsiveness_positions":         c.ResponsivenessPositions,
		"responsiveness_directions":        c.ResponsivenessDirections,
		"threshold_notify_velocity_change": c.ThresholdNotifyVelocity,
		"frame_rate_hz":                    c.FrameRateHz,
		"position_adjustment_half_life":    c.PositionAdjustmentHalfLife,
		"rotation_adjustment_half_life":    c.RotationAdjustmentHalfLife,
		"position_max_adjustment_ratio":    c.PositionMaxAdjustmentRatio,
		"rotation_max_adjustment_ratio":    c.RotationMaxAdjustmentRatio,
		"max_distance":                     c.MaxDistance,
	} {
		if p != nil && !finite(*p) {
			return fmt.Errorf("%s must be finite, got %f", name, *p)
		}
	}
	for name, v := range map[string]*Vec3{
		"head_offset":       c.HeadOffset,
		"left_hand_offset":  c.LeftHandOffset,
		"right_hand_offset": c.RightHandOffset,
	} {
		if v != nil && !(finite(v.X) && finite(v.Y) && finite(v.Z)) {
			return fmt.Errorf("%s must be finite, got %+v", name, *v)
		}
	}
	if c.FrameRateHz != nil && *c.FrameRateHz <= 0 {
		return fmt.Errorf("frame_rate_hz must be positive, got %f", *c.FrameRateHz)
	}
	if c.HistoryLength != nil && *c.HistoryLength < 1 {
		return fmt.Errorf("history_length must be at least 1, got %d", *c.HistoryLength)
	}
	if c.MaxDistance != nil && *c.MaxDistance < 0 {
		return fmt.Errorf("max_distance must be non-negative, got %f", *c.MaxDistance)
	}
	if c.ThresholdNotifyVelocity != nil && *c.ThresholdNotifyVelocity < 0 {
		return fmt.Errorf("threshold_notify_velocity_change must be non-negative, got %f", *c.ThresholdNotifyVelocity)
	}
	if c.PoseHipHalfLife != nil && *c.PoseHipHalfLife < 0 {
		return fmt.Errorf("pose_hip_half_life must be non-negative, got %f", *c.PoseHipHalfLife)
	}
	for name, q := range map[string]*Quat{
		"camera_rotation":       c.CameraRotation,
		"head_correction":       c.HeadCorrection,
		"left_hand_correction":  c.LeftHandCorrection,
		"right_hand_correction": c.RightHandCorrection,
	} {
		if q != nil && !(finite(q.X) && finite(q.Y) && finite(q.Z) && finite(q.W)) {
			return fmt.Errorf("%s must be finite, got %+v", name, *q)
		}
		if q != nil && quat.Abs(q.Number()) == 0 {
			return fmt.Errorf("%s must not be the zero quaternion", name)
		}
	}
	if c.StaleAfter != nil && *c.StaleAfter != "" {
		if _, err := time.ParseDuration(*c.StaleAfter); err != nil {
			return fmt.Errorf("invalid stale_after '%s': %w", *c.StaleAfter, err)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func orFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func orVec(p *Vec3) r3.Vec {
	if p == nil {
		return r3.Vec{}
	}
	return p.R3()
}

func orQuat(p *Quat) quat.Number {
	if p == nil {
		return quat.Number{Real: 1}
	}
	return p.Number()
}

// GetMode returns the heading mode name or the default.
func (c *Locomotion) GetMode() string {
	if c.Mode == nil || *c.Mode == "" {
		return "predicted-heading" // default
	}
	return *c.Mode
}

// GetPoseHipHalfLife returns the hip direction smoothing halflife in seconds.
func (c *Locomotion) GetPoseHipHalfLife() float64 {
	return math.Max(0, orFloat(c.PoseHipHalfLife, 0.1))
}

// GetVelocityHeadingMinSpeed returns the speed (m/s) above which the
// velocity heading predictor trusts the direction of travel.
func (c *Locomotion) GetVelocityHeadingMinSpeed() float64 {
	return math.Max(0, orFloat(c.VelocityHeadingMinSpeed, 0.2))
}

// GetScaleFactor returns the pose scale factor. Zero is reported as 1.
func (c *Locomotion) GetScaleFactor() float64 {
	s := orFloat(c.ScaleFactor, 1)
	if s == 0 {
		return 1
	}
	return s
}

// GetCameraRotation returns the pose camera to world rotation.
func (c *Locomotion) GetCameraRotation() quat.Number { return orQuat(c.CameraRotation) }

func (c *Locomotion) GetHeadOffset() r3.Vec      { return orVec(c.HeadOffset) }
func (c *Locomotion) GetLeftHandOffset() r3.Vec  { return orVec(c.LeftHandOffset) }
func (c *Locomotion) GetRightHandOffset() r3.Vec { return orVec(c.RightHandOffset) }

// GetResponsivenessPositions returns the position responsiveness in [0,1].
func (c *Locomotion) GetResponsivenessPositions() float64 {
	return clamp(orFloat(c.ResponsivenessPositions, 0.75), 0, 1)
}

// GetResponsivenessDirections returns the direction responsiveness in [0,1].
func (c *Locomotion) GetResponsivenessDirections() float64 {
	return clamp(orFloat(c.ResponsivenessDirections, 0.75), 0, 1)
}

// GetThresholdNotifyVelocityChange returns the velocity change threshold
// (m/s) above which a quick input change is reported.
func (c *Locomotion) GetThresholdNotifyVelocityChange() float64 {
	return clamp(orFloat(c.ThresholdNotifyVelocity, 0.1), 0, 1)
}

// GetPositionFrames returns the position prediction horizons in frames.
func (c *Locomotion) GetPositionFrames() []int {
	if len(c.PositionFrames) == 0 {
		return []int{20, 40, 60}
	}
	return append([]int(nil), c.PositionFrames...)
}

// GetRotationFrames returns the rotation prediction horizons in frames.
func (c *Locomotion) GetRotationFrames() []int {
	if len(c.RotationFrames) == 0 {
		return []int{20, 40, 60}
	}
	return append([]int(nil), c.RotationFrames...)
}

// GetHistoryLength returns the velocity smoothing window length.
func (c *Locomotion) GetHistoryLength() int {
	if c.HistoryLength == nil {
		return 1
	}
	return *c.HistoryLength
}

// GetFrameRateHz returns the motion database frame rate.
func (c *Locomotion) GetFrameRateHz() float64 {
	return orFloat(c.FrameRateHz, 60)
}

// GetDatabaseDeltaTime returns the fixed tick period implied by the frame
// rate, in seconds.
func (c *Locomotion) GetDatabaseDeltaTime() float64 {
	return 1 / c.GetFrameRateHz()
}

// GetAdvanceKinematics reports whether the tracker's velocity and
// acceleration follow the desired velocity between ticks. When false,
// position forecasts start from rest every tick.
func (c *Locomotion) GetAdvanceKinematics() bool {
	if c.AdvanceKinematics == nil {
		return false // default
	}
	return *c.AdvanceKinematics
}

// GetDoAdjustment reports whether the damped bone adjustment is enabled.
func (c *Locomotion) GetDoAdjustment() bool {
	if c.DoAdjustment == nil {
		return true // default
	}
	return *c.DoAdjustment
}

// GetDoClamping reports whether the hard distance clamp is enabled.
func (c *Locomotion) GetDoClamping() bool {
	if c.DoClamping == nil {
		return true // default
	}
	return *c.DoClamping
}

func (c *Locomotion) GetPositionAdjustmentHalfLife() float64 {
	return clamp(orFloat(c.PositionAdjustmentHalfLife, 0.1), 0, 2)
}

func (c *Locomotion) GetRotationAdjustmentHalfLife() float64 {
	return clamp(orFloat(c.RotationAdjustmentHalfLife, 0.1), 0, 2)
}

func (c *Locomotion) GetPositionMaxAdjustmentRatio() float64 {
	return clamp(orFloat(c.PositionMaxAdjustmentRatio, 0.1), 0, 2)
}

func (c *Locomotion) GetRotationMaxAdjustmentRatio() float64 {
	return clamp(orFloat(c.RotationMaxAdjustmentRatio, 0.1), 0, 2)
}

// GetMaxDistance returns the hard clamp radius in metres.
func (c *Locomotion) GetMaxDistance() float64 {
	return clamp(orFloat(c.MaxDistance, 0.1), 0, 2)
}

// GetLandmarkListen returns the landmark server listen address.
func (c *Locomotion) GetLandmarkListen() string {
	if c.LandmarkListen == nil || *c.LandmarkListen == "" {
		return "127.0.0.1:34151" // default
	}
	return *c.LandmarkListen
}

func (c *Locomotion) GetHeadCorrection() quat.Number      { return orQuat(c.HeadCorrection) }
func (c *Locomotion) GetLeftHandCorrection() quat.Number  { return orQuat(c.LeftHandCorrection) }
func (c *Locomotion) GetRightHandCorrection() quat.Number { return orQuat(c.RightHandCorrection) }

// GetStaleAfter returns how long a live feed may go without data before it
// is reported disconnected.
func (c *Locomotion) GetStaleAfter() time.Duration {
	if c.StaleAfter == nil || *c.StaleAfter == "" {
		return 2 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StaleAfter)
	if err != nil {
		return 2 * time.Second // default on parse error
	}
	return d
}
