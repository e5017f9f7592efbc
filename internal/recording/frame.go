// Package recording reads and writes captured sessions: per-frame landmark
// sets together with the tracked device poses recorded alongside them.
//
// A session is a JSON lines file, one Frame per line, using the field names
// and {x,y,z[,w]} vector layout of the capture tool.
package recording

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/locomotion.vr/internal/pose"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrEmptySession = errors.New("recording: session has no frames")

// Vec3 is a vector in capture file layout.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is a rotation in capture file layout.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func (v Vec3) R3() r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }

func (q Quat) Number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

// VecOf converts v to capture layout.
func VecOf(v r3.Vec) Vec3 { return Vec3{X: v.X, Y: v.Y, Z: v.Z} }

// QuatOf converts q to capture layout.
func QuatOf(q quat.Number) Quat {
	return Quat{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// Frame is one captured sample.
type Frame struct {
	Time                 float64   `json:"Time"` // seconds since session start
	LandmarkLatency      float64   `json:"LandmarkLatency"`
	LandmarkPositions    []Vec3    `json:"LandmarkPositions"`
	LandmarkVisibilities []float64 `json:"LandmarkVisibilities"`
	HeadPos              Vec3      `json:"HeadPos"`
	LeftHandPos          Vec3      `json:"LeftHandPos"`
	RightHandPos         Vec3      `json:"RightHandPos"`
	HeadRot              Quat      `json:"HeadRot"`
	LeftHandRot          Quat      `json:"LeftHandRot"`
	RightHandRot         Quat      `json:"RightHandRot"`
	TrackerPos           Vec3      `json:"TrackerPos"`
	TrackerRot           Quat      `json:"TrackerRot"`
}

// Landmarks returns the frame's landmark set in camera space. Missing
// entries are left at zero.
func (f *Frame) Landmarks() pose.LandmarkSet {
	var set pose.LandmarkSet
	for i := 0; i < pose.NumLandmarks && i < len(f.LandmarkPositions); i++ {
		set.Positions[i] = f.LandmarkPositions[i].R3()
	}
	for i := 0; i < pose.NumLandmarks && i < len(f.LandmarkVisibilities); i++ {
		set.Visibility[i] = f.LandmarkVisibilities[i]
	}
	set.Latency = f.LandmarkLatency
	return set
}

func (f *Frame) Head() pose.Anchor {
	return pose.Anchor{Position: f.HeadPos.R3(), Rotation: f.HeadRot.Number()}
}

func (f *Frame) LeftHand() pose.Anchor {
	return pose.Anchor{Position: f.LeftHandPos.R3(), Rotation: f.LeftHandRot.Number()}
}

func (f *Frame) RightHand() pose.Anchor {
	return pose.Anchor{Position: f.RightHandPos.R3(), Rotation: f.RightHandRot.Number()}
}

// Tracker returns the ground truth hip tracker pose.
func (f *Frame) Tracker() pose.Anchor {
	return pose.Anchor{Position: f.TrackerPos.R3(), Rotation: f.TrackerRot.Number()}
}

// SetLandmarks stores set into the frame.
func (f *Frame) SetLandmarks(set *pose.LandmarkSet) {
	f.LandmarkPositions = make([]Vec3, pose.NumLandmarks)
	f.LandmarkVisibilities = make([]float64, pose.NumLandmarks)
	for i := range set.Positions {
		f.LandmarkPositions[i] = VecOf(set.Positions[i])
		f.LandmarkVisibilities[i] = set.Visibility[i]
	}
	f.LandmarkLatency = set.Latency
}

// maxLineBytes bounds a single frame line.
const maxLineBytes = 1 << 20

// Read decodes every non-empty line of r as a Frame.
func Read(r io.Reader) ([]Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var frames []Frame
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("recording: line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("recording: read: %w", err)
	}
	if len(frames) == 0 {
		return nil, ErrEmptySession
	}
	return frames, nil
}

// Encode writes f as a single JSON line.
func Encode(w io.Writer, f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("recording: marshal frame: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
