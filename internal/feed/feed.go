// Package feed supplies landmark sets and tracked device poses to the
// locomotion loop, either live (TCP pose estimator plus websocket device
// hub) or from a recorded session.
//
// Sources are polled: every Snapshot carries a sequence number that changes
// whenever new data has arrived, and a Poller turns that into a
// fresh/stale signal once per tick.
package feed

import (
	"time"

	"github.com/banshee-data/locomotion.vr/internal/pose"
	"github.com/banshee-data/locomotion.vr/internal/recording"
)

// Snapshot is the most recent state of a Source.
type Snapshot struct {
	Seq uint64

	// Landmarks is valid when HasLandmarks is set.
	Landmarks    pose.LandmarkSet
	HasLandmarks bool

	Head      pose.Anchor
	LeftHand  pose.Anchor
	RightHand pose.Anchor
	// Hip is nil when no hip tracker is present.
	Hip *pose.Anchor

	// Time is the session time in seconds for recorded sources and the
	// seconds since the source started for live ones.
	Time float64
	// Epoch increases every time a recorded session loops.
	Epoch int
	// Received is the wall time the newest data arrived.
	Received time.Time
}

// Source is a polled feed.
type Source interface {
	Latest() Snapshot
	Connected() bool
	// Latency is the capture latency of the newest landmark set, seconds.
	Latency() float64
}

// Stepper is implemented by sources advanced by the loop rather than by
// the network, such as Playback.
type Stepper interface {
	Step(dt float64)
}

// Poller edge detects new data on a Source.
type Poller struct {
	src     Source
	lastSeq uint64
	seen    bool
}

// NewPoller wraps src.
func NewPoller(src Source) *Poller {
	return &Poller{src: src}
}

// Source returns the wrapped source.
func (p *Poller) Source() Source { return p.src }

// Poll returns the latest snapshot and whether it differs from the one
// returned by the previous Poll. A snapshot with Seq 0 is never fresh.
func (p *Poller) Poll() (Snapshot, bool) {
	s := p.src.Latest()
	if s.Seq == 0 {
		return s, false
	}
	fresh := !p.seen || s.Seq != p.lastSeq
	p.lastSeq = s.Seq
	p.seen = true
	return s, fresh
}

// FrameOf converts a snapshot into a recording frame. A missing hip tracker
// is recorded as the identity pose.
func FrameOf(s Snapshot) recording.Frame {
	f := recording.Frame{
		Time:         s.Time,
		HeadPos:      recording.VecOf(s.Head.Position),
		HeadRot:      recording.QuatOf(s.Head.Rotation),
		LeftHandPos:  recording.VecOf(s.LeftHand.Position),
		LeftHandRot:  recording.QuatOf(s.LeftHand.Rotation),
		RightHandPos: recording.VecOf(s.RightHand.Position),
		RightHandRot: recording.QuatOf(s.RightHand.Rotation),
		TrackerRot:   recording.Quat{W: 1},
	}
	if s.Hip != nil {
		f.TrackerPos = recording.VecOf(s.Hip.Position)
		f.TrackerRot = recording.QuatOf(s.Hip.Rotation)
	}
	f.SetLandmarks(&s.Landmarks)
	return f
}
