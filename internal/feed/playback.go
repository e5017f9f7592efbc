package feed

import (
	"errors"
	"sync"

	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/locomotion.vr/internal/geom"
	"github.com/banshee-data/locomotion.vr/internal/pose"
	"github.com/banshee-data/locomotion.vr/internal/recording"
)

// ErrShortSession is returned for sessions with fewer than two frames.
var ErrShortSession = errors.New("feed: playback needs at least two frames")

// PlaybackConfig tunes a Playback.
type PlaybackConfig struct {
	Loop bool
	// Rotation corrections for recorded devices. The head correction is
	// applied in world space, the hand corrections in device space. Zero
	// values mean identity.
	HeadCorrection      quat.Number
	LeftHandCorrection  quat.Number
	RightHandCorrection quat.Number
}

// Playback replays a recorded session. Frame i is published once the
// accumulated step time passes frame i's timestamp.
type Playback struct {
	frames []recording.Frame
	cfg    PlaybackConfig

	mu      sync.Mutex
	cur     int
	next    int
	time    float64
	seq     uint64
	epoch   int
	latest  Snapshot
	ended   bool
	pending bool
}

// NewPlayback returns a Playback over frames.
func NewPlayback(frames []recording.Frame, cfg PlaybackConfig) (*Playback, error) {
	if len(frames) < 2 {
		return nil, ErrShortSession
	}
	cfg.HeadCorrection = orIdentity(cfg.HeadCorrection)
	cfg.LeftHandCorrection = orIdentity(cfg.LeftHandCorrection)
	cfg.RightHandCorrection = orIdentity(cfg.RightHandCorrection)
	return &Playback{frames: frames, cfg: cfg, next: 1}, nil
}

func orIdentity(q quat.Number) quat.Number {
	if q == (quat.Number{}) {
		return geom.Identity
	}
	return geom.NormalizeQuat(q)
}

// Step advances playback by dt seconds.
func (p *Playback) Step(dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.frames)
	if p.next == n {
		if !p.ended {
			p.ended = true
			p.pending = true
		}
		if !p.cfg.Loop {
			return
		}
		p.cur, p.next, p.time = 0, 1, 0
		p.epoch++
		p.ended = false
	}

	if p.time > p.frames[p.next].Time {
		p.next++
	}
	if p.next > p.cur {
		p.publish(&p.frames[p.next-1])
		p.cur = p.next
	}
	p.time += dt
}

func (p *Playback) publish(f *recording.Frame) {
	p.seq++
	head := f.Head()
	head.Rotation = quat.Mul(p.cfg.HeadCorrection, head.Rotation)
	left := f.LeftHand()
	left.Rotation = quat.Mul(left.Rotation, p.cfg.LeftHandCorrection)
	right := f.RightHand()
	right.Rotation = quat.Mul(right.Rotation, p.cfg.RightHandCorrection)
	hip := f.Tracker()

	p.latest = Snapshot{
		Seq:          p.seq,
		Landmarks:    f.Landmarks(),
		HasLandmarks: true,
		Head:         head,
		LeftHand:     left,
		RightHand:    right,
		Hip:          &hip,
		Time:         f.Time,
		Epoch:        p.epoch,
	}
}

// Latest implements Source. The returned Hip pointer is not shared with
// later snapshots.
func (p *Playback) Latest() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.latest
	if s.Hip != nil {
		hip := *s.Hip
		s.Hip = &hip
	}
	return s
}

// Connected implements Source; a loaded session is always connected.
func (p *Playback) Connected() bool { return true }

// Latency implements Source.
func (p *Playback) Latency() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest.Landmarks.Latency
}

// Ended reports, once per occurrence, that the session reached its last
// frame.
func (p *Playback) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.pending
	p.pending = false
	return e
}

// Done reports whether a non-looping playback has finished.
func (p *Playback) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.cfg.Loop && p.ended
}

// Len returns the number of frames in the session.
func (p *Playback) Len() int { return len(p.frames) }

// Tracker returns the ground truth hip tracker pose of the current frame.
func (p *Playback) Tracker() pose.Anchor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest.Hip == nil {
		return pose.IdentityAnchor()
	}
	return *p.latest.Hip
}
