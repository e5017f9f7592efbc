package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/banshee-data/locomotion.vr/internal/monitoring"
	"github.com/banshee-data/locomotion.vr/internal/pose"
	"github.com/banshee-data/locomotion.vr/internal/recording"
	"github.com/banshee-data/locomotion.vr/internal/timeutil"
)

// DevicePose is a tracked device pose on the wire.
type DevicePose struct {
	Position recording.Vec3 `json:"position"`
	Rotation recording.Quat `json:"rotation"`
}

// Anchor converts p to world space types.
func (p DevicePose) Anchor() pose.Anchor {
	return pose.Anchor{Position: p.Position.R3(), Rotation: p.Rotation.Number()}
}

// DeviceMessage is one update from the headset runtime.
type DeviceMessage struct {
	Head      DevicePose  `json:"head"`
	LeftHand  DevicePose  `json:"left_hand"`
	RightHand DevicePose  `json:"right_hand"`
	Hip       *DevicePose `json:"hip,omitempty"`
}

// DeviceHub is an http.Handler accepting websocket connections from the
// headset runtime. Each text message is a DeviceMessage; the newest one
// wins regardless of which connection sent it.
type DeviceHub struct {
	upgrader websocket.Upgrader
	clock    timeutil.Clock
	log      *zap.Logger

	mu      sync.Mutex
	seq     uint64
	conns   int
	latest  Snapshot
	dropped uint64
}

// NewDeviceHub returns an empty hub. A nil clock uses the wall clock.
func NewDeviceHub(clock timeutil.Clock) *DeviceHub {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DeviceHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clock: clock,
		log:   monitoring.Named("feed.devices"),
	}
}

// ServeHTTP upgrades the request and reads device messages until the
// connection closes.
func (h *DeviceHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.conns++
	h.mu.Unlock()
	monitoring.Logf("Device runtime connected from %s", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		h.conns--
		h.mu.Unlock()
		monitoring.Logf("Device runtime disconnected from %s", r.RemoteAddr)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("device read failed", zap.Error(err))
			}
			return
		}
		var msg DeviceMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.mu.Lock()
			h.dropped++
			h.mu.Unlock()
			h.log.Debug("dropping malformed device message", zap.Error(err))
			continue
		}
		h.store(&msg, h.clock.Now())
	}
}

func (h *DeviceHub) store(msg *DeviceMessage, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	s := Snapshot{
		Seq:       h.seq,
		Head:      msg.Head.Anchor(),
		LeftHand:  msg.LeftHand.Anchor(),
		RightHand: msg.RightHand.Anchor(),
		Received:  now,
	}
	if msg.Hip != nil {
		hip := msg.Hip.Anchor()
		s.Hip = &hip
	}
	h.latest = s
}

// Latest implements Source.
func (h *DeviceHub) Latest() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Connected implements Source.
func (h *DeviceHub) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns > 0
}

// Latency implements Source; device poses carry no capture latency.
func (h *DeviceHub) Latency() float64 { return 0 }

// Dropped returns the number of malformed messages discarded.
func (h *DeviceHub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Live merges landmarks from a pose estimator with device poses from the
// headset runtime.
type Live struct {
	Landmarks Source
	Devices   Source
}

// Latest implements Source. Seq changes when either input changes.
func (l *Live) Latest() Snapshot {
	lm := l.Landmarks.Latest()
	dv := l.Devices.Latest()

	s := dv
	s.Seq = lm.Seq + dv.Seq
	s.Landmarks = lm.Landmarks
	s.HasLandmarks = lm.HasLandmarks
	s.Time = lm.Time
	if lm.Received.After(dv.Received) {
		s.Received = lm.Received
	}
	return s
}

// Connected implements Source.
func (l *Live) Connected() bool {
	return l.Landmarks.Connected() && l.Devices.Connected()
}

// Latency implements Source.
func (l *Live) Latency() float64 { return l.Landmarks.Latency() }
