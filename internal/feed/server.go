package feed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/banshee-data/locomotion.vr/internal/monitoring"
	"github.com/banshee-data/locomotion.vr/internal/pose"
	"github.com/banshee-data/locomotion.vr/internal/timeutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultListenAddress is where the pose estimator connects.
const DefaultListenAddress = "127.0.0.1:34151"

// MaxMessageBytes bounds the JSON body of a landmark message.
const MaxMessageBytes = 1 << 20

var ErrBadLength = errors.New("feed: invalid landmark message length")

type jsonLandmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

type jsonLandmarkData struct {
	Landmarks []jsonLandmark `json:"landmarks"`
}

// ReadMessage reads one landmark message: a little endian float32 latency,
// a little endian int32 body length and a JSON body. Landmarks past
// pose.NumLandmarks are ignored and missing ones are left at zero.
func ReadMessage(r io.Reader) (pose.LandmarkSet, error) {
	var set pose.LandmarkSet
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return set, err
	}
	latency := math.Float32frombits(binary.LittleEndian.Uint32(hdr[0:4]))
	n := int32(binary.LittleEndian.Uint32(hdr[4:8]))
	if n < 0 || n > MaxMessageBytes {
		return set, fmt.Errorf("%w: %d", ErrBadLength, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return set, err
	}

	var data jsonLandmarkData
	if err := json.Unmarshal(body, &data); err != nil {
		return set, fmt.Errorf("feed: decode landmarks: %w", err)
	}
	for i, lm := range data.Landmarks {
		if i >= pose.NumLandmarks {
			break
		}
		set.Positions[i].X = lm.X
		set.Positions[i].Y = lm.Y
		set.Positions[i].Z = lm.Z
		set.Visibility[i] = lm.Visibility
	}
	set.Latency = float64(latency)
	return set, nil
}

// WriteMessage writes set in the ReadMessage format.
func WriteMessage(w io.Writer, set *pose.LandmarkSet) error {
	data := jsonLandmarkData{Landmarks: make([]jsonLandmark, pose.NumLandmarks)}
	for i := range set.Positions {
		data.Landmarks[i] = jsonLandmark{
			X:          set.Positions[i].X,
			Y:          set.Positions[i].Y,
			Z:          set.Positions[i].Z,
			Visibility: set.Visibility[i],
		}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	buf := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(float32(set.Latency)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(body)))
	buf = append(buf, body...)
	_, err = w.Write(buf)
	return err
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Address string
	Clock   timeutil.Clock
}

// Server accepts a single pose estimator connection at a time and keeps the
// most recent landmark set it sent.
type Server struct {
	address string
	clock   timeutil.Clock
	log     *zap.Logger
	started time.Time

	mu        sync.Mutex
	ln        net.Listener
	client    net.Conn
	seq       uint64
	latest    Snapshot
	connected bool
}

// NewServer creates a Server. An empty address uses DefaultListenAddress.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Address == "" {
		cfg.Address = DefaultListenAddress
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Server{
		address: cfg.Address,
		clock:   cfg.Clock,
		log:     monitoring.Named("feed.server"),
		started: cfg.Clock.Now(),
	}
}

// Listen binds the listener. It is called by Start when needed.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start accepts connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
		s.mu.Lock()
		if s.client != nil {
			s.client.Close()
		}
		s.mu.Unlock()
	}()

	monitoring.Logf("Pose estimation server listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		busy := s.client != nil
		if !busy {
			s.client = conn
			s.connected = true
		}
		s.mu.Unlock()
		if busy {
			s.log.Warn("rejecting second pose estimator", zap.Stringer("remote", conn.RemoteAddr()))
			conn.Close()
			continue
		}

		monitoring.Logf("Pose estimator connected from %s", conn.RemoteAddr())
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		s.client = nil
		s.connected = false
		s.mu.Unlock()
		monitoring.Logf("Pose estimator disconnected")
	}()

	for {
		set, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Warn("landmark read failed", zap.Error(err))
			}
			return
		}
		s.store(&set)
	}
}

func (s *Server) store(set *pose.LandmarkSet) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.latest = Snapshot{
		Seq:          s.seq,
		Landmarks:    *set,
		HasLandmarks: true,
		Time:         now.Sub(s.started).Seconds(),
		Received:     now,
	}
}

// Latest implements Source.
func (s *Server) Latest() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Connected implements Source.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Latency implements Source.
func (s *Server) Latency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest.Landmarks.Latency
}
