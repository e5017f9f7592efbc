// Package metrics measures how well the character's hip heading follows
// the ground truth hip tracker.
package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"gonum.org/v1/gonum/num/quat"

	"github.com/banshee-data/locomotion.vr/internal/geom"
)

// HipAngleError returns the absolute angle in degrees between the ground
// plane projections of the two rotations' forward vectors. It is 0 when
// either projection vanishes.
func HipAngleError(character, tracker quat.Number) float64 {
	a := geom.Flatten(geom.ForwardOf(geom.NormalizeQuat(character)))
	b := geom.Flatten(geom.ForwardOf(geom.NormalizeQuat(tracker)))
	return math.Abs(geom.Degrees(geom.AngleBetween(a, b)))
}

// Sample is one measurement.
type Sample struct {
	Time  float64 // seconds
	Angle float64 // degrees
}

// Sink stores samples.
type Sink interface {
	Write(s Sample) error
	Close() error
}

// TextSink writes samples as alternating time and angle lines.
type TextSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
}

// NewTextSink writes to w. If w is an io.Closer it is closed by Close.
func NewTextSink(w io.Writer) *TextSink {
	s := &TextSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Write implements Sink.
func (s *TextSink) Write(sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "%s\n%s\n",
		strconv.FormatFloat(sample.Time, 'g', -1, 64),
		strconv.FormatFloat(sample.Angle, 'g', -1, 64))
	return err
}

// Close implements Sink.
func (s *TextSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadText parses the TextSink format. A trailing unpaired line is ignored.
func ReadText(r io.Reader) ([]Sample, error) {
	sc := bufio.NewScanner(r)
	var lines []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(lines)/2)
	for i := 0; i+1 < len(lines); i += 2 {
		t, err := strconv.ParseFloat(lines[i], 64)
		if err != nil {
			return nil, fmt.Errorf("metrics: line %d: %w", i+1, err)
		}
		a, err := strconv.ParseFloat(lines[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("metrics: line %d: %w", i+2, err)
		}
		samples = append(samples, Sample{Time: t, Angle: a})
	}
	return samples, nil
}

// ErrStopped is returned by Observe after Stop.
var ErrStopped = errors.New("metrics: monitor stopped")

// Monitor records the hip heading error of every new pose until Stop.
type Monitor struct {
	sinks []Sink
	count int

	mu      sync.Mutex
	stopped bool
}

// NewMonitor writes samples to every sink.
func NewMonitor(sinks ...Sink) *Monitor {
	return &Monitor{sinks: sinks}
}

// Observe records the error between the character and tracker rotations
// at time t and returns the angle.
func (m *Monitor) Observe(t float64, character, tracker quat.Number) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return 0, ErrStopped
	}
	angle := HipAngleError(character, tracker)
	s := Sample{Time: t, Angle: angle}
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Write(s); err != nil {
			errs = append(errs, err)
		}
	}
	m.count++
	return angle, errors.Join(errs...)
}

// Count returns the number of samples observed.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Stop closes every sink. Later calls are no-ops.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil
	}
	m.stopped = true
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
