package recording

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionFile is the name of the frames file inside a session directory.
const SessionFile = "session.jsonl"

// HeaderFile is the name of the metadata sidecar.
const HeaderFile = "header.json"

// LogHeader contains metadata about a recorded session.
type LogHeader struct {
	Version     string  `json:"version"`
	CreatedNs   int64   `json:"created_ns"`
	Source      string  `json:"source"`
	TotalFrames uint64  `json:"total_frames"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
}

// Recorder appends Frames to a session directory.
type Recorder struct {
	basePath string
	header   LogHeader

	file *os.File
	w    *bufio.Writer

	frameCount uint64
	startTime  float64
	endTime    float64

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a session directory at basePath. If basePath is
// empty, a timestamped directory is created in the system temp dir.
func NewRecorder(basePath, source string) (*Recorder, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("session_%s_%d", source, time.Now().Unix()))
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	f, err := os.Create(filepath.Join(basePath, SessionFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create session file: %w", err)
	}

	return &Recorder{
		basePath: basePath,
		file:     f,
		w:        bufio.NewWriter(f),
		header: LogHeader{
			Version:   "1.0",
			CreatedNs: time.Now().UnixNano(),
			Source:    source,
		},
	}, nil
}

// Record appends a frame.
func (r *Recorder) Record(frame *Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	if r.frameCount == 0 {
		r.startTime = frame.Time
	}
	r.endTime = frame.Time

	if err := Encode(r.w, frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	r.frameCount++
	return nil
}

// Close flushes the frames and writes the header.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.w.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush session: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	r.header.TotalFrames = r.frameCount
	r.header.StartTime = r.startTime
	r.header.EndTime = r.endTime

	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.basePath, HeaderFile), headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// Path returns the session directory.
func (r *Recorder) Path() string {
	return r.basePath
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}

// ReadHeader loads the header sidecar of a session directory.
func ReadHeader(dir string) (LogHeader, error) {
	var h LogHeader
	data, err := os.ReadFile(filepath.Join(dir, HeaderFile))
	if err != nil {
		return h, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("failed to parse header: %w", err)
	}
	return h, nil
}

// Load reads all frames from path, which is either a JSON lines file or a
// session directory written by Recorder.
func Load(path string) ([]Frame, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat session: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, SessionFile)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer f.Close()
	return Read(f)
}
