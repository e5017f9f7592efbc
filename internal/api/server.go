// Package api serves the locomotion process's read-only JSON API: loop
// status, the active tuning and recorded hip metric sessions, plus an HTML
// chart per session.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/banshee-data/locomotion.vr/internal/config"
	"github.com/banshee-data/locomotion.vr/internal/db"
	"github.com/banshee-data/locomotion.vr/internal/metrics"
	"github.com/banshee-data/locomotion.vr/internal/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the live state of the locomotion loop.
type Status struct {
	Version   string  `json:"version"`
	Mode      string  `json:"mode"`
	Feed      string  `json:"feed"`
	Connected bool    `json:"connected"`
	Latency   float64 `json:"latency_s"`
	Ticks     uint64  `json:"ticks"`
	Samples   int     `json:"samples"`
}

// StatusFunc reports the current Status. It is called from HTTP handler
// goroutines and must be safe for concurrent use.
type StatusFunc func() Status

// Server holds the API dependencies. db may be nil when metrics are not
// persisted.
type Server struct {
	status StatusFunc
	cfg    *config.Locomotion
	db     *db.DB
}

// NewServer returns a Server.
func NewServer(status StatusFunc, cfg *config.Locomotion, database *db.DB) *Server {
	return &Server{status: status, cfg: cfg, db: database}
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}/samples", s.listSamples)
	mux.HandleFunc("GET /api/sessions/{id}/chart", s.showChart)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status()
	st.Version = version.String()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

type sessionJSON struct {
	ID        string `json:"id"`
	Mode      string `json:"mode"`
	Source    string `json:"source"`
	Notes     string `json:"notes,omitempty"`
	StartedAt string `json:"started_at"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSONError(w, http.StatusNotFound, "metrics database not enabled")
		return
	}
	sessions, err := s.db.Sessions()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	out := make([]sessionJSON, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionJSON{
			ID:        sess.ID.String(),
			Mode:      sess.Mode,
			Source:    sess.Source,
			Notes:     sess.Notes,
			StartedAt: sess.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type sampleJSON struct {
	Time  float64 `json:"time_s"`
	Angle float64 `json:"angle_deg"`
}

// sessionSamples loads the samples of the session named in the request
// path. It writes the error response and returns false on failure.
func (s *Server) sessionSamples(w http.ResponseWriter, r *http.Request) (db.Session, []metrics.Sample, bool) {
	if s.db == nil {
		writeJSONError(w, http.StatusNotFound, "metrics database not enabled")
		return db.Session{}, nil, false
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid session id")
		return db.Session{}, nil, false
	}
	sess, err := s.db.GetSession(id)
	if err != nil {
		if errors.Is(err, db.ErrSessionNotFound) {
			writeJSONError(w, http.StatusNotFound, "Session not found")
			return db.Session{}, nil, false
		}
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load session: %v", err))
		return db.Session{}, nil, false
	}
	samples, err := s.db.HipSamples(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load samples: %v", err))
		return db.Session{}, nil, false
	}
	return sess, samples, true
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	_, samples, ok := s.sessionSamples(w, r)
	if !ok {
		return
	}
	out := make([]sampleJSON, len(samples))
	for i, sm := range samples {
		out[i] = sampleJSON{Time: sm.Time, Angle: sm.Angle}
	}
	writeJSON(w, http.StatusOK, out)
}

// showChart renders the hip heading error of a session as an HTML line chart.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	sess, samples, ok := s.sessionSamples(w, r)
	if !ok {
		return
	}

	data := make([]opts.LineData, len(samples))
	for i, sm := range samples {
		data[i] = opts.LineData{Value: []interface{}{sm.Time, sm.Angle}}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Hip Heading Error", Theme: "dark", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Hip Heading Error", Subtitle: fmt.Sprintf("session=%s mode=%s samples=%d", sess.ID, sess.Mode, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Angle (deg)", NameLocation: "middle", NameGap: 35}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.AddSeries("hip error", data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
