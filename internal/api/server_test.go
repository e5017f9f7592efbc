package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/banshee-data/locomotion.vr/internal/config"
	"github.com/banshee-data/locomotion.vr/internal/db"
	"github.com/banshee-data/locomotion.vr/internal/metrics"
)

func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	status := func() Status {
		return Status{Mode: "raw-heading", Feed: "playback", Connected: true, Ticks: 42}
	}
	return NewServer(status, config.EmptyLocomotion(), database), database
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestShowStatus(t *testing.T) {
	server, _ := setupTestServer(t)
	rec := get(t, server, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var st Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if st.Ticks != 42 || st.Mode != "raw-heading" || st.Version == "" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestShowConfig(t *testing.T) {
	server, _ := setupTestServer(t)
	rec := get(t, server, "/api/config")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "{}" {
		t.Errorf("empty config should encode as {}, got %s", body)
	}
}

func TestSessionsAndSamples(t *testing.T) {
	server, database := setupTestServer(t)

	session, err := database.CreateSession("hip-tracker", "live", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := database.RecordHipSample(session.ID, metrics.Sample{Time: 2.5, Angle: 12}); err != nil {
		t.Fatalf("RecordHipSample failed: %v", err)
	}

	rec := get(t, server, "/api/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sessions []sessionJSON
	if err := json.NewDecoder(rec.Body).Decode(&sessions); err != nil {
		t.Fatalf("failed to decode sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != session.ID.String() {
		t.Fatalf("unexpected sessions %+v", sessions)
	}

	rec = get(t, server, "/api/sessions/"+session.ID.String()+"/samples")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var samples []sampleJSON
	if err := json.NewDecoder(rec.Body).Decode(&samples); err != nil {
		t.Fatalf("failed to decode samples: %v", err)
	}
	if len(samples) != 1 || samples[0].Time != 2.5 || samples[0].Angle != 12 {
		t.Errorf("unexpected samples %+v", samples)
	}
}

func TestShowChart(t *testing.T) {
	server, database := setupTestServer(t)

	session, err := database.CreateSession("pose-hip-heading", "playback", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for i, angle := range []float64{4, 9, 6} {
		if err := database.RecordHipSample(session.ID, metrics.Sample{Time: 2 + float64(i), Angle: angle}); err != nil {
			t.Fatalf("RecordHipSample failed: %v", err)
		}
	}

	rec := get(t, server, "/api/sessions/"+session.ID.String()+"/chart")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("content-type = %s, want text/html", rec.Header().Get("Content-Type"))
	}
	body := rec.Body.String()
	for _, want := range []string{"Hip Heading Error", "hip error", session.ID.String(), "samples=3"} {
		if !strings.Contains(body, want) {
			t.Errorf("chart is missing %q", want)
		}
	}
}

func TestShowChart_NoDatabase(t *testing.T) {
	server := NewServer(func() Status { return Status{} }, config.EmptyLocomotion(), nil)
	rec := get(t, server, "/api/sessions/"+uuid.NewString()+"/chart")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListSamples_Errors(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad id", "/api/sessions/not-a-uuid/samples", http.StatusBadRequest},
		{"unknown id", "/api/sessions/" + uuid.NewString() + "/samples", http.StatusNotFound},
		{"chart bad id", "/api/sessions/not-a-uuid/chart", http.StatusBadRequest},
		{"chart unknown id", "/api/sessions/" + uuid.NewString() + "/chart", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, server, tt.path)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSessions_NoDatabase(t *testing.T) {
	server := NewServer(func() Status { return Status{} }, config.EmptyLocomotion(), nil)
	rec := get(t, server, "/api/sessions")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)
	rec := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
