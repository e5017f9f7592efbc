package db

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/banshee-data/locomotion.vr/internal/metrics"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign_keys=1, got %d", foreignKeys)
	}
}

func TestMigrations(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion(Migrations())
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("Expected version 2 clean, got %d dirty=%v", version, dirty)
	}

	// Re-running is a no-op.
	if err := db.MigrateUp(Migrations()); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	if err := db.MigrateDown(Migrations()); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err = db.MigrateVersion(Migrations())
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1 after down, got %d", version)
	}
	if _, err := db.Exec("SELECT COUNT(*) FROM hip_samples"); err == nil {
		t.Error("Expected hip_samples to be dropped")
	}
}

func TestSessionsAndSamples(t *testing.T) {
	db := openTestDB(t)

	first, err := db.CreateSession("raw-heading", "playback", "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	second, err := db.CreateSession("hip-tracker", "live", "second run")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := db.GetSession(first.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Mode != "raw-heading" || got.Source != "playback" || !got.StartedAt.Equal(first.StartedAt) {
		t.Errorf("Unexpected session %+v", got)
	}

	if _, err := db.GetSession(uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	sessions, err := db.Sessions()
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Expected 2 sessions, got %d", len(sessions))
	}

	latest, err := db.LatestSession()
	if err != nil {
		t.Fatalf("LatestSession failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("Expected latest %s, got %s", second.ID, latest.ID)
	}

	store := NewStore(db, first.ID)
	for _, s := range []metrics.Sample{{Time: 3, Angle: 10}, {Time: 2.5, Angle: 4}} {
		if err := store.Write(s); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	samples, err := db.HipSamples(first.ID)
	if err != nil {
		t.Fatalf("HipSamples failed: %v", err)
	}
	if len(samples) != 2 || samples[0].Time != 2.5 || samples[1].Angle != 10 {
		t.Errorf("Unexpected samples %+v", samples)
	}

	other, err := db.HipSamples(second.ID)
	if err != nil {
		t.Fatalf("HipSamples failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no samples for second session, got %d", len(other))
	}
}

func TestRecordHipSample_UnknownSession(t *testing.T) {
	db := openTestDB(t)
	if err := db.RecordHipSample(uuid.New(), metrics.Sample{}); err == nil {
		t.Error("Expected foreign key violation for unknown session")
	}
}

func TestLatestSession_Empty(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LatestSession(); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	db := openTestDB(t)
	mux := http.NewServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// tsweb may refuse debug access (403); the route must exist either way.
	if rec.Code == http.StatusNotFound {
		t.Fatal("Route /debug/backup should be registered, got 404")
	}
	if rec.Code == http.StatusOK {
		if rec.Header().Get("Content-Encoding") != "gzip" {
			t.Errorf("Expected gzip encoding, got %q", rec.Header().Get("Content-Encoding"))
		}
		if rec.Header().Get("Content-Disposition") == "" {
			t.Error("Expected Content-Disposition header for backup download")
		}
	}

	req = httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code == http.StatusNotFound {
		t.Error("Route /debug/tailsql/ should be registered, got 404")
	}
}
