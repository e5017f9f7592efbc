package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/locomotion.vr/internal/metrics"
)

var ErrSessionNotFound = errors.New("db: session not found")

// Session is one run of the locomotion loop.
type Session struct {
	ID        uuid.UUID
	Mode      string
	Source    string
	Notes     string
	StartedAt time.Time
}

// CreateSession records a new session and returns it.
func (db *DB) CreateSession(mode, source, notes string) (Session, error) {
	s := Session{
		ID:        uuid.New(),
		Mode:      mode,
		Source:    source,
		Notes:     notes,
		StartedAt: time.Now(),
	}
	_, err := db.Exec(`
		INSERT INTO sessions (session_id, mode, source, notes, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID.String(), s.Mode, s.Source, s.Notes, s.StartedAt.UnixNano())
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s     Session
		id    string
		nanos int64
	)
	if err := row.Scan(&id, &s.Mode, &s.Source, &s.Notes, &nanos); err != nil {
		return Session{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Session{}, fmt.Errorf("invalid session id %q: %w", id, err)
	}
	s.ID = parsed
	s.StartedAt = time.Unix(0, nanos)
	return s, nil
}

// GetSession loads one session.
func (db *DB) GetSession(id uuid.UUID) (Session, error) {
	row := db.QueryRow(`
		SELECT session_id, mode, source, notes, started_unix_nanos
		FROM sessions WHERE session_id = ?`, id.String())
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// Sessions lists all sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT session_id, mode, source, notes, started_unix_nanos
		FROM sessions ORDER BY started_unix_nanos DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// LatestSession returns the most recently started session.
func (db *DB) LatestSession() (Session, error) {
	row := db.QueryRow(`
		SELECT session_id, mode, source, notes, started_unix_nanos
		FROM sessions ORDER BY started_unix_nanos DESC LIMIT 1`)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// RecordHipSample stores one hip heading error sample.
func (db *DB) RecordHipSample(session uuid.UUID, s metrics.Sample) error {
	_, err := db.Exec(`
		INSERT INTO hip_samples (session_id, time_s, angle_deg) VALUES (?, ?, ?)`,
		session.String(), s.Time, s.Angle)
	if err != nil {
		return fmt.Errorf("failed to insert hip sample: %w", err)
	}
	return nil
}

// HipSamples returns a session's samples ordered by time.
func (db *DB) HipSamples(session uuid.UUID) ([]metrics.Sample, error) {
	rows, err := db.Query(`
		SELECT time_s, angle_deg FROM hip_samples
		WHERE session_id = ? ORDER BY time_s, sample_id`, session.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []metrics.Sample
	for rows.Next() {
		var s metrics.Sample
		if err := rows.Scan(&s.Time, &s.Angle); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Store is a metrics.Sink writing to one session.
type Store struct {
	db      *DB
	session uuid.UUID
}

// NewStore returns a sink for session.
func NewStore(db *DB, session uuid.UUID) *Store {
	return &Store{db: db, session: session}
}

// Write implements metrics.Sink.
func (s *Store) Write(sample metrics.Sample) error {
	return s.db.RecordHipSample(s.session, sample)
}

// Close implements metrics.Sink. The database stays open.
func (s *Store) Close() error { return nil }

var _ metrics.Sink = (*Store)(nil)
