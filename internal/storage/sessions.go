package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one recorded exercise session.
type Session struct {
	ID         string     `json:"id"`
	Exercise   string     `json:"exercise"`
	CameraID   int        `json:"camera_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Correct    int        `json:"correct"`
	Incorrect  int        `json:"incorrect"`
	StopReason string     `json:"stop_reason,omitempty"`
}

// Repetition is one completed repetition within a session.
type Repetition struct {
	SessionID string    `json:"-"`
	Seq       int       `json:"seq"`
	Outcome   string    `json:"outcome"`
	Label     string    `json:"label"`
	At        time.Time `json:"at"`
}

// SessionDetail is a session with its repetitions in order.
type SessionDetail struct {
	Session
	Repetitions []Repetition `json:"repetitions"`
}

// CreateSession inserts a new, unfinished session.
func (db *DB) CreateSession(ctx context.Context, s Session) error {
	_, err := db.SQL.ExecContext(ctx, db.rebind(
		`INSERT INTO sessions (id, exercise, camera_id, started_at) VALUES (?, ?, ?, ?)`),
		s.ID, s.Exercise, s.CameraID, s.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// FinishSession records the end of a session with its final counters.
func (db *DB) FinishSession(ctx context.Context, id string, endedAt time.Time, correct, incorrect int, reason string) error {
	res, err := db.SQL.ExecContext(ctx, db.rebind(
		`UPDATE sessions SET ended_at = ?, correct = ?, incorrect = ?, stop_reason = ? WHERE id = ?`),
		endedAt.UTC(), correct, incorrect, reason, id)
	if err != nil {
		return fmt.Errorf("finishing session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddRepetition records a completed repetition and bumps the session's
// running counters.
func (db *DB) AddRepetition(ctx context.Context, r Repetition) error {
	tx, err := db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.rebind(
		`INSERT INTO repetitions (session_id, seq, outcome, label, at) VALUES (?, ?, ?, ?, ?)`),
		r.SessionID, r.Seq, r.Outcome, r.Label, r.At.UTC()); err != nil {
		return fmt.Errorf("inserting repetition: %w", err)
	}
	column := "incorrect"
	if r.Outcome == "correct" {
		column = "correct"
	}
	if _, err := tx.ExecContext(ctx, db.rebind(
		`UPDATE sessions SET `+column+` = `+column+` + 1 WHERE id = ?`), r.SessionID); err != nil {
		return fmt.Errorf("updating session counters: %w", err)
	}
	return tx.Commit()
}

// ListSessions returns the most recent sessions, optionally filtered by
// exercise.
func (db *DB) ListSessions(ctx context.Context, exercise string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, exercise, camera_id, started_at, ended_at, correct, incorrect, stop_reason FROM sessions`
	args := []any{}
	if exercise != "" {
		query += ` WHERE exercise = ?`
		args = append(args, exercise)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.SQL.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	result := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetSession returns a session with its repetitions.
func (db *DB) GetSession(ctx context.Context, id string) (*SessionDetail, error) {
	row := db.SQL.QueryRowContext(ctx, db.rebind(
		`SELECT id, exercise, camera_id, started_at, ended_at, correct, incorrect, stop_reason
		 FROM sessions WHERE id = ?`), id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.SQL.QueryContext(ctx, db.rebind(
		`SELECT seq, outcome, label, at FROM repetitions WHERE session_id = ? ORDER BY seq`), id)
	if err != nil {
		return nil, fmt.Errorf("querying repetitions: %w", err)
	}
	defer rows.Close()

	detail := &SessionDetail{Session: s, Repetitions: []Repetition{}}
	for rows.Next() {
		r := Repetition{SessionID: id}
		if err := rows.Scan(&r.Seq, &r.Outcome, &r.Label, &r.At); err != nil {
			return nil, fmt.Errorf("scanning repetition: %w", err)
		}
		detail.Repetitions = append(detail.Repetitions, r)
	}
	return detail, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var s Session
	var ended sql.NullTime
	err := sc.Scan(&s.ID, &s.Exercise, &s.CameraID, &s.StartedAt, &ended, &s.Correct, &s.Incorrect, &s.StopReason)
	if errors.Is(err, sql.ErrNoRows) {
		return s, err
	}
	if err != nil {
		return s, fmt.Errorf("scanning session: %w", err)
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	return s, nil
}
