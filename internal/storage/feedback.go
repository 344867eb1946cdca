package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Feedback is one questionnaire submission.
type Feedback struct {
	ID          string          `json:"id"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Answers     json.RawMessage `json:"answers"`
}

// SaveFeedback stores answers, which must be valid JSON, and returns the
// new feedback id.
func (db *DB) SaveFeedback(ctx context.Context, answers json.RawMessage) (string, error) {
	if !json.Valid(answers) {
		return "", fmt.Errorf("feedback answers are not valid JSON")
	}
	id := uuid.NewString()
	_, err := db.SQL.ExecContext(ctx, db.rebind(
		`INSERT INTO feedback (id, submitted_at, answers) VALUES (?, ?, ?)`),
		id, time.Now().UTC(), string(answers))
	if err != nil {
		return "", fmt.Errorf("inserting feedback: %w", err)
	}
	return id, nil
}

// ListFeedback returns the most recent submissions.
func (db *DB) ListFeedback(ctx context.Context, limit int) ([]Feedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.SQL.QueryContext(ctx, db.rebind(
		`SELECT id, submitted_at, answers FROM feedback ORDER BY submitted_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}
	defer rows.Close()

	var result []Feedback
	for rows.Next() {
		var f Feedback
		var answers string
		if err := rows.Scan(&f.ID, &f.SubmittedAt, &answers); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		f.Answers = json.RawMessage(answers)
		result = append(result, f)
	}
	return result, rows.Err()
}
