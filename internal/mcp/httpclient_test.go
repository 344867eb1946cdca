package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/session"
	"github.com/claude/formreps/internal/storage"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestExerciseData verifies the raw snapshot JSON is passed through.
func TestExerciseData(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/exercise_data": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"reps":1,"incorrect_reps":0,"stage":"Abajo"}`))
		},
	})
	defer ts.Close()

	data, err := NewHTTPClient(ts.URL, "").ExerciseData(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["stage"] != "Abajo" {
		t.Errorf("stage = %v, want Abajo", m["stage"])
	}
}

// TestStatusSendsAPIKey verifies the key header and status decoding.
func TestStatusSendsAPIKey(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/status": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-API-Key"); got != "k" {
				t.Errorf("X-API-Key = %q, want k", got)
			}
			writeTestJSON(t, w, session.Info{ID: "abc", Exercise: exercise.Deadlift, Active: true})
		},
	})
	defer ts.Close()

	info, err := NewHTTPClient(ts.URL+"/", "k").Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.Exercise != exercise.Deadlift || !info.Active {
		t.Errorf("info = %+v", info)
	}
}

// TestTogglePauseMapsIdle verifies a 400 becomes ErrNoActiveSession.
func TestTogglePauseMapsIdle(t *testing.T) {
	var active atomic.Bool
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/toggle_detection_pause": func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if !active.Load() {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"status":"No hay detección activa para pausar/reanudación"}`))
				return
			}
			writeTestJSON(t, w, map[string]string{"status": "Pausado"})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "")
	if _, err := client.TogglePause(context.Background()); !errors.Is(err, session.ErrNoActiveSession) {
		t.Errorf("err = %v, want ErrNoActiveSession", err)
	}

	active.Store(true)
	paused, err := client.TogglePause(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !paused {
		t.Error("paused = false, want true")
	}
}

// TestListSessionsParams verifies filter and limit are sent as query params.
func TestListSessionsParams(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("exercise"); got != "squats" {
				t.Errorf("exercise=%q, want squats", got)
			}
			if got := r.URL.Query().Get("limit"); got != "10" {
				t.Errorf("limit=%q, want 10", got)
			}
			writeTestJSON(t, w, []storage.Session{{ID: "a", Exercise: "squats", StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Correct: 4}})
		},
	})
	defer ts.Close()

	sessions, err := NewHTTPClient(ts.URL, "").ListSessions(context.Background(), "squats", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Correct != 4 {
		t.Errorf("sessions = %+v", sessions)
	}
}

// TestGetSessionNotFound verifies a 404 becomes storage.ErrNotFound.
func TestGetSessionNotFound(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/missing": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		},
		"/api/v1/sessions/found": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, storage.SessionDetail{
				Session:     storage.Session{ID: "found"},
				Repetitions: []storage.Repetition{{Seq: 1, Outcome: "correct"}},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "")
	if _, err := client.GetSession(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	detail, err := client.GetSession(context.Background(), "found")
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Repetitions) != 1 || detail.Repetitions[0].Outcome != "correct" {
		t.Errorf("detail = %+v", detail)
	}
}

// TestServerErrorIsReported verifies non-200 responses surface as errors.
func TestServerErrorIsReported(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/exercises": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	defer ts.Close()

	if _, err := NewHTTPClient(ts.URL, "").Exercises(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
