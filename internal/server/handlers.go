package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/claude/formreps/internal/analysis"
	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/session"
	"github.com/claude/formreps/internal/stream"
)

const (
	msgFeedStopped      = "Video feed stopped"
	msgNothingToPause   = "No hay detección activa para pausar/reanudación"
	msgInvalidExercise  = "Tipo de ejercicio no válido o rutas de archivo no configuradas"
	msgAnalysisFailed   = "Fallo en el entrenamiento o evaluación del modelo"
	msgNoFeedbackData   = "No se recibieron datos JSON"
	msgFeedbackReceived = "Feedback recibido"
	statusPaused        = "Pausado"
	statusResumed       = "Reanudado"
)

func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	cameraID := s.opts.CameraID
	if q := r.URL.Query().Get("camera"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid camera index"})
			return
		}
		cameraID = n
	}

	name := chi.URLParam(r, "exercise_id")
	_, startErr := s.opts.Sessions.Start(r.Context(), name, cameraID)

	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flush := func() {}
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}

	if startErr != nil {
		// The failure is already visible through /exercise_data.
		s.log.Warn("video feed could not start", "exercise", name, "camera", cameraID, "error", startErr)
		if len(s.opts.Fallback) > 0 {
			if err := stream.WritePart(w, s.opts.Fallback); err == nil {
				flush()
			}
		}
		return
	}

	p := &stream.Producer{
		Source:   s.opts.Sessions,
		Fallback: s.opts.Fallback,
		Wait:     s.opts.StreamWait,
		Poll:     s.opts.StreamPoll,
		Interval: s.opts.StreamInterval,
	}
	err := p.Serve(r.Context(), w, flush)
	switch {
	case err == nil, errors.Is(err, r.Context().Err()):
	case errors.Is(err, stream.ErrStartTimeout):
		s.log.Warn("video feed timed out waiting for frames", "exercise", name)
	default:
		s.log.Debug("video feed closed", "exercise", name, "error", err)
	}
}

func (s *Server) handleStopFeed(w http.ResponseWriter, r *http.Request) {
	s.opts.Sessions.Stop()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, msgFeedStopped)
}

func (s *Server) handleExerciseData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Sessions.Metrics())
}

func (s *Server) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	paused, err := s.opts.Sessions.TogglePause()
	if errors.Is(err, session.ErrNoActiveSession) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": msgNothingToPause})
		return
	}
	status := statusResumed
	if paused {
		status = statusPaused
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

type analyzeRequest struct {
	ExerciseType string `json:"exercise_type"`
}

type analyzeResponse struct {
	*analysis.Result
	Status string `json:"status"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgInvalidExercise})
		return
	}
	id, err := exercise.Parse(req.ExerciseType)
	if err != nil || s.opts.Analyzer == nil || s.opts.Exports == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgInvalidExercise})
		return
	}
	csvPath, err := s.opts.Exports.Path(id)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgInvalidExercise})
		return
	}
	var modelPath string
	if s.opts.ModelDir != "" {
		name, err := analysis.ModelFileName(id)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgInvalidExercise})
			return
		}
		modelPath = filepath.Join(s.opts.ModelDir, name)
	}

	res, err := s.opts.Analyzer.Run(r.Context(), analysis.Options{
		CSVPath:   csvPath,
		ModelPath: modelPath,
		Seed:      s.opts.Seed,
		TestRatio: s.opts.TestRatio,
	})
	if err != nil {
		s.log.Error("analysis failed", "exercise", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  msgAnalysisFailed,
			"status": "failed",
		})
		return
	}
	s.storeResult(id, res)
	writeJSON(w, http.StatusOK, analyzeResponse{Result: res, Status: "success"})
}

func (s *Server) handleAnalysisChart(w http.ResponseWriter, r *http.Request) {
	id, err := exercise.Parse(chi.URLParam(r, "exercise_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgInvalidExercise})
		return
	}
	res, ok := s.result(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis has run for this exercise"})
		return
	}
	page, err := analysis.Charts(res)
	if err != nil {
		s.log.Error("rendering charts", "exercise", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(body) == 0 || !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": msgNoFeedbackData})
		return
	}
	if s.opts.Store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "storage not configured"})
		return
	}
	id, err := s.opts.Store.SaveFeedback(r.Context(), body)
	if err != nil {
		s.log.Error("saving feedback", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	s.log.Info("feedback received", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": msgFeedbackReceived, "id": id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
