package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"tailscale.com/tsweb"

	"github.com/claude/formreps/internal/analysis"
	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/export"
	"github.com/claude/formreps/internal/session"
	"github.com/claude/formreps/internal/storage"
	"github.com/claude/formreps/internal/stream"
)

// Sessions is the part of the session manager the HTTP layer drives.
type Sessions interface {
	stream.Source
	Start(ctx context.Context, name string, cameraID int) (session.Info, error)
	Stop() bool
	TogglePause() (bool, error)
	Metrics() exercise.Snapshot
	Status() session.Info
}

// Analyzer trains and evaluates a model for one exercise's export.
type Analyzer interface {
	Run(ctx context.Context, opts analysis.Options) (*analysis.Result, error)
}

// Options holds the server's dependencies.
type Options struct {
	Sessions Sessions
	Store    *storage.DB
	Analyzer Analyzer
	Exports  *export.CSVRecorder

	ModelDir  string
	Seed      uint64
	TestRatio float64

	// CameraID is used when /video_feed has no ?camera parameter.
	CameraID int
	// Fallback is the JPEG sent when a stream cannot start.
	Fallback       []byte
	StreamWait     time.Duration
	StreamPoll     time.Duration
	StreamInterval time.Duration

	APIKey string
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	// DebugVars are shown on the /debug/ index page.
	DebugVars map[string]func() any
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	opts   Options
	log    *slog.Logger
	router chi.Router
	debug  *tsweb.DebugHandler

	mu      sync.Mutex
	results map[exercise.ID]*analysis.Result
}

// New creates a new Server with all routes configured.
func New(opts Options, log *slog.Logger) *Server {
	s := &Server{
		opts:    opts,
		log:     log,
		router:  chi.NewRouter(),
		results: make(map[exercise.ID]*analysis.Result),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Browser-facing endpoints
	s.router.Get("/video_feed/{exercise_id}", s.handleVideoFeed)
	s.router.Get("/stop_feed", s.handleStopFeed)
	s.router.Get("/exercise_data", s.handleExerciseData)
	s.router.Post("/toggle_detection_pause", s.handleTogglePause)
	s.router.Post("/analyze_exercise", s.handleAnalyze)
	s.router.Get("/analyze_exercise/{exercise_id}/chart", s.handleAnalysisChart)
	s.router.Post("/submit_feedback", s.handleSubmitFeedback)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/exercises", s.handleExercises)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.With(APIKeyAuth(s.opts.APIKey)).Get("/export/{exercise_id}", s.handleExport)
	})

	if s.opts.MCP != nil {
		s.router.With(APIKeyAuth(s.opts.APIKey)).Handle("/mcp", s.opts.MCP)
	}

	mux := http.NewServeMux()
	s.debug = tsweb.Debugger(mux)
	s.debug.KVFunc("Session", func() any { return s.opts.Sessions.Status() })
	for k, f := range s.opts.DebugVars {
		s.debug.KVFunc(k, f)
	}
	if s.opts.Store != nil {
		if err := s.opts.Store.AttachDebug(s.debug); err != nil {
			s.log.Warn("sql debug console unavailable", "error", err)
		}
	}
	s.router.Handle("/debug/*", mux)
}

func (s *Server) storeResult(id exercise.ID, res *analysis.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = res
}

func (s *Server) result(id exercise.ID) (*analysis.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[id]
	return res, ok
}
