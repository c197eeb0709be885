package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MimeLyc/subtitle-batch-translator/internal/config"
	"github.com/MimeLyc/subtitle-batch-translator/internal/jobs"
	"github.com/MimeLyc/subtitle-batch-translator/internal/persistence"
	"github.com/MimeLyc/subtitle-batch-translator/pkg/icron"
)

type jobQueue interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.TranslationJob, bool)
	Get(id string) (*jobs.TranslationJob, bool)
	List() []*jobs.TranslationJob
	Cancel(id string) (*jobs.TranslationJob, error)
	Retry(id string) (*jobs.TranslationJob, error)
}

type inboxScanner interface {
	Scan(ctx context.Context) (int, error)
	TriggerInfo(now time.Time) (*icron.TriggerInfo, error)
	LastScan() time.Time
}

type checkpointReader interface {
	LoadBatchCheckpoints(ctx context.Context, jobID string) ([]persistence.BatchCheckpoint, error)
}

type Server struct {
	cfg     *config.Config
	queue   jobQueue
	scanner inboxScanner
	jobData checkpointReader

	streamInterval time.Duration

	router *chi.Mux
	server *http.Server
}

type Option func(*Server)

func WithScanner(scanner inboxScanner) Option {
	return func(s *Server) {
		s.scanner = scanner
	}
}

// WithJobData lets job details show batches committed by running jobs.
func WithJobData(store checkpointReader) Option {
	return func(s *Server) {
		s.jobData = store
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(cfg *config.Config, queue jobQueue, opts ...Option) *Server {
	s := &Server{
		cfg:            cfg,
		queue:          queue,
		streamInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(cors.Handler(corsOptions(s.cfg.HTTP.CORSOrigins)))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/stream", s.handleJobStream)
		r.Get("/jobs/{id}", s.handleJobDetail)
		r.Delete("/jobs/{id}", s.handleCancelJob)
		r.Post("/jobs/{id}/retry", s.handleRetryJob)
		r.Put("/jobs/{id}/lines", s.handleUpdateJobLines)

		r.Post("/scan", s.handleScan)
		r.Get("/schedule", s.handleSchedule)
	})
	s.router = r
}
