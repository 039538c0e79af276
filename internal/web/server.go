package web

import (
	"context"
	"net/http"
	"sync"

	"monty/internal/ingest"
	"monty/internal/logger"
	"monty/internal/metadata"
)

// Ingester runs one ingest of dir, reporting progress through hooks.
type Ingester func(ctx context.Context, dir string, hooks ingest.Hooks) (ingest.Report, error)

// TrackSource is the read side of the local catalog.
type TrackSource interface {
	ListTracks(ctx context.Context) ([]metadata.TrackRecord, error)
	Search(ctx context.Context, query string) ([]metadata.TrackRecord, error)
}

type Server struct {
	ctx    context.Context
	jobMgr *JobManager
	ingest Ingester
	tracks TrackSource
	blobs  http.Handler
	logger *logger.Logger

	// ingests run one at a time; the index publish is read-merge-write
	ingestMu sync.Mutex
	jobs     sync.WaitGroup
}

// NewServer creates a server whose jobs stop when ctx is cancelled.
// blobs, when non-nil, is mounted at /blobs/ to serve the object store.
func NewServer(ctx context.Context, jobMgr *JobManager, run Ingester, tracks TrackSource, blobs http.Handler, log *logger.Logger) *Server {
	return &Server{
		ctx:    ctx,
		jobMgr: jobMgr,
		ingest: run,
		tracks: tracks,
		blobs:  blobs,
		logger: log,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/jobs", s.handleListJobs)
	mux.HandleFunc("/api/jobs/", s.handleJobAction)
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/ws", s.handleWebSocket)
	if s.blobs != nil {
		mux.Handle("/blobs/", http.StripPrefix("/blobs", s.blobs))
	}

	return s.loggingMiddleware(mux)
}

// Wait blocks until every started job has returned.
func (s *Server) Wait() {
	s.jobs.Wait()
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
