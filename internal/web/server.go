// Package web exposes the download pipeline as a small job API with
// websocket progress updates.
package web

import (
	"context"
	"net/http"

	"spotifydl/internal/logger"
	"spotifydl/internal/pipeline"
)

// RunFunc runs the pipeline over one input. The error is reserved for
// failures that prevent the run from starting at all.
type RunFunc func(ctx context.Context, input string, hooks pipeline.Hooks) (pipeline.Result, error)

const queueSize = 64

type Server struct {
	jobMgr *JobManager
	run    RunFunc
	queue  chan string
	logger *logger.Logger
}

func NewServer(jobMgr *JobManager, run RunFunc, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		jobMgr: jobMgr,
		run:    run,
		queue:  make(chan string, queueSize),
		logger: log,
	}
}

// Start runs queued jobs one at a time until ctx is cancelled. Items within
// a job are already sequential; a single worker keeps jobs from interleaving
// writes to the same destination directories.
func (s *Server) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case id := <-s.queue:
				s.processJob(ctx, id)
			}
		}
	}()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/jobs", s.handleListJobs)
	mux.HandleFunc("/api/jobs/", s.handleJobAction)
	mux.HandleFunc("/ws", s.handleWebSocket)

	return s.loggingMiddleware(mux)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
