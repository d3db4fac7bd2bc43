package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"spotifydl/internal/model"
	"spotifydl/internal/pipeline"
)

type DownloadRequest struct {
	URL string `json:"url"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}

	job := s.jobMgr.CreateJob(req.URL)
	select {
	case s.queue <- job.ID:
	default:
		s.jobMgr.UpdateJob(job.ID, func(j *Job) {
			j.Status = StatusFailed
			j.Error = "queue is full"
		})
		http.Error(w, "Too many queued jobs", http.StatusServiceUnavailable)
		return
	}
	s.logger.Info("Queued job %s for %s", job.ID, req.URL)

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.jobMgr.ListJobs())
}

func (s *Server) handleJobAction(w http.ResponseWriter, r *http.Request) {
	// /api/jobs/{id} or /api/jobs/{id}/cancel
	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}
	jobID := parts[0]

	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job)

	case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "cancel":
		var conflict bool
		err := s.jobMgr.UpdateJob(jobID, func(j *Job) {
			if j.Status.terminal() {
				conflict = true
				return
			}
			if j.Cancel != nil {
				j.Cancel()
			}
			j.Status = StatusCancelled
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if conflict {
			http.Error(w, "Job already finished", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(StatusCancelled)})

	default:
		http.Error(w, "Invalid request", http.StatusBadRequest)
	}
}

// processJob runs one queued job. Jobs cancelled while pending are skipped.
func (s *Server) processJob(parent context.Context, id string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var skip bool
	if err := s.jobMgr.UpdateJob(id, func(j *Job) {
		if j.Status != StatusPending {
			skip = true
			return
		}
		j.Cancel = cancel
		j.Status = StatusRunning
	}); err != nil || skip {
		return
	}

	job, _ := s.jobMgr.GetJob(id)
	s.logger.Info("Starting job %s", id)

	hooks := pipeline.Hooks{
		OnListStart: func(l model.List) {
			s.jobMgr.UpdateJob(id, func(j *Job) {
				j.Total += len(l.Items)
				j.Lists = append(j.Lists, l.Name)
			})
		},
		OnItemDone: func(item model.Item, out model.Outcome) {
			s.jobMgr.UpdateJob(id, func(j *Job) {
				j.observe(item, out)
			})
		},
	}

	res, err := s.run(ctx, job.URL, hooks)
	s.jobMgr.UpdateJob(id, func(j *Job) {
		j.Cancel = nil
		switch {
		case j.Status == StatusCancelled:
		case err != nil:
			j.Status = StatusFailed
			j.Error = err.Error()
		case len(res.Errors) > 0:
			j.Status = StatusFailed
			j.Error = res.Errors[0].Error()
		case ctx.Err() != nil:
			j.Status = StatusCancelled
		default:
			j.Status = StatusCompleted
		}
	})

	if err != nil {
		s.logger.Error("Job %s failed: %v", id, err)
		return
	}
	s.logger.Info("Job %s finished", id)
}
