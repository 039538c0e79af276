package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"monty/internal/ingest"
	"monty/internal/metadata"
)

type IngestRequest struct {
	Dir string `json:"dir"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	Dir         string    `json:"dir"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Uploaded    int       `json:"uploaded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Warnings    []string  `json:"warnings,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
	StartedAt   *string   `json:"started_at,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

type TrackResponse struct {
	RecordingID string `json:"recording_id"`
	ArtistID    string `json:"artist_id"`
	ReleaseID   string `json:"release_id"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	Title       string `json:"title"`
	TrackNumber uint   `json:"track_number"`
	Format      string `json:"file_format"`
	LocalPath   string `json:"local_path,omitempty"`
}

const timeLayout = "2006-01-02 15:04:05"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Dir == "" {
		http.Error(w, "dir is required", http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(req.Dir); err != nil || !info.IsDir() {
		http.Error(w, "dir must be an existing directory", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	job := s.jobMgr.CreateJob(req.Dir, cancel)
	s.logger.Info("Created job %s for %s", job.ID, req.Dir)

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer cancel()
		s.processJob(ctx, job.ID, req.Dir)
	}()

	writeJSON(w, http.StatusAccepted, jobToResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs := s.jobMgr.ListJobs()
	responses := make([]*JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = jobToResponse(job)
	}

	writeJSON(w, http.StatusOK, responses)
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

	if r.Method == http.MethodGet && len(parts) == 1 {
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, jobToResponse(job))
		return
	}

	if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "cancel" {
		job, err := s.jobMgr.GetJob(jobID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if job.Status.Finished() {
			http.Error(w, "Job already "+string(job.Status), http.StatusConflict)
			return
		}

		if job.Cancel != nil {
			job.Cancel()
		}
		s.jobMgr.UpdateJob(jobID, func(j *Job) {
			j.Status = StatusCancelled
		})

		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}

	http.Error(w, "Invalid request", http.StatusBadRequest)
}

// handleTracks lists the local catalog, or searches it when q is set.
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.tracks == nil {
		http.Error(w, "Catalog not configured", http.StatusServiceUnavailable)
		return
	}

	var (
		records []metadata.TrackRecord
		err     error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		records, err = s.tracks.Search(r.Context(), q)
	} else {
		records, err = s.tracks.ListTracks(r.Context())
	}
	if err != nil {
		s.logger.Error("Failed to read catalog: %v", err)
		http.Error(w, "Failed to read catalog", http.StatusInternalServerError)
		return
	}

	out := make([]TrackResponse, len(records))
	for i, rec := range records {
		out[i] = trackToResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) processJob(ctx context.Context, id, dir string) {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if ctx.Err() != nil {
		s.jobMgr.UpdateJob(id, func(j *Job) { j.Status = StatusCancelled })
		return
	}

	s.jobMgr.UpdateJob(id, func(j *Job) { j.Status = StatusRunning })
	s.logger.Info("Starting job %s", id)

	hooks := ingest.Hooks{
		OnFilesFound: func(total int) {
			s.jobMgr.UpdateJob(id, func(j *Job) { j.Total = total })
		},
		OnProgress: func() {
			s.jobMgr.UpdateJob(id, func(j *Job) { j.Progress++ })
		},
		OnWarning: func(msg string) {
			s.jobMgr.UpdateJob(id, func(j *Job) { j.Warnings = append(j.Warnings, msg) })
		},
	}

	report, err := s.ingest(ctx, dir, hooks)
	s.jobMgr.UpdateJob(id, func(j *Job) {
		j.Uploaded = report.Uploaded
		j.Skipped = report.Unsupported
		j.Failed = len(report.Failures)
		switch {
		case err == nil:
			j.Status = StatusCompleted
		case errors.Is(err, context.Canceled):
			j.Status = StatusCancelled
		default:
			j.Status = StatusFailed
			j.Error = err.Error()
		}
	})

	if err != nil {
		s.logger.Error("Job %s failed: %v", id, err)
		return
	}
	s.logger.Info("Job %s completed: %d uploaded, %d failed", id, report.Uploaded, len(report.Failures))
}

func jobToResponse(job Job) *JobResponse {
	resp := &JobResponse{
		ID:        job.ID,
		Dir:       job.Dir,
		Status:    job.Status,
		Progress:  job.Progress,
		Total:     job.Total,
		Uploaded:  job.Uploaded,
		Skipped:   job.Skipped,
		Failed:    job.Failed,
		Warnings:  job.Warnings,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format(timeLayout),
	}

	if job.StartedAt != nil {
		started := job.StartedAt.Format(timeLayout)
		resp.StartedAt = &started
	}

	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &completed
	}

	return resp
}

func trackToResponse(rec metadata.TrackRecord) TrackResponse {
	return TrackResponse{
		RecordingID: rec.RecordingID,
		ArtistID:    rec.ArtistID,
		ReleaseID:   rec.ReleaseID,
		Artist:      rec.Artist,
		Album:       rec.Album,
		Title:       rec.Title,
		TrackNumber: rec.TrackNumber,
		Format:      rec.Format.String(),
		LocalPath:   rec.LocalPath,
	}
}
