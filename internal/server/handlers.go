package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/linkeLi0421/Epstein-Rag/internal/models"
	"github.com/linkeLi0421/Epstein-Rag/internal/service"
)

type createJobRequest struct {
	SourceType string         `json:"source_type"`
	SourceURL  string         `json:"source_url,omitempty"`
	TotalFiles int            `json:"total_files"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	job, err := s.jobs.Create(r.Context(), req.SourceType, req.SourceURL, req.TotalFiles, req.Metadata)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

type progressRequest struct {
	ProcessedFiles int     `json:"processed_files"`
	FailedFiles    int     `json:"failed_files"`
	CurrentFile    *string `json:"current_file,omitempty"`
}

func (s *Server) handleReportProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	job, err := s.jobs.ReportProgress(r.Context(), r.PathValue("id"), req.ProcessedFiles, req.FailedFiles, req.CurrentFile)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCompleteJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type failRequest struct {
	ErrorMessage string `json:"error_message"`
}

func (s *Server) handleFailJob(w http.ResponseWriter, r *http.Request) {
	var req failRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	job, err := s.jobs.Fail(r.Context(), r.PathValue("id"), req.ErrorMessage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type jobListResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Total int          `json:"total"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := models.JobFilter{}
	filter.Limit, filter.Offset = s.pagination(r)

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.JobStatus(raw)
		if !status.Valid() {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unknown status %q", raw)})
			return
		}
		filter.Status = &status
	}

	jobs, total, err := s.jobs.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs, Total: total})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.Progress(*job, time.Now()))
}

type queryListResponse struct {
	Queries []models.QueryLogEntry `json:"queries"`
	Total   int                    `json:"total"`
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	filter := models.QueryLogFilter{
		Search:     r.URL.Query().Get("search"),
		ClientType: r.URL.Query().Get("client_type"),
	}
	filter.Limit, filter.Offset = s.pagination(r)

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "since must be RFC 3339"})
			return
		}
		filter.Since = &since
	}

	entries, total, err := s.queries.Recent(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.QueryLogEntry{}
	}
	writeJSON(w, http.StatusOK, queryListResponse{Queries: entries, Total: total})
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	entry, err := s.queries.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleLogQuery(w http.ResponseWriter, r *http.Request) {
	var input service.LogQueryInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	entry, err := s.queries.Log(r.Context(), input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleQueryStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "hours must be a positive integer"})
			return
		}
		hours = n
	}

	stats, err := s.queries.Stats(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := s.health.Summary(r.Context())

	status := http.StatusOK
	if summary.Status == service.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, summary)
}

// pagination reads limit and offset query params, applying the configured
// default and cap.
func (s *Server) pagination(r *http.Request) (limit, offset int) {
	limit = s.cfg.DefaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
