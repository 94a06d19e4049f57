package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evorbrain/evorbrain/pkg/domain"
	"github.com/evorbrain/evorbrain/pkg/scheduler"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

func (s *Server) repositoryRoutes(r chi.Router) {
	r.Get("/health", s.handleRepositoryHealth)
	r.Get("/stats", s.handleDatabaseStats)
	r.Post("/cleanup", s.handleCleanup)
	r.Get("/export", s.handleExport)
	r.Post("/batch-delete", s.handleBatchDelete)
	r.Get("/migrations", s.handleMigrationStatus)
}

func (s *Server) handleRepositoryHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.CheckRepositoryHealth(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetDatabaseStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var opts domain.CleanupOptions
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.CleanupDatabase(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExport returns the export envelope; ?format and ?include_archived
// select its content.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := queryBool(r, "include_archived")
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := domain.ExportRequest{
		IncludeArchived: includeArchived,
		Format:          domain.ExportFormat(r.URL.Query().Get("format")),
	}
	result, err := s.svc.ExportAllData(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.svc.BatchDelete(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.GetMigrationStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) logRoutes(r chi.Router) {
	r.Get("/", s.handleRecentLogs)
	r.Get("/level", s.handleGetLogLevel)
	r.Put("/level", s.handleSetLogLevel)
}

// handleRecentLogs serves ?count entries at ?level or above.
func (s *Server) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := domain.LogsRequest{Count: count}
	if level := r.URL.Query().Get("level"); level != "" {
		req.LevelFilter = &level
	}
	entries, err := s.svc.GetRecentLogs(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []telemetry.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type logLevel struct {
	Level string `json:"level"`
}

func (s *Server) handleGetLogLevel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logLevel{Level: s.svc.LogLevel()})
}

func (s *Server) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req logLevel
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.SetLogLevel(r.Context(), req.Level); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logLevel{Level: s.svc.LogLevel()})
}

func (s *Server) backupRoutes(r chi.Router) {
	r.Get("/", s.handleListBackups)
	r.Post("/", s.handleCreateBackup)
}

// handleListBackups lists local snapshots, or remote ones with ?remote=true.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, r, domain.NewBadRequestError("backups are not configured"))
		return
	}
	remote, err := queryBool(r, "remote")
	if err != nil {
		writeError(w, r, err)
		return
	}

	list := s.backups.List
	if remote {
		list = s.backups.ListRemote
	}
	backups, err := list(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// handleCreateBackup snapshots the live database. Restores need the
// database closed and are only offered by the CLI.
func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, r, domain.NewBadRequestError("backups are not configured"))
		return
	}
	result, err := s.backups.Create(r.Context(), s.svc.Store())
	if err != nil {
		if result != nil {
			// The local snapshot exists; only the upload failed.
			s.logger.Warn().Err(err).Msg("backup upload failed")
			writeJSON(w, http.StatusOK, result)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Jobs())
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, r, domain.NewBadRequestError("the scheduler is not running"))
		return
	}
	name := chi.URLParam(r, "name")
	if _, ok := s.findJob(name); !ok {
		writeError(w, r, &domain.AppError{Kind: domain.KindNotFound, Message: fmt.Sprintf("job %s not found", name)})
		return
	}
	if err := s.scheduler.RunNow(r.Context(), name); err != nil {
		writeError(w, r, domain.NewInternalError(fmt.Sprintf("job %s failed", name), err).WithDetail("error", err.Error()))
		return
	}
	job, _ := s.findJob(name)
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) findJob(name string) (scheduler.JobStatus, bool) {
	for _, job := range s.scheduler.Jobs() {
		if job.Name == name {
			return job, true
		}
	}
	return scheduler.JobStatus{}, false
}
