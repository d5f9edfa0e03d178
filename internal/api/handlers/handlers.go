package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ynab-kubera-sync/internal/api/middleware"
	"github.com/dvloznov/ynab-kubera-sync/internal/audit"
	"github.com/dvloznov/ynab-kubera-sync/internal/jobs"
)

// SyncHandler starts on-demand sync runs.
type SyncHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// TriggerSync handles POST /api/sync. Only one run may be queued or running
// at a time; a second request gets 409 with the active job.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	active, err := jobs.ActiveJob(ctx, h.store)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check for active sync jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync")
		return
	}
	if active != nil {
		middleware.WriteJSON(w, http.StatusConflict, map[string]string{
			"error":  "A sync is already queued or running",
			"job_id": active.JobID,
			"status": string(active.Status),
		})
		return
	}

	job := &jobs.SyncJob{Trigger: jobs.TriggerManual}
	if err := h.publisher.PublishSync(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue sync job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Msg("Sync job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Trigger: jobs.Trigger(query.Get("trigger")),
		Status:  jobs.JobStatus(query.Get("status")),
		Limit:   intParam(query.Get("limit")),
		Offset:  intParam(query.Get("offset")),
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// RunLister reads recorded sync runs.
type RunLister interface {
	ListRecentRuns(ctx context.Context, limit int) ([]*audit.RunRow, error)
}

// RunsHandler serves the audit history.
type RunsHandler struct {
	lister RunLister
	log    zerolog.Logger
}

// NewRunsHandler creates a runs handler. lister may be nil when auditing is
// disabled.
func NewRunsHandler(lister RunLister, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{lister: lister, log: log}
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		middleware.WriteError(w, http.StatusNotFound, "Run history is not enabled")
		return
	}

	runs, err := h.lister.ListRecentRuns(r.Context(), intParam(r.URL.Query().Get("limit")))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list sync runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

func intParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
