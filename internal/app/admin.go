package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aslstream/fingerspell/internal/jobstore"
	"github.com/aslstream/fingerspell/internal/observe"
)

// registerAliasRoutes exposes the offline alias-builder pipeline's three
// entrypoints (§4.6) over plain HTTP, mirroring ingress.Handler's
// PathValue-routed style. There is no external trigger for
// Submit/Ingest/SynthesizeAndPersist anywhere else in this module — a
// document-ingestion gateway (S3 event notifications in the original
// design) would call these in a real deployment; here they are reachable
// admin routes instead.
func (a *App) registerAliasRoutes() {
	a.mux.HandleFunc("POST /v1/aliases/jobs", a.handleSubmitJob)
	a.mux.HandleFunc("GET /v1/aliases/jobs/{jobID}", a.handleGetJob)
	a.mux.HandleFunc("POST /v1/aliases/jobs/{jobID}/ingest", a.handleIngestJob)
	a.mux.HandleFunc("POST /v1/aliases/jobs/{jobID}/synthesize", a.handleSynthesizeJob)
}

type submitJobRequest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	UserID string `json:"user_id"`
}

func (a *App) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "app.admin.submit_job")
	defer span.End()

	if a.aliasPipeline == nil {
		http.Error(w, "alias builder is not configured: no llm provider", http.StatusServiceUnavailable)
		return
	}

	var req submitJobRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Bucket == "" || req.Key == "" || req.UserID == "" {
		http.Error(w, "bucket, key, and user_id are required", http.StatusBadRequest)
		return
	}

	job, err := a.aliasPipeline.Submit(ctx, req.Bucket, req.Key, req.UserID)
	if err != nil {
		observe.Logger(ctx).Error("app: submit job failed", "bucket", req.Bucket, "key", req.Key, "error", err)
		http.Error(w, "failed to submit job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (a *App) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "app.admin.get_job")
	defer span.End()

	job, err := a.jobs.Get(ctx, r.PathValue("jobID"))
	if errors.Is(err, jobstore.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to look up job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type ingestJobRequest struct {
	NotificationID string `json:"notification_id"`
	RawText        string `json:"raw_text"`
}

func (a *App) handleIngestJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "app.admin.ingest_job")
	defer span.End()

	if a.aliasPipeline == nil {
		http.Error(w, "alias builder is not configured: no llm provider", http.StatusServiceUnavailable)
		return
	}

	var req ingestJobRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	jobID := r.PathValue("jobID")
	if err := a.aliasPipeline.Ingest(ctx, jobID, req.NotificationID, req.RawText); err != nil {
		if errors.Is(err, jobstore.ErrDuplicateNotification) {
			writeAck(w)
			return
		}
		observe.Logger(ctx).Error("app: ingest job failed", "job_id", jobID, "error", err)
		http.Error(w, "failed to ingest job", http.StatusInternalServerError)
		return
	}
	writeAck(w)
}

func (a *App) handleSynthesizeJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := observe.StartSpan(r.Context(), "app.admin.synthesize_job")
	defer span.End()

	if a.aliasPipeline == nil {
		http.Error(w, "alias builder is not configured: no llm provider", http.StatusServiceUnavailable)
		return
	}

	jobID := r.PathValue("jobID")
	if err := a.aliasPipeline.SynthesizeAndPersist(ctx, jobID); err != nil {
		observe.Logger(ctx).Error("app: synthesize job failed", "job_id", jobID, "error", err)
		http.Error(w, "failed to synthesize aliases", http.StatusInternalServerError)
		return
	}
	writeAck(w)
}

type ackResponse struct {
	Status string `json:"status"`
}

func writeAck(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, ackResponse{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
