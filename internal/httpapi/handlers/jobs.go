package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"docconv/internal/httpkit"
	apperrors "docconv/internal/pkg/errors"
	"docconv/internal/worker/ledger"
)

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))
	limit := 50
	if v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit"))); err == nil && v > 0 && v <= 200 {
		limit = v
	}

	jobs, err := h.jobs.List(ctx, status, limit)
	if err != nil {
		h.log.FromContext(ctx).WithError(err).Error("list jobs failed")
		httpkit.WriteError(w, apperrors.Wrap(err, "jobs.list", "ledger query failed"))
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"jobs": jobs})
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uuid := chi.URLParam(r, "uuid")

	rec, err := h.jobs.Get(ctx, uuid)
	if err != nil {
		if errors.Is(err, ledger.ErrJobNotFound) {
			httpkit.WriteErr(w, 404, "JOB_NOT_FOUND", "job not found", map[string]any{"uuid": uuid})
			return
		}
		h.log.FromContext(ctx).WithError(err).Error("get job failed", "uuid", uuid)
		httpkit.WriteError(w, apperrors.Wrap(err, "jobs.get", "ledger query failed"))
		return
	}

	httpkit.WriteJSON(w, 200, map[string]any{"job": rec})
}
