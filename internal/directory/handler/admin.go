package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/export"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/index"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/internal/directory/reload"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/middleware"
)

// reindexTimeout bounds an admin reindex, which outlives the request.
const reindexTimeout = 30 * time.Minute

type reloadRequest struct {
	Reason string `json:"reason"`
}

// AdminReload drops the served snapshot and cached responses here and, via
// the broker, on every other replica.
func (h *Handler) AdminReload(w http.ResponseWriter, r *http.Request) {
	var body reloadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&body); err != nil && err != io.EOF {
			h.writeError(w, http.StatusBadRequest, "invalid_input", "body must be JSON")
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "admin"
	}
	if h.reload == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "reload is not configured")
		return
	}

	res, err := h.reload.Reload(r.Context(), reload.Event{
		Reason:      body.Reason,
		RequestedBy: middleware.ClientIP(r),
		RequestID:   middleware.GetRequestID(r),
	})
	if err != nil {
		h.fail(w, r, "reload", err)
		return
	}
	logger.FromContext(r.Context()).Info("directory reload requested",
		"reason", body.Reason,
		"broadcast", res.Broadcast,
	)
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

// DescribeReindex documents the reindex endpoint for GET callers.
func (h *Handler) DescribeReindex(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"endpoint":    "/api/admin/reindex",
		"method":      "POST",
		"auth":        "Bearer token required",
		"description": "Triggers a full reindex of the Meilisearch companies index",
	})
}

// AdminReindex pushes the current source file into the accelerator. The
// run is detached from the request so a dropped connection does not leave
// the index half-filled.
func (h *Handler) AdminReindex(w http.ResponseWriter, r *http.Request) {
	if h.accel == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"error":   "Accelerator disabled",
			"message": "set accelerator.enabled to push documents",
		})
		return
	}
	ix, err := h.snapshots.Get(r.Context())
	if err != nil {
		h.reindexFailed(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), reindexTimeout)
	defer cancel()
	res, err := h.accel.ReindexFile(ctx, ix.SourcePath, h.normalizer)
	if err != nil {
		h.reindexFailed(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"indexed": res.Indexed,
		"total":   res.Total,
		"message": fmt.Sprintf("Indexed %d companies in %d batches (%s)", res.Indexed, res.Batches, res.Duration.Round(time.Millisecond)),
	})
}

func (h *Handler) reindexFailed(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Error("reindex failed", "error", err)
	h.writeJSON(w, http.StatusInternalServerError, map[string]any{
		"success": false,
		"error":   "Indexing failed",
		"message": err.Error(),
	})
}

// Export writes a rubric's filtered companies as an XLSX attachment,
// capped at the configured row limit.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	slug := strings.TrimSpace(q.Get("slug"))
	if slug == "" {
		h.writeError(w, http.StatusBadRequest, "missing_slug", "query parameter 'slug' is required")
		return
	}
	regionRaw, text := q.Get("region"), q.Get("q")

	ix, ids, err := h.engine.RubricMatches(r.Context(), slug, regionRaw, text, h.exportMax)
	if err != nil {
		h.fail(w, r, "export", err)
		return
	}
	companies := make([]*index.Summary, 0, len(ids))
	for _, id := range ids {
		if s, ok := ix.Summary(id); ok {
			companies = append(companies, s)
		}
	}

	var buf bytes.Buffer
	if err := export.WriteCompanies(&buf, companies, h.exportMax); err != nil {
		h.fail(w, r, "export", err)
		return
	}
	h.track(r, analytics.QueryEvent{
		Op:       analytics.OpExport,
		Query:    text,
		Region:   regionRaw,
		Total:    len(ids),
		Returned: len(companies),
	}, start)

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(slug)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.FromContext(r.Context()).Warn("export write interrupted", "error", err)
	}
}
