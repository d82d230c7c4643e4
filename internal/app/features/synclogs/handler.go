// internal/app/features/synclogs/handler.go
package synclogs

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/store/synclog"
	"github.com/dalemusser/agentcanvas/internal/app/system/httpjson"
	"github.com/dalemusser/agentcanvas/internal/app/system/timeouts"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"go.uber.org/zap"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

// Reader is the read side of the sync log store.
type Reader interface {
	Recent(ctx context.Context, f synclog.Filter) ([]models.SyncLogEntry, error)
}

// Handler serves recent Sync Log entries to operators.
type Handler struct {
	Log  *zap.Logger
	Logs Reader
}

func NewHandler(logs Reader, logger *zap.Logger) *Handler {
	return &Handler{Log: logger, Logs: logs}
}

// ServeList handles GET /api/admin/sync-logs.
//
// Query parameters (all optional): user_id, type, status, since (RFC 3339),
// limit (1..500, default 100). Entries are newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := synclog.Filter{
		UserID: strings.TrimSpace(q.Get("user_id")),
		Type:   strings.TrimSpace(q.Get("type")),
		Status: strings.TrimSpace(q.Get("status")),
		Limit:  defaultLimit,
	}

	if s := strings.TrimSpace(q.Get("limit")); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 1 {
			httpjson.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		filter.Limit = n
	}
	if s := strings.TrimSpace(q.Get("since")); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			httpjson.Error(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &t
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "sync log list")
	defer cancel()

	entries, err := h.Logs.Recent(ctx, filter)
	if err != nil {
		h.Log.Error("sync log list failed", zap.Error(err))
		httpjson.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []models.SyncLogEntry{}
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"entries": entries})
}
