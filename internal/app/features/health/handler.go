package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/store/synclog"
	"github.com/dalemusser/agentcanvas/internal/app/system/timeouts"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *mongo.Client
	Logs   *synclog.Store
	Log    *zap.Logger
}

// NewHandler constructs a health Handler. logs may be nil, in which case
// the last sweep is not reported.
func NewHandler(client *mongo.Client, logs *synclog.Store, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Logs:   logs,
		Log:    logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status    string       `json:"status"`
	Database  string       `json:"database"`
	Message   string       `json:"message,omitempty"`
	Error     string       `json:"error,omitempty"`
	LastSweep *sweepStatus `json:"last_sweep,omitempty"`
}

// sweepStatus summarizes the most recent scheduled sync.
type sweepStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "last_sweep":{"status":"success","timestamp":"…"} }
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
//
// A failed sweep does not make the service unhealthy; it is informational.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	// Check database
	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	if h.Logs != nil {
		last, err := h.Logs.Recent(ctx, synclog.Filter{Type: models.SyncTypeCron, Limit: 1})
		if err != nil {
			h.Log.Warn("health-check: sync log read failed", zap.Error(err))
		} else if len(last) == 1 {
			resp.LastSweep = &sweepStatus{Status: last[0].Status, Timestamp: last[0].Timestamp}
		}
	}

	_ = json.NewEncoder(w).Encode(resp)
}
