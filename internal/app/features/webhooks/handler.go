// internal/app/features/webhooks/handler.go
package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dalemusser/agentcanvas/internal/app/system/httpjson"
	"github.com/dalemusser/agentcanvas/internal/app/system/membershipcache"
	"github.com/dalemusser/agentcanvas/internal/app/system/ratelimit"
	"github.com/dalemusser/agentcanvas/internal/app/system/timeouts"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"go.uber.org/zap"
)

// maxBodySize bounds the payload we read before verifying it.
const maxBodySize = 1 << 20

// deliveryWindow is how long processed event ids are remembered. The
// identity provider retries failed deliveries within this window.
const deliveryWindow = time.Hour

// Event names that trigger a sync.
const (
	EventMembershipCreated = "organization_membership.created"
	EventMembershipUpdated = "organization_membership.updated"
	EventMembershipDeleted = "organization_membership.deleted"
	EventUserDeleted       = "user.deleted"
)

// Syncer reconciles one user. *membershipsync.Syncer satisfies it.
type Syncer interface {
	SyncUser(ctx context.Context, syncType, userID string) (models.SyncResult, error)
	ForgetUser(ctx context.Context, syncType, userID string) models.SyncResult
}

// Handler receives identity-provider events and resyncs the affected user.
type Handler struct {
	Log       *zap.Logger
	Sync      Syncer
	Cache     *membershipcache.Cache
	Secret    []byte
	Tolerance time.Duration

	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewHandler creates a webhook handler. cache may be nil; now defaults to
// time.Now.
func NewHandler(syncer Syncer, cache *membershipcache.Cache, secret string, tolerance time.Duration, now func() time.Time, logger *zap.Logger) *Handler {
	if now == nil {
		now = time.Now
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Handler{
		Log:       logger,
		Sync:      syncer,
		Cache:     cache,
		Secret:    []byte(secret),
		Tolerance: tolerance,
		now:       now,
		seen:      make(map[string]time.Time),
	}
}

// event is the envelope every delivery shares. Data is decoded per event.
type event struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type membershipData struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
}

type userData struct {
	ID string `json:"id"`
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /webhooks/workos                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeEvent verifies a delivery and resyncs the user it names.
//
//	401 bad or stale signature
//	400 unreadable body or no user id
//	502 fetching the user's memberships failed (the sender retries)
//	200 {"ignored":true} for events that do not affect memberships
//	200 SyncResult otherwise
func (h *Handler) ServeEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || len(body) == 0 {
		httpjson.Error(w, http.StatusBadRequest, "empty or unreadable body")
		return
	}

	if err := VerifySignature(h.Secret, r.Header.Get(SignatureHeader), body, h.now(), h.Tolerance); err != nil {
		h.Log.Warn("webhook: signature rejected",
			zap.Error(err),
			zap.String("client_ip", ratelimit.ClientIP(r)))
		httpjson.Error(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil || ev.Event == "" {
		httpjson.Error(w, http.StatusBadRequest, "malformed event")
		return
	}

	var (
		userID string
		forget bool
	)
	switch ev.Event {
	case EventMembershipCreated, EventMembershipUpdated, EventMembershipDeleted:
		var d membershipData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			httpjson.Error(w, http.StatusBadRequest, "malformed event data")
			return
		}
		userID = d.UserID
	case EventUserDeleted:
		var d userData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			httpjson.Error(w, http.StatusBadRequest, "malformed event data")
			return
		}
		userID = d.ID
		forget = true
	default:
		h.Log.Debug("webhook: unhandled event, ignoring",
			zap.String("event", ev.Event),
			zap.String("event_id", ev.ID))
		httpjson.Write(w, http.StatusOK, map[string]bool{"ignored": true})
		return
	}

	if userID == "" {
		httpjson.Error(w, http.StatusBadRequest, "event has no user id")
		return
	}

	if ev.ID != "" && h.alreadyProcessed(ev.ID) {
		h.Log.Debug("webhook: duplicate delivery, ignoring", zap.String("event_id", ev.ID))
		httpjson.Write(w, http.StatusOK, map[string]bool{"duplicate": true})
		return
	}

	h.Log.Info("webhook received",
		zap.String("event", ev.Event),
		zap.String("event_id", ev.ID),
		zap.String("user_id", userID))

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Sync(), h.Log, "webhook sync")
	defer cancel()

	var res models.SyncResult
	if forget {
		res = h.Sync.ForgetUser(ctx, models.SyncTypeWebhook, userID)
	} else {
		res, err = h.Sync.SyncUser(ctx, models.SyncTypeWebhook, userID)
		if err != nil {
			httpjson.Error(w, http.StatusBadGateway, "membership fetch failed")
			return
		}
	}

	if h.Cache != nil {
		h.Cache.Invalidate(userID)
	}
	if ev.ID != "" {
		h.markProcessed(ev.ID)
	}
	httpjson.Write(w, http.StatusOK, res)
}

// alreadyProcessed reports whether id was handled within deliveryWindow,
// pruning expired entries as it goes.
func (h *Handler) alreadyProcessed(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	for k, at := range h.seen {
		if now.Sub(at) > deliveryWindow {
			delete(h.seen, k)
		}
	}
	_, ok := h.seen[id]
	return ok
}

// markProcessed records id. Only successful deliveries are recorded so a
// retry after a failed fetch is not swallowed.
func (h *Handler) markProcessed(id string) {
	h.mu.Lock()
	h.seen[id] = h.now()
	h.mu.Unlock()
}
