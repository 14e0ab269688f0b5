package enforcer

import (
	"context"
	"fmt"
	"time"

	"github.com/haltgate/haltgate/internal/gate/common/log"
	"github.com/haltgate/haltgate/internal/gate/domain"
	"github.com/haltgate/haltgate/internal/gate/match"
)

// Message types understood by the upward contract.
const (
	MsgCheckBlocked     = "CHECK_BLOCKED"
	MsgGetSiteInfo      = "GET_SITE_INFO"
	MsgCheckUnlockState = "CHECK_UNLOCK_STATE"
	MsgUnlockSite       = "UNLOCK_SITE"
	MsgUpdateStats      = "UPDATE_STATS"
	MsgGetSettings      = "GET_SETTINGS"
	MsgSyncRules        = "SYNC_RULES"
)

// Request is one upward message from a UI collaborator. Fields beyond
// Type are populated per message type.
type Request struct {
	Type            string `json:"type"`
	URL             string `json:"url,omitempty"`
	SiteID          string `json:"siteId,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	BlockedDelta    uint64 `json:"blockedDelta,omitempty"`
	UnlockDelta     uint64 `json:"unlockDelta,omitempty"`
}

// Response is the reply to a Request. OK is false only for contract
// violations (unknown type, storage failure); a "not blocked" or
// "no such site" answer is a successful response.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	Blocked        bool                `json:"blocked,omitempty"`
	SiteID         string              `json:"siteId,omitempty"`
	SiteName       string              `json:"siteName,omitempty"`
	MatchedPattern string              `json:"matchedPattern,omitempty"`
	RedirectURL    string              `json:"redirectUrl,omitempty"`
	Site           *domain.Site        `json:"site,omitempty"`
	Stats          *domain.SiteStats   `json:"stats,omitempty"`
	Unlocked       bool                `json:"unlocked,omitempty"`
	Grant          *domain.UnlockGrant `json:"grant,omitempty"`
	ExpiresAt      *time.Time          `json:"expiresAt,omitempty"`
	Settings       *domain.Settings    `json:"settings,omitempty"`
}

// MessageHandler dispatches upward messages onto the backend, store
// and coordinator.
type MessageHandler struct {
	backend     Backend
	store       SiteStore
	coordinator *Coordinator
	logger      log.Logger
}

// NewMessageHandler wires the handler.
func NewMessageHandler(backend Backend, store SiteStore, coordinator *Coordinator, logger log.Logger) *MessageHandler {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &MessageHandler{backend: backend, store: store, coordinator: coordinator, logger: logger}
}

// Handle answers one request. It never panics or returns a Go error
// upward; contract failures become error payloads.
func (h *MessageHandler) Handle(ctx context.Context, req Request) Response {
	switch req.Type {
	case MsgCheckBlocked:
		return h.checkBlocked(req)
	case MsgGetSiteInfo:
		return h.getSiteInfo(req)
	case MsgCheckUnlockState:
		return h.checkUnlockState(req)
	case MsgUnlockSite:
		return h.unlockSite(req)
	case MsgUpdateStats:
		return h.updateStats(req)
	case MsgGetSettings:
		return h.getSettings()
	case MsgSyncRules:
		return h.syncRules(ctx)
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown request type: %q", req.Type)}
	}
}

func (h *MessageHandler) checkBlocked(req Request) Response {
	v := h.backend.Decide(req.URL, RequestContext{TopLevel: true})
	resp := Response{OK: true, Blocked: !v.Allow}
	if !v.Allow {
		resp.SiteID = v.Decision.SiteID
		resp.SiteName = v.Decision.SiteName
		resp.MatchedPattern = v.Decision.MatchedPattern
		resp.RedirectURL = v.RedirectURL
	}
	return resp
}

// getSiteInfo resolves a site by id, or by URL when no id is given.
// An unknown site is a successful empty response, not an error.
func (h *MessageHandler) getSiteInfo(req Request) Response {
	var site domain.Site
	switch {
	case req.SiteID != "":
		var err error
		site, err = h.store.Get(req.SiteID)
		if err != nil {
			return Response{OK: true}
		}
	case req.URL != "":
		sites, err := h.store.List()
		if err != nil {
			return Response{OK: false, Error: err.Error()}
		}
		var found bool
		site, found = match.FindMatchingSite(req.URL, sites)
		if !found {
			return Response{OK: true}
		}
	default:
		return Response{OK: false, Error: "GET_SITE_INFO requires siteId or url"}
	}

	resp := Response{OK: true, Site: &site}
	if stats, err := h.store.Stats(site.ID); err == nil {
		resp.Stats = &stats
	}
	return resp
}

func (h *MessageHandler) checkUnlockState(req Request) Response {
	grant, ok := h.backend.GetUnlockState(req.SiteID)
	resp := Response{OK: true, Unlocked: ok}
	if ok {
		resp.Grant = &grant
		resp.ExpiresAt = &grant.ExpiresAt
	}
	return resp
}

func (h *MessageHandler) unlockSite(req Request) Response {
	expiresAt, ok := h.backend.GrantAccess(req.SiteID, req.DurationMinutes)
	if !ok {
		return Response{OK: true, Unlocked: false}
	}
	if err := h.store.BumpStats(req.SiteID, 0, 1); err != nil {
		h.logger.Warn(map[string]any{"site_id": req.SiteID, "error": err}, "Stats bump failed")
	}
	return Response{OK: true, Unlocked: true, ExpiresAt: &expiresAt}
}

func (h *MessageHandler) updateStats(req Request) Response {
	if req.SiteID == "" {
		return Response{OK: false, Error: "UPDATE_STATS requires siteId"}
	}
	if err := h.store.BumpStats(req.SiteID, req.BlockedDelta, req.UnlockDelta); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true}
}

func (h *MessageHandler) getSettings() Response {
	settings, err := h.store.Settings()
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, Settings: &settings}
}

func (h *MessageHandler) syncRules(ctx context.Context) Response {
	if err := h.coordinator.OnSitesChanged(ctx); err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true}
}
