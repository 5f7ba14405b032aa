package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"voiceops/internal/auth"
	"voiceops/internal/calls"
	"voiceops/internal/events"
	"voiceops/internal/rbac"
	"voiceops/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth            *auth.Manager
	BootstrapSecret string
	Query           *events.QueryService
}

// --- Auth ---

type tokenRequest struct {
	UserID          string `json:"user_id"`
	Role            string `json:"role"`
	BootstrapSecret string `json:"bootstrap_secret"`
}

// IssueToken exchanges the shared bootstrap secret for a JWT pair. There is
// no user database behind this internal dashboard; the secret gates who can
// mint tokens and the requested role is embedded as-is.
func (h Handlers) IssueToken(c *gin.Context) {
	if h.Auth == nil || h.BootstrapSecret == "" {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.BootstrapSecret), []byte(h.BootstrapSecret)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bootstrap secret"})
		return
	}

	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Event feeds ---

// GetRecentCallEvents returns the merged lifecycle feed, newest first.
// Capped at 100 rows unless ?all=true.
func (h Handlers) GetRecentCallEvents(c *gin.Context) {
	if h.Query == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query service not configured"})
		return
	}
	all := c.Query("all") == "true"

	views, err := h.Query.RecentCallEvents(c.Request.Context(), all)
	if err != nil {
		logger.FromGin(c).Error("recent call events query failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if views == nil {
		views = []events.CallEventView{}
	}
	c.JSON(http.StatusOK, gin.H{"events": views, "count": len(views)})
}

// GetRecentErrorEvents returns error events, newest first. Capped at 100
// rows unless ?all=true.
func (h Handlers) GetRecentErrorEvents(c *gin.Context) {
	if h.Query == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query service not configured"})
		return
	}
	all := c.Query("all") == "true"

	rows, err := h.Query.RecentErrorEvents(c.Request.Context(), all)
	if err != nil {
		logger.FromGin(c).Error("recent error events query failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if rows == nil {
		rows = []events.ErrorEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": rows, "count": len(rows)})
}

// GetCallTimeline returns one call's merged event history, oldest first.
func (h Handlers) GetCallTimeline(c *gin.Context) {
	if h.Query == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query service not configured"})
		return
	}
	callSID := c.Param("call_sid")
	if callSID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_sid required"})
		return
	}

	timeline, err := h.Query.CallTimeline(c.Request.Context(), callSID)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		logger.FromGin(c).Error("call timeline query failed", "call_sid", callSID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if timeline.Events == nil {
		timeline.Events = []events.TimelineEntry{}
	}
	c.JSON(http.StatusOK, timeline)
}
