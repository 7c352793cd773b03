package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/waypost/internal/notify"
	"github.com/zulandar/waypost/internal/relay"
	"github.com/zulandar/waypost/internal/session"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Webhook intake is token-authenticated, not session-authenticated.
	router.POST("/api/notify/github", handleGitHubIntake(opts.Intake))

	authed := router.Group("/api", requireTenant(opts.JWTSecret))
	{
		authed.GET("/session/pairing", handlePairing(opts.Sessions))
		authed.POST("/session/reconnect", handleReconnect(opts.Sessions))
		authed.POST("/session/disconnect", handleDisconnect(opts.Sessions))

		authed.GET("/groups", handleGroups(opts.Sessions))
		authed.GET("/groups/participants", handleParticipants(opts.Sessions))
		authed.POST("/send", handleSend(opts.Sessions))

		authed.GET("/events", handleEvents(opts.Bus, opts.Heartbeat))

		authed.GET("/notifications", handleListNotifications(opts.Notify))
		authed.POST("/notifications", handleCreateNotification(opts.Notify))
		authed.POST("/notifications/:id/read", handleMarkRead(opts.Notify))
		authed.POST("/notifications/read-all", handleMarkAllRead(opts.Notify))
	}
}

// handlePairing reports the session's pairing state, creating the session
// on first call so pairing starts as soon as the client asks.
func handlePairing(reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := reg.GetOrCreate(tenantID(c))
		connected, ready := s.Status()
		c.JSON(http.StatusOK, gin.H{
			"pairingCode": s.PairingCode(),
			"isConnected": connected,
			"isReady":     ready,
		})
	}
}

func handleReconnect(reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := reg.GetOrCreate(tenantID(c))
		if err := s.Reload(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func handleDisconnect(reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		reg.Disconnect(tenantID(c))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func handleGroups(reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := reg.GetOrCreate(tenantID(c))
		groups, err := s.Groups(c.Request.Context())
		if err != nil {
			if errors.Is(err, session.ErrTransportUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session not connected"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out := make([]gin.H, 0, len(groups))
		for _, g := range groups {
			out = append(out, gin.H{
				"id":           g.ID,
				"displayName":  g.Name,
				"participants": g.ParticipantCount,
			})
		}
		c.JSON(http.StatusOK, gin.H{"groups": out})
	}
}

func handleParticipants(reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("groupIds")
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "groupIds is required"})
			return
		}
		var ids []string
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}

		s := reg.GetOrCreate(tenantID(c))
		participants, err := s.GroupParticipants(c.Request.Context(), ids)
		if err != nil {
			if errors.Is(err, session.ErrTransportUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session not connected"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"participants": participants})
	}
}

func handleSend(reg *session.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			GroupID string `json:"groupId" binding:"required"`
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		s := reg.GetOrCreate(tenantID(c))
		err := s.SendToGroup(c.Request.Context(), req.GroupID, req.Message)
		switch {
		case errors.Is(err, session.ErrNotReady):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session not ready"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"success": true})
		}
	}
}

func handleListNotifications(nr *notify.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		unread := c.Query("unread") == "true"
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = n
		}

		tenant := tenantID(c)
		list, err := nr.List(c.Request.Context(), tenant, unread, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		count, err := nr.UnreadCount(c.Request.Context(), tenant)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": list, "unreadCount": count})
	}
}

func handleCreateNotification(nr *notify.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Type     string         `json:"type" binding:"required"`
			Title    string         `json:"title" binding:"required"`
			Message  string         `json:"message"`
			Link     string         `json:"link"`
			Metadata map[string]any `json:"metadata"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		n, err := nr.Create(c.Request.Context(), tenantID(c), notify.Input{
			Type:     req.Type,
			Title:    req.Title,
			Message:  req.Message,
			Link:     req.Link,
			Metadata: req.Metadata,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"notification": n})
	}
}

func handleMarkRead(nr *notify.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := nr.MarkRead(c.Request.Context(), tenantID(c), c.Param("id"))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func handleMarkAllRead(nr *notify.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		changed, err := nr.MarkAllRead(c.Request.Context(), tenantID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "updated": changed})
	}
}

// handleGitHubIntake accepts either a native GitHub webhook delivery (with
// an X-GitHub-Event header) or a pre-normalized JSON event. The repository
// token rides in X-Waypost-Token, the `token` query parameter, or a `token`
// field in the normalized body.
func handleGitHubIntake(intake *relay.Intake) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Waypost-Token")
		if token == "" {
			token = c.Query("token")
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		var ev relay.Normalized
		if ghEvent := c.GetHeader("X-GitHub-Event"); ghEvent != "" {
			ev, err = relay.ParseGitHub(ghEvent, body)
		} else {
			var req struct {
				relay.Normalized
				Token string `json:"token"`
			}
			err = json.Unmarshal(body, &req)
			if err == nil && req.Event == "" {
				err = errors.New("event is required")
			}
			ev = req.Normalized
			if token == "" {
				token = req.Token
			}
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		out, err := intake.Handle(c.Request.Context(), token, ev)
		if errors.Is(err, relay.ErrUnknownToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown token"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if out.NotReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session not ready"})
			return
		}
		if out.Ignored {
			c.JSON(http.StatusOK, gin.H{"success": true, "ignored": true, "reason": out.Reason})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": out.Success(),
			"sentTo":  out.SentTo,
			"failed":  out.Failed,
			"reason":  out.Reason,
		})
	}
}
