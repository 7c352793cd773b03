package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/waypost/internal/events"
)

// handleEvents streams the tenant's live event feed over SSE. The client
// gets a `connected` event immediately, then every envelope published on
// the tenant's subject, with keep-alive comment frames in between.
func handleEvents(bus *events.Bus, heartbeat time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := tenantID(c)

		ch, cancel, err := bus.Subscribe(tenant)
		if err != nil {
			// No stream without a live subscription: a silent degrade would
			// leave the client waiting on events that can never arrive.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event stream unavailable"})
			return
		}
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", gin.H{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Fprint(c.Writer, ": keep-alive\n\n")
				c.Writer.Flush()
			case env, ok := <-ch:
				if !ok {
					return
				}
				writeSSE(c.Writer, env.Type, env)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event frame.
func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
