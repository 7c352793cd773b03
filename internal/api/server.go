// Package api exposes Waypost's HTTP surface: session lifecycle, group
// listing, sending, the live SSE stream, notifications, and webhook intake.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/waypost/internal/events"
	"github.com/zulandar/waypost/internal/notify"
	"github.com/zulandar/waypost/internal/relay"
	"github.com/zulandar/waypost/internal/session"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB        *gorm.DB
	Sessions  *session.Registry
	Bus       *events.Bus
	Notify    *notify.Relay
	Intake    *relay.Intake
	JWTSecret string
	Port      int
	Heartbeat time.Duration
	Out       io.Writer
}

func (o *StartOpts) validate() error {
	if o.DB == nil {
		return fmt.Errorf("api: DB is required")
	}
	if o.Sessions == nil {
		return fmt.Errorf("api: Sessions is required")
	}
	if o.Bus == nil {
		return fmt.Errorf("api: Bus is required")
	}
	if o.Notify == nil {
		return fmt.Errorf("api: Notify is required")
	}
	if o.Intake == nil {
		return fmt.Errorf("api: Intake is required")
	}
	if o.JWTSecret == "" {
		return fmt.Errorf("api: JWTSecret is required")
	}
	if o.Port <= 0 {
		o.Port = 8080
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 15 * time.Second
	}
	return nil
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if err := opts.validate(); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Waypost API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with all routes registered.
func newRouter(opts StartOpts) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)
	return router
}
