package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/waypost/internal/api"
	"github.com/zulandar/waypost/internal/config"
	"github.com/zulandar/waypost/internal/db"
	"github.com/zulandar/waypost/internal/events"
	"github.com/zulandar/waypost/internal/notify"
	"github.com/zulandar/waypost/internal/relay"
	"github.com/zulandar/waypost/internal/session"
	"github.com/zulandar/waypost/internal/transport"
	"github.com/zulandar/waypost/internal/transport/discord"
	"github.com/zulandar/waypost/internal/transport/slack"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Waypost API server",
		Long:  "Starts the API server, event bus, session registry and digest scheduler.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "waypost.yaml", "path to Waypost config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database ready (%s)\n", cfg.Database.Driver)

	natsURL := cfg.Events.NATSURL
	if natsURL == "" {
		srv, url, err := events.StartEmbedded()
		if err != nil {
			return err
		}
		defer srv.Shutdown()
		natsURL = url
		fmt.Fprintf(out, "Embedded event broker at %s\n", url)
	}
	bus, err := events.Connect(natsURL)
	if err != nil {
		return err
	}
	defer bus.Close()

	dialer, err := newDialer(cfg.Transport)
	if err != nil {
		return err
	}

	notifier, err := notify.NewRelay(notify.RelayOpts{DB: gormDB, Bus: bus})
	if err != nil {
		return err
	}
	registry, err := session.NewRegistry(session.RegistryOpts{
		Dialer:   dialer,
		Bus:      bus,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}
	intake, err := relay.NewIntake(relay.IntakeOpts{
		DB:       gormDB,
		Sessions: registry,
		Notify:   notifier,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Digest.Enabled {
		digest, err := relay.NewDigest(relay.DigestOpts{
			DB:     gormDB,
			Notify: notifier,
			Cron:   cfg.Digest.Cron,
		})
		if err != nil {
			return err
		}
		go digest.Run(ctx)
		fmt.Fprintf(out, "Daily digest scheduled (%s)\n", cfg.Digest.Cron)
	}

	return api.Start(ctx, api.StartOpts{
		DB:        gormDB,
		Sessions:  registry,
		Bus:       bus,
		Notify:    notifier,
		Intake:    intake,
		JWTSecret: cfg.Auth.JWTSecret,
		Port:      cfg.Server.Port,
		Heartbeat: time.Duration(cfg.Server.HeartbeatSec) * time.Second,
		Out:       out,
	})
}

// newDialer builds the transport dialer for the configured kind.
func newDialer(cfg config.TransportConfig) (transport.Dialer, error) {
	switch cfg.Kind {
	case "discord":
		return discord.NewDialer(cfg.AuthDir)
	case "slack":
		return slack.NewDialer(cfg.AuthDir)
	case "mock":
		return transport.NewMockDialer(), nil
	default:
		return nil, fmt.Errorf("transport kind %q is not supported", cfg.Kind)
	}
}
