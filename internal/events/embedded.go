package events

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// StartEmbedded runs an in-process NATS server on a random loopback port and
// returns it with its client URL. Used by the serve command when no external
// broker is configured, and by tests.
func StartEmbedded() (*natsserver.Server, string, error) {
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, "", fmt.Errorf("events: embedded server: %w", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, "", fmt.Errorf("events: embedded server not ready")
	}
	return srv, srv.ClientURL(), nil
}
