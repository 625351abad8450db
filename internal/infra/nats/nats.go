package natsclient

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/EphemURL/config"
)

const (
	defaultConnectTimeout = 5 * time.Second
	maxPendingPublishes   = 256
)

// Connect creates a NATS connection (with JetStream available) using application config.
func Connect(cfg config.NATSConfig, name string, jsOpts ...nats.JSOpt) (*nats.Conn, nats.JetStreamContext, error) {
	opts := []nats.Option{
		nats.Timeout(defaultConnectTimeout),
		nats.Name(name),
		nats.MaxReconnects(-1),
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(URL(cfg), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	// Bounded so a stalled server cannot pile up unacked sweep requests.
	js, err := conn.JetStream(append([]nats.JSOpt{nats.PublishAsyncMaxPending(maxPendingPublishes)}, jsOpts...)...)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("nats: init jetstream: %w", err)
	}

	return conn, js, nil
}

// URL returns the nats:// address with localhost:4222 defaults.
func URL(cfg config.NATSConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}
	return fmt.Sprintf("nats://%s:%d", host, port)
}
