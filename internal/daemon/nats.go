package daemon

import (
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const (
	// DefaultNATSPort is the default TCP port for the embedded NATS server.
	DefaultNATSPort = 4222

	// DefaultNATSMaxMem is the default JetStream memory limit (256 MiB).
	DefaultNATSMaxMem = 256 << 20

	// DefaultNATSMaxStore is the default JetStream file storage limit (1 GiB).
	DefaultNATSMaxStore = 1 << 30
)

// NATSServer wraps an embedded NATS server with JetStream and provides
// lifecycle management (start, stop).
type NATSServer struct {
	server   *server.Server
	conn     *nats.Conn // in-process connection for timelined's own RPC subscription
	storeDir string
	port     int
}

// NATSConfig holds configuration for the embedded NATS server, populated
// from svcconfig.Config.NATS (TIMELINE_NATS_* env vars or the nats: section
// of the YAML config file).
type NATSConfig struct {
	Port     int    // TCP port for external connections (default: 4222)
	StoreDir string // JetStream file storage directory
	Token    string // Auth token for client connections
}

// StartNATSServer creates and starts an embedded NATS server with JetStream.
// The server listens on the configured TCP port for external client
// connections and provides an in-process connection for timelined's own RPC
// subscription.
func StartNATSServer(cfg NATSConfig) (*NATSServer, error) {
	if err := os.MkdirAll(cfg.StoreDir, 0700); err != nil {
		return nil, fmt.Errorf("create NATS store dir: %w", err)
	}

	opts := &server.Options{
		ServerName:         "timeline-daemon",
		Host:               "0.0.0.0",
		Port:               cfg.Port,
		JetStream:          true,
		JetStreamMaxMemory: DefaultNATSMaxMem,
		JetStreamMaxStore:  DefaultNATSMaxStore,
		StoreDir:           cfg.StoreDir,
		NoLog:              true,
		NoSigs:             true,
	}

	if cfg.Token != "" {
		opts.Authorization = cfg.Token
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server failed to become ready within 10 seconds")
	}

	// Create in-process connection for timelined's own RPC subscription.
	connectURL := fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port)
	connectOpts := []nats.Option{
		nats.Name("timeline-daemon-internal"),
	}
	if cfg.Token != "" {
		connectOpts = append(connectOpts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(connectURL, connectOpts...)
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("in-process NATS connection: %w", err)
	}

	return &NATSServer{
		server:   ns,
		conn:     nc,
		storeDir: cfg.StoreDir,
		port:     cfg.Port,
	}, nil
}

// Conn returns the in-process NATS connection for timelined's own use.
func (n *NATSServer) Conn() *nats.Conn {
	return n.conn
}

// Port returns the TCP port the NATS server is listening on.
func (n *NATSServer) Port() int {
	return n.port
}

// Shutdown gracefully stops the NATS server. Drains the in-process
// connection first, then shuts down the server and waits for completion.
func (n *NATSServer) Shutdown() {
	if n.conn != nil {
		n.conn.Drain()
		n.conn.Close()
	}
	if n.server != nil {
		n.server.Shutdown()
		n.server.WaitForShutdown()
	}
}
