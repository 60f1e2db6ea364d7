// Command timelined is the service daemon: it loads configuration, opens
// the Dolt-backed store, starts the embedded NATS/JetStream broadcast bus,
// runs the vacuum sweep loop, and serves RPC requests over a NATS
// request-reply subject. Structured the way the donor project's cmd/bd
// wires its own daemon (cmd/bd/daemon.go, cmd/bd/daemon_server.go), but
// over a single cobra command rather than bd's large subcommand tree.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/fluxroom/timeline/internal/apperror"
	"github.com/fluxroom/timeline/internal/authz"
	"github.com/fluxroom/timeline/internal/daemon"
	"github.com/fluxroom/timeline/internal/eventbus"
	"github.com/fluxroom/timeline/internal/objectstore"
	sqlstore "github.com/fluxroom/timeline/internal/storage/sql"
	"github.com/fluxroom/timeline/internal/svcconfig"
	"github.com/fluxroom/timeline/internal/telemetry"
	"github.com/fluxroom/timeline/internal/timelinerpc"
	"github.com/fluxroom/timeline/internal/vacuum"
)

// rpcRequestSubject is the NATS subject timelined subscribes to for
// synchronous method calls (§6's "request/response channel"). Distinct
// from the rooms/{id}/events and audiences/{audience}/events subjects
// PublishRaw broadcasts notifications to.
const rpcRequestSubject = "timeline.rpc"

// rpcQueueGroup lets multiple timelined replicas share request load
// without duplicate delivery, the same queue-group convention the donor
// project uses for its own NATS consumers (cmd/bd/bus_subscribe.go).
const rpcQueueGroup = "timelined"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "timelined",
		Short: "Timeline service daemon",
		RunE:  run,
	}
	root.Flags().StringVar(&configPath, "config", "", "Path to YAML config file (defaults + env vars if omitted)")

	if err := root.Execute(); err != nil {
		log.Fatalf("timelined: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := svcconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("timelined: load config: %w", err)
	}

	providers, err := telemetry.Init(ctx, cfg.ServiceID)
	if err != nil {
		return fmt.Errorf("timelined: init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
		defer shutdownCancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("timelined: telemetry shutdown: %v", err)
		}
	}()

	store, err := sqlstore.Open(ctx, sqlstore.Config{
		ReadWriteDSN:          cfg.Storage.ReadWriteDSN,
		ReadOnlyDSN:           cfg.Storage.ReadOnlyDSN,
		MaxOpenConnsReadWrite: cfg.Storage.MaxOpenConnsReadWrite,
		MaxOpenConnsReadOnly:  cfg.Storage.MaxOpenConnsReadOnly,
	})
	if err != nil {
		return fmt.Errorf("timelined: open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("timelined: close storage: %v", err)
		}
	}()

	natsServer, err := daemon.StartNATSServer(daemon.NATSConfig{
		Port:     cfg.NATS.Port,
		StoreDir: cfg.NATS.StoreDir,
		Token:    cfg.NATS.Token,
	})
	if err != nil {
		return fmt.Errorf("timelined: start embedded NATS server: %w", err)
	}
	defer natsServer.Shutdown()
	log.Printf("timelined: embedded NATS server listening on port %d", natsServer.Port())

	bus := eventbus.New()
	js, err := natsServer.Conn().JetStream()
	if err != nil {
		log.Printf("timelined: jetstream unavailable, broadcasts disabled: %v", err)
	} else if err := ensureTimelineStreams(js); err != nil {
		log.Printf("timelined: create jetstream streams: %v", err)
	} else {
		bus.SetJetStream(js)
	}

	caps := timelinerpc.Capabilities{
		Store:   store,
		Objects: objectstore.NewMemory(),
		Authz:   authz.NewAllowAll(),
		Bus:     bus,
		Logger:  log.Default(),
	}
	server := timelinerpc.NewServer(caps)

	sub, err := natsServer.Conn().QueueSubscribe(rpcRequestSubject, rpcQueueGroup, rpcHandler(ctx, server))
	if err != nil {
		return fmt.Errorf("timelined: subscribe to %s: %w", rpcRequestSubject, err)
	}
	defer sub.Unsubscribe()
	log.Printf("timelined: serving RPC requests on %q (queue group %q)", rpcRequestSubject, rpcQueueGroup)

	sweeper := vacuum.New(store, cfg.Vacuum)
	go sweeper.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("timelined: shutting down")
	return nil
}

// rpcHandler adapts timelinerpc.Server.Handle to a NATS message callback:
// decode Request, dispatch, reply with the encoded Response. A decode
// failure still replies, with a Response carrying KindInvalidPayload,
// rather than dropping the request silently.
func rpcHandler(ctx context.Context, server *timelinerpc.Server) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var req timelinerpc.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("timelined: malformed request on %s: %v", msg.Subject, err)
			problem := apperror.New(apperror.KindInvalidPayload, "malformed request", err.Error()).Problem()
			data, err := json.Marshal(timelinerpc.Response{Status: apperror.KindInvalidPayload.Status(), Problem: &problem})
			if err != nil {
				log.Printf("timelined: encode error response on %s: %v", msg.Subject, err)
				return
			}
			if err := msg.Respond(data); err != nil {
				log.Printf("timelined: reply to malformed request on %s: %v", msg.Subject, err)
			}
			return
		}

		resp := server.Handle(ctx, req)
		data, err := json.Marshal(resp)
		if err != nil {
			log.Printf("timelined: encode response for %s: %v", req.Method, err)
			return
		}
		if err := msg.Respond(data); err != nil {
			log.Printf("timelined: reply for %s: %v", req.Method, err)
		}
	}
}

// ensureTimelineStreams creates the JetStream streams backing the
// rooms/{id}/events and audiences/{audience}/events broadcast subjects,
// mirroring the donor's internal/eventbus.EnsureStreams for its own
// hooks/decisions/oj/agents streams.
func ensureTimelineStreams(js nats.JetStreamContext) error {
	const (
		roomEventsStream     = "ROOM_EVENTS"
		audienceEventsStream = "AUDIENCE_EVENTS"
	)

	if _, err := js.StreamInfo(roomEventsStream); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     roomEventsStream,
			Subjects: []string{"rooms/*/events"},
			Storage:  nats.FileStorage,
			MaxMsgs:  10000,
			MaxBytes: 100 << 20,
		}); err != nil {
			return fmt.Errorf("create %s stream: %w", roomEventsStream, err)
		}
	}

	if _, err := js.StreamInfo(audienceEventsStream); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     audienceEventsStream,
			Subjects: []string{"audiences/*/events"},
			Storage:  nats.FileStorage,
			MaxMsgs:  10000,
			MaxBytes: 100 << 20,
		}); err != nil {
			return fmt.Errorf("create %s stream: %w", audienceEventsStream, err)
		}
	}

	return nil
}
