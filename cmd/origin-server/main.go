// Command origin-server runs the Celestron Origin protocol simulator: a
// UDP discovery beacon, a single-port HTTP/WebSocket sniffer, and the
// tick-driven activities and status broadcasts that make it look, from the
// wire, like a real telescope mount.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/originsim/origin-server/internal/activity"
	"github.com/originsim/origin-server/internal/config"
	"github.com/originsim/origin-server/internal/conn"
	"github.com/originsim/origin-server/internal/debugapi"
	"github.com/originsim/origin-server/internal/discovery"
	"github.com/originsim/origin-server/internal/dispatch"
	"github.com/originsim/origin-server/internal/emitter"
	"github.com/originsim/origin-server/internal/imageprovider"
	"github.com/originsim/origin-server/internal/persist"
	"github.com/originsim/origin-server/internal/sniffer"
	"github.com/originsim/origin-server/internal/state"
	"github.com/originsim/origin-server/internal/telemetry"
)

func main() {
	cmd := &cli.Command{
		Name:   "origin-server",
		Usage:  "Simulate a Celestron Origin smart telescope's network protocol",
		Flags:  config.Flags(),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// upgradeHandler is the sniffer-to-connection handoff: once a socket has
// completed its WebSocket handshake, it becomes a conn.Connection wired to
// the dispatcher for inbound commands and registered with the emitter for
// outbound broadcasts.
type upgradeHandler struct {
	dispatcher *dispatch.Dispatcher
	emitter    *emitter.Emitter
}

func (u *upgradeHandler) Accept(connID string, nc net.Conn, residual []byte) {
	c := conn.New(connID, nc, residual, conn.Handlers{
		OnText:   u.dispatcher.Handle,
		OnClosed: u.emitter.Unregister,
	})
	u.emitter.Register(c)
	go c.Run()
}

func run(ctx context.Context, c *cli.Command) error {
	cfg := config.FromCommand(c)

	if cfg.Debug {
		telemetry.SetLogLevel("debug")
	}

	shutdownTracer := telemetry.InitTracer(cfg.TracingEndpoint, "origin-server")
	defer shutdownTracer()

	store := state.NewStore(nil, cfg.RandomSeed)

	var db *persist.Store
	if cfg.PersistPath != "" {
		var err error
		db, err = persist.Open(cfg.PersistPath)
		if err != nil {
			log.Printf("persist: failed to open %s, continuing without persistence: %v", cfg.PersistPath, err)
		} else {
			db.Restore(store)
			defer func() { _ = db.Close() }()
		}
	}
	persistStop := make(chan struct{})
	defer close(persistStop)
	if db != nil {
		go db.Run(store, cfg.PersistInterval, persistStop)
	}

	em := emitter.New(store)
	go em.Run()
	defer em.Stop()

	sched := activity.New(store, em)
	dispatcher := dispatch.New(store, sched)
	images := imageprovider.New(store)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	defer func() { _ = ln.Close() }()

	snf := sniffer.New(ln, &upgradeHandler{dispatcher: dispatcher, emitter: em}, images)
	sniffErrCh := make(chan error, 1)
	go func() { sniffErrCh <- snf.Serve() }()
	log.Printf("protocol sniffer listening on %s", cfg.Listen)

	if cfg.DiscoveryEnabled {
		beacon, err := discovery.New(func() string { return cfg.DiscoveryIdentity })
		if err != nil {
			log.Printf("discovery: failed to start beacon: %v", err)
		} else {
			go beacon.Run()
			defer beacon.Stop()
		}
	}

	var debugSrv *http.Server
	debugErrCh := make(chan error, 1)
	if cfg.DebugListen != "" {
		debugSrv = &http.Server{
			Addr:              cfg.DebugListen,
			Handler:           debugapi.NewRouter(func() bool { return true }),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := debugSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				debugErrCh <- err
				return
			}
			debugErrCh <- nil
		}()
		log.Printf("debug http surface listening on %s", cfg.DebugListen)
	}

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received, shutting down...")
	case err := <-sniffErrCh:
		log.Printf("protocol sniffer exited: %v", err)
		return err
	case err := <-debugErrCh:
		log.Printf("debug http surface exited: %v", err)
		return err
	}

	em.CloseAll()

	if debugSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = debugSrv.Shutdown(shutdownCtx)
	}

	return nil
}
