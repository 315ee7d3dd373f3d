// Package config is the small flag-populated settings struct the
// entrypoint builds from a urfave/cli/v3 Command, the same role the
// teacher's cmd/miniflightradar/main.go flags play for app.Run: no config
// file format, CLI flags plus environment variables are the only
// configuration surface.
package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Config holds every setting the simulator's components need, read once
// from CLI flags at startup.
type Config struct {
	// Listen is the address the protocol sniffer's single TCP listener
	// binds (spec.md §4.1).
	Listen string

	// DebugListen is the address the chi-routed /metrics and /healthz
	// surface binds. Empty disables it entirely.
	DebugListen string

	// TracingEndpoint is the OTLP/HTTP collector address; empty installs a
	// no-op tracer provider.
	TracingEndpoint string

	// Debug enables verbose logging.
	Debug bool

	// DiscoveryEnabled toggles the UDP broadcast beacon.
	DiscoveryEnabled bool

	// DiscoveryIdentity is the serial-number-like identifier embedded in
	// every broadcast payload.
	DiscoveryIdentity string

	// PersistPath is the BuntDB file persisting the astrophotography
	// directory index and image counter. Empty disables persistence.
	PersistPath string

	// PersistInterval is how often the persisted state is flushed to
	// disk while running.
	PersistInterval time.Duration

	// RandomSeed seeds the simulator's jitter/failure RNG.
	RandomSeed int64
}

// FromCommand reads every flag Flags() defines off a running cli.Command.
func FromCommand(c *cli.Command) Config {
	return Config{
		Listen:            c.String("server.listen"),
		DebugListen:       c.String("server.debug_listen"),
		TracingEndpoint:   c.String("monitoring.tracing_endpoint"),
		Debug:             c.Bool("monitoring.debug"),
		DiscoveryEnabled:  c.Bool("discovery.enabled"),
		DiscoveryIdentity: c.String("discovery.identity"),
		PersistPath:       c.String("images.persist_path"),
		PersistInterval:   c.Duration("images.persist_interval"),
		RandomSeed:        c.Int64("server.random_seed"),
	}
}

// Flags is the full CLI flag set for cmd/origin-server, grouped by
// category the way the teacher groups server/monitoring/storage flags.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Category: "server",
			Name:     "server.listen",
			Aliases:  []string{"listen", "l"},
			Value:    ":8090",
			Usage:    "`ADDRESS` the WebSocket/HTTP protocol sniffer listens on",
			Sources:  cli.EnvVars("ORIGIN_SERVER_LISTEN"),
		},
		&cli.StringFlag{
			Category: "server",
			Name:     "server.debug_listen",
			Aliases:  []string{"debug-listen"},
			Value:    "",
			Usage:    "`ADDRESS` for the /metrics and /healthz debug surface; empty disables it",
			Sources:  cli.EnvVars("ORIGIN_DEBUG_LISTEN"),
		},
		&cli.Int64Flag{
			Category: "server",
			Name:     "server.random_seed",
			Value:    1,
			Usage:    "seed for the simulated jitter/failure RNG",
			Hidden:   true,
		},
		&cli.StringFlag{
			Category: "monitoring",
			Name:     "monitoring.tracing_endpoint",
			Aliases:  []string{"tracing", "t"},
			Value:    "",
			Usage:    "OpenTelemetry collector `ENDPOINT` for traces",
			Sources:  cli.EnvVars("ORIGIN_TRACING_ENDPOINT"),
		},
		&cli.BoolFlag{
			Category: "monitoring",
			Name:     "monitoring.debug",
			Aliases:  []string{"debug", "d"},
			Usage:    "enable debug logging",
		},
		&cli.BoolFlag{
			Category: "discovery",
			Name:     "discovery.enabled",
			Value:    true,
			Usage:    "broadcast the UDP discovery beacon on the local network",
		},
		&cli.StringFlag{
			Category: "discovery",
			Name:     "discovery.identity",
			Value:    "140020",
			Usage:    "identifier embedded in the discovery beacon payload",
		},
		&cli.StringFlag{
			Category: "images",
			Name:     "images.persist_path",
			Value:    "./data/origin-sim.buntdb",
			Usage:    "path to the BuntDB file persisting directory index and image counter; empty disables persistence",
		},
		&cli.DurationFlag{
			Category: "images",
			Name:     "images.persist_interval",
			Value:    30 * time.Second,
			Usage:    "how often persisted state is flushed to disk",
		},
	}
}
