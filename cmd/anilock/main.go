// Command anilock boots the animation-lock latency mitigation core: it
// loads configuration, starts structured logging, and serves the debug
// telemetry websocket a connected viewer can watch rewrite decisions on.
// Hooking actual game sockets and feeding decoded frames into the
// registry is the job of an external collaborator; this binary only
// wires up the parts this module owns.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/example/anilock/internal/clock"
	"github.com/example/anilock/internal/config"
	"github.com/example/anilock/internal/latencyhandler"
	"github.com/example/anilock/internal/logging"
	"github.com/example/anilock/internal/protocol"
	"github.com/example/anilock/internal/registry"
	"github.com/example/anilock/internal/telemetry"
)

// defaultSubTypes configures the IPC sub-type discriminants this build
// matches against. A real deployment derives these from the target game
// client's protocol definitions; the collaborator that performs frame
// decoding owns configuring them per version.
var defaultSubTypes = protocol.SubTypeSet{
	C2SActionRequest:    [2]uint16{0x1a, 0x1b},
	S2CActionEffects:    [5]uint16{0x20, 0x21, 0x22, 0x23, 0x24},
	S2CActorControlSelf: 0x30,
	S2CActorControl:     0x31,
	S2CActorCast:        0x32,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	broadcaster := telemetry.NewBroadcaster(logger.With(logging.String("component", "telemetry")))

	reg := registry.New(defaultSubTypes,
		registry.WithClock(clock.System{}),
		registry.WithLogger(logger.With(logging.String("component", "latencyhandler"))),
		registry.WithHandlerOptions(
			latencyhandler.WithAutoAdjustingExtraDelay(cfg.UseAutoAdjustingExtraDelay),
			latencyhandler.WithLatencyCorrection(cfg.UseLatencyCorrection),
			latencyhandler.WithStatsWindowSize(cfg.StatsWindowSize),
			latencyhandler.WithMitigationLogging(cfg.UseHighLatencyMitigationLogging),
			latencyhandler.WithTelemetryPublisher(broadcaster),
		),
	)

	logger.Info("animation lock latency mitigation core starting",
		logging.Bool("auto_adjusting_extra_delay", cfg.UseAutoAdjustingExtraDelay),
		logging.Bool("latency_correction", cfg.UseLatencyCorrection),
		logging.Int("stats_window_size", cfg.StatsWindowSize))

	if cfg.TelemetryAddr == "" {
		logger.Info("telemetry address not configured; nothing left to serve")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/telemetry", broadcaster)
	mux.HandleFunc("/telemetry/connections", func(w http.ResponseWriter, r *http.Request) {
		logging.LoggerFromContext(r.Context()).Debug("connection count requested",
			logging.String("remote_addr", r.RemoteAddr),
			logging.String(logging.TraceIDField, logging.TraceIDFromContext(r.Context())))
		fmt.Fprintf(w, "%d\n", reg.Len())
	})

	traced := logging.HTTPTraceMiddleware(logger.With(logging.String("component", "http")))(mux)
	server := &http.Server{Addr: cfg.TelemetryAddr, Handler: traced}
	logger.Info("telemetry server listening", logging.String("address", cfg.TelemetryAddr))
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("telemetry server terminated", logging.Error(err))
	}
}
