// Command ntserver runs one NetworkTables server: accepts WebSocket
// clients, backs them with a shared storage.Instance, and exposes
// Prometheus metrics and a health endpoint alongside the NT listener.
//
// Grounded on ws/main.go's flag parsing / config load / signal handling
// shape, adapted to NetworkTables' own server wiring.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"github.com/jabolina/networktables/internal/config"
	"github.com/jabolina/networktables/internal/datalog"
	"github.com/jabolina/networktables/internal/logging"
	"github.com/jabolina/networktables/internal/persist"
	"github.com/jabolina/networktables/internal/ratelimit"
	"github.com/jabolina/networktables/internal/resourceguard"
	"github.com/jabolina/networktables/internal/server"
	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/transport"
)

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New("ntserver", "info", "pretty")

	cfg, err := config.LoadServerConfig(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New("ntserver", cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	var instanceIdx uint8 = 1
	store := storage.New(instanceIdx, logger, func() int64 { return time.Now().UnixMicro() })

	if _, err := os.Stat(cfg.PersistPath); err == nil {
		if err := persist.Load(store, cfg.PersistPath, func(line int, msg string) {
			logger.Warn().Int("line", line).Str("msg", msg).Msg("persistent storage: skipping line")
		}); err != nil {
			logger.Error().Err(err).Msg("failed to load persistent storage, starting empty")
		}
	}

	srvCfg := server.DefaultConfig()
	srvCfg.MaxConnections = cfg.MaxConnections
	srvCfg.MinFlushMs = cfg.MinFlushMs
	srvCfg.ShutdownGrace = cfg.ShutdownGrace
	srvCfg.ClientQueueSize = cfg.ClientQueueSize

	srv := server.New(srvCfg, store, logger)
	store.AttachSink(srv)

	guard := resourceguard.New(resourceguard.Config{
		MaxConnections:     cfg.MaxConnections,
		CPURejectThreshold: cfg.CPURejectThreshold,
		CPUPauseThreshold:  cfg.CPUPauseThreshold,
	}, logger, srv.ActiveConnections)
	srv.SetAdmission(guard)

	limiter := ratelimit.New(ratelimit.Config{Rate: cfg.MaxConnectRate, Burst: int(cfg.MaxConnectRate) * 2}, logger)
	srv.SetConnectLimiter(limiter)

	guardCtx, cancelGuard := context.WithCancel(context.Background())
	go guard.Run(guardCtx)

	if cfg.KafkaBrokers != "" {
		producer, err := datalog.NewProducer(datalog.Config{
			Brokers: splitBrokers(cfg.KafkaBrokers),
			Topic:   cfg.KafkaTopic,
			Logger:  &logger,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to create data log producer, continuing without it")
		} else {
			producer.SetPauseHook(guard.ShouldPauseDataLog)
			store.StartDataLog(producer, "/", "")
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		wire, legacy, err := transport.Upgrade(w, r)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = wire.RemoteName()
		}
		if _, err := srv.AddClient(name, wire, legacy); err != nil {
			logger.Warn().Err(err).Str("name", name).Msg("connection rejected")
			wire.Close()
		}
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server accept loop error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancelGuard()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down http listener")
	}
	_ = metricsServer.Shutdown(shutdownCtx)

	if err := srv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error shutting down server core")
	}
	if err := persist.Save(store, cfg.PersistPath); err != nil {
		logger.Error().Err(err).Msg("failed to save persistent storage")
	}
}
