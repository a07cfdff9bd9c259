// Command ntclient connects to one NetworkTables server and logs every
// value change it observes, reconnecting with backoff whenever the
// connection drops. It doubles as a worked example of internal/client's
// API for an application embedding it as a library.
//
// Grounded on ws/main.go's flag parsing / config load / signal handling
// shape, adapted to a single outbound connection instead of a listener.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/jabolina/networktables/internal/client"
	"github.com/jabolina/networktables/internal/config"
	"github.com/jabolina/networktables/internal/logging"
	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/transport"
	"github.com/jabolina/networktables/internal/value"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	bootstrap := logging.New("ntclient", "info", "pretty")

	cfg, err := config.LoadClientConfig(&bootstrap)
	if err != nil {
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New("ntclient", cfg.LogLevel, cfg.LogFormat)

	store := storage.New(2, logger, func() int64 { return time.Now().UnixMicro() })
	store.AddListenerFunc(storage.EventValue, 0, []string{""}, func(e storage.Event) {
		logger.Info().
			Str("topic", e.Topic.Name).
			Str("type", e.Topic.TypeString).
			Interface("value", renderValue(e.Value)).
			Msg("value changed")
	})

	c := client.New(client.Config{QueueSize: cfg.QueueSize}, store, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutting down")
		cancel()
		c.Close()
	}()

	reconnect := make(chan struct{}, 1)
	c.OnDisconnect(func(err error) {
		logger.Warn().Err(err).Msg("disconnected from server")
		select {
		case reconnect <- struct{}{}:
		default:
		}
	})
	reconnect <- struct{}{} // dial immediately on startup

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconnect:
			wire, err := transport.Dial(ctx, cfg.ServerAddr, false)
			if err != nil {
				logger.Error().Err(err).Str("addr", cfg.ServerAddr).Msg("dial failed, retrying")
				go func() {
					time.Sleep(cfg.ReconnectWait)
					select {
					case reconnect <- struct{}{}:
					default:
					}
				}()
				continue
			}
			logger.Info().Str("addr", cfg.ServerAddr).Msg("connected to server")
			c.Connect(wire, false)
		}
	}
}

func renderValue(v value.Value) any {
	switch v.Type {
	case value.Boolean:
		return v.Bool
	case value.Integer:
		return v.Int
	case value.Float:
		return v.F32
	case value.Double:
		return v.F64
	case value.String:
		return v.Str
	case value.Raw, value.RPC:
		return v.Raw
	case value.BooleanArray:
		return v.BoolArray
	case value.IntegerArray:
		return v.IntArray
	case value.FloatArray:
		return v.F32Array
	case value.DoubleArray:
		return v.F64Array
	case value.StringArray:
		return v.StrArray
	default:
		return nil
	}
}
