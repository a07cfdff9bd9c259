// Package resourceguard gates connection admission on the connection count
// and host CPU usage (memory is not sampled), grounded on the teacher's ResourceGuard
// (ws/internal/shared/limits/resource_guard.go): static configured
// thresholds, no auto-calculated capacity, periodic sampling feeding an
// atomic snapshot a hot admission check can read without blocking.
package resourceguard

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/jabolina/networktables/internal/metrics"
)

// Config mirrors the thresholds internal/config.ServerConfig exposes.
type Config struct {
	MaxConnections     int
	CPURejectThreshold float64 // percent; reject new connections above this
	CPUPauseThreshold  float64 // percent; ShouldPauseDataLog reports true above this
	SampleInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConnections:     512,
		CPURejectThreshold: 75.0,
		CPUPauseThreshold:  80.0,
		SampleInterval:     15 * time.Second,
	}
}

// Guard samples host CPU usage on a ticker and answers two hot-path
// questions cheaply (an atomic load each): should a new connection be
// admitted, and should the data-log producer pause.
type Guard struct {
	cfg    Config
	logger zerolog.Logger

	currentConns func() int64

	currentCPU atomic.Value // float64
}

// New creates a guard. currentConns reports the server's live connection
// count (e.g. backed by a Server's own admission semaphore).
func New(cfg Config, logger zerolog.Logger, currentConns func() int64) *Guard {
	g := &Guard{cfg: cfg, logger: logger, currentConns: currentConns}
	g.currentCPU.Store(0.0)
	return g
}

// ShouldAcceptConnection implements the admission checks in order: the
// hard connection limit, then the CPU emergency brake.
func (g *Guard) ShouldAcceptConnection() (accept bool, reason string) {
	conns := g.currentConns()
	if conns >= int64(g.cfg.MaxConnections) {
		return false, fmt.Sprintf("at max connections (%d)", g.cfg.MaxConnections)
	}
	cpuPct := g.currentCPU.Load().(float64)
	if cpuPct > g.cfg.CPURejectThreshold {
		return false, fmt.Sprintf("CPU %.1f%% > %.1f%%", cpuPct, g.cfg.CPURejectThreshold)
	}
	return true, "OK"
}

// ShouldPauseDataLog reports whether CPU usage is above CPUPauseThreshold,
// the same backpressure signal the teacher uses to pause Kafka
// consumption.
func (g *Guard) ShouldPauseDataLog() bool {
	return g.currentCPU.Load().(float64) > g.cfg.CPUPauseThreshold
}

// Sample takes one CPU reading and updates the snapshot ShouldAccept*
// reads. Grounded on the teacher's own gopsutil fallback path
// (platform.CPUMonitor.GetHostPercent): a 100ms blocking sample against
// all cores, which is fine to run off the sampling goroutine.
func (g *Guard) Sample() {
	pct, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(pct) == 0 {
		g.logger.Warn().Err(err).Msg("cpu sample failed, keeping previous reading")
		return
	}
	g.currentCPU.Store(pct[0])
	metrics.CPUPercent.Set(pct[0])
	g.logger.Debug().
		Float64("cpu_percent", pct[0]).
		Int("goroutines", runtime.NumGoroutine()).
		Msg("resource guard sampled")
}

// Run samples on cfg.SampleInterval until ctx is cancelled.
func (g *Guard) Run(ctx context.Context) {
	interval := g.cfg.SampleInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	g.Sample()
	for {
		select {
		case <-ticker.C:
			g.Sample()
		case <-ctx.Done():
			return
		}
	}
}
