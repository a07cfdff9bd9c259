// Package ratelimit gates connection admission with a global token
// bucket, grounded on the teacher's ConnectionRateLimiter
// (ws/internal/shared/limits/connection_rate_limiter.go). NetworkTables
// has no per-IP concept worth tracking (server robots/dashboards connect
// from a small, trusted set of hosts), so only the global half of the
// teacher's two-level design is kept; per-peer tracking is left to
// internal/server's own connSem admission check.
package ratelimit

import (
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config mirrors the global half of the teacher's
// ConnectionRateLimiterConfig.
type Config struct {
	Rate  float64 // sustained connections/sec
	Burst int
}

func DefaultConfig() Config {
	return Config{Rate: 50, Burst: 100}
}

// ConnectionLimiter smooths the connect rate with a token bucket so a
// burst of reconnecting peers (e.g. after a network blip) can't spike
// CPU on handshake processing.
type ConnectionLimiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *ConnectionLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 100
	}
	return &ConnectionLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		logger:  logger,
	}
}

// Allow reports whether a new connection attempt should proceed.
func (l *ConnectionLimiter) Allow() bool {
	allowed := l.limiter.Allow()
	if !allowed {
		l.logger.Debug().Msg("connection rejected: rate limit exceeded")
	}
	return allowed
}
