// Package server implements the NetworkTables server core (§4.5): N client
// connections sharing one storage.Instance, name uniqueness, topic id
// assignment, and value broadcast with per-connection coalescing.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jabolina/networktables/internal/metrics"
	ntnet "github.com/jabolina/networktables/internal/net"
	"github.com/jabolina/networktables/internal/storage"
)

// Config mirrors the ambient knobs the teacher's ServerConfig exposes,
// narrowed to what a NetworkTables server core needs (connection and flush
// tuning); transport-level concerns (listen address, TLS) live in
// internal/transport and cmd/ntserver instead.
type Config struct {
	MaxConnections  int
	MinFlushMs      int // fixed flush period of every client's coalescing outbox; subscription periodic options do not change it
	ShutdownGrace   time.Duration
	ClientQueueSize int
}

// DefaultConfig mirrors the teacher's own defaults (ws/config.go), adapted
// to NetworkTables' 100ms default flush period (§4.4).
func DefaultConfig() Config {
	return Config{
		MaxConnections:  512,
		MinFlushMs:      100,
		ShutdownGrace:   30 * time.Second,
		ClientQueueSize: 256,
	}
}

// Server is one NT server core. It implements storage.NetSink so that a
// local publish/subscribe against the same Instance (e.g. from an
// in-process application sharing the server) is broadcast exactly like a
// remote one.
type Server struct {
	cfg    Config
	logger zerolog.Logger
	store  *storage.Instance

	mu           sync.Mutex
	clients      map[string]*Client // effective name -> client
	nameSeq      map[string]int     // requested base name -> next @n sequence
	nextTopicID  uint32
	topicsByName map[string]uint32

	connSem chan struct{}

	// legacy is the shared flat keyspace §4.7's legacy peers see:
	// unlike the modern path's per-client publisher/subscription
	// bookkeeping, every NT3 connection reads and writes the same id
	// table, since the legacy protocol has no notion of per-connection
	// topic identity.
	legacy *legacyState

	connectLimiter ConnectLimiter
	admission      Admission

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// ConnectLimiter gates the rate of incoming connection attempts.
// *ratelimit.ConnectionLimiter satisfies this.
type ConnectLimiter interface {
	Allow() bool
}

// Admission gates connection admission on host resource pressure.
// *resourceguard.Guard satisfies this.
type Admission interface {
	ShouldAcceptConnection() (accept bool, reason string)
}

// SetConnectLimiter installs a rate limiter consulted before a connection
// is admitted. Optional; nil (the default) accepts every attempt.
func (s *Server) SetConnectLimiter(l ConnectLimiter) { s.connectLimiter = l }

// SetAdmission installs a resource guard consulted before a connection is
// admitted. Optional; nil (the default) accepts every attempt.
func (s *Server) SetAdmission(a Admission) { s.admission = a }

// New creates a server core bound to store. The caller is responsible for
// calling store.AttachSink(srv) so local-origin traffic is also
// broadcast.
func New(cfg Config, store *storage.Instance, logger zerolog.Logger) *Server {
	if cfg.MaxConnections < 1 {
		cfg.MaxConnections = 1
	}
	return &Server{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		clients:      map[string]*Client{},
		nameSeq:      map[string]int{},
		topicsByName: map[string]uint32{},
		connSem:      make(chan struct{}, cfg.MaxConnections),
		legacy:       newLegacyState(),
	}
}

// Store returns the instance backing this server, mirroring
// internal/client's Store accessor.
func (s *Server) Store() *storage.Instance { return s.store }

// ActiveConnections reports the current number of admitted clients, for
// feeding an external admission policy (internal/resourceguard).
func (s *Server) ActiveConnections() int64 { return int64(len(s.connSem)) }

// AddClient implements §4.5 step 1-2: admits a new connection, computes its
// effective name (first unused `<requested>@<n>`), and starts its pumps.
// isLegacy selects the NT3 wire path (§4.7); the modern path is assumed
// otherwise.
func (s *Server) AddClient(requestedName string, wire ntnet.Wire, isLegacy bool) (*Client, error) {
	if s.shuttingDown.Load() {
		metrics.ConnectionsRejected.WithLabelValues("shutting_down").Inc()
		return nil, fmt.Errorf("server: shutting down, rejecting %q", requestedName)
	}
	if s.connectLimiter != nil && !s.connectLimiter.Allow() {
		metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
		return nil, fmt.Errorf("server: rejecting %q, connection rate exceeded", requestedName)
	}
	if s.admission != nil {
		if accept, reason := s.admission.ShouldAcceptConnection(); !accept {
			metrics.ConnectionsRejected.WithLabelValues("admission").Inc()
			return nil, fmt.Errorf("server: rejecting %q, %s", requestedName, reason)
		}
	}
	select {
	case s.connSem <- struct{}{}:
	default:
		metrics.ConnectionsRejected.WithLabelValues("at_capacity").Inc()
		return nil, fmt.Errorf("server: at capacity (%d)", s.cfg.MaxConnections)
	}

	s.mu.Lock()
	effective := s.nextEffectiveNameLocked(requestedName)
	c := newClient(effective, isLegacy)
	c.ClockOffset = s.store.Now()
	s.clients[effective] = c
	s.mu.Unlock()

	onBinary := func(data []byte) { s.handleBinary(c, data) }
	onText := func(data []byte) { s.handleText(c, data) }
	if isLegacy {
		onBinary = func(data []byte) { s.handleLegacyFrame(c, data) }
		onText = nil
	}
	c.conn = ntnet.NewConnection(wire, s.logger, ntnet.Handlers{
		OnText:   onText,
		OnBinary: onBinary,
		OnClose:  func(reason error) { s.RemoveClient(c, reason) },
	}, s.cfg.ClientQueueSize)
	c.conn.Start()
	c.startFlusher(s.cfg.MinFlushMs)

	s.logger.Info().Str("client", effective).Bool("legacy", isLegacy).Msg("client connected")
	s.store.DispatchConnected(effective)
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	return c, nil
}

func (s *Server) nextEffectiveNameLocked(requested string) string {
	for {
		s.nameSeq[requested]++
		candidate := fmt.Sprintf("%s@%d", requested, s.nameSeq[requested])
		if _, taken := s.clients[candidate]; !taken {
			return candidate
		}
	}
}

// RemoveClient implements §4.5 step 8: unpublishes everything the
// departing client owned and drops its subscriptions silently.
func (s *Server) RemoveClient(c *Client, reason error) {
	s.mu.Lock()
	if _, ok := s.clients[c.Name]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.Name)
	s.mu.Unlock()

	c.mu.Lock()
	pubHandles := make([]uint32, 0, len(c.publishers))
	for pubuid := range c.publishers {
		pubHandles = append(pubHandles, pubuid)
	}
	c.mu.Unlock()
	for _, pubuid := range pubHandles {
		s.unpublishFromClient(c, pubuid)
	}

	c.stopFlusher()
	<-s.connSem
	metrics.ConnectionsActive.Dec()
	s.logger.Info().Str("client", c.Name).AnErr("reason", reason).Msg("client disconnected")
	s.store.DispatchDisconnected(c.Name)
}

// Shutdown implements the teacher's graceful-drain pattern (ws/server.go
// Shutdown): stop admitting new connections, give active ones a grace
// period to finish, then force-close whatever remains.
func (s *Server) Shutdown() error {
	s.shuttingDown.Store(true)
	s.logger.Info().Msg("server shutdown: draining connections")

	deadline := time.NewTimer(s.cfg.ShutdownGrace)
	defer deadline.Stop()
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		s.mu.Lock()
		remaining := len(s.clients)
		s.mu.Unlock()
		if remaining == 0 {
			break
		}
		select {
		case <-deadline.C:
			s.logger.Warn().Int("remaining", remaining).Msg("shutdown grace period expired, force closing")
			goto forceClose
		case <-tick.C:
		}
	}

forceClose:
	s.mu.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info().Msg("server shutdown complete")
	return nil
}
