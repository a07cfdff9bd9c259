// Package client implements the NetworkTables client core (§4.6): the
// single-peer analog of internal/server, wrapping one local
// storage.Instance and translating its NetSink callbacks into outbound
// wire traffic over one internal/net.Connection.
package client

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/jabolina/networktables/internal/handle"
	ntnet "github.com/jabolina/networktables/internal/net"
	"github.com/jabolina/networktables/internal/storage"
)

// Config holds the client-side tunables; transport (dial address, TLS,
// retry backoff) lives in internal/transport and cmd/ntclient instead,
// mirroring the split already drawn for internal/server.
type Config struct {
	QueueSize int
}

func DefaultConfig() Config {
	return Config{QueueSize: 256}
}

// Client is one NetworkTables client instance. It owns no network
// transport itself; the caller obtains a ntnet.Wire (e.g. from
// internal/transport) and passes it to Connect.
type Client struct {
	cfg    Config
	logger zerolog.Logger
	store  *storage.Instance

	mu           sync.Mutex
	conn         *ntnet.Connection
	connected    atomic.Bool
	onDisconnect func(error)

	nextPubUID   uint32
	nextSubUID   uint32
	pubUIDByName map[string]uint32
	// publishers and subscriptions persist across reconnects: flush always
	// re-sends every entry, which is what gives us "re-emit the full local
	// state" for free on top of "buffer until the peer is ready" (§4.6).
	publishers     map[uint32]ntnet.PublishParams
	subUIDByHandle map[handle.Handle]uint32
	subscriptions  map[uint32]ntnet.SubscribeParams
	lastValue      map[uint32][]byte

	// serverIDByName/nameByServerID record the ids this client has learned
	// via `announce`; handleBinary refuses to apply a value for an id not
	// present in nameByServerID (§4.6, §7 "unknown handle").
	serverIDByName map[string]uint32
	nameByServerID map[uint32]string

	// isLegacy and the legacy* fields below are only used when Connect is
	// called with isLegacy true (§4.7): the flat keyspace a legacy peer
	// exposes has no subscribe/publish distinction, so OnPublish/OnValue
	// and the inbound dispatch take a different path entirely (see
	// legacy.go) rather than branching deep inside the modern one.
	isLegacy       bool
	legacyBuf      []byte
	legacyNameToID map[string]uint16
	legacyIDToName map[uint16]string
	legacySeq      map[uint16]uint16
	legacyOwnSeq   map[string]uint16     // this client's own assign/update counter, by topic name
	legacyPending  []ntnet.LegacyMessage // buffered until ServerHelloDone
	legacyReady    bool
}

// New creates a client bound to store, wiring it as store's NetSink so
// every local publish/subscribe/value is mirrored to the wire once
// connected (or buffered until then).
func New(cfg Config, store *storage.Instance, logger zerolog.Logger) *Client {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	c := &Client{
		cfg:            cfg,
		logger:         logger,
		store:          store,
		pubUIDByName:   map[string]uint32{},
		publishers:     map[uint32]ntnet.PublishParams{},
		subUIDByHandle: map[handle.Handle]uint32{},
		subscriptions:  map[uint32]ntnet.SubscribeParams{},
		lastValue:      map[uint32][]byte{},
		serverIDByName: map[string]uint32{},
		nameByServerID: map[uint32]string{},
		legacyNameToID: map[string]uint16{},
		legacyIDToName: map[uint16]string{},
		legacySeq:      map[uint16]uint16{},
		legacyOwnSeq:   map[string]uint16{},
	}
	store.AttachSink(c)
	return c
}

// Store returns the local instance applications publish/subscribe
// against; the client mirrors its state to the wire transparently.
func (c *Client) Store() *storage.Instance { return c.store }

// OnDisconnect registers a callback invoked when the connection drops,
// however it happened. The caller (typically internal/transport's dial
// loop) is responsible for redialing and calling Connect again.
func (c *Client) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// Connected reports whether a wire is currently attached.
func (c *Client) Connected() bool { return c.connected.Load() }

// Connect attaches wire and flushes the full local state over it in
// order: subscribe, publish, then value (§4.6). Calling Connect again
// after a disconnect is the normal reconnect path. isLegacy selects the
// NT3 wire path (§4.7); it must match whatever subprotocol the wire was
// dialed with (internal/transport.Dial's own isLegacy argument).
func (c *Client) Connect(wire ntnet.Wire, isLegacy bool) {
	handlers := ntnet.Handlers{OnClose: c.handleClose}
	if isLegacy {
		handlers.OnBinary = c.handleLegacyFrame
	} else {
		handlers.OnText = c.handleText
		handlers.OnBinary = c.handleBinary
	}
	conn := ntnet.NewConnection(wire, c.logger, handlers, c.cfg.QueueSize)

	c.mu.Lock()
	c.conn = conn
	c.isLegacy = isLegacy
	c.legacyBuf = nil
	c.legacyReady = false
	c.mu.Unlock()

	conn.Start()
	c.connected.Store(true)
	if isLegacy {
		c.sendLegacyHello()
		return
	}
	c.flush()
}

// Close disconnects the current wire, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) handleClose(reason error) {
	c.connected.Store(false)
	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

// flush re-sends every tracked subscription, publisher, and last known
// value over the current connection, in that order (§4.6).
func (c *Client) flush() {
	c.mu.Lock()
	conn := c.conn
	subs := make([]ntnet.SubscribeParams, 0, len(c.subscriptions))
	for _, p := range c.subscriptions {
		subs = append(subs, p)
	}
	pubs := make([]ntnet.PublishParams, 0, len(c.publishers))
	for _, p := range c.publishers {
		pubs = append(pubs, p)
	}
	values := make([][]byte, 0, len(c.lastValue))
	for _, b := range c.lastValue {
		values = append(values, b)
	}
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for _, p := range subs {
		if b, err := ntnet.EncodeControl(ntnet.MethodSubscribe, p); err == nil {
			conn.SendText(b)
		}
	}
	for _, p := range pubs {
		if b, err := ntnet.EncodeControl(ntnet.MethodPublish, p); err == nil {
			conn.SendText(b)
		}
	}
	for _, b := range values {
		conn.SendBinary(b)
	}
}
