package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Handlers are the callbacks a Connection's read pump invokes. They run on
// the read-pump goroutine, so a handler that needs to touch an Instance
// must take its own lock the way every other storage caller does.
type Handlers struct {
	OnText   func(data []byte)
	OnBinary func(data []byte)
	// OnClose is called exactly once, however the connection ended
	// (read error, peer close frame, or a local Close call).
	OnClose func(reason error)
}

// Connection runs one peer's read and write pumps over a Wire, applying
// the keepalive policy from §6. Grounded on the teacher's readPump/
// writePump split (ws/server.go): a buffered outbound channel decouples
// the writer from whatever goroutine is producing frames, and a ticker
// drives pings, generalized from WebSocket-specific opcodes to the
// transport-agnostic Wire/Frame abstraction.
type Connection struct {
	wire     Wire
	logger   zerolog.Logger
	handlers Handlers

	send      chan Frame
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	lastSend atomic.Int64 // unix nanos
}

// NewConnection wraps wire; call Start to begin pumping.
func NewConnection(wire Wire, logger zerolog.Logger, handlers Handlers, sendBuf int) *Connection {
	if sendBuf < 1 {
		sendBuf = 64
	}
	c := &Connection{
		wire:     wire,
		logger:   logger,
		handlers: handlers,
		send:     make(chan Frame, sendBuf),
		done:     make(chan struct{}),
	}
	c.lastSend.Store(time.Now().UnixNano())
	return c
}

// Start spawns the read and write pump goroutines. The caller must not
// call it more than once.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// SendText enqueues a text (control) frame. Returns false if the outbound
// queue is full, in which case the caller should treat the peer as slow
// and the connection is closed (mirrors the teacher's "never drop
// silently, disconnect instead" broadcast policy).
func (c *Connection) SendText(b []byte) bool { return c.enqueue(Frame{Kind: FrameText, Data: b}) }

// SendBinary enqueues a binary value frame.
func (c *Connection) SendBinary(b []byte) bool {
	return c.enqueue(Frame{Kind: FrameBinary, Data: b})
}

func (c *Connection) enqueue(f Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn().Str("peer", c.wire.RemoteName()).Msg("outbound queue full, disconnecting slow peer")
		c.Close()
		return false
	}
}

// Close tears down the wire and signals both pumps to stop. Safe to call
// more than once or concurrently with the pumps detecting the same thing
// from the other side.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.wire.Close()
	})
	return c.closeErr
}

func (c *Connection) readPump() {
	var closeReason error
	defer func() {
		c.Close()
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(closeReason)
		}
	}()

	for {
		f, err := c.wire.ReadFrame()
		if err != nil {
			closeReason = err
			return
		}
		switch f.Kind {
		case FrameText:
			if c.handlers.OnText != nil {
				c.handlers.OnText(f.Data)
			}
		case FrameBinary:
			if c.handlers.OnBinary != nil {
				c.handlers.OnBinary(f.Data)
			}
		case FrameClose:
			return
		case FramePing:
			// transports that surface pings as frames rather than
			// handling them internally still count as outbound-silent
			// traffic from us; nothing to do on receipt.
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.wire.WriteFrame(f); err != nil {
				c.logger.Debug().Err(err).Str("peer", c.wire.RemoteName()).Msg("write failed")
				c.Close()
				return
			}
			c.lastSend.Store(time.Now().UnixNano())
		case <-ticker.C:
			idleFor := time.Since(time.Unix(0, c.lastSend.Load()))
			if idleFor < PingPeriod {
				continue
			}
			if err := c.wire.WriteFrame(Frame{Kind: FramePing}); err != nil {
				c.Close()
				return
			}
			c.lastSend.Store(time.Now().UnixNano())
		case <-c.done:
			return
		}
	}
}
