package net

import "time"

// FrameKind discriminates the two multiplexed logical channels a
// connection carries (§6): text control messages and binary value frames.
type FrameKind uint8

const (
	FrameText FrameKind = iota
	FrameBinary
	// FramePing and FrameClose surface transport-level control frames the
	// keepalive logic in Connection needs to see (§6 "Keepalive").
	FramePing
	FrameClose
)

// Frame is one logical message crossing the wire, already demultiplexed
// from whatever transport-level framing (WebSocket opcodes, a length-
// prefixed TCP stream) carried it.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Wire is the transport boundary the server and client cores consume.
// internal/transport provides the concrete gobwas/ws implementation; tests
// use an in-memory pipe implementation instead (see conn_test.go).
type Wire interface {
	// ReadFrame blocks until the next frame arrives or the wire closes.
	ReadFrame() (Frame, error)
	// WriteFrame sends one frame, applying the transport's own write
	// deadline if it has one.
	WriteFrame(Frame) error
	// Close tears down the underlying transport.
	Close() error
	// RemoteName is a human-readable peer identifier for logging.
	RemoteName() string
}

// Keepalive timing (§6 "Keepalive": ping if no outbound traffic within the
// last period; a missed 3-period window times the peer out). Mirrors the
// teacher's writeWait/pongWait/pingPeriod constants in shape, retuned to
// the spec's own interval.
const (
	WriteWait    = 5 * time.Second
	PingPeriod   = 1 * time.Second
	PongTimeout  = 3 * PingPeriod
	ConnectRetry = 2 * time.Second
)
