package server

import (
	"strings"
	"sync"
	"time"

	ntnet "github.com/jabolina/networktables/internal/net"
)

// subscription is one subuid's worth of subscribe state (§4.4, §6
// SubscribeParams). Topics holds exact names unless PrefixMatch is set, in
// which case it holds prefixes.
type subscription struct {
	Topics         []string
	PrefixMatch    bool
	TopicsOnly     bool
	KeepDuplicates bool
	SendAll        bool
}

func (s *subscription) matches(name string) bool {
	special := strings.HasPrefix(name, "$")
	for _, t := range s.Topics {
		if s.PrefixMatch {
			if special && !strings.HasPrefix(t, "$") {
				continue
			}
			if strings.HasPrefix(name, t) {
				return true
			}
		} else if t == name {
			return true
		}
	}
	return false
}

// Client is one server-side connection (§4.5). Subscription and publisher
// bookkeeping lives here, not in internal/storage, per the NetSink
// boundary: storage only knows about in-process Subscriber/Publisher
// objects, never about which network peer asked for what.
type Client struct {
	Name     string
	IsLegacy bool
	conn     *ntnet.Connection

	// ClockOffset is the server-time value recorded at handshake,
	// standing in for the offset §5 says is "handshake-established":
	// a positive client-supplied time is translated to server time as
	// ClockOffset + clientTime (§4.5 step 6).
	ClockOffset int64

	mu            sync.Mutex
	subscriptions map[uint32]*subscription // subuid -> subscription
	publishers    map[uint32]string        // pubuid -> topic name

	// pending is the per-connection coalescing outbox (§4.5 "Flush
	// scheduling"): topic id -> latest frame bytes awaiting the next
	// flush tick. Frames that sendValue sends immediately never enter it.
	pendingMu sync.Mutex
	pending   map[uint32][]byte
	flushStop chan struct{}

	// legacyBuf holds the unconsumed trailing bytes of a legacy message
	// split across two WS binary frames (§4.7); only used for an NT3
	// connection, where the server's legacy state (Server.legacy, shared
	// across all legacy clients) holds the flat id/name/seq_num bookkeeping.
	legacyBufMu sync.Mutex
	legacyBuf   []byte
}

func newClient(name string, isLegacy bool) *Client {
	return &Client{
		Name:          name,
		IsLegacy:      isLegacy,
		subscriptions: map[uint32]*subscription{},
		publishers:    map[uint32]string{},
		pending:       map[uint32][]byte{},
		flushStop:     make(chan struct{}),
	}
}

// startFlusher runs the periodic coalesced-send loop (§4.5 "Flush
// scheduling"): at minFlushMs, every topic id with a pending frame is sent
// once and cleared.
func (c *Client) startFlusher(minFlushMs int) {
	if minFlushMs < 1 {
		minFlushMs = 100
	}
	go func() {
		ticker := time.NewTicker(time.Duration(minFlushMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush()
			case <-c.flushStop:
				return
			}
		}
	}()
}

func (c *Client) stopFlusher() { close(c.flushStop) }

func (c *Client) flush() {
	c.pendingMu.Lock()
	if len(c.pending) == 0 {
		c.pendingMu.Unlock()
		return
	}
	frames := c.pending
	c.pending = map[uint32][]byte{}
	c.pendingMu.Unlock()

	for _, frame := range frames {
		c.conn.SendBinary(frame)
	}
}

// sendValue either sends a value frame immediately (sendAll/keepDuplicates
// on this subscription) or coalesces it into the pending outbox, replacing
// any not-yet-flushed frame for the same topic id (§4.5 coalescing rule).
func (c *Client) sendValue(topicID uint32, frame []byte, immediate bool) {
	if immediate {
		c.conn.SendBinary(frame)
		return
	}
	c.pendingMu.Lock()
	c.pending[topicID] = frame
	c.pendingMu.Unlock()
}
