package server

import (
	"sync"

	ntnet "github.com/jabolina/networktables/internal/net"
)

// legacyState is the server-wide flat keyspace (§4.7): there is no
// distinct publisher/subscriber object on the legacy wire, every
// connected NT3 peer both publishes and subscribes to every entry,
// discriminated only by a 16-bit id the server hands out on first assign.
// seqNums tracks each entry's sequence counter so a stale concurrent
// write can be rejected (§4.7 "seq <= local_seq is rejected").
type legacyState struct {
	mu       sync.Mutex
	nameToID map[string]uint16
	idToName map[uint16]string
	seqNums  map[uint16]uint16
	nextID   uint16
}

func newLegacyState() *legacyState {
	return &legacyState{
		nameToID: map[string]uint16{},
		idToName: map[uint16]string{},
		seqNums:  map[uint16]uint16{},
	}
}

// handleLegacyFrame implements the NT3 data path (§4.7): entries are flat,
// every connected legacy peer both publishes and subscribes to the whole
// keyspace, and concurrent writes are discriminated by a per-entry
// sequence number instead of pubuid/subuid bookkeeping.
func (s *Server) handleLegacyFrame(c *Client, data []byte) {
	c.legacyBufMu.Lock()
	buf := append(c.legacyBuf, data...)
	msgs, rest, err := ntnet.DecodeLegacyMessages(buf)
	c.legacyBuf = rest
	c.legacyBufMu.Unlock()
	if err != nil {
		s.logger.Warn().Str("client", c.Name).Err(err).Msg("malformed legacy frame, disconnecting")
		c.conn.Close()
		return
	}
	for _, m := range msgs {
		s.dispatchLegacyMessage(c, m)
	}
}

func (s *Server) dispatchLegacyMessage(c *Client, m ntnet.LegacyMessage) {
	switch m.Type {
	case ntnet.LegacyKeepAlive:
		// no-op: receipt alone resets the peer's idle clock (§6 keepalive).
	case ntnet.LegacyClientHello:
		s.sendLegacyHello(c)
	case ntnet.LegacyEntryAssign:
		s.handleLegacyAssign(c, m)
	case ntnet.LegacyEntryUpdate:
		s.handleLegacyUpdate(c, m)
	case ntnet.LegacyFlagsUpdate:
		s.handleLegacyFlagsUpdate(c, m)
	case ntnet.LegacyEntryDelete:
		s.handleLegacyDelete(c, m)
	case ntnet.LegacyClearEntries:
		s.handleLegacyClear(c)
	default:
		s.logger.Debug().Str("client", c.Name).Msg("ignoring unexpected legacy message")
	}
}

// sendLegacyHello implements the handshake half of §4.5 step 2 for an NT3
// peer: greet, then replay the whole current keyspace as entry-assigns
// before ServerHelloDone, since a legacy peer has no subscribe message to
// select a subset with (§6: "the server sends zero or more announce
// messages for existing topics").
func (s *Server) sendLegacyHello(c *Client) {
	if b, err := ntnet.EncodeLegacyMessage(ntnet.LegacyMessage{Type: ntnet.LegacyServerHello, SelfID: "networktables"}); err == nil {
		c.conn.SendBinary(b)
	}

	for _, info := range s.store.GetTopics(nil) {
		if info.LastValue.Empty() {
			continue
		}
		id, seq := s.legacyAssignID(info.Name)
		if m, err := ntnet.EncodeLegacyMessage(ntnet.LegacyMessage{
			Type: ntnet.LegacyEntryAssign, Name: info.Name, ID: id, SeqNum: seq, Value: info.LastValue,
		}); err == nil {
			c.conn.SendBinary(m)
		}
	}

	if b, err := ntnet.EncodeLegacyMessage(ntnet.LegacyMessage{Type: ntnet.LegacyServerHelloDone}); err == nil {
		c.conn.SendBinary(b)
	}
}

// legacyAssignID returns name's existing id, allocating one if this is the
// first time the legacy keyspace has seen it.
func (s *Server) legacyAssignID(name string) (id, seq uint16) {
	s.legacy.mu.Lock()
	defer s.legacy.mu.Unlock()
	id, known := s.legacy.nameToID[name]
	if !known {
		s.legacy.nextID++
		id = s.legacy.nextID
		s.legacy.nameToID[name] = id
		s.legacy.idToName[id] = name
	}
	return id, s.legacy.seqNums[id]
}

// handleLegacyAssign implements the flat equivalent of §4.5 steps 2/5:
// first assign for a name allocates an id and calls into local storage via
// server_announce.
func (s *Server) handleLegacyAssign(c *Client, m ntnet.LegacyMessage) {
	id, _ := s.legacyAssignID(m.Name)
	s.legacy.mu.Lock()
	s.legacy.seqNums[id] = m.SeqNum
	s.legacy.mu.Unlock()

	s.store.ServerAnnounce(m.Name, uint32(id), m.Value.Type.TypeString(), nil)
	s.store.ServerSetValue(m.Name, m.Value)

	// Echoed to every legacy client including the originator: the
	// originator proposes an id as a hint only, and learns the
	// authoritative one (by matching on Name) from this same broadcast.
	s.broadcastLegacy(nil, ntnet.LegacyMessage{
		Type: ntnet.LegacyEntryAssign, Name: m.Name, ID: id,
		SeqNum: m.SeqNum, EntryFlags: m.EntryFlags, Value: m.Value,
	})
}

// handleLegacyUpdate applies the seq_num freshness rule (§4.7): a stale
// update (seq <= the last accepted one for this id) is silently dropped.
func (s *Server) handleLegacyUpdate(c *Client, m ntnet.LegacyMessage) {
	s.legacy.mu.Lock()
	name, ok := s.legacy.idToName[m.ID]
	if !ok {
		s.legacy.mu.Unlock()
		return
	}
	last := s.legacy.seqNums[m.ID]
	if seqLE(m.SeqNum, last) {
		s.legacy.mu.Unlock()
		return
	}
	s.legacy.seqNums[m.ID] = m.SeqNum
	s.legacy.mu.Unlock()

	if !s.store.ServerSetValue(name, m.Value) {
		return
	}
	s.broadcastLegacy(c, ntnet.LegacyMessage{Type: ntnet.LegacyEntryUpdate, ID: m.ID, SeqNum: m.SeqNum, Value: m.Value})
}

// seqLE reports whether a <= b honoring 16-bit wraparound (serial-number
// arithmetic), matching the original's seq_num freshness check.
func seqLE(a, b uint16) bool {
	return int16(a-b) <= 0
}

func (s *Server) handleLegacyFlagsUpdate(c *Client, m ntnet.LegacyMessage) {
	s.legacy.mu.Lock()
	name, ok := s.legacy.idToName[m.ID]
	s.legacy.mu.Unlock()
	if !ok {
		return
	}
	persistent := m.EntryFlags&0x01 != 0
	s.store.ServerPropertiesUpdate(name, map[string]any{"persistent": persistent})
	s.broadcastLegacy(c, m)
}

func (s *Server) handleLegacyDelete(c *Client, m ntnet.LegacyMessage) {
	s.legacy.mu.Lock()
	name, ok := s.legacy.idToName[m.ID]
	if ok {
		delete(s.legacy.idToName, m.ID)
		delete(s.legacy.nameToID, name)
		delete(s.legacy.seqNums, m.ID)
	}
	s.legacy.mu.Unlock()
	if !ok {
		return
	}
	s.store.ServerUnannounce(name)
	s.broadcastLegacy(c, m)
}

func (s *Server) handleLegacyClear(c *Client) {
	s.legacy.mu.Lock()
	names := make([]string, 0, len(s.legacy.nameToID))
	for name := range s.legacy.nameToID {
		names = append(names, name)
	}
	s.legacy.nameToID = map[string]uint16{}
	s.legacy.idToName = map[uint16]string{}
	s.legacy.seqNums = map[uint16]uint16{}
	s.legacy.mu.Unlock()
	for _, name := range names {
		s.store.ServerUnannounce(name)
	}
	s.broadcastLegacy(c, ntnet.LegacyMessage{Type: ntnet.LegacyClearEntries})
}

// broadcastLegacy fans a flat-path message out to every other legacy
// client (§4.7: "every client both publishes and subscribes to all keys"
// means no per-subscription filtering, unlike the modern path's
// subscription matching).
func (s *Server) broadcastLegacy(except *Client, m ntnet.LegacyMessage) {
	b, err := ntnet.EncodeLegacyMessage(m)
	if err != nil {
		return
	}
	s.forEachOtherClient(except, func(c *Client) bool { return c.IsLegacy }, func(c *Client) { c.conn.SendBinary(b) })
}
