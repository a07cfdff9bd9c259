package client

import (
	ntnet "github.com/jabolina/networktables/internal/net"
)

// handleLegacyFrame implements the client half of the NT3 data path
// (§4.7): unlike the modern path's separate text/binary channels, every
// legacy message arrives multiplexed on the single binary channel.
func (c *Client) handleLegacyFrame(data []byte) {
	c.mu.Lock()
	buf := append(c.legacyBuf, data...)
	msgs, rest, err := ntnet.DecodeLegacyMessages(buf)
	c.legacyBuf = rest
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn().Err(err).Msg("malformed legacy frame from server, disconnecting")
		c.Close()
		return
	}
	for _, m := range msgs {
		c.dispatchLegacyMessage(m)
	}
}

func (c *Client) dispatchLegacyMessage(m ntnet.LegacyMessage) {
	switch m.Type {
	case ntnet.LegacyKeepAlive, ntnet.LegacyServerHello:
		// no application-visible effect.
	case ntnet.LegacyServerHelloDone:
		c.mu.Lock()
		c.legacyReady = true
		c.mu.Unlock()
		c.flushLegacy()
	case ntnet.LegacyEntryAssign:
		c.handleLegacyAssign(m)
	case ntnet.LegacyEntryUpdate:
		c.handleLegacyUpdate(m)
	case ntnet.LegacyEntryDelete:
		c.handleLegacyDelete(m)
	case ntnet.LegacyClearEntries:
		c.handleLegacyClear()
	default:
		c.logger.Debug().Msg("ignoring unexpected legacy message from server")
	}
}

// sendLegacyHello starts the NT3 handshake (§4.5 step 2): the client
// speaks first, then waits for ServerHelloDone before flushing any local
// state, mirroring the buffered-until-ready rule §4.6 already applies to
// the modern path.
func (c *Client) sendLegacyHello() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if b, err := ntnet.EncodeLegacyMessage(ntnet.LegacyMessage{Type: ntnet.LegacyClientHello, SelfID: "networktables-client"}); err == nil {
		conn.SendBinary(b)
	}
}

func (c *Client) handleLegacyAssign(m ntnet.LegacyMessage) {
	c.mu.Lock()
	c.legacyNameToID[m.Name] = m.ID
	c.legacyIDToName[m.ID] = m.Name
	c.legacySeq[m.ID] = m.SeqNum
	c.mu.Unlock()
	c.store.ServerAnnounce(m.Name, uint32(m.ID), m.Value.Type.TypeString(), nil)
	c.store.ServerSetValue(m.Name, m.Value)
}

func (c *Client) handleLegacyUpdate(m ntnet.LegacyMessage) {
	c.mu.Lock()
	name, ok := c.legacyIDToName[m.ID]
	if ok {
		c.legacySeq[m.ID] = m.SeqNum
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.store.ServerSetValue(name, m.Value)
}

func (c *Client) handleLegacyDelete(m ntnet.LegacyMessage) {
	c.mu.Lock()
	name, ok := c.legacyIDToName[m.ID]
	if ok {
		delete(c.legacyIDToName, m.ID)
		delete(c.legacyNameToID, name)
		delete(c.legacySeq, m.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.store.ServerUnannounce(name)
}

func (c *Client) handleLegacyClear() {
	c.mu.Lock()
	names := make([]string, 0, len(c.legacyNameToID))
	for name := range c.legacyNameToID {
		names = append(names, name)
	}
	c.legacyNameToID = map[string]uint16{}
	c.legacyIDToName = map[uint16]string{}
	c.legacySeq = map[uint16]uint16{}
	c.mu.Unlock()
	for _, name := range names {
		c.store.ServerUnannounce(name)
	}
}

// flushLegacy sends, in order, the legacy messages sendLegacy buffered
// while the handshake was incomplete, once the server has signalled
// readiness. It sends nothing beyond that buffer.
func (c *Client) flushLegacy() {
	c.mu.Lock()
	pending := c.legacyPending
	c.legacyPending = nil
	c.mu.Unlock()
	for _, m := range pending {
		c.sendLegacy(m)
	}
}

// sendLegacy encodes and sends one legacy message, buffering it instead if
// the handshake hasn't completed yet (mirrors the modern path's
// buffer-until-connected rule, §4.6).
func (c *Client) sendLegacy(m ntnet.LegacyMessage) {
	c.mu.Lock()
	if !c.legacyReady {
		c.legacyPending = append(c.legacyPending, m)
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if b, err := ntnet.EncodeLegacyMessage(m); err == nil {
		conn.SendBinary(b)
	}
}
