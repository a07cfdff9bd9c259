package client

import (
	ntnet "github.com/jabolina/networktables/internal/net"
)

func (c *Client) handleText(data []byte) {
	cm, err := ntnet.DecodeControl(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("malformed control frame from server, disconnecting")
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	switch cm.Method {
	case ntnet.MethodAnnounce:
		var p ntnet.AnnounceParams
		if ntnet.DecodeParams(cm, &p) == nil {
			c.handleAnnounce(p)
		}
	case ntnet.MethodUnannounce:
		var p ntnet.UnannounceParams
		if ntnet.DecodeParams(cm, &p) == nil {
			c.handleUnannounce(p)
		}
	case ntnet.MethodProperties:
		var p ntnet.PropertiesParams
		if ntnet.DecodeParams(cm, &p) == nil {
			c.store.ServerPropertiesUpdate(p.Name, p.Update)
		}
	default:
		c.logger.Debug().Str("method", cm.Method).Msg("ignoring unexpected server->client method")
	}
}

func (c *Client) handleAnnounce(p ntnet.AnnounceParams) {
	c.mu.Lock()
	c.serverIDByName[p.Name] = p.ID
	c.nameByServerID[p.ID] = p.Name
	c.mu.Unlock()
	c.store.ServerAnnounce(p.Name, p.ID, p.Type, p.Properties)
}

func (c *Client) handleUnannounce(p ntnet.UnannounceParams) {
	c.mu.Lock()
	delete(c.serverIDByName, p.Name)
	delete(c.nameByServerID, p.ID)
	c.mu.Unlock()
	c.store.ServerUnannounce(p.Name)
}

// handleBinary implements §4.6's "refuses to apply an inbound value for
// an unannounced id" rule: a frame whose id was never learned via
// announce is silently dropped.
func (c *Client) handleBinary(data []byte) {
	frame, err := ntnet.DecodeValue(data)
	if err != nil {
		c.logger.Warn().Err(err).Msg("malformed value frame from server, disconnecting")
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	c.mu.Lock()
	name, ok := c.nameByServerID[frame.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug().Uint32("id", frame.ID).Msg("dropping value for unannounced id")
		return
	}

	// ntnet.DecodeValue always places the wire's time field into
	// ClientTime; on this (server->client) direction that field is
	// already the server's own clock, so move it into ServerTime.
	v := frame.Value
	v.ServerTime = v.ClientTime
	v.ClientTime = 0
	c.store.ServerSetValue(name, v)
}
