package server

import (
	"github.com/jabolina/networktables/internal/metrics"
	ntnet "github.com/jabolina/networktables/internal/net"
	"github.com/jabolina/networktables/internal/storage"
	"github.com/jabolina/networktables/internal/value"
)

func (s *Server) handleText(c *Client, data []byte) {
	cm, err := ntnet.DecodeControl(data)
	if err != nil {
		s.logger.Warn().Str("client", c.Name).Err(err).Msg("malformed control frame, disconnecting")
		c.conn.Close()
		return
	}
	switch cm.Method {
	case ntnet.MethodPublish:
		var p ntnet.PublishParams
		if ntnet.DecodeParams(cm, &p) == nil {
			s.handlePublish(c, p)
		}
	case ntnet.MethodUnpublish:
		var p ntnet.UnpublishParams
		if ntnet.DecodeParams(cm, &p) == nil {
			s.unpublishFromClient(c, p.PubUID)
		}
	case ntnet.MethodSetProperties:
		var p ntnet.SetPropertiesParams
		if ntnet.DecodeParams(cm, &p) == nil {
			s.handleSetProperties(c, p)
		}
	case ntnet.MethodSubscribe:
		var p ntnet.SubscribeParams
		if ntnet.DecodeParams(cm, &p) == nil {
			s.handleSubscribe(c, p)
		}
	case ntnet.MethodUnsubscribe:
		var p ntnet.UnsubscribeParams
		if ntnet.DecodeParams(cm, &p) == nil {
			s.handleUnsubscribe(c, p)
		}
	default:
		s.logger.Debug().Str("client", c.Name).Str("method", cm.Method).Msg("ignoring unexpected client->server method")
	}
}

// handlePublish implements §4.5 step 5: the topic identity is established
// purely through ServerAnnounce (no storage.Publisher is created for a
// remote publisher — see internal/net/messages.go's ClientID doc and
// internal/storage/network.go's package doc).
func (s *Server) handlePublish(c *Client, p ntnet.PublishParams) {
	s.mu.Lock()
	id, known := s.topicsByName[p.Name]
	if !known {
		s.nextTopicID++
		id = s.nextTopicID
		s.topicsByName[p.Name] = id
	}
	s.mu.Unlock()

	s.store.ServerAnnounce(p.Name, id, p.Type, p.Properties)

	c.mu.Lock()
	c.publishers[p.PubUID] = p.Name
	c.mu.Unlock()

	pubuid := p.PubUID
	ann := ntnet.AnnounceParams{Name: p.Name, ID: id, Type: p.Type, Properties: p.Properties, PubUID: &pubuid}
	s.sendAnnounce(c, ann)
	s.broadcastAnnounce(c, ntnet.AnnounceParams{Name: p.Name, ID: id, Type: p.Type, Properties: p.Properties})
}

func (s *Server) unpublishFromClient(c *Client, pubuid uint32) {
	c.mu.Lock()
	name, ok := c.publishers[pubuid]
	if ok {
		delete(c.publishers, pubuid)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	id := s.topicsByName[name]
	delete(s.topicsByName, name)
	s.mu.Unlock()

	s.store.ServerUnannounce(name)
	s.broadcastUnannounce(c, ntnet.UnannounceParams{Name: name, ID: id})
}

func (s *Server) handleSetProperties(c *Client, p ntnet.SetPropertiesParams) {
	if !s.store.ServerPropertiesUpdate(p.Name, p.Update) {
		return
	}
	s.broadcastProperties(c, ntnet.PropertiesParams{Name: p.Name, Update: p.Update})
}

// handleSubscribe implements §4.5 step 4: record the subscription, announce
// every currently matching topic, and — unless TopicsOnly is set — queue
// each matched topic's current retained value so the subscriber doesn't have
// to wait for the next live set to learn it.
func (s *Server) handleSubscribe(c *Client, p ntnet.SubscribeParams) {
	sub := &subscription{Topics: append([]string(nil), p.Topics...)}
	if p.Options != nil {
		sub.PrefixMatch = p.Options.PrefixMatch
		sub.TopicsOnly = p.Options.TopicsOnly
		sub.KeepDuplicates = p.Options.KeepDuplicates
		sub.SendAll = p.Options.SendAll
	}
	c.mu.Lock()
	c.subscriptions[p.SubUID] = sub
	c.mu.Unlock()

	s.mu.Lock()
	matches := map[string]uint32{}
	for name, id := range s.topicsByName {
		if sub.matches(name) {
			matches[name] = id
		}
	}
	s.mu.Unlock()

	immediate := sub.SendAll || sub.KeepDuplicates
	for name, id := range matches {
		info, ok := s.topicInfoByName(name)
		if !ok {
			continue
		}
		s.sendAnnounce(c, ntnet.AnnounceParams{Name: name, ID: id, Type: info.TypeString, Properties: info.Properties})
		if sub.TopicsOnly || info.LastValue.Empty() {
			continue
		}
		lv := info.LastValue
		if lv.ServerTime != 0 {
			lv.ClientTime = lv.ServerTime
		}
		if b, err := ntnet.EncodeValue(id, lv); err == nil {
			c.sendValue(id, b, immediate)
		}
	}
}

func (s *Server) handleUnsubscribe(c *Client, p ntnet.UnsubscribeParams) {
	c.mu.Lock()
	delete(c.subscriptions, p.SubUID)
	c.mu.Unlock()
}

// handleBinary implements §4.5 step 6-7: resolve pubuid to topic, rewrite
// the timestamp to server time, accept the value into local storage, then
// broadcast to every other matching subscriber.
func (s *Server) handleBinary(c *Client, data []byte) {
	frame, err := ntnet.DecodeValue(data)
	if err != nil {
		s.logger.Warn().Str("client", c.Name).Err(err).Msg("malformed value frame, disconnecting")
		c.conn.Close()
		return
	}

	c.mu.Lock()
	name, ok := c.publishers[frame.ID]
	c.mu.Unlock()
	if !ok {
		return // unknown pubuid: silent no-op (§7 "Unknown handle")
	}

	v := frame.Value
	if v.ClientTime <= 0 {
		v.ServerTime = s.store.Now()
	} else {
		v.ServerTime = c.ClockOffset + v.ClientTime
	}

	metrics.ValuesReceived.Inc()
	if !s.store.ServerSetValue(name, v) {
		return
	}

	s.mu.Lock()
	id := s.topicsByName[name]
	s.mu.Unlock()

	s.broadcastValue(c, name, id, v)
}

func (s *Server) sendAnnounce(c *Client, ann ntnet.AnnounceParams) {
	b, err := ntnet.EncodeControl(ntnet.MethodAnnounce, ann)
	if err != nil {
		return
	}
	c.conn.SendText(b)
}

// broadcastAnnounce/broadcastUnannounce/broadcastProperties/broadcastValue
// send to every *other* connected client (§4.5 step 7, "Ordering and
// broadcast rules"), the network layer's own fan-out independent of any
// storage.Subscriber object.
func (s *Server) broadcastAnnounce(except *Client, ann ntnet.AnnounceParams) {
	b, err := ntnet.EncodeControl(ntnet.MethodAnnounce, ann)
	if err != nil {
		return
	}
	s.forEachOtherClient(except, func(c *Client) bool {
		c.mu.Lock()
		matched := false
		for _, sub := range c.subscriptions {
			if sub.matches(ann.Name) {
				matched = true
				break
			}
		}
		c.mu.Unlock()
		return matched
	}, func(c *Client) { c.conn.SendText(b) })
}

func (s *Server) broadcastUnannounce(except *Client, un ntnet.UnannounceParams) {
	b, err := ntnet.EncodeControl(ntnet.MethodUnannounce, un)
	if err != nil {
		return
	}
	s.forEachOtherClient(except, func(*Client) bool { return true }, func(c *Client) { c.conn.SendText(b) })
}

func (s *Server) broadcastProperties(except *Client, pr ntnet.PropertiesParams) {
	b, err := ntnet.EncodeControl(ntnet.MethodProperties, pr)
	if err != nil {
		return
	}
	s.forEachOtherClient(except, func(c *Client) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, sub := range c.subscriptions {
			if sub.matches(pr.Name) {
				return true
			}
		}
		return false
	}, func(c *Client) { c.conn.SendText(b) })
}

func (s *Server) broadcastValue(except *Client, name string, id uint32, v value.Value) {
	if v.ServerTime != 0 {
		v.ClientTime = v.ServerTime
	}
	b, err := ntnet.EncodeValue(id, v)
	if err != nil {
		return
	}
	s.forEachOtherClient(except, func(c *Client) bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, sub := range c.subscriptions {
			if sub.TopicsOnly {
				continue
			}
			if sub.matches(name) {
				return true
			}
		}
		return false
	}, func(c *Client) {
		c.mu.Lock()
		immediate := false
		for _, sub := range c.subscriptions {
			if sub.matches(name) && (sub.SendAll || sub.KeepDuplicates) {
				immediate = true
				break
			}
		}
		c.mu.Unlock()
		c.sendValue(id, b, immediate)
		metrics.ValuesBroadcast.Inc()
	})
}

func (s *Server) forEachOtherClient(except *Client, match func(*Client) bool, send func(*Client)) {
	s.mu.Lock()
	targets := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c == except {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		if match(c) {
			send(c)
		}
	}
}

func (s *Server) topicInfoByName(name string) (storage.TopicInfo, bool) {
	for _, info := range s.store.GetTopics([]string{name}) {
		if info.Name == name {
			return info, true
		}
	}
	return storage.TopicInfo{}, false
}

// --- storage.NetSink implementation: local-origin traffic on the shared
// Instance is broadcast exactly like remote-origin traffic (§2 data flow).

func (s *Server) OnPublish(pub *storage.Publisher) {
	s.mu.Lock()
	id, known := s.topicsByName[pub.Topic.Name]
	if !known {
		s.nextTopicID++
		id = s.nextTopicID
		s.topicsByName[pub.Topic.Name] = id
	}
	count := len(s.topicsByName)
	s.mu.Unlock()
	metrics.TopicsActive.Set(float64(count))
	s.broadcastAnnounce(nil, ntnet.AnnounceParams{
		Name:       pub.Topic.Name,
		ID:         id,
		Type:       pub.TypeString,
		Properties: pub.PropertiesAtPublish,
	})
}

func (s *Server) OnUnpublish(pub *storage.Publisher, remaining int) {
	if remaining > 0 {
		return // another local publisher still owns the identity
	}
	s.mu.Lock()
	id := s.topicsByName[pub.Topic.Name]
	delete(s.topicsByName, pub.Topic.Name)
	count := len(s.topicsByName)
	s.mu.Unlock()
	metrics.TopicsActive.Set(float64(count))
	s.broadcastUnannounce(nil, ntnet.UnannounceParams{Name: pub.Topic.Name, ID: id})
}

func (s *Server) OnSetProperties(topic *storage.Topic, update map[string]any) {
	s.broadcastProperties(nil, ntnet.PropertiesParams{Name: topic.Name, Update: update})
}

func (s *Server) OnSubscribe(*storage.Subscriber)           {}
func (s *Server) OnUnsubscribe(*storage.Subscriber)         {}
func (s *Server) OnSubscribeMulti(*storage.MultiSubscriber) {}
func (s *Server) OnUnsubscribeMulti(*storage.MultiSubscriber) {
}

func (s *Server) OnValue(pub *storage.Publisher, v value.Value) {
	s.mu.Lock()
	id, known := s.topicsByName[pub.Topic.Name]
	s.mu.Unlock()
	if !known {
		return
	}
	if v.ServerTime == 0 {
		v.ServerTime = s.store.Now()
	}
	s.broadcastValue(nil, pub.Topic.Name, id, v)
}
