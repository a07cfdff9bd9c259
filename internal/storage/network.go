// Network-inbound handlers (§4.3): called by the network layer on decoded
// control and value messages, never by application code directly. They
// mutate local state and fire listener/data-log events the same way a
// local operation would, but never re-offer a value or announcement that
// arrived FROM the network to NetSink; fan-out to other peers (on a server,
// to every other connection) is the network layer's own job, driven off
// these handlers' return values. The one NetSink call made from here is
// ServerUnannounce promoting a parked local publisher, which emits that
// publisher's OnPublish.
package storage

import (
	"github.com/jabolina/networktables/internal/handle"
	"github.com/jabolina/networktables/internal/value"
)

// ServerAnnounce implements §4.3 server_announce: the remote peer's
// authoritative type/id for a topic. A conflicting local publisher is
// demoted to disabled and its owner notified only via the log line; no
// unpublish event is sent, since the conflict resolution is purely local
// bookkeeping until the peer's mind changes again.
func (s *Instance) ServerAnnounce(name string, id uint32, typeStr string, properties map[string]any) handle.Handle {
	typ, _ := value.TypeFromString(typeStr)
	s.mu.Lock()
	t := s.getOrCreateTopicLocked(name)

	var actions []func()
	if t.Type != value.Unassigned && t.Type != typ {
		for _, p := range t.Publishers {
			if p.Active {
				p.Active = false
				p.Advertised = false
				t.disabledPublisher = p
			}
		}
		s.logger.Info().
			Str("topic", name).
			Str("was", t.TypeString).
			Str("now", typeStr).
			Msg("network announce overriding local publish")
	}
	t.Type = typ
	t.TypeString = typeStr
	t.ID = id
	t.announced = true
	if properties != nil {
		t.mergeProperties(properties)
	}
	actions = append(actions, s.topicEventActionsLocked(EventTopicPublish, t)...)
	s.mu.Unlock()
	run(actions)
	return t.Handle
}

// ServerUnannounce implements §4.3 server_unannounce: the peer has
// withdrawn its authoritative identity for a topic. Any local publisher
// parked as disabled by a prior conflicting announce is promoted back.
func (s *Instance) ServerUnannounce(name string) {
	s.mu.Lock()
	t, ok := s.topics[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	t.announced = false
	t.ID = 0

	actions := s.topicEventActionsLocked(EventTopicUnpublish, t)
	if len(t.Publishers) == 0 && (t.Flags&(FlagPersistent|FlagRetained) == 0 || t.LastValue.Empty()) {
		t.Type = value.Unassigned
		t.TypeString = ""
	}
	actions = append(actions, s.promoteDisabledLocked(t)...)
	s.mu.Unlock()
	run(actions)
}

// ServerSetValue implements §4.3's network-inbound value path: the same
// propagation core as a local set, but originating from no local publisher
// (so ExcludePublisher/ExcludeSelf never apply and OnValue is never
// re-invoked) and firing value-remote rather than value-local events.
func (s *Instance) ServerSetValue(name string, v value.Value) bool {
	if v.Empty() {
		return false
	}
	s.mu.Lock()
	t, ok := s.topics[name]
	if !ok || t.Type == value.Unassigned || v.Type != t.Type {
		s.mu.Unlock()
		return false
	}
	actions := s.deliverValueLocked(t, nil, v, true)
	s.mu.Unlock()
	run(actions)
	return true
}

// ServerPropertiesUpdate implements §4.3 server_properties_update: the
// peer's authoritative property merge for a topic.
func (s *Instance) ServerPropertiesUpdate(name string, update map[string]any) bool {
	s.mu.Lock()
	t, ok := s.topics[name]
	if !ok {
		s.mu.Unlock()
		return false
	}
	t.mergeProperties(update)
	actions := s.topicEventActionsLocked(EventTopicProperties, t)
	s.mu.Unlock()
	run(actions)
	return true
}
